package markdown

import (
	"strings"
	"testing"
)

func TestRenderBasicMarkdown(t *testing.T) {
	out := string(NewRenderer().Render("**wichtig** und _kursiv_"))

	if !strings.Contains(out, "<strong>wichtig</strong>") {
		t.Errorf("missing strong tag: %q", out)
	}
	if !strings.Contains(out, "<em>kursiv</em>") {
		t.Errorf("missing em tag: %q", out)
	}
}

func TestRenderHardWraps(t *testing.T) {
	out := string(NewRenderer().Render("line one\nline two"))

	if !strings.Contains(out, "<br") {
		t.Errorf("single newline should render a line break: %q", out)
	}
}

func TestRenderStripsScripts(t *testing.T) {
	out := string(NewRenderer().Render(`hello <script>alert("x")</script> world`))

	if strings.Contains(out, "<script") {
		t.Errorf("script tag survived sanitization: %q", out)
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("text content lost: %q", out)
	}
}

func TestRenderStripsEventHandlers(t *testing.T) {
	out := string(NewRenderer().Render(`<a href="https://example.com" onclick="alert(1)">link</a>`))

	if strings.Contains(out, "onclick") {
		t.Errorf("event handler survived sanitization: %q", out)
	}
}
