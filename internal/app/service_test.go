package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codebook/api/internal/codebook"
	"codebook/api/internal/dataset"
	"codebook/api/internal/settings"
)

// newTestService wires a service onto real file stores in a temp dir with
// the embedded codebook and in-process sessions.
func newTestService(t *testing.T, csv string) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "current.csv")
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	svc := New(
		dataset.NewStore(path),
		settings.NewStore(filepath.Join(dir, "settings.json")),
		codebook.Default(),
	)
	return svc, path
}

func readDataset(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dataset: %v", err)
	}
	return string(raw)
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("error = %v, want *DomainError with code %s", err, code)
	}
	if domainErr.Code != code {
		t.Fatalf("code = %s, want %s", domainErr.Code, code)
	}
}

func TestNextRowReturnsFirstUnlabeled(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,help\nrow b,\nrow c,\n")

	view, ok, err := svc.NextRow("1")
	if err != nil {
		t.Fatalf("NextRow: %v", err)
	}
	if !ok {
		t.Fatal("expected an unlabeled row")
	}
	if view.Index != 1 || view.Number != 2 {
		t.Errorf("index = %d, number = %d, want 1, 2", view.Index, view.Number)
	}

	// Coder 2 has labeled nothing, so their next row is still the first.
	view2, ok, err := svc.NextRow("2")
	if err != nil {
		t.Fatalf("NextRow: %v", err)
	}
	if !ok || view2.Index != 0 {
		t.Errorf("coder 2 index = %d, %v, want 0, true", view2.Index, ok)
	}
}

func TestNextRowIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,\nrow b,\n")

	first, ok, err := svc.NextRow("1")
	if err != nil || !ok {
		t.Fatalf("NextRow: %v, ok=%v", err, ok)
	}
	second, ok, err := svc.NextRow("1")
	if err != nil || !ok {
		t.Fatalf("NextRow: %v, ok=%v", err, ok)
	}
	if first.Index != second.Index {
		t.Errorf("repeated NextRow moved: %d then %d", first.Index, second.Index)
	}
}

func TestNextRowAllLabeled(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,help\nrow b,listen\n")

	_, ok, err := svc.NextRow("1")
	if err != nil {
		t.Fatalf("NextRow: %v", err)
	}
	if ok {
		t.Error("expected completion, got a row")
	}
}

func TestNextRowUnknownCoder(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,\n")

	_, _, err := svc.NextRow("99")
	assertDomainCode(t, err, "VALIDATION_ERROR")
}

func TestSubmitLabelPersistsAndAdvances(t *testing.T) {
	svc, path := newTestService(t, "text,label_1\nrow a,\nrow b,\nrow c,\n")

	if err := svc.SubmitLabel("1", 0, "help"); err != nil {
		t.Fatalf("SubmitLabel: %v", err)
	}

	if got := readDataset(t, path); !strings.Contains(got, "row a,help") {
		t.Errorf("label not persisted: %q", got)
	}

	view, ok, err := svc.NextRow("1")
	if err != nil || !ok {
		t.Fatalf("NextRow: %v, ok=%v", err, ok)
	}
	if view.Index != 1 {
		t.Errorf("next index = %d, want 1", view.Index)
	}
}

func TestSubmitLabelRejectsUnknownLabel(t *testing.T) {
	before := "text,label_1\nrow a,\n"
	svc, path := newTestService(t, before)

	err := svc.SubmitLabel("1", 0, "nonsense")
	assertDomainCode(t, err, "VALIDATION_ERROR")
	if errorField(err) != "label" {
		t.Errorf("field = %q, want label", errorField(err))
	}
	if got := readDataset(t, path); got != before {
		t.Errorf("file changed after rejected submit: %q", got)
	}
}

func TestSubmitLabelRequiresLabel(t *testing.T) {
	before := "text,label_1\nrow a,\n"
	svc, path := newTestService(t, before)

	err := svc.SubmitLabel("1", 0, "  ")
	assertDomainCode(t, err, "VALIDATION_ERROR")
	if got := readDataset(t, path); got != before {
		t.Errorf("file changed after rejected submit: %q", got)
	}
}

func TestSubmitLabelOutOfRange(t *testing.T) {
	before := "text,label_1\nrow a,\n"
	svc, path := newTestService(t, before)

	for _, idx := range []int{-1, 1, 99} {
		err := svc.SubmitLabel("1", idx, "help")
		assertDomainCode(t, err, "RANGE_ERROR")
	}
	if got := readDataset(t, path); got != before {
		t.Errorf("file changed after rejected submit: %q", got)
	}
}

func TestClearLabelMakesRowUnlabeledAgain(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,help\nrow b,listen\n")

	if err := svc.ClearLabel("1", 0); err != nil {
		t.Fatalf("ClearLabel: %v", err)
	}

	view, ok, err := svc.NextRow("1")
	if err != nil || !ok {
		t.Fatalf("NextRow: %v, ok=%v", err, ok)
	}
	if view.Index != 0 {
		t.Errorf("next index = %d, want 0", view.Index)
	}
}

func TestRowAtWrapsAroundBothEnds(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,\nrow b,\nrow c,\n")

	view, err := svc.RowAt("1", 0)
	if err != nil {
		t.Fatalf("RowAt(0): %v", err)
	}
	if view.Number != 3 {
		t.Errorf("RowAt(0) number = %d, want 3", view.Number)
	}

	view, err = svc.RowAt("1", 4)
	if err != nil {
		t.Fatalf("RowAt(4): %v", err)
	}
	if view.Number != 1 {
		t.Errorf("RowAt(4) number = %d, want 1", view.Number)
	}

	view, err = svc.RowAt("1", 3)
	if err != nil {
		t.Fatalf("RowAt(3): %v", err)
	}
	if view.PrevNumber != 2 || view.NextNumber != 1 {
		t.Errorf("prev/next = %d/%d, want 2/1", view.PrevNumber, view.NextNumber)
	}
}

func TestRowAtEmptyDataset(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\n")

	_, err := svc.RowAt("1", 1)
	assertDomainCode(t, err, "RANGE_ERROR")
}

func TestRowViewRendersTextAndFields(t *testing.T) {
	svc, _ := newTestService(t, "id,text,label_1\n7,**wichtig**,help\n")

	view, err := svc.RowAt("1", 1)
	if err != nil {
		t.Fatalf("RowAt: %v", err)
	}
	if !strings.Contains(string(view.TextHTML), "<strong>wichtig</strong>") {
		t.Errorf("markdown not rendered: %q", view.TextHTML)
	}
	if len(view.Fields) != 1 || view.Fields[0].Name != "id" || view.Fields[0].Value != "7" {
		t.Errorf("fields = %v, want just id=7", view.Fields)
	}
	if view.Current != "help" {
		t.Errorf("current label = %q, want help", view.Current)
	}
	if view.Progress.Labeled != 1 || view.Progress.Percent != 100 {
		t.Errorf("progress = %+v", view.Progress)
	}
}

func TestResolveCoderPrecedence(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,\n")

	coder, err := svc.ResolveCoder("3", "2")
	if err != nil {
		t.Fatalf("ResolveCoder: %v", err)
	}
	if coder.ID != "3" {
		t.Errorf("explicit request lost: got %s", coder.ID)
	}

	coder, err = svc.ResolveCoder("", "2")
	if err != nil {
		t.Fatalf("ResolveCoder: %v", err)
	}
	if coder.ID != "2" {
		t.Errorf("remembered coder lost: got %s", coder.ID)
	}

	coder, err = svc.ResolveCoder("", "stale")
	if err != nil {
		t.Fatalf("ResolveCoder: %v", err)
	}
	if coder.ID != "1" {
		t.Errorf("default coder = %s, want 1", coder.ID)
	}

	_, err = svc.ResolveCoder("99", "")
	assertDomainCode(t, err, "VALIDATION_ERROR")
}

func TestCoderNameOverride(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,\n")

	if err := svc.SetCoderName("1", "Anna"); err != nil {
		t.Fatalf("SetCoderName: %v", err)
	}

	coders, err := svc.Coders()
	if err != nil {
		t.Fatalf("Coders: %v", err)
	}
	if coders[0].Name != "Anna" {
		t.Errorf("name = %q, want Anna", coders[0].Name)
	}
	if coders[1].Name == "Anna" {
		t.Errorf("override leaked to coder 2: %q", coders[1].Name)
	}

	if err := svc.SetCoderName("99", "X"); err == nil {
		t.Error("expected error for unknown coder")
	}
}

func TestReplaceDatasetNormalizesLegacyColumns(t *testing.T) {
	svc, path := newTestService(t, "text,label_1\nold,\n")

	upload := bytes.NewReader([]byte("text,coder_2\nnew row,listen\n"))
	rows, err := svc.ReplaceDataset(upload)
	if err != nil {
		t.Fatalf("ReplaceDataset: %v", err)
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1", rows)
	}

	got := readDataset(t, path)
	if !strings.Contains(got, "label_2") || strings.Contains(got, "coder_2") {
		t.Errorf("legacy column not normalized: %q", got)
	}
	for _, column := range []string{"label_1", "label_3", "label_4", "label_5"} {
		if !strings.Contains(got, column) {
			t.Errorf("missing roster column %s in %q", column, got)
		}
	}
}

func TestReplaceDatasetRequiresTextColumn(t *testing.T) {
	before := "text,label_1\nold,\n"
	svc, path := newTestService(t, before)

	_, err := svc.ReplaceDataset(bytes.NewReader([]byte("id,body\n1,a\n")))
	assertDomainCode(t, err, "VALIDATION_ERROR")
	if errorField(err) != "file" {
		t.Errorf("field = %q, want file", errorField(err))
	}
	if got := readDataset(t, path); got != before {
		t.Errorf("dataset replaced despite invalid upload: %q", got)
	}
}

func TestDownloadReturnsExactBytes(t *testing.T) {
	content := "text,label_1\r\nrow a,help\r\n"
	svc, _ := newTestService(t, content)

	data, filename, err := svc.Download()
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != content {
		t.Errorf("bytes = %q, want %q", data, content)
	}
	if filename != "current.csv" {
		t.Errorf("filename = %q, want current.csv", filename)
	}
}

func TestOverviewCounts(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1,label_2\nrow a,help,\nrow b,listen,\n")

	view, err := svc.Overview()
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if view.Rows != 2 {
		t.Errorf("rows = %d, want 2", view.Rows)
	}
	if len(view.Coders) != 5 {
		t.Fatalf("coders = %d, want 5", len(view.Coders))
	}
	if view.Coders[0].Labeled != 2 || view.Coders[0].Percent != 100 {
		t.Errorf("coder 1 progress = %+v", view.Coders[0])
	}
	if view.Coders[1].Labeled != 0 {
		t.Errorf("coder 2 progress = %+v", view.Coders[1])
	}
}

func TestFlashRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,\n")
	ctx := context.Background()

	if err := svc.Flash(ctx, "sess-1", "success", "saved"); err != nil {
		t.Fatalf("Flash: %v", err)
	}
	flashes, err := svc.PopFlashes(ctx, "sess-1")
	if err != nil {
		t.Fatalf("PopFlashes: %v", err)
	}
	if len(flashes) != 1 || flashes[0].Message != "saved" {
		t.Errorf("flashes = %v", flashes)
	}

	// Drained on read.
	flashes, err = svc.PopFlashes(ctx, "sess-1")
	if err != nil {
		t.Fatalf("PopFlashes: %v", err)
	}
	if len(flashes) != 0 {
		t.Errorf("flashes not drained: %v", flashes)
	}
}

func TestRememberCoderRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, "text,label_1\nrow a,\n")
	ctx := context.Background()

	if got := svc.RememberedCoder(ctx, "sess-2"); got != "" {
		t.Errorf("fresh session coder = %q, want empty", got)
	}
	if err := svc.RememberCoder(ctx, "sess-2", "4"); err != nil {
		t.Fatalf("RememberCoder: %v", err)
	}
	if got := svc.RememberedCoder(ctx, "sess-2"); got != "4" {
		t.Errorf("remembered coder = %q, want 4", got)
	}
}
