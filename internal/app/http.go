package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codebook/api/internal/session"
	"codebook/api/internal/util"
)

const sessionCookie = "codebook_session"

type HTTPServer struct {
	service *Service
}

func NewHTTPServer(service *Service) *HTTPServer {
	return &HTTPServer{service: service}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"dataset":  map[string]any{"status": "ok"},
			"sessions": map[string]any{"status": "ok"},
		}

		if err := s.service.CheckDataset(); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["dataset"] = map[string]any{"status": "error", "error": err.Error()}
		}
		if err := s.service.CheckSessions(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/" {
		s.handleIndex(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/rows" {
		s.handleRow(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/label" {
		s.handleSubmit(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/label/clear" {
		s.handleClear(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/download" {
		s.handleDownload(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/upload" {
		s.handleUpload(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/overview" {
		s.handleOverview(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/settings/coders" {
		s.handleSaveCoders(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/done" {
		s.handleDone(w, r)
		return
	}

	switch r.URL.Path {
	case "/", "/rows", "/label", "/label/clear", "/download", "/upload", "/overview", "/settings/coders", "/done":
		s.renderError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	default:
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.renderError(w, r, http.StatusNotFound, "NOT_FOUND", "Page not found")
	}
}

// handleIndex resumes labeling: the coder's first unlabeled row, or the
// thank-you page when the set is complete.
func (s *HTTPServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	sid := s.browserSession(w, r)
	remembered := s.service.RememberedCoder(r.Context(), sid)
	coder, err := s.service.ResolveCoder(r.URL.Query().Get("coder"), remembered)
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	if err := s.service.RememberCoder(r.Context(), sid, coder.ID); err != nil {
		log.Printf("remember coder: %v", err)
	}

	view, ok, err := s.service.NextRow(coder.ID)
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	flashes := s.popFlashes(r, sid)
	if !ok {
		progress, err := s.service.Progress(coder.ID)
		if err != nil {
			s.renderFailure(w, r, err)
			return
		}
		s.renderPage(w, http.StatusOK, "done.html", donePage{Coder: coder, Progress: progress, Flashes: flashes})
		return
	}
	s.renderPage(w, http.StatusOK, "label.html", labelPage{RowView: view, Flashes: flashes})
}

func (s *HTTPServer) handleRow(w http.ResponseWriter, r *http.Request) {
	sid := s.browserSession(w, r)
	remembered := s.service.RememberedCoder(r.Context(), sid)
	coder, err := s.service.ResolveCoder(r.URL.Query().Get("coder"), remembered)
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	if err := s.service.RememberCoder(r.Context(), sid, coder.ID); err != nil {
		log.Printf("remember coder: %v", err)
	}

	number, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("idx")))
	if err != nil {
		s.renderError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "idx must be an integer")
		return
	}
	view, err := s.service.RowAt(coder.ID, number)
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	s.renderPage(w, http.StatusOK, "label.html", labelPage{RowView: view, Flashes: s.popFlashes(r, sid)})
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sid := s.browserSession(w, r)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "INVALID_BODY", "Could not parse form")
		return
	}
	coderID := strings.TrimSpace(r.PostFormValue("coder"))
	label := r.PostFormValue("label")
	idx, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("idx")))
	if err != nil {
		s.renderError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "idx must be an integer")
		return
	}

	if err := s.service.SubmitLabel(coderID, idx, label); err != nil {
		if errorField(err) == "label" {
			// A bad label re-shows the row with the complaint instead of a
			// bare error page.
			_, _, message, _ := mapError(err)
			s.flash(r, sid, "error", message)
			s.redirect(w, r, fmt.Sprintf("/rows?coder=%s&idx=%d", url.QueryEscape(coderID), idx+1))
			return
		}
		s.renderFailure(w, r, err)
		return
	}

	s.flash(r, sid, "success", fmt.Sprintf("Saved %q for row %d.", strings.TrimSpace(label), idx+1))
	s.redirect(w, r, "/?coder="+url.QueryEscape(coderID))
}

func (s *HTTPServer) handleClear(w http.ResponseWriter, r *http.Request) {
	sid := s.browserSession(w, r)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "INVALID_BODY", "Could not parse form")
		return
	}
	coderID := strings.TrimSpace(r.PostFormValue("coder"))
	idx, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("idx")))
	if err != nil {
		s.renderError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "idx must be an integer")
		return
	}

	if err := s.service.ClearLabel(coderID, idx); err != nil {
		s.renderFailure(w, r, err)
		return
	}

	s.flash(r, sid, "info", fmt.Sprintf("Cleared the label on row %d.", idx+1))
	s.redirect(w, r, fmt.Sprintf("/rows?coder=%s&idx=%d", url.QueryEscape(coderID), idx+1))
}

func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.service.Download()
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	sid := s.browserSession(w, r)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.flash(r, sid, "error", "Upload failed: could not parse the form.")
		s.redirect(w, r, "/overview")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.flash(r, sid, "error", "Choose a CSV file to upload.")
		s.redirect(w, r, "/overview")
		return
	}
	defer file.Close()

	rows, err := s.service.ReplaceDataset(file)
	if err != nil {
		if errorField(err) == "file" {
			_, _, message, _ := mapError(err)
			s.flash(r, sid, "error", "Upload rejected: "+message)
			s.redirect(w, r, "/overview")
			return
		}
		s.renderFailure(w, r, err)
		return
	}

	s.flash(r, sid, "success", fmt.Sprintf("Dataset replaced with %q (%d rows).", header.Filename, rows))
	s.redirect(w, r, "/overview")
}

func (s *HTTPServer) handleOverview(w http.ResponseWriter, r *http.Request) {
	sid := s.browserSession(w, r)
	view, err := s.service.Overview()
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	s.renderPage(w, http.StatusOK, "overview.html", overviewPage{OverviewView: view, Flashes: s.popFlashes(r, sid)})
}

func (s *HTTPServer) handleSaveCoders(w http.ResponseWriter, r *http.Request) {
	sid := s.browserSession(w, r)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "INVALID_BODY", "Could not parse form")
		return
	}
	coders, err := s.service.Coders()
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	for _, coder := range coders {
		field := "name_" + coder.ID
		if _, ok := r.PostForm[field]; !ok {
			continue
		}
		if err := s.service.SetCoderName(coder.ID, r.PostFormValue(field)); err != nil {
			s.renderFailure(w, r, err)
			return
		}
	}
	s.flash(r, sid, "success", "Coder names saved.")
	s.redirect(w, r, "/overview")
}

func (s *HTTPServer) handleDone(w http.ResponseWriter, r *http.Request) {
	sid := s.browserSession(w, r)
	remembered := s.service.RememberedCoder(r.Context(), sid)
	coder, err := s.service.ResolveCoder(r.URL.Query().Get("coder"), remembered)
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	progress, err := s.service.Progress(coder.ID)
	if err != nil {
		s.renderFailure(w, r, err)
		return
	}
	s.renderPage(w, http.StatusOK, "done.html", donePage{Coder: coder, Progress: progress, Flashes: s.popFlashes(r, sid)})
}

// browserSession returns the request's session ID, minting one and setting
// the cookie when the browser does not have one yet.
func (s *HTTPServer) browserSession(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := util.SessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *HTTPServer) flash(r *http.Request, sid, level, message string) {
	if err := s.service.Flash(r.Context(), sid, level, message); err != nil {
		log.Printf("flash: %v", err)
	}
}

func (s *HTTPServer) popFlashes(r *http.Request, sid string) []session.Flash {
	flashes, err := s.service.PopFlashes(r.Context(), sid)
	if err != nil {
		log.Printf("pop flashes: %v", err)
	}
	return flashes
}

func (s *HTTPServer) redirect(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (s *HTTPServer) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, _ := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	s.renderError(w, r, status, code, message)
}

func (s *HTTPServer) renderError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.renderPage(w, status, "error.html", errorPage{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *HTTPServer) renderPage(w http.ResponseWriter, status int, name string, data any) {
	body, err := executePage(name, data)
	if err != nil {
		log.Printf("%v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type labelPage struct {
	RowView
	Flashes []session.Flash
}

type donePage struct {
	Coder    CoderInfo
	Progress CoderProgress
	Flashes  []session.Flash
}

type overviewPage struct {
	OverviewView
	Flashes []session.Flash
}

type errorPage struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.RequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}
