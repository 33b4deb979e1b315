package app

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"

	"codebook/api/internal/codebook"
	"codebook/api/internal/dataset"
	"codebook/api/internal/markdown"
	"codebook/api/internal/session"
	"codebook/api/internal/settings"
)

type datasetStore interface {
	Load() (*dataset.Table, error)
	Raw() ([]byte, error)
	SetLabel(column string, row int, label string) error
	ClearLabel(column string, row int) error
	Replace(table *dataset.Table) error
	Path() string
}

type settingsStore interface {
	Load() (settings.Settings, error)
	SetCoderName(coderID, name string) error
}

type sessionStore interface {
	Save(ctx context.Context, sessionID string, data session.Data) error
	Lookup(ctx context.Context, sessionID string) (session.Data, error)
	Ping(ctx context.Context) error
}

// CoderInfo is a roster entry with its effective display name applied.
type CoderInfo struct {
	ID   string
	Name string
}

// Field is one non-label cell of the current row, shown as row metadata.
type Field struct {
	Name  string
	Value string
}

// CoderProgress is one coder's labeled-row tally.
type CoderProgress struct {
	Coder   CoderInfo
	Labeled int
	Total   int
	Percent int
}

// RowView is everything the labeling page needs to render one row.
type RowView struct {
	Coder      CoderInfo
	Coders     []CoderInfo
	Index      int // 0-based, submitted back with the label form
	Number     int // 1-based, used in URLs and display
	Total      int
	TextHTML   template.HTML
	Fields     []Field
	Current    string // label already stored for this coder, "" if none
	PrevNumber int
	NextNumber int
	Labels     []codebook.Label
	Progress   CoderProgress
}

// OverviewView is the management page model.
type OverviewView struct {
	Path    string
	Rows    int
	Columns []string
	Coders  []CoderProgress
	Labels  []codebook.Label
}

type Service struct {
	data     datasetStore
	prefs    settingsStore
	sessions sessionStore
	codebook *codebook.Codebook
	markdown *markdown.Renderer
}

// New builds a service with in-process sessions.
func New(data datasetStore, prefs settingsStore, cb *codebook.Codebook) *Service {
	return NewWithSessionStore(data, prefs, session.NewMemoryStore(0), cb)
}

// NewWithSessionStore builds a service on an explicit session backend.
func NewWithSessionStore(data datasetStore, prefs settingsStore, sessions sessionStore, cb *codebook.Codebook) *Service {
	return &Service{
		data:     data,
		prefs:    prefs,
		sessions: sessions,
		codebook: cb,
		markdown: markdown.NewRenderer(),
	}
}

// DatasetPath returns the location of the dataset file.
func (s *Service) DatasetPath() string {
	return s.data.Path()
}

// Coders returns the roster in configured order with display-name overrides
// applied.
func (s *Service) Coders() ([]CoderInfo, error) {
	prefs, err := s.prefs.Load()
	if err != nil {
		return nil, err
	}
	coders := make([]CoderInfo, len(s.codebook.Coders))
	for i, coder := range s.codebook.Coders {
		coders[i] = coderInfo(coder, prefs)
	}
	return coders, nil
}

// ResolveCoder picks the active coder: an explicit request wins, then the
// session's remembered coder, then the first roster entry. Unknown explicit
// IDs are rejected; a stale remembered ID falls through to the default.
func (s *Service) ResolveCoder(requested, remembered string) (CoderInfo, error) {
	prefs, err := s.prefs.Load()
	if err != nil {
		return CoderInfo{}, err
	}
	if requested = strings.TrimSpace(requested); requested != "" {
		coder, ok := s.codebook.Coder(requested)
		if !ok {
			return CoderInfo{}, validationError(fmt.Sprintf("unknown coder %q", requested), "coder")
		}
		return coderInfo(coder, prefs), nil
	}
	if coder, ok := s.codebook.Coder(remembered); ok {
		return coderInfo(coder, prefs), nil
	}
	return coderInfo(s.codebook.Coders[0], prefs), nil
}

// NextRow returns the labeling view for coder's first unlabeled row in file
// order. ok is false when every row is labeled, including the empty dataset.
func (s *Service) NextRow(coderID string) (view RowView, ok bool, err error) {
	coder, err := s.roster(coderID)
	if err != nil {
		return RowView{}, false, err
	}
	table, err := s.data.Load()
	if err != nil {
		return RowView{}, false, err
	}
	index, found := table.FirstUnlabeled(codebook.Column(coder.ID))
	if !found {
		return RowView{}, false, nil
	}
	view, err = s.rowView(table, coder, index)
	if err != nil {
		return RowView{}, false, err
	}
	return view, true, nil
}

// RowAt returns the labeling view for a 1-based row number. Numbers wrap
// around both ends so prev/next links never dead-end.
func (s *Service) RowAt(coderID string, number int) (RowView, error) {
	coder, err := s.roster(coderID)
	if err != nil {
		return RowView{}, err
	}
	table, err := s.data.Load()
	if err != nil {
		return RowView{}, err
	}
	total := table.Len()
	if total == 0 {
		return RowView{}, rangeError("dataset has no rows")
	}
	index := ((number-1)%total + total) % total
	return s.rowView(table, coder, index)
}

// SubmitLabel validates and persists a label into coder's column at rowIndex
// (0-based). Validation runs before any write, so a rejected submission
// leaves the file untouched.
func (s *Service) SubmitLabel(coderID string, rowIndex int, label string) error {
	coder, err := s.roster(coderID)
	if err != nil {
		return err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return validationError("label is required", "label")
	}
	if !s.codebook.HasLabel(label) {
		return validationError(fmt.Sprintf("label %q is not in the codebook", label), "label")
	}
	if err := s.data.SetLabel(codebook.Column(coder.ID), rowIndex, label); err != nil {
		if errors.Is(err, dataset.ErrRowOutOfRange) {
			return rangeError(fmt.Sprintf("row %d is out of range", rowIndex))
		}
		return fmt.Errorf("set label: %w", err)
	}
	return nil
}

// ClearLabel empties coder's column at rowIndex (0-based).
func (s *Service) ClearLabel(coderID string, rowIndex int) error {
	coder, err := s.roster(coderID)
	if err != nil {
		return err
	}
	if err := s.data.ClearLabel(codebook.Column(coder.ID), rowIndex); err != nil {
		if errors.Is(err, dataset.ErrRowOutOfRange) {
			return rangeError(fmt.Sprintf("row %d is out of range", rowIndex))
		}
		return fmt.Errorf("clear label: %w", err)
	}
	return nil
}

// Download returns the dataset exactly as stored on disk, plus the filename
// to serve it under.
func (s *Service) Download() ([]byte, string, error) {
	raw, err := s.data.Raw()
	if err != nil {
		return nil, "", err
	}
	return raw, filepath.Base(s.data.Path()), nil
}

// ReplaceDataset parses an uploaded CSV, normalizes it for the roster and
// makes it the current dataset. Returns the number of data rows.
func (s *Service) ReplaceDataset(upload io.Reader) (int, error) {
	table, err := dataset.DecodeUpload(upload)
	if err != nil {
		return 0, validationError(fmt.Sprintf("could not read the uploaded CSV: %v", err), "file")
	}
	if err := table.Normalize(s.codebook.CoderColumns()); err != nil {
		return 0, validationError(err.Error(), "file")
	}
	if err := s.data.Replace(table); err != nil {
		return 0, fmt.Errorf("replace dataset: %w", err)
	}
	return table.Len(), nil
}

// Overview builds the management page model: dataset shape plus per-coder
// progress.
func (s *Service) Overview() (OverviewView, error) {
	table, err := s.data.Load()
	if err != nil {
		return OverviewView{}, err
	}
	coders, err := s.Coders()
	if err != nil {
		return OverviewView{}, err
	}
	progress := make([]CoderProgress, len(coders))
	for i, coder := range coders {
		progress[i] = progressFor(coder, table, codebook.Column(coder.ID))
	}
	return OverviewView{
		Path:    s.data.Path(),
		Rows:    table.Len(),
		Columns: table.Columns(),
		Coders:  progress,
		Labels:  s.codebook.Labels,
	}, nil
}

// Progress returns coder's labeled-row tally.
func (s *Service) Progress(coderID string) (CoderProgress, error) {
	coder, err := s.roster(coderID)
	if err != nil {
		return CoderProgress{}, err
	}
	prefs, err := s.prefs.Load()
	if err != nil {
		return CoderProgress{}, err
	}
	table, err := s.data.Load()
	if err != nil {
		return CoderProgress{}, err
	}
	return progressFor(coderInfo(coder, prefs), table, codebook.Column(coder.ID)), nil
}

// SetCoderName stores a display-name override for a roster coder.
func (s *Service) SetCoderName(coderID, name string) error {
	if _, err := s.roster(coderID); err != nil {
		return err
	}
	if err := s.prefs.SetCoderName(coderID, strings.TrimSpace(name)); err != nil {
		return fmt.Errorf("save coder name: %w", err)
	}
	return nil
}

// CheckDataset verifies the dataset file is readable and parsable.
func (s *Service) CheckDataset() error {
	_, err := s.data.Load()
	return err
}

// CheckSessions verifies the session backend responds.
func (s *Service) CheckSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

// RememberedCoder reads the coder remembered on the session. Lookups are
// best effort: a missing, expired or unreachable session reads as empty so
// the page still renders with the default coder.
func (s *Service) RememberedCoder(ctx context.Context, sessionID string) string {
	if sessionID == "" {
		return ""
	}
	data, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return ""
	}
	return data.CoderID
}

// RememberCoder stores coderID as the session's active coder.
func (s *Service) RememberCoder(ctx context.Context, sessionID, coderID string) error {
	data, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	if data.CoderID == coderID {
		return nil
	}
	data.CoderID = coderID
	return s.sessions.Save(ctx, sessionID, data)
}

// Flash queues a one-shot notice on the session.
func (s *Service) Flash(ctx context.Context, sessionID, level, message string) error {
	data, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	data.Flashes = append(data.Flashes, session.Flash{Level: level, Message: message})
	return s.sessions.Save(ctx, sessionID, data)
}

// PopFlashes drains the session's queued notices.
func (s *Service) PopFlashes(ctx context.Context, sessionID string) ([]session.Flash, error) {
	data, err := s.sessions.Lookup(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data.Flashes) == 0 {
		return nil, nil
	}
	flashes := data.Flashes
	data.Flashes = nil
	if err := s.sessions.Save(ctx, sessionID, data); err != nil {
		return nil, err
	}
	return flashes, nil
}

func (s *Service) roster(coderID string) (codebook.Coder, error) {
	coder, ok := s.codebook.Coder(coderID)
	if !ok {
		return codebook.Coder{}, validationError(fmt.Sprintf("unknown coder %q", coderID), "coder")
	}
	return coder, nil
}

func (s *Service) rowView(table *dataset.Table, coder codebook.Coder, index int) (RowView, error) {
	coders, err := s.Coders()
	if err != nil {
		return RowView{}, err
	}
	row, err := table.Row(index)
	if err != nil {
		return RowView{}, err
	}

	active := CoderInfo{ID: coder.ID, Name: coder.Name}
	for _, info := range coders {
		if info.ID == coder.ID {
			active = info
			break
		}
	}

	var fields []Field
	for _, name := range table.Columns() {
		if name == dataset.TextColumn || strings.HasPrefix(name, "label_") {
			continue
		}
		fields = append(fields, Field{Name: name, Value: row[name]})
	}

	column := codebook.Column(coder.ID)
	current, err := table.Cell(index, column)
	if err != nil {
		return RowView{}, err
	}

	total := table.Len()
	number := index + 1
	prev := number - 1
	if prev < 1 {
		prev = total
	}
	next := number + 1
	if next > total {
		next = 1
	}

	return RowView{
		Coder:      active,
		Coders:     coders,
		Index:      index,
		Number:     number,
		Total:      total,
		TextHTML:   s.markdown.Render(row[dataset.TextColumn]),
		Fields:     fields,
		Current:    strings.TrimSpace(current),
		PrevNumber: prev,
		NextNumber: next,
		Labels:     s.codebook.Labels,
		Progress:   progressFor(active, table, column),
	}, nil
}

func coderInfo(coder codebook.Coder, prefs settings.Settings) CoderInfo {
	name := coder.Name
	if override := strings.TrimSpace(prefs.CoderNames[coder.ID]); override != "" {
		name = override
	}
	return CoderInfo{ID: coder.ID, Name: name}
}

func progressFor(coder CoderInfo, table *dataset.Table, column string) CoderProgress {
	labeled := table.LabeledCount(column)
	total := table.Len()
	percent := 0
	if total > 0 {
		percent = labeled * 100 / total
	}
	return CoderProgress{Coder: coder, Labeled: labeled, Total: total, Percent: percent}
}
