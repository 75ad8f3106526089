// Package catalog owns the portfolio's image catalog and keeps it in sync
// with durable storage.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/portfolio/internal/models"
	"github.com/lehigh-university-libraries/portfolio/internal/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultKey is the store key holding the serialized catalog
const DefaultKey = "portfolio-images"

var (
	ErrNotFound         = errors.New("image not found")
	ErrMalformedCatalog = errors.New("stored catalog is malformed")
	// ErrNotPersisted marks a change that was applied in memory but not written
	// to the store. The manager keeps working without persistence afterwards.
	ErrNotPersisted = errors.New("catalog not persisted")

	// ErrInvalidRecord rejects an imported record
	ErrInvalidRecord = errors.New("invalid image record")
)

// FileError records a blob that could not be read during upload
type FileError struct {
	Name string
	Err  error
}

func (e FileError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error {
	return e.Err
}

func (e FileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"name":  e.Name,
		"error": e.Err.Error(),
	})
}

// UploadReport describes the outcome of one upload batch
type UploadReport struct {
	Added   []models.ImageRecord `json:"added"`
	Skipped []string             `json:"skipped"`
	Failed  []FileError          `json:"failed"`
}

type Option func(*Manager)

// WithEncoder replaces the default data URI encoder
func WithEncoder(e BlobEncoder) Option {
	return func(m *Manager) { m.encoder = e }
}

// WithClock replaces time.Now for ids and timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithKey sets the store key the catalog is kept under
func WithKey(key string) Option {
	return func(m *Manager) { m.key = key }
}

// WithConcurrency bounds how many blobs are read at once
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// Manager is the authoritative in-memory catalog
type Manager struct {
	store   storage.DurableStore
	key     string
	encoder BlobEncoder
	now     func() time.Time
	workers int

	mu       sync.RWMutex
	records  []models.ImageRecord
	lastBase int64
	degraded bool
}

func New(store storage.DurableStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		key:     DefaultKey,
		encoder: DataURIEncoder{},
		now:     time.Now,
		workers: runtime.NumCPU(),
		records: []models.ImageRecord{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the in-memory catalog with the stored one.
// A missing key is the first-run state and yields an empty catalog.
// A malformed value resets the catalog to empty and returns ErrMalformedCatalog.
// A store failure leaves the manager memory-only and returns ErrNotPersisted.
func (m *Manager) Load() error {
	data, ok, err := m.store.Get(m.key)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = []models.ImageRecord{}

	if err != nil {
		m.degraded = true
		slog.Warn("Unable to read stored catalog, continuing in memory only", "key", m.key, "err", err)
		return fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}
	m.degraded = false
	if !ok {
		slog.Debug("No stored catalog, starting empty", "key", m.key)
		return nil
	}

	records, err := decodeCatalog(data)
	if err != nil {
		slog.Warn("Stored catalog is malformed, starting empty", "key", m.key, "err", err)
		return fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}

	m.records = records
	slog.Info("Catalog loaded", "key", m.key, "images", len(records))
	return nil
}

func decodeCatalog(data []byte) ([]models.ImageRecord, error) {
	var records []models.ImageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		return nil, errors.New("catalog is not a list")
	}

	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("duplicate id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return records, nil
}

// Upload reads every image blob and appends the resulting records in one step.
// Non-image blobs are skipped. A blob that fails to read is reported in
// UploadReport.Failed and does not hold up the rest of the batch.
// Records keep the order of the input blobs.
func (m *Manager) Upload(ctx context.Context, blobs []Blob, filter string) (*UploadReport, error) {
	category, err := models.UploadCategory(filter)
	if err != nil {
		return nil, err
	}

	type slot struct {
		index int
		blob  Blob
		url   string
		err   error
	}

	report := &UploadReport{
		Added:   []models.ImageRecord{},
		Skipped: []string{},
		Failed:  []FileError{},
	}

	slots := make([]*slot, 0, len(blobs))
	for i, blob := range blobs {
		if !models.IsImageType(blob.ContentType()) {
			slog.Debug("Skipping non-image upload", "name", blob.Name(), "type", blob.ContentType())
			report.Skipped = append(report.Skipped, blob.Name())
			continue
		}
		slots = append(slots, &slot{index: i, blob: blob})
	}

	var g errgroup.Group
	g.SetLimit(m.workers)
	for _, s := range slots {
		g.Go(func() error {
			s.url, s.err = m.encoder.Encode(ctx, s.blob)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	indexes := make([]int, 0, len(slots))
	for _, s := range slots {
		indexes = append(indexes, s.index)
	}
	now := m.now()
	base := m.nextBase(now, indexes)
	uploadedAt := models.FormatTimestamp(now)

	for _, s := range slots {
		if s.err != nil {
			slog.Warn("Failed to read upload", "name", s.blob.Name(), "err", s.err)
			report.Failed = append(report.Failed, FileError{Name: s.blob.Name(), Err: s.err})
			continue
		}
		report.Added = append(report.Added, models.ImageRecord{
			ID:         recordID(base, s.index),
			Name:       s.blob.Name(),
			URL:        s.url,
			Size:       s.blob.Size(),
			Type:       s.blob.ContentType(),
			Category:   category,
			UploadedAt: uploadedAt,
		})
	}

	if len(report.Added) == 0 {
		return report, nil
	}

	m.records = append(m.records, report.Added...)
	slog.Info("Images uploaded", "added", len(report.Added), "skipped", len(report.Skipped), "failed", len(report.Failed), "category", category)

	return report, m.persistLocked()
}

// ImportReport describes the outcome of restoring records from a snapshot
type ImportReport struct {
	Added []models.ImageRecord `json:"added"`
	// Existing lists ids already in the catalog, which are left untouched
	Existing []string `json:"existing"`
}

// Import appends previously exported records, keeping their ids.
// The whole batch is rejected if any record is invalid or an id repeats
// within it. Ids already in the catalog are skipped, so importing the same
// snapshot twice is a no-op. The catalog is persisted once.
func (m *Manager) Import(records []models.ImageRecord) (*ImportReport, error) {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: record %d has no id", ErrInvalidRecord, i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRecord, r.ID)
		}
		seen[r.ID] = struct{}{}
		if _, err := models.ParseCategory(string(r.Category)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, r.ID, err)
		}
		if !models.IsImageType(r.Type) {
			return nil, fmt.Errorf("%w: %s has type %q", ErrInvalidRecord, r.ID, r.Type)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make(map[string]struct{}, len(m.records))
	for _, r := range m.records {
		existing[r.ID] = struct{}{}
	}

	report := &ImportReport{
		Added:    []models.ImageRecord{},
		Existing: []string{},
	}
	for _, r := range records {
		if _, ok := existing[r.ID]; ok {
			report.Existing = append(report.Existing, r.ID)
			continue
		}
		report.Added = append(report.Added, r)
	}

	if len(report.Added) == 0 {
		return report, nil
	}

	m.records = append(m.records, report.Added...)
	slog.Info("Images imported", "added", len(report.Added), "existing", len(report.Existing))

	return report, m.persistLocked()
}

func recordID(base int64, index int) string {
	return fmt.Sprintf("img-%d-%d", base, index)
}

// nextBase picks the millisecond component for a batch's ids. It never repeats
// within the process and skips any base that would clash with a stored id.
func (m *Manager) nextBase(now time.Time, indexes []int) int64 {
	base := now.UnixMilli()
	if base <= m.lastBase {
		base = m.lastBase + 1
	}

	existing := make(map[string]struct{}, len(m.records))
	for _, r := range m.records {
		existing[r.ID] = struct{}{}
	}

	for {
		clash := false
		for _, i := range indexes {
			if _, ok := existing[recordID(base, i)]; ok {
				clash = true
				break
			}
		}
		if !clash {
			break
		}
		base++
	}

	m.lastBase = base
	return base
}

// Remove deletes the record with the given id. Removing an unknown id is a
// no-op that leaves both the catalog and the store untouched.
func (m *Manager) Remove(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, r := range m.records {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		slog.Debug("Remove of unknown image ignored", "id", id)
		return false, nil
	}

	m.records = append(m.records[:idx:idx], m.records[idx+1:]...)
	slog.Info("Image removed", "id", id)

	return true, m.persistLocked()
}

func (m *Manager) persistLocked() error {
	if m.degraded {
		return fmt.Errorf("%w: running in memory only", ErrNotPersisted)
	}

	data, err := json.Marshal(m.records)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	if err := m.store.Set(m.key, data); err != nil {
		m.degraded = true
		slog.Warn("Catalog write failed, continuing in memory only", "key", m.key, "err", err)
		return fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}
	return nil
}

// ListByCategory returns the records matching filter in insertion order.
// The wildcard returns the whole catalog.
func (m *Manager) ListByCategory(filter string) ([]models.ImageRecord, error) {
	f, err := models.ParseFilter(filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.ImageRecord, 0, len(m.records))
	for _, r := range m.records {
		if f == models.FilterAll || string(r.Category) == f {
			result = append(result, r)
		}
	}
	return result, nil
}

// Get returns a single record by id
func (m *Manager) Get(id string) (models.ImageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return models.ImageRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Len returns the number of records in the catalog
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Degraded reports whether the manager has stopped writing to the store
func (m *Manager) Degraded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.degraded
}
