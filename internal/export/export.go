// Package export writes catalog snapshots for offline backup.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/portfolio/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Formats lists the supported snapshot formats
var Formats = []string{"json", "yaml", "parquet"}

// SnapshotConfig is the header section of a YAML snapshot
type SnapshotConfig struct {
	Filter    string `yaml:"filter"`
	Count     int    `yaml:"count"`
	Timestamp string `yaml:"timestamp"`
}

// Snapshot is the complete YAML document
type Snapshot struct {
	Config  SnapshotConfig       `yaml:"config"`
	Records []models.ImageRecord `yaml:"records"`
}

// Row is the parquet schema for one record
type Row struct {
	ID         string `parquet:"id"`
	Name       string `parquet:"name"`
	URL        string `parquet:"url"`
	Size       int64  `parquet:"size"`
	Type       string `parquet:"type"`
	Category   string `parquet:"category"`
	UploadedAt string `parquet:"uploaded_at"`
}

// Write dispatches on format
func Write(w io.Writer, format, filter string, records []models.ImageRecord) error {
	switch format {
	case "json":
		return WriteJSON(w, records)
	case "yaml":
		return WriteYAML(w, filter, records, time.Now())
	case "parquet":
		return WriteParquet(w, records)
	default:
		return fmt.Errorf("unsupported format: %s (supported: json, yaml, parquet)", format)
	}
}

// Read dispatches on format. r must hold a complete snapshot of size bytes.
func Read(r io.ReaderAt, size int64, format string) ([]models.ImageRecord, error) {
	switch format {
	case "json":
		return ReadJSON(io.NewSectionReader(r, 0, size))
	case "yaml":
		snapshot, err := ReadYAML(io.NewSectionReader(r, 0, size))
		if err != nil {
			return nil, err
		}
		return snapshot.Records, nil
	case "parquet":
		return ReadParquet(r, size)
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, parquet)", format)
	}
}

// ReadJSON parses records written by WriteJSON
func ReadJSON(r io.Reader) ([]models.ImageRecord, error) {
	var records []models.ImageRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return records, nil
}

// WriteJSON writes records in the same shape the catalog is stored in
func WriteJSON(w io.Writer, records []models.ImageRecord) error {
	if records == nil {
		records = []models.ImageRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteYAML writes a snapshot with a config header
func WriteYAML(w io.Writer, filter string, records []models.ImageRecord, now time.Time) error {
	snapshot := Snapshot{
		Config: SnapshotConfig{
			Filter:    filter,
			Count:     len(records),
			Timestamp: now.Format("2006-01-02_15-04-05"),
		},
		Records: records,
	}

	data, err := yaml.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write YAML: %w", err)
	}
	return nil
}

// ReadYAML parses a snapshot written by WriteYAML
func ReadYAML(r io.Reader) (*Snapshot, error) {
	var snapshot Snapshot
	if err := yaml.NewDecoder(r).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode YAML: %w", err)
	}
	return &snapshot, nil
}

// WriteParquet writes one row per record
func WriteParquet(w io.Writer, records []models.ImageRecord) error {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, Row{
			ID:         r.ID,
			Name:       r.Name,
			URL:        r.URL,
			Size:       r.Size,
			Type:       r.Type,
			Category:   string(r.Category),
			UploadedAt: r.UploadedAt,
		})
	}

	writer := parquet.NewGenericWriter[Row](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet loads records from a parquet snapshot
func ReadParquet(r io.ReaderAt, size int64) ([]models.ImageRecord, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet snapshot opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var records []models.ImageRecord
	rows := make([]Row, 128)
	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			records = append(records, models.ImageRecord{
				ID:         row.ID,
				Name:       row.Name,
				URL:        row.URL,
				Size:       row.Size,
				Type:       row.Type,
				Category:   models.Category(row.Category),
				UploadedAt: row.UploadedAt,
			})
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return records, nil
}
