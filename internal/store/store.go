// Package store persists daily annotation snapshots and preannotation import
// records, either as JSON files below the reports directory or in a SQL
// database through gorm.
package store

import (
	"context"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
)

// Store types accepted in store.type
const (
	TypeJSON   = "json"
	TypeSQLite = "sqlite"
	TypeMySQL  = "mysql"
)

// JobCounts is the annotation state of one job at snapshot time
type JobCounts struct {
	AnnotatedFrames int `json:"annotated_frames"`
	Shapes          int `json:"shapes"`
}

// Snapshot records every job's counts at the end of a day. Jobs is keyed by
// the decimal job id.
type Snapshot struct {
	Date        string               `json:"date"`
	GeneratedAt time.Time            `json:"generated_at"`
	Note        string               `json:"note,omitempty"`
	Jobs        map[string]JobCounts `json:"jobs"`
}

// Record statuses
const (
	RecordSuccess = "success"
	RecordFailed  = "failed"
)

// Record is one preannotation import into a job
type Record struct {
	JobID      int       `json:"job_id"`
	ChunkID    string    `json:"chunk_id"`
	BBoxFile   string    `json:"bbox_file"`
	Shapes     int       `json:"shapes"`
	ImportedAt time.Time `json:"imported_at"`
	Status     string    `json:"status"`
}

// Interface is implemented by every store
type Interface interface {
	// LoadSnapshot returns the snapshot of date (YYYYMMDD) or a not-found error
	LoadSnapshot(ctx context.Context, date string) (*Snapshot, error)
	// SaveSnapshot replaces the snapshot of the same date
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	// Records returns every import record in insertion order
	Records(ctx context.Context) ([]Record, error)
	AddRecords(ctx context.Context, records []Record) error
	Close() error
}

// Open returns the store selected by settings. JSON files live below reports.
func Open(settings conf.StoreSettings, reports *report.Writer) (Interface, error) {
	switch settings.Type {
	case "", TypeJSON:
		return NewFileStore(reports), nil
	case TypeSQLite:
		path := settings.SQLite.Path
		if path == "" {
			path = reports.Path(DefaultSQLiteFile)
		}
		return OpenSQLite(path)
	case TypeMySQL:
		return OpenMySQL(settings.MySQL)
	default:
		return nil, errors.Newf("unknown store type %q", settings.Type).
			Category(errors.CategoryConfiguration).
			Component("store").
			Context("store_type", settings.Type).
			Build()
	}
}
