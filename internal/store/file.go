package store

import (
	"context"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
)

// File names used by the JSON store
const (
	SnapshotDir = "snapshots"
	RecordsFile = "preannotation_records.json"
)

// SnapshotFile is the file name of the snapshot of date
func SnapshotFile(date string) string {
	return "daily_" + date + ".json"
}

// FileStore keeps snapshots in reports/snapshots/daily_<date>.json and
// import records in reports/preannotation_records.json.
type FileStore struct {
	reports   *report.Writer
	snapshots *report.Writer
}

// NewFileStore returns a JSON store below reports
func NewFileStore(reports *report.Writer) *FileStore {
	return &FileStore{reports: reports, snapshots: reports.Sub(SnapshotDir)}
}

func (s *FileStore) LoadSnapshot(_ context.Context, date string) (*Snapshot, error) {
	var snap Snapshot
	if err := s.snapshots.ReadJSON(SnapshotFile(date), &snap); err != nil {
		return nil, err
	}
	if snap.Jobs == nil {
		snap.Jobs = map[string]JobCounts{}
	}
	return &snap, nil
}

func (s *FileStore) SaveSnapshot(_ context.Context, snap *Snapshot) error {
	path, err := s.snapshots.WriteJSON(SnapshotFile(snap.Date), snap)
	if err != nil {
		return err
	}
	GetLogger().Info("snapshot saved", logger.String("path", path), logger.Int("jobs", len(snap.Jobs)))
	return nil
}

func (s *FileStore) Records(_ context.Context) ([]Record, error) {
	var records []Record
	if err := s.reports.ReadJSON(RecordsFile, &records); err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

func (s *FileStore) AddRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	existing, err := s.Records(ctx)
	if err != nil {
		return err
	}
	_, err = s.reports.WriteJSON(RecordsFile, append(existing, records...))
	return err
}

func (s *FileStore) Close() error { return nil }
