package store

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

// DefaultSQLiteFile is used below the reports directory when no path is set
const DefaultSQLiteFile = "cvat-tools.db"

const (
	slowQueryThreshold = 500 * time.Millisecond
	jobBatchSize       = 500
)

// SnapshotModel is a snapshot header row
type SnapshotModel struct {
	Date        string `gorm:"primaryKey;size:8"`
	GeneratedAt time.Time
	Note        string
}

func (SnapshotModel) TableName() string { return "snapshots" }

// SnapshotJobModel holds one job of a snapshot
type SnapshotJobModel struct {
	Date            string `gorm:"primaryKey;size:8"`
	JobID           int    `gorm:"primaryKey;autoIncrement:false"`
	AnnotatedFrames int
	Shapes          int
}

func (SnapshotJobModel) TableName() string { return "snapshot_jobs" }

// RecordModel is a preannotation import record
type RecordModel struct {
	ID         uint `gorm:"primaryKey"`
	JobID      int  `gorm:"index"`
	ChunkID    string
	BBoxFile   string
	Shapes     int
	ImportedAt time.Time
	Status     string `gorm:"size:16"`
}

func (RecordModel) TableName() string { return "preannotation_records" }

// DBStore is a gorm backed store
type DBStore struct {
	DB      *gorm.DB
	dialect string
}

// OpenSQLite opens or creates the SQLite database at path
func OpenSQLite(path string) (*DBStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryFileIO).
				Component("store").
				Context("path", dir).
				Build()
		}
	}
	return openDB(sqlite.Open(path), TypeSQLite, path)
}

// MySQLDSN builds the driver DSN for settings
func MySQLDSN(s conf.MySQLSettings) string {
	cfg := gomysql.NewConfig()
	cfg.User = s.Username
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	port := s.Port
	if port == "" {
		port = "3306"
	}
	cfg.Addr = net.JoinHostPort(s.Host, port)
	cfg.DBName = s.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// OpenMySQL connects to the MySQL database of settings
func OpenMySQL(s conf.MySQLSettings) (*DBStore, error) {
	if s.Host == "" || s.Database == "" {
		return nil, errors.Newf("mysql store needs host and database").
			Category(errors.CategoryConfiguration).
			Component("store").
			Build()
	}
	return OpenMySQLDSN(MySQLDSN(s))
}

// OpenMySQLDSN connects with a ready DSN
func OpenMySQLDSN(dsn string) (*DBStore, error) {
	return openDB(mysql.Open(dsn), TypeMySQL, "mysql")
}

func openDB(dialector gorm.Dialector, dialect, target string) (*DBStore, error) {
	log := GetLogger()
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.With(logger.String("dialect", dialect)), slowQueryThreshold),
	})
	if err != nil {
		return nil, dbError(err, "open").Context("target", target).Build()
	}
	if err := db.AutoMigrate(&SnapshotModel{}, &SnapshotJobModel{}, &RecordModel{}); err != nil {
		return nil, dbError(err, "migrate").Build()
	}
	log.Debug("store opened", logger.String("dialect", dialect))
	return &DBStore{DB: db, dialect: dialect}, nil
}

func dbError(err error, op string) *errors.ErrorBuilder {
	return errors.New(err).
		Category(errors.CategoryDatabase).
		Component("store").
		Context("operation", op)
}

func (s *DBStore) LoadSnapshot(ctx context.Context, date string) (*Snapshot, error) {
	db := s.DB.WithContext(ctx)
	var head SnapshotModel
	if err := db.First(&head, "date = ?", date).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no snapshot for %s", date).
				Category(errors.CategoryNotFound).
				Component("store").
				Context("date", date).
				Build()
		}
		return nil, dbError(err, "load snapshot").Build()
	}
	var rows []SnapshotJobModel
	if err := db.Where("date = ?", date).Order("job_id").Find(&rows).Error; err != nil {
		return nil, dbError(err, "load snapshot jobs").Build()
	}
	snap := &Snapshot{
		Date:        head.Date,
		GeneratedAt: head.GeneratedAt,
		Note:        head.Note,
		Jobs:        make(map[string]JobCounts, len(rows)),
	}
	for _, r := range rows {
		snap.Jobs[strconv.Itoa(r.JobID)] = JobCounts{AnnotatedFrames: r.AnnotatedFrames, Shapes: r.Shapes}
	}
	return snap, nil
}

func (s *DBStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	rows := make([]SnapshotJobModel, 0, len(snap.Jobs))
	for key, c := range snap.Jobs {
		id, err := strconv.Atoi(key)
		if err != nil {
			return errors.New(err).
				Category(errors.CategoryValidation).
				Component("store").
				Context("job_id", key).
				Build()
		}
		rows = append(rows, SnapshotJobModel{Date: snap.Date, JobID: id, AnnotatedFrames: c.AnnotatedFrames, Shapes: c.Shapes})
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		head := SnapshotModel{Date: snap.Date, GeneratedAt: snap.GeneratedAt, Note: snap.Note}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&head).Error; err != nil {
			return err
		}
		if err := tx.Where("date = ?", snap.Date).Delete(&SnapshotJobModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, jobBatchSize).Error
	})
	if err != nil {
		return dbError(err, "save snapshot").Context("date", snap.Date).Build()
	}
	GetLogger().Info("snapshot saved",
		logger.String("dialect", s.dialect),
		logger.String("date", snap.Date),
		logger.Int("jobs", len(rows)))
	return nil
}

func (s *DBStore) Records(ctx context.Context) ([]Record, error) {
	var rows []RecordModel
	if err := s.DB.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, dbError(err, "list records").Build()
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{
			JobID:      r.JobID,
			ChunkID:    r.ChunkID,
			BBoxFile:   r.BBoxFile,
			Shapes:     r.Shapes,
			ImportedAt: r.ImportedAt,
			Status:     r.Status,
		}
	}
	return out, nil
}

func (s *DBStore) AddRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]RecordModel, len(records))
	for i, r := range records {
		rows[i] = RecordModel{
			JobID:      r.JobID,
			ChunkID:    r.ChunkID,
			BBoxFile:   r.BBoxFile,
			Shapes:     r.Shapes,
			ImportedAt: r.ImportedAt,
			Status:     r.Status,
		}
	}
	if err := s.DB.WithContext(ctx).Create(&rows).Error; err != nil {
		return dbError(err, "add records").Build()
	}
	return nil
}

// Close releases the connection pool
func (s *DBStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError(err, "close").Build()
	}
	return sqlDB.Close()
}
