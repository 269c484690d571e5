// Package history keeps a SQLite record of fill runs.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"yashubustudio/fillbot/fillbot"
)

// RunRecord is one persisted run.
type RunRecord struct {
	ID         uint            `gorm:"primaryKey" json:"-"`
	RunID      string          `gorm:"size:36;uniqueIndex;not null" json:"runId"`
	URL        string          `gorm:"size:2048" json:"url"`
	StartedAt  time.Time       `gorm:"index" json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Total      int             `json:"total"`
	Filled     int             `json:"filled"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Outcomes   []OutcomeRecord `gorm:"foreignKey:RunID;references:RunID;constraint:OnDelete:CASCADE" json:"outcomes,omitempty"`
}

// OutcomeRecord is one field outcome. Filled values are not stored.
type OutcomeRecord struct {
	ID         uint    `gorm:"primaryKey" json:"-"`
	RunID      string  `gorm:"size:36;index;not null" json:"-"`
	Position   int     `json:"position"`
	Label      string  `json:"label"`
	Kind       string  `gorm:"size:16" json:"kind"`
	Status     string  `gorm:"size:16;index" json:"status"`
	Reason     string  `json:"reason,omitempty"`
	MatchedKey string  `json:"matchedKey,omitempty"`
	Confidence float32 `json:"confidence"`
	Required   bool    `json:"required"`
	Attempts   int     `json:"attempts"`
	DurationMS int64   `json:"durationMs"`
}

// Store wraps the history database.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens or creates the database at path and migrates the schema.
// ":memory:" gives a throwaway store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("history connection pool: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps :memory: alive.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RunRecord{}, &OutcomeRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	logger.Debug("history database ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Save persists a finished report.
func (s *Store) Save(ctx context.Context, report *fillbot.Report) error {
	if report == nil {
		return errors.New("nil report")
	}
	rec := fromReport(report)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}
	s.logger.Debug("run saved", zap.String("run_id", rec.RunID), zap.Int("outcomes", len(rec.Outcomes)))
	return nil
}

// Recent returns up to limit runs, newest first, without outcomes.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []RunRecord
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Get loads a run with its outcomes in field order.
func (s *Store) Get(ctx context.Context, runID string) (*RunRecord, error) {
	var run RunRecord
	err := s.db.WithContext(ctx).
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("run_id = ?", runID).
		First(&run).Error
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return &run, nil
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func fromReport(r *fillbot.Report) RunRecord {
	rec := RunRecord{
		RunID:      r.RunID,
		URL:        r.URL,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Total:      r.Total(),
		Filled:     r.Filled,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Outcomes:   make([]OutcomeRecord, len(r.Outcomes)),
	}
	for i, o := range r.Outcomes {
		rec.Outcomes[i] = OutcomeRecord{
			RunID:      r.RunID,
			Position:   i,
			Label:      o.Field.Label,
			Kind:       string(o.Field.Kind),
			Status:     string(o.Status),
			Reason:     o.Reason,
			MatchedKey: o.MatchedKey,
			Confidence: o.Confidence,
			Required:   o.Field.Required,
			Attempts:   o.Attempts,
			DurationMS: o.Duration.Milliseconds(),
		}
	}
	return rec
}
