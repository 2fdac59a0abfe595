package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/agentrelay/handoff"
)

// Record is the relational projection of a terminal handoff request.
// Context payloads stay in the vault; the audit row carries the outcome
// and enough identifiers to find the bundle.
type Record struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	HandoffID      string     `gorm:"uniqueIndex;size:64" json:"handoff_id"`
	SessionID      string     `gorm:"index;size:128" json:"session_id"`
	UserID         string     `gorm:"size:128" json:"user_id"`
	SourceAgentID  string     `gorm:"index;size:128" json:"source_agent_id"`
	TargetAgentID  string     `gorm:"index;size:128" json:"target_agent_id"`
	Status         string     `gorm:"index;size:32" json:"status"`
	Priority       string     `gorm:"size:32" json:"priority"`
	Reason         string     `json:"reason,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	DurableContext bool       `json:"durable_context"`
	TagCount       int        `json:"tag_count"`
	WindowSize     int        `json:"window_size"`
	InitiatedAt    time.Time  `json:"initiated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TableName pins the audit table name.
func (Record) TableName() string { return "handoff_audit" }

// Filter narrows List results. Zero values match everything.
type Filter struct {
	SessionID     string
	SourceAgentID string
	TargetAgentID string
	Status        string
	Limit         int
}

// Stats aggregates the audit table by outcome.
type Stats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Degraded  int64 `json:"degraded"`
}

// Config selects the audit database.
type Config struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// DefaultConfig uses an on-disk sqlite database.
func DefaultConfig() Config {
	return Config{Driver: "sqlite", DSN: "./data/audit.db"}
}

// Store persists audit records through gorm. It implements
// handoff.AuditSink.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ handoff.AuditSink = (*Store)(nil)

// Open connects to the configured database and migrates the audit schema.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = DefaultConfig().DSN
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("audit: unsupported database driver: %s (supported: sqlite, postgres, mysql)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("audit: connect database: %w", err)
	}
	return NewStore(db, logger)
}

// NewStore wraps an existing gorm handle and migrates the audit schema.
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: auto migrate: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "audit_store")),
	}, nil
}

// RecordHandoff stores the terminal request as an audit row.
func (s *Store) RecordHandoff(ctx context.Context, req *handoff.HandoffRequest) error {
	rec := Record{
		HandoffID:      req.HandoffID,
		SourceAgentID:  req.SourceAgentID,
		TargetAgentID:  req.TargetAgentID,
		Status:         string(req.Status),
		Priority:       string(req.Priority),
		Reason:         req.Reason,
		ErrorMessage:   req.ErrorMessage,
		DurableContext: req.DurableContext,
		InitiatedAt:    req.CreatedAt,
		CompletedAt:    req.CompletionTime,
	}
	if req.Context != nil {
		rec.SessionID = req.Context.SessionID
		rec.UserID = req.Context.UserID
		rec.TagCount = len(req.Context.Tags)
		rec.WindowSize = len(req.Context.ConversationWindow)
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("audit: record handoff %s: %w", req.HandoffID, err)
	}
	s.logger.Debug("handoff audited",
		zap.String("handoff_id", req.HandoffID),
		zap.String("status", rec.Status))
	return nil
}

// Get returns the audit row for one handoff.
func (s *Store) Get(ctx context.Context, handoffID string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("handoff_id = ?", handoffID).First(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("audit: get handoff %s: %w", handoffID, err)
	}
	return &rec, nil
}

// List returns audit rows matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).Model(&Record{})
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.SourceAgentID != "" {
		q = q.Where("source_agent_id = ?", filter.SourceAgentID)
	}
	if filter.TargetAgentID != "" {
		q = q.Where("target_agent_id = ?", filter.TargetAgentID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var records []Record
	if err := q.Order("initiated_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return records, nil
}

// Stats aggregates outcome counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	db := s.db.WithContext(ctx).Model(&Record{})

	if err := db.Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("audit: stats: %w", err)
	}
	counts := []struct {
		status string
		dest   *int64
	}{
		{string(handoff.StatusCompleted), &stats.Completed},
		{string(handoff.StatusFailed), &stats.Failed},
		{string(handoff.StatusCancelled), &stats.Cancelled},
	}
	for _, c := range counts {
		if err := s.db.WithContext(ctx).Model(&Record{}).Where("status = ?", c.status).Count(c.dest).Error; err != nil {
			return stats, fmt.Errorf("audit: stats: %w", err)
		}
	}
	if err := s.db.WithContext(ctx).Model(&Record{}).
		Where("status = ? AND durable_context = ?", string(handoff.StatusCompleted), false).
		Count(&stats.Degraded).Error; err != nil {
		return stats, fmt.Errorf("audit: stats: %w", err)
	}
	return stats, nil
}

// DB exposes the underlying gorm handle so callers can layer pool
// management or health probes on top of the store.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
