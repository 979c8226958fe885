// Package indexer archives committed engine events in a SQL database so
// observers can read a record's history without replaying state.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crosslend/core/types"
)

// EventRecord is one archived event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex"`
	Module     string    `gorm:"index:idx_event_module_record"`
	RecordID   string    `gorm:"index:idx_event_module_record"`
	Type       string    `gorm:"index"`
	Operation  string
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Decoded returns the archived attributes.
func (r EventRecord) Decoded() (map[string]string, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes of %s: %w", r.ID, err)
	}
	return attrs, nil
}

// Store persists committed events through gorm.
type Store struct {
	db *gorm.DB

	mu   sync.Mutex
	next uint64
}

// Open connects to the configured driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return NewStore(db)
}

// NewStore migrates the schema on db and resumes the sequence from the last
// archived event.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("indexer: nil database")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last EventRecord
	err := db.Order("sequence desc").Limit(1).Take(&last).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Store{db: db, next: last.Sequence}, nil
}

// Append archives the events of one committed operation atomically.
func (s *Store) Append(ctx context.Context, operation string, evts []*types.Event, at time.Time) error {
	if len(evts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]EventRecord, 0, len(evts))
	seq := s.next
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("indexer: encode %s: %w", evt.Type, err)
		}
		seq++
		records = append(records, EventRecord{
			ID:         uuid.New(),
			Sequence:   seq,
			Module:     ModuleOf(evt.Type),
			RecordID:   RecordIDOf(evt),
			Type:       evt.Type,
			Operation:  operation,
			Attributes: string(attrs),
			CreatedAt:  at.UTC(),
		})
	}
	if len(records) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("indexer: append: %w", err)
	}
	s.next = seq
	return nil
}

// Query lists the history of one record in commit order.
func (s *Store) Query(ctx context.Context, module, recordID string) ([]EventRecord, error) {
	var out []EventRecord
	err := s.db.WithContext(ctx).
		Where("module = ? AND record_id = ?", module, recordID).
		Order("sequence asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}

// Bounds on Recent. Larger requests are clamped to MaxRecent.
const (
	DefaultRecent = 100
	MaxRecent     = 500
)

// Recent returns up to limit of the latest events, newest first. A
// non-positive limit means DefaultRecent.
func (s *Store) Recent(ctx context.Context, limit int) ([]EventRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecent
	case limit > MaxRecent:
		limit = MaxRecent
	}
	var out []EventRecord
	if err := s.db.WithContext(ctx).Order("sequence desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: recent: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ModuleOf returns the module prefix of an event type such as "loans.created".
func ModuleOf(eventType string) string {
	module, _, found := strings.Cut(eventType, ".")
	if !found {
		return ""
	}
	return module
}

// RecordIDOf returns the key the event is filed under: the record id for
// loans and positions, the token for registry and market events and the
// account for administration events.
func RecordIDOf(evt *types.Event) string {
	if evt == nil {
		return ""
	}
	for _, key := range []string{"id", "token", "account"} {
		if value := evt.Attributes[key]; value != "" {
			return value
		}
	}
	return ""
}
