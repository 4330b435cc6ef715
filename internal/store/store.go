// Package store persists accepted imports in SQLite and keeps temporary AI
// uploads in BadgerDB.
package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chravel/chravel-import/internal/config"
	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/importer/dedupe"
	"github.com/chravel/chravel-import/internal/model"
)

// InMemory as a badger path keeps temporary objects in memory only.
const InMemory = ":memory:"

// Store provides unified access to SQLite and BadgerDB
type Store struct {
	db      *gorm.DB
	sqlDB   *sql.DB
	badger  *badger.DB
	objects *ObjectStore
	logger  *zap.Logger
}

// New creates a new Store instance
func New(cfg *config.Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "chravel.db")
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.New(apperrors.CodeStore, "failed to open sqlite", err)
	}
	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		sqliteDB.Close()
		return nil, apperrors.New(apperrors.CodeStore, "failed to open sqlite", err)
	}

	if err := db.AutoMigrate(
		&Event{},
		&Session{},
		&LineupMember{},
		&ImportRecord{},
	); err != nil {
		sqliteDB.Close()
		return nil, apperrors.New(apperrors.CodeStore, "failed to migrate", err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "objects")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(64 << 20). // must exceed the largest upload
		WithMemTableSize(16 << 20)
	if badgerPath == InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		sqliteDB.Close()
		return nil, apperrors.New(apperrors.CodeStore, "failed to open badger", err)
	}

	ttl := time.Duration(cfg.Storage.ObjectTTL) * time.Minute
	return &Store{
		db:      db,
		sqlDB:   sqliteDB,
		badger:  badgerDB,
		objects: NewObjectStore(badgerDB, cfg.Storage.PublicBaseURL, ttl, badgerPath == InMemory),
		logger:  log.Named("store"),
	}, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	berr := s.badger.Close()
	if err := s.sqlDB.Close(); err != nil {
		return err
	}
	return berr
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Objects returns the temporary object store backing AI uploads
func (s *Store) Objects() *ObjectStore {
	return s.objects
}

// SaveResult reports what a save call did. Duplicates holds the indices of
// input items that were already stored and therefore skipped.
type SaveResult struct {
	Saved      int   `json:"saved"`
	Duplicates []int `json:"duplicates"`
}

// ==================== Event Methods ====================

// ExistingEvents returns the match keys of a trip's stored events
func (s *Store) ExistingEvents(ctx context.Context, tripID string) ([]dedupe.ExistingEvent, error) {
	var rows []Event
	if err := s.db.WithContext(ctx).Select("title", "start_time", "end_time").
		Where("trip_id = ?", tripID).Find(&rows).Error; err != nil {
		return nil, apperrors.New(apperrors.CodeStore, "failed to load events", err)
	}

	existing := make([]dedupe.ExistingEvent, len(rows))
	for i, r := range rows {
		existing[i] = dedupe.ExistingEvent{Title: r.Title, StartTime: r.StartTime, EndTime: r.EndTime}
	}
	return existing, nil
}

// SaveEvents stores events for a trip, skipping any already present
// (including repeats within the batch).
func (s *Store) SaveEvents(ctx context.Context, tripID string, events []model.ParsedEvent, format model.SourceFormat) (SaveResult, error) {
	existing, err := s.ExistingEvents(ctx, tripID)
	if err != nil {
		return SaveResult{}, err
	}

	known := make(map[string]struct{}, len(existing)+len(events))
	for _, e := range existing {
		known[dedupe.EventKey(e.StartTime, e.EndTime, e.Title)] = struct{}{}
	}

	result := SaveResult{Duplicates: []int{}}
	var rows []Event
	for i, ev := range events {
		key := dedupe.EventKey(ev.StartTime, ev.EndTime, ev.Title)
		if _, dup := known[key]; dup {
			result.Duplicates = append(result.Duplicates, i)
			continue
		}
		known[key] = struct{}{}
		rows = append(rows, Event{
			TripID:       tripID,
			UID:          ev.UID,
			Title:        ev.Title,
			StartTime:    ev.StartTime.UTC(),
			EndTime:      ev.EndTime.UTC(),
			Location:     ev.Location,
			Description:  ev.Description,
			IsAllDay:     ev.IsAllDay,
			SourceFormat: string(format),
		})
	}

	if len(rows) > 0 {
		if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
			return SaveResult{}, apperrors.New(apperrors.CodeStore, "failed to save events", err)
		}
	}
	result.Saved = len(rows)
	s.logger.Debug("Saved events", zap.String("trip", tripID), zap.Int("saved", result.Saved), zap.Int("duplicates", len(result.Duplicates)))
	return result, nil
}

// Events lists a trip's events in start order
func (s *Store) Events(ctx context.Context, tripID string) ([]model.ParsedEvent, error) {
	var rows []Event
	if err := s.db.WithContext(ctx).Where("trip_id = ?", tripID).
		Order("start_time ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.New(apperrors.CodeStore, "failed to load events", err)
	}

	events := make([]model.ParsedEvent, len(rows))
	for i, r := range rows {
		events[i] = r.ToParsed()
	}
	return events, nil
}

// ==================== Session Methods ====================

// ExistingSessions returns the match keys of a trip's stored sessions
func (s *Store) ExistingSessions(ctx context.Context, tripID string) ([]dedupe.ExistingSession, error) {
	var rows []Session
	if err := s.db.WithContext(ctx).Select("title", "session_date", "start_time", "location").
		Where("trip_id = ?", tripID).Find(&rows).Error; err != nil {
		return nil, apperrors.New(apperrors.CodeStore, "failed to load sessions", err)
	}

	existing := make([]dedupe.ExistingSession, len(rows))
	for i, r := range rows {
		existing[i] = dedupe.ExistingSession{Title: r.Title, SessionDate: r.SessionDate, StartTime: r.StartTime, Location: r.Location}
	}
	return existing, nil
}

// SaveSessions stores agenda sessions for a trip, skipping duplicates
func (s *Store) SaveSessions(ctx context.Context, tripID string, sessions []model.ParsedAgendaSession, format model.SourceFormat) (SaveResult, error) {
	existing, err := s.ExistingSessions(ctx, tripID)
	if err != nil {
		return SaveResult{}, err
	}

	known := make(map[string]struct{}, len(existing)+len(sessions))
	for _, e := range existing {
		known[dedupe.SessionKey(e.Title, e.SessionDate, e.StartTime, e.Location)] = struct{}{}
	}

	result := SaveResult{Duplicates: []int{}}
	var rows []Session
	for i, ss := range sessions {
		key := dedupe.SessionKey(ss.Title, ss.SessionDate, ss.StartTime, ss.Location)
		if _, dup := known[key]; dup {
			result.Duplicates = append(result.Duplicates, i)
			continue
		}
		known[key] = struct{}{}
		row := Session{
			TripID:       tripID,
			Title:        ss.Title,
			Description:  ss.Description,
			SessionDate:  ss.SessionDate,
			StartTime:    ss.StartTime,
			EndTime:      ss.EndTime,
			Location:     ss.Location,
			Track:        ss.Track,
			SourceFormat: string(format),
		}
		if len(ss.Speakers) > 0 {
			row.Speakers = ToJSON(ss.Speakers)
		}
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
			return SaveResult{}, apperrors.New(apperrors.CodeStore, "failed to save sessions", err)
		}
	}
	result.Saved = len(rows)
	s.logger.Debug("Saved sessions", zap.String("trip", tripID), zap.Int("saved", result.Saved), zap.Int("duplicates", len(result.Duplicates)))
	return result, nil
}

// Sessions lists a trip's sessions by date and start time
func (s *Store) Sessions(ctx context.Context, tripID string) ([]model.ParsedAgendaSession, error) {
	var rows []Session
	if err := s.db.WithContext(ctx).Where("trip_id = ?", tripID).
		Order("session_date ASC, start_time ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.New(apperrors.CodeStore, "failed to load sessions", err)
	}

	sessions := make([]model.ParsedAgendaSession, len(rows))
	for i, r := range rows {
		sessions[i] = r.ToParsed()
	}
	return sessions, nil
}

// ==================== Lineup Methods ====================

// SaveLineup adds names to a trip's lineup. Names already on the lineup,
// compared case-insensitively, are reported as duplicates.
func (s *Store) SaveLineup(ctx context.Context, tripID string, names []string) (SaveResult, error) {
	var keys []string
	if err := s.db.WithContext(ctx).Model(&LineupMember{}).
		Where("trip_id = ?", tripID).Pluck("name_key", &keys).Error; err != nil {
		return SaveResult{}, apperrors.New(apperrors.CodeStore, "failed to load lineup", err)
	}

	known := make(map[string]struct{}, len(keys)+len(names))
	for _, k := range keys {
		known[k] = struct{}{}
	}

	result := SaveResult{Duplicates: []int{}}
	var rows []LineupMember
	for i, name := range names {
		key := nameKey(name)
		if key == "" {
			continue
		}
		if _, dup := known[key]; dup {
			result.Duplicates = append(result.Duplicates, i)
			continue
		}
		known[key] = struct{}{}
		rows = append(rows, LineupMember{TripID: tripID, Name: name, NameKey: key})
	}

	if len(rows) > 0 {
		if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
			return SaveResult{}, apperrors.New(apperrors.CodeStore, "failed to save lineup", err)
		}
	}
	result.Saved = len(rows)
	return result, nil
}

// Lineup lists a trip's lineup names alphabetically
func (s *Store) Lineup(ctx context.Context, tripID string) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&LineupMember{}).
		Where("trip_id = ?", tripID).Order("name_key ASC").Pluck("name", &names).Error; err != nil {
		return nil, apperrors.New(apperrors.CodeStore, "failed to load lineup", err)
	}
	return names, nil
}

// ==================== Import Log Methods ====================

// RecordImport appends an entry to the import log
func (s *Store) RecordImport(ctx context.Context, rec *ImportRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return apperrors.New(apperrors.CodeStore, "failed to record import", err)
	}
	return nil
}

// ListImports returns the newest import log entries, optionally for one trip
func (s *Store) ListImports(ctx context.Context, tripID string, limit int) ([]ImportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if tripID != "" {
		q = q.Where("trip_id = ?", tripID)
	}

	var recs []ImportRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, apperrors.New(apperrors.CodeStore, "failed to list imports", err)
	}
	return recs, nil
}

// NewImportRecord builds a log entry from an import result
func NewImportRecord(tripID string, kind model.Kind, source string, format model.SourceFormat, valid bool, items int, errs []string, elapsed time.Duration) *ImportRecord {
	rec := &ImportRecord{
		TripID:       tripID,
		Kind:         string(kind),
		Source:       source,
		SourceFormat: string(format),
		IsValid:      valid,
		Items:        items,
		DurationMs:   elapsed.Milliseconds(),
	}
	if len(errs) > 0 {
		rec.Errors = ToJSON(errs)
	}
	return rec
}
