// Package sqlstore is a record store backed by an embedded SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashutoshpw/coolify/internal/store"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/glebarez/sqlite"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultMaxConns bounds the number of sessions that can be held at once
const DefaultMaxConns = 4

// Store is a store.Store over a SQLite file
type Store struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger hclog.Logger
}

var (
	_ store.Store          = (*Store)(nil)
	_ store.BuildRegistrar = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and migrates the schema
func Open(path string, maxConns int, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&Build{}, &Application{}, &BuildLog{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)

	logger.Named("sqlstore").Debug("database ready", "path", path, "max_conns", maxConns)
	return &Store{db: db, sqlDB: sqlDB, logger: logger.Named("sqlstore")}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Acquire pins one pooled connection for the lifetime of the session.
// It blocks while every connection is held by another session.
func (s *Store) Acquire(ctx context.Context) (store.Session, error) {
	conn, err := s.sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	// a session with its own context gets a cloned statement, so the pinned
	// connection does not leak into the shared handle
	tx := s.db.Session(&gorm.Session{NewDB: true, Context: ctx})
	tx.Statement.ConnPool = conn
	return &session{db: tx, conn: conn, logger: s.logger}, nil
}

// RegisterBuild inserts a new build record
func (s *Store) RegisterBuild(ctx context.Context, build deployment.BuildRecord) error {
	if build.Status == "" {
		build.Status = deployment.StatusQueued
	}
	row := Build{
		ID:            build.ID,
		ApplicationID: build.ApplicationID,
		Status:        string(build.Status),
		Commit:        build.Commit,
	}
	if !build.CreatedAt.IsZero() {
		row.CreatedAt = build.CreatedAt
	}
	// a build registered by the platform before submission is kept as is
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("register build %s: %w", build.ID, err)
	}
	return nil
}

// Build returns one build record
func (s *Store) Build(ctx context.Context, id string) (deployment.BuildRecord, error) {
	var row Build
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return deployment.BuildRecord{}, fmt.Errorf("build %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return deployment.BuildRecord{}, fmt.Errorf("load build %s: %w", id, err)
	}
	return row.record(), nil
}

// Application returns one application record
func (s *Store) Application(ctx context.Context, id string) (deployment.ApplicationRecord, error) {
	var row Application
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return deployment.ApplicationRecord{}, fmt.Errorf("application %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return deployment.ApplicationRecord{}, fmt.Errorf("load application %s: %w", id, err)
	}
	return deployment.ApplicationRecord{ID: row.ID, ConfigHash: row.ConfigHash}, nil
}

// BuildLogs returns the log of a build in insertion order
func (s *Store) BuildLogs(ctx context.Context, buildID string) ([]deployment.LogLine, error) {
	var rows []BuildLog
	if err := s.db.WithContext(ctx).Where("build_id = ?", buildID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load logs of %s: %w", buildID, err)
	}
	lines := make([]deployment.LogLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, deployment.LogLine{
			BuildID:       r.BuildID,
			ApplicationID: r.ApplicationID,
			Line:          r.Line,
			Time:          r.Time,
		})
	}
	return lines, nil
}

type session struct {
	db     *gorm.DB
	conn   *sql.Conn
	logger hclog.Logger

	once sync.Once
}

func activeStatuses() []string {
	out := make([]string, 0, len(deployment.ActiveStatuses))
	for _, s := range deployment.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}

func (s *session) FailStaleBuilds(ctx context.Context, applicationID, exceptBuildID string, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).Model(&Build{}).
		Where("application_id = ? AND id <> ? AND status IN ? AND created_at < ?", applicationID, exceptBuildID, activeStatuses(), cutoff).
		Update("status", string(deployment.StatusFailed))
	if res.Error != nil {
		return 0, fmt.Errorf("fail stale builds of %s: %w", applicationID, res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("failed stale builds", "application", applicationID, "count", res.RowsAffected)
	}
	return int(res.RowsAffected), nil
}

func (s *session) SetBuildStatus(ctx context.Context, buildID string, status deployment.BuildStatus) error {
	var row Build
	err := s.db.WithContext(ctx).Select("id", "status").First(&row, "id = ?", buildID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("build %s: %w", buildID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load build %s: %w", buildID, err)
	}

	current := deployment.BuildStatus(row.Status)
	if !current.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, status)
	}

	res := s.db.WithContext(ctx).Model(&Build{}).
		Where("id = ? AND status = ?", buildID, row.Status).
		Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("set status of %s: %w", buildID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s changed concurrently", store.ErrInvalidTransition, buildID)
	}
	return nil
}

func (s *session) FailBuild(ctx context.Context, buildID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Build{}).
		Where("id = ? AND status IN ?", buildID, activeStatuses()).
		Update("status", string(deployment.StatusFailed))
	if res.Error != nil {
		return false, fmt.Errorf("fail build %s: %w", buildID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *session) SetBuildCommit(ctx context.Context, buildID, commit string) error {
	res := s.db.WithContext(ctx).Model(&Build{}).Where("id = ?", buildID).Update("commit_sha", commit)
	if res.Error != nil {
		return fmt.Errorf("set commit of %s: %w", buildID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("build %s: %w", buildID, store.ErrNotFound)
	}
	return nil
}

func (s *session) SetApplicationConfigHash(ctx context.Context, applicationID, hash string) error {
	row := Application{ID: applicationID, ConfigHash: hash}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"config_hash", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store config hash of %s: %w", applicationID, err)
	}
	return nil
}

func (s *session) AppendBuildLog(ctx context.Context, line deployment.LogLine) error {
	if line.Time.IsZero() {
		line.Time = time.Now()
	}
	row := BuildLog{
		BuildID:       line.BuildID,
		ApplicationID: line.ApplicationID,
		Line:          line.Line,
		Time:          line.Time,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append log of %s: %w", line.BuildID, err)
	}
	return nil
}

// Release returns the pinned connection to the pool. Calling it again is a no-op.
func (s *session) Release() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close()
	})
	return err
}
