// Package storetest provides an in-memory record store for tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashutoshpw/coolify/internal/store"
	"github.com/ashutoshpw/coolify/pkg/deployment"
)

// Memory is a store.Store keeping every record in maps
type Memory struct {
	mu         sync.Mutex
	builds     map[string]*deployment.BuildRecord
	hashes     map[string]string
	logs       map[string][]string
	acquired   int
	released   int
	acquireErr error

	// FailOn makes the named session method return the error
	FailOn map[string]error
}

var (
	_ store.Store          = (*Memory)(nil)
	_ store.BuildRegistrar = (*Memory)(nil)
)

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{
		builds: make(map[string]*deployment.BuildRecord),
		hashes: make(map[string]string),
		logs:   make(map[string][]string),
		FailOn: make(map[string]error),
	}
}

// SetAcquireError makes Acquire fail with err
func (m *Memory) SetAcquireError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquireErr = err
}

// Acquire hands out a session and counts it
func (m *Memory) Acquire(ctx context.Context) (store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	m.acquired++
	return &memSession{m: m}, nil
}

// RegisterBuild inserts a build unless one with the same id exists
func (m *Memory) RegisterBuild(ctx context.Context, b deployment.BuildRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.builds[b.ID]; ok {
		return nil
	}
	if b.Status == "" {
		b.Status = deployment.StatusQueued
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = b.CreatedAt
	m.builds[b.ID] = &b
	return nil
}

// Build returns a copy of a build record
func (m *Memory) Build(id string) (deployment.BuildRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.builds[id]
	if !ok {
		return deployment.BuildRecord{}, false
	}
	return *b, true
}

// Status returns the status of a build, or "" when unknown
func (m *Memory) Status(id string) deployment.BuildStatus {
	b, _ := m.Build(id)
	return b.Status
}

// ConfigHash returns the stored fingerprint of an application
func (m *Memory) ConfigHash(applicationID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[applicationID]
	return h, ok
}

// Logs returns the log lines of a build
func (m *Memory) Logs(buildID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.logs[buildID]...)
}

// Outstanding returns the number of sessions acquired but not released
func (m *Memory) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired - m.released
}

type memSession struct {
	m        *Memory
	released bool
}

func (s *memSession) fail(op string) error {
	if err, ok := s.m.FailOn[op]; ok {
		return err
	}
	return nil
}

func (s *memSession) FailStaleBuilds(ctx context.Context, applicationID, exceptBuildID string, cutoff time.Time) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.fail("FailStaleBuilds"); err != nil {
		return 0, err
	}
	n := 0
	for _, b := range s.m.builds {
		if b.ApplicationID == applicationID && b.ID != exceptBuildID && !b.Status.IsTerminal() && b.CreatedAt.Before(cutoff) {
			b.Status = deployment.StatusFailed
			b.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *memSession) SetBuildStatus(ctx context.Context, buildID string, status deployment.BuildStatus) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.fail("SetBuildStatus"); err != nil {
		return err
	}
	b, ok := s.m.builds[buildID]
	if !ok {
		return fmt.Errorf("build %s: %w", buildID, store.ErrNotFound)
	}
	if !b.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, b.Status, status)
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	return nil
}

func (s *memSession) FailBuild(ctx context.Context, buildID string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.fail("FailBuild"); err != nil {
		return false, err
	}
	b, ok := s.m.builds[buildID]
	if !ok || b.Status.IsTerminal() {
		return false, nil
	}
	b.Status = deployment.StatusFailed
	b.UpdatedAt = time.Now()
	return true, nil
}

func (s *memSession) SetBuildCommit(ctx context.Context, buildID, commit string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.fail("SetBuildCommit"); err != nil {
		return err
	}
	b, ok := s.m.builds[buildID]
	if !ok {
		return fmt.Errorf("build %s: %w", buildID, store.ErrNotFound)
	}
	b.Commit = commit
	return nil
}

func (s *memSession) SetApplicationConfigHash(ctx context.Context, applicationID, hash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.fail("SetApplicationConfigHash"); err != nil {
		return err
	}
	s.m.hashes[applicationID] = hash
	return nil
}

func (s *memSession) AppendBuildLog(ctx context.Context, line deployment.LogLine) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.fail("AppendBuildLog"); err != nil {
		return err
	}
	s.m.logs[line.BuildID] = append(s.m.logs[line.BuildID], line.Line)
	return nil
}

func (s *memSession) Release() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.m.released++
	return nil
}
