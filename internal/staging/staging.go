// Package staging keeps ingested rows on the server between upload and
// commit so they can be reviewed and edited in the grid.
//
// Sessions live in an expirable LRU: untouched sessions disappear after the
// configured TTL and the oldest are evicted when the store is full. Edits are
// positional and are not validated again; commit takes the rows as they are.
package staging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/JonMunkholm/archive/internal/importer"
	"github.com/JonMunkholm/archive/internal/schema"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("staged import not found")

// Session is one staged upload.
type Session struct {
	ID        string                `json:"id"`
	FileName  string                `json:"fileName"`
	Checksum  string                `json:"checksum"`
	Rows      []schema.CandidateRow `json:"rows"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

func (s *Session) clone() *Session {
	c := *s
	c.Rows = append([]schema.CandidateRow(nil), s.Rows...)
	return &c
}

// Store holds staged sessions.
type Store struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]
	now      func() time.Time
}

// New creates a store keeping at most size sessions for ttl each.
func New(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = 64
	}
	return &Store{
		sessions: expirable.NewLRU[string, *Session](size, nil, ttl),
		now:      time.Now,
	}
}

// Create stages rows and returns the new session.
func (s *Store) Create(fileName, checksum string, rows []schema.CandidateRow) *Session {
	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.New().String(),
		FileName:  fileName,
		Checksum:  checksum,
		Rows:      append([]schema.CandidateRow(nil), rows...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions.Add(sess.ID, sess)
	s.mu.Unlock()

	return sess.clone()
}

// Get returns a copy of session id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sess.clone(), nil
}

// SetCell overwrites one cell. row is the 0-based data row index; field
// names the column.
func (s *Store) SetCell(id string, row int, field schema.Field, value string) (schema.CandidateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return schema.CandidateRow{}, ErrNotFound
	}
	if row < 0 || row >= len(sess.Rows) {
		return schema.CandidateRow{}, fmt.Errorf("row %d out of range [0, %d)", row, len(sess.Rows))
	}
	if err := sess.Rows[row].Set(field, value); err != nil {
		return schema.CandidateRow{}, err
	}
	sess.UpdatedAt = s.now().UTC()
	s.sessions.Add(id, sess)
	return sess.Rows[row], nil
}

// ReplaceRow overwrites a whole row.
func (s *Store) ReplaceRow(id string, row int, fields schema.CandidateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return ErrNotFound
	}
	if row < 0 || row >= len(sess.Rows) {
		return fmt.Errorf("row %d out of range [0, %d)", row, len(sess.Rows))
	}
	sess.Rows[row] = fields
	sess.UpdatedAt = s.now().UTC()
	s.sessions.Add(id, sess)
	return nil
}

// Take removes session id and returns its rows as they are.
func (s *Store) Take(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	s.sessions.Remove(id)
	return sess, nil
}

// Restore puts a taken session back, for example when commit was refused.
func (s *Store) Restore(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Add(sess.ID, sess)
}

// Delete drops session id. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Remove(id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}

// Starter launches an import run.
type Starter interface {
	Start(ctx context.Context, rows []schema.CandidateRow, strategy importer.Strategy) (string, error)
}

// Commit hands the session's rows to starter and drops the session. If the
// run cannot start (another run is active) the session is kept.
func (s *Store) Commit(ctx context.Context, id string, strategy importer.Strategy, starter Starter) (string, error) {
	sess, err := s.Take(id)
	if err != nil {
		return "", err
	}

	runID, err := starter.Start(ctx, sess.Rows, strategy)
	if err != nil {
		s.Restore(sess)
		return "", err
	}
	return runID, nil
}
