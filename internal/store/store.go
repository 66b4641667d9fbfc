// Package store holds the data-access functions over the native content
// store and the OAuth records.
package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// Clock abstracts time retrieval so expiry logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Store wraps a bun handle. All methods are safe for concurrent use.
type Store struct {
	db    *bun.DB
	clock Clock
}

// New creates a Store. A nil clock uses the wall clock.
func New(db *bun.DB, clock Clock) *Store {
	if clock == nil {
		clock = RealClock{}
	}
	return &Store{db: db, clock: clock}
}

// Now returns the store clock's time in UTC.
func (s *Store) Now() time.Time {
	return s.clock.Now().UTC()
}

// DB exposes the underlying handle for callers that compose their own queries.
func (s *Store) DB() *bun.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
