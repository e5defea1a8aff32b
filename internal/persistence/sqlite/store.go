package sqlite

import (
	"time"
)

// Store implements the persistence repositories over a single SQLite
// database. The local timezone is carried for encoding recurrence rules when
// mutation plans are applied; all stored instants are UTC RFC 3339 text.
type Store struct {
	pool     *ConnectionPool
	location *time.Location
}

// Open creates a Store for the given DSN. loc is the service's local
// timezone; nil means UTC.
func Open(dsn string, loc *time.Location) (*Store, error) {
	pool, err := NewConnectionPool(dsn)
	if err != nil {
		return nil, err
	}
	return NewStore(pool, loc), nil
}

// NewStore wraps an existing connection pool.
func NewStore(pool *ConnectionPool, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{pool: pool, location: loc}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.pool.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}
