// Package history keeps a record of tally changes backed by an in-memory
// SQLite database. Each snapshot whose vote counts differ from the last
// recorded one becomes an entry; unchanged polls are skipped. Nothing is
// written to disk, and the record is cleared when the chain changes.
package history

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"votedesk.mini/vdk/internal/types"

	_ "modernc.org/sqlite"
)

const (
	memoryDSN        = "file::memory:"
	maxBusyTimeoutMs = 5000
	defaultLimit     = 50
)

// CandidateTally is one candidate's count within an entry.
type CandidateTally struct {
	CandidateID uint64 `json:"candidate_id"`
	Name        string `json:"name"`
	Votes       uint64 `json:"votes"`
}

// Entry is one recorded tally.
type Entry struct {
	ID             int64            `json:"id"`
	FetchedAt      time.Time        `json:"fetched_at"`
	TotalVotes     uint64           `json:"total_votes"`
	VoterCount     int              `json:"voter_count"`
	CandidateCount int              `json:"candidate_count"`
	Candidates     []CandidateTally `json:"candidates"`
}

// Point is a candidate's vote count at one moment.
type Point struct {
	FetchedAt time.Time `json:"fetched_at"`
	Votes     uint64    `json:"votes"`
}

// Store records tally changes.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	last    *types.Snapshot
	updates chan struct{}
}

// NewStore opens an empty in-memory store.
func NewStore() (*Store, error) {
	db, err := sql.Open("sqlite", memoryDSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db, updates: make(chan struct{}, 1)}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tallies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fetched_at TEXT NOT NULL,
		total_votes INTEGER NOT NULL,
		voter_count INTEGER NOT NULL,
		candidate_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS candidate_tallies (
		tally_id INTEGER NOT NULL,
		candidate_id INTEGER NOT NULL,
		name TEXT,
		votes INTEGER NOT NULL,
		PRIMARY KEY (tally_id, candidate_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_candidate_tallies_candidate ON candidate_tallies(candidate_id)`,
}

func (s *Store) ensureSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Updates returns a channel that receives a value whenever an entry is added.
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

func (s *Store) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Record stores snap when its tally differs from the last recorded one.
// It reports whether an entry was added. Absent snapshots are ignored.
func (s *Store) Record(snap *types.Snapshot) (bool, error) {
	if snap == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last != nil && s.last.SameTally(snap) {
		return false, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO tallies (fetched_at, total_votes, voter_count, candidate_count)
		VALUES (?, ?, ?, ?)`,
		formatTime(snap.FetchedAt), int64(snap.TotalVotes), len(snap.Voters), len(snap.Candidates))
	if err != nil {
		return false, fmt.Errorf("insert tally: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("tally id: %w", err)
	}
	for _, c := range snap.Candidates {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO candidate_tallies (tally_id, candidate_id, name, votes)
			VALUES (?, ?, ?, ?)`, id, int64(c.ID), c.Name, int64(c.VoteCount)); err != nil {
			return false, fmt.Errorf("insert candidate tally: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	s.last = snap
	s.notify()
	return true, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, fetched_at, total_votes, voter_count, candidate_count
		FROM tallies ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query tallies: %w", err)
	}
	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			fetchedAt string
			total     int64
		)
		if err := rows.Scan(&e.ID, &fetchedAt, &total, &e.VoterCount, &e.CandidateCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		e.FetchedAt = parseTime(fetchedAt)
		e.TotalVotes = uint64(total)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		tallies, err := s.candidateTallies(entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Candidates = tallies
	}
	return entries, nil
}

func (s *Store) candidateTallies(tallyID int64) ([]CandidateTally, error) {
	rows, err := s.db.Query(`SELECT candidate_id, name, votes FROM candidate_tallies
		WHERE tally_id = ? ORDER BY candidate_id`, tallyID)
	if err != nil {
		return nil, fmt.Errorf("query candidate tallies: %w", err)
	}
	defer rows.Close()

	tallies := []CandidateTally{}
	for rows.Next() {
		var (
			id, votes int64
			name      sql.NullString
		)
		if err := rows.Scan(&id, &name, &votes); err != nil {
			return nil, fmt.Errorf("scan candidate tally: %w", err)
		}
		tallies = append(tallies, CandidateTally{CandidateID: uint64(id), Name: name.String, Votes: uint64(votes)})
	}
	return tallies, rows.Err()
}

// Series returns a candidate's recorded counts, oldest first.
func (s *Store) Series(candidateID uint64, limit int) ([]Point, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT fetched_at, votes FROM (
			SELECT t.id, t.fetched_at, c.votes FROM candidate_tallies c
			JOIN tallies t ON t.id = c.tally_id
			WHERE c.candidate_id = ? ORDER BY t.id DESC LIMIT ?
		) ORDER BY id ASC`, int64(candidateID), limit)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		var (
			fetchedAt string
			votes     int64
		)
		if err := rows.Scan(&fetchedAt, &votes); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		points = append(points, Point{FetchedAt: parseTime(fetchedAt), Votes: uint64(votes)})
	}
	return points, rows.Err()
}

// Reset drops every entry.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range []string{`DELETE FROM candidate_tallies`, `DELETE FROM tallies`} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("reset history: %w", err)
		}
	}
	s.last = nil
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	return time.Time{}
}
