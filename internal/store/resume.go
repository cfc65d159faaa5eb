package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ResumeState is the gateway session identity a transport persists so a
// restart can attempt RESUME instead of replaying the event backlog.
type ResumeState struct {
	SessionID string
	ResumeURL string
	Sequence  int64
}

// ResumeStore persists per-channel gateway resume state.
type ResumeStore struct {
	db *DB
}

// NewResumeStore creates a resume-state store over an open database.
func NewResumeStore(db *DB) *ResumeStore {
	return &ResumeStore{db: db}
}

// Get returns the saved resume state for a channel. ok is false when no
// state has been saved.
func (s *ResumeStore) Get(channel string) (state ResumeState, ok bool, err error) {
	row := s.db.sql.QueryRow(
		"SELECT session_id, resume_url, sequence FROM resume_state WHERE channel = ?",
		channel,
	)
	if err := row.Scan(&state.SessionID, &state.ResumeURL, &state.Sequence); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResumeState{}, false, nil
		}
		return ResumeState{}, false, fmt.Errorf("loading resume state: %w", err)
	}
	return state, true, nil
}

// Put saves the resume state for a channel, replacing any previous state.
func (s *ResumeStore) Put(channel string, state ResumeState) error {
	_, err := s.db.sql.Exec(`
		INSERT INTO resume_state (channel, session_id, resume_url, sequence, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(channel) DO UPDATE SET
			session_id = excluded.session_id,
			resume_url = excluded.resume_url,
			sequence   = excluded.sequence,
			updated_at = excluded.updated_at
	`, channel, state.SessionID, state.ResumeURL, state.Sequence)
	if err != nil {
		return fmt.Errorf("saving resume state: %w", err)
	}
	return nil
}

// Clear removes the resume state for a channel. Used when the remote
// declares the session unresumable.
func (s *ResumeStore) Clear(channel string) error {
	if _, err := s.db.sql.Exec("DELETE FROM resume_state WHERE channel = ?", channel); err != nil {
		return fmt.Errorf("clearing resume state: %w", err)
	}
	return nil
}
