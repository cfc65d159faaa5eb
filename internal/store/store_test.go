package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleybot/parley/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "parley.db")
	db, err := Open(path, testLogger())
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.db")
	db, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path, testLogger())
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestResumeStore_GetMissing(t *testing.T) {
	rs := NewResumeStore(openTestDB(t))
	_, ok, err := rs.Get("discord")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResumeStore_PutGetClear(t *testing.T) {
	rs := NewResumeStore(openTestDB(t))

	want := ResumeState{SessionID: "abc", ResumeURL: "wss://x.gg", Sequence: 42}
	require.NoError(t, rs.Put("discord", want))

	got, ok, err := rs.Get("discord")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// Replace in place.
	want.Sequence = 99
	require.NoError(t, rs.Put("discord", want))
	got, ok, err = rs.Get("discord")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(99), got.Sequence)

	require.NoError(t, rs.Clear("discord"))
	_, ok, err = rs.Get("discord")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResumeStore_PerChannelIsolation(t *testing.T) {
	rs := NewResumeStore(openTestDB(t))
	require.NoError(t, rs.Put("discord", ResumeState{SessionID: "a"}))
	require.NoError(t, rs.Put("other", ResumeState{SessionID: "b"}))

	got, ok, err := rs.Get("discord")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.SessionID)
}
