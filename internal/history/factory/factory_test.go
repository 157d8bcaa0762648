package factory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inflatable-cookie/effigy-sub000/internal/history/sqlite"
)

func TestNewSinkFromDSN_SQLite(t *testing.T) {
	for _, dsn := range []string{
		filepath.Join(t.TempDir(), "plain.db"),
		"sqlite://" + filepath.Join(t.TempDir(), "prefixed.db"),
		":memory:",
	} {
		s, err := NewSinkFromDSN(dsn)
		require.NoError(t, err, dsn)
		_, ok := s.(*sqlite.Sink)
		assert.True(t, ok, "dsn %q should select sqlite", dsn)
		require.NoError(t, s.Close())
	}
}

func TestNewSinkFromDSN_Errors(t *testing.T) {
	_, err := NewSinkFromDSN("")
	assert.Error(t, err)
	_, err = NewSinkFromDSN("mysql://user@host/db")
	assert.ErrorContains(t, err, "unsupported DSN scheme: mysql")
}
