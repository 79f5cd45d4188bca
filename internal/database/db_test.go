package database

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConnectionString_PlainPathStartsQuery(t *testing.T) {
	connStr := buildConnectionString("/tmp/market.db", ProfileStandard)

	assert.True(t, strings.HasPrefix(connStr, "/tmp/market.db?_pragma=journal_mode(WAL)"))
	assert.Equal(t, 1, strings.Count(connStr, "?"))
	assert.Contains(t, connStr, "_pragma=synchronous(NORMAL)")
	assert.Contains(t, connStr, "_pragma=foreign_keys(1)")
}

func TestBuildConnectionString_URIWithQueryJoinsWithAmpersand(t *testing.T) {
	path := "file:test?mode=memory&cache=shared"
	connStr := buildConnectionString(path, ProfileCache)

	// A second ? would make the driver treat everything after it as part of
	// the first parameter's value, silently dropping every PRAGMA.
	assert.Equal(t, 1, strings.Count(connStr, "?"))
	assert.True(t, strings.HasPrefix(connStr, path+"&_pragma=journal_mode(WAL)"))
	assert.Contains(t, connStr, "_pragma=synchronous(OFF)")
}

func TestNew_InMemoryURIOpensAndPings(t *testing.T) {
	db, err := New(Config{
		Path:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Profile: ProfileStandard,
		Name:    "state",
	})
	require.NoError(t, err)
	defer db.Close()

	// PRAGMAs must have been applied; a broken DSN would have failed the
	// open or left journal_mode at the default.
	var mode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA foreign_keys").Scan(&mode))
	assert.Equal(t, "1", mode)
}
