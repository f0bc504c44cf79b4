package schema

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	migrationName = regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.(up|down)\.sql$`)
	createTable   = regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS (\w+)`)
	dropTable     = regexp.MustCompile(`(?i)DROP TABLE IF EXISTS (\w+)`)
)

type migration struct {
	version  int
	up, down string
}

// loadMigrations reads the migrations next to this test, keyed by version.
func loadMigrations(t *testing.T) map[int]*migration {
	t.Helper()
	files, err := os.ReadDir(".")
	require.NoError(t, err)

	out := map[int]*migration{}
	for _, f := range files {
		if !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		m := migrationName.FindStringSubmatch(f.Name())
		require.NotNil(t, m, "%s does not match NNN_description.(up|down).sql", f.Name())
		version, err := strconv.Atoi(m[1])
		require.NoError(t, err)

		body, err := os.ReadFile(filepath.Join(".", f.Name()))
		require.NoError(t, err)
		require.NotEmpty(t, strings.TrimSpace(string(body)), "%s is empty", f.Name())

		mig, ok := out[version]
		if !ok {
			mig = &migration{version: version}
			out[version] = mig
		}
		if m[2] == "up" {
			mig.up = string(body)
		} else {
			mig.down = string(body)
		}
	}
	require.NotEmpty(t, out, "no migrations found")
	return out
}

func TestMigrations_PairedAndContiguous(t *testing.T) {
	migs := loadMigrations(t)
	versions := make([]int, 0, len(migs))
	for v, m := range migs {
		versions = append(versions, v)
		assert.NotEmpty(t, m.up, "version %d has no up migration", v)
		assert.NotEmpty(t, m.down, "version %d has no down migration", v)
	}
	sort.Ints(versions)
	for i, v := range versions {
		assert.Equal(t, i+1, v, "migration versions must start at 1 without gaps")
	}
}

// 書き込み側が参照するテーブルはすべて up で作成され、同じバージョンの down で削除されること。
func TestMigrations_CoverWriterTables(t *testing.T) {
	migs := loadMigrations(t)
	created := map[string]int{}
	dropped := map[string]int{}
	for v, m := range migs {
		for _, match := range createTable.FindAllStringSubmatch(m.up, -1) {
			created[match[1]] = v
		}
		for _, match := range dropTable.FindAllStringSubmatch(m.down, -1) {
			dropped[match[1]] = v
		}
	}

	for _, table := range []string{"execution_logs", "paper_sessions", "paper_trades", "session_reports", "session_equity"} {
		v, ok := created[table]
		if assert.True(t, ok, "no migration creates %s", table) {
			assert.Equal(t, v, dropped[table], "%s must be dropped by the down migration of version %d", table, v)
		}
	}
}
