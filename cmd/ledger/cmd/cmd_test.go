package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulesYAML = `rules:
  - payee: Rent
    amount: 1500
    category: bill
    cadence: monthly
    start_date: 2025-01-31
    count: 3
  - payee: Gym
    amount: "29.99"
    category: subscription
    cadence: weekly
    start_date: 2025-01-06
`

// execute runs the root command with args against a fresh working dir.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRulesImportExport(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("LEDGER_SCHEDULER_ENABLED", "false")
	db := filepath.Join(dir, "ledger.db")
	rulesFile := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte(rulesYAML), 0o600))

	// GIVEN: an owner
	out, err := execute(t, "owners", "create", "Ada", "--id", "owner-1", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", strings.TrimSpace(out))

	// WHEN: the file is imported
	out, err = execute(t, "rules", "import", rulesFile, "--owner", "owner-1", "--db", db)
	require.NoError(t, err)

	// THEN: each rule gets its initial batch, bounded by count
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Rent")
	assert.Contains(t, lines[0], "3 upcoming")
	assert.Contains(t, lines[1], "12 upcoming")

	exported := filepath.Join(dir, "out.json")
	_, err = execute(t, "rules", "export", "--owner", "owner-1", "--format", "json", "--out", exported, "--db", db)
	require.NoError(t, err)
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"payee": "Rent"`)
	assert.Contains(t, string(data), `"payee": "Gym"`)
}

func TestRulesImport_UnknownOwner(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	rulesFile := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte(rulesYAML), 0o600))

	_, err := execute(t, "rules", "import", rulesFile, "--owner", "ghost", "--db", filepath.Join(dir, "ledger.db"))
	assert.Error(t, err)
}

func TestRulesExport_BadFormat(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := execute(t, "rules", "export", "--owner", "owner-1", "--format", "xml", "--db", filepath.Join(dir, "ledger.db"))
	assert.EqualError(t, err, "--format must be yaml or json")
}

func TestSweep_EmptyLedger(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := execute(t, "sweep", "--db", filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "Rules:     0")
}
