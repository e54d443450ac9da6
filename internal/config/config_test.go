package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchpnl/pnl-dashboard/internal/pnl"
	"github.com/branchpnl/pnl-dashboard/internal/types"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMainConfig_Defaults(t *testing.T) {
	cfg, err := LoadMainConfig("")
	require.NoError(t, err)

	assert.Equal(t, "./input", cfg.InputDir)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.True(t, cfg.ContinueOnError)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, pnl.ModeHeuristic, cfg.Parser.LayoutMode)
	assert.Equal(t, 20, cfg.Parser.HeaderScanRows)
	assert.Equal(t, 6, cfg.Parser.Fixed.LocationRow)
	assert.Equal(t, []string{"net_income", "net_income_loss"}, cfg.Parser.NetIncomeKeys)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "", cfg.Inbox.Schedule)
}

func TestLoadMainConfig_FileAndEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
input_dir: /srv/pnl/inbox
max_concurrency: 2
log:
  level: debug
  format: json
parser:
  layout_mode: auto
  net_income_keys: [bottom_line]
inbox:
  schedule: "*/15 * * * *"
  timezone: Europe/London
`)
	t.Setenv("PNL_STORE_DSN", "/tmp/override.db")

	cfg, err := LoadMainConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/pnl/inbox", cfg.InputDir)
	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"bottom_line"}, cfg.Parser.NetIncomeKeys)
	assert.Equal(t, "/tmp/override.db", cfg.Store.DSN)
	assert.Equal(t, "Europe/London", cfg.Location().String())

	locator, err := cfg.Locator()
	require.NoError(t, err)
	assert.Equal(t, "heuristic+fixed", locator.Name())

	opts, err := cfg.ParserOptions(slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"bottom_line"}, opts.NetIncomeKeys)
}

func TestLoadMainConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"log level":   "log:\n  level: loud\n",
		"log format":  "log:\n  format: xml\n",
		"layout mode": "parser:\n  layout_mode: diagonal\n",
		"driver":      "store:\n  driver: mongo\n",
		"schedule":    "inbox:\n  schedule: \"every tuesday\"\n",
		"timezone":    "inbox:\n  timezone: Mars/Olympus\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadMainConfig(writeFile(t, "config.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMainConfig_MissingFile(t *testing.T) {
	_, err := LoadMainConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := &MainConfig{
		InputDir:        filepath.Join(root, "in"),
		InputArchiveDir: filepath.Join(root, "archive"),
		OutputDir:       filepath.Join(root, "out"),
	}
	require.NoError(t, cfg.EnsureDirs())
	for _, d := range []string{cfg.InputDir, cfg.InputArchiveDir, cfg.OutputDir} {
		assert.DirExists(t, d)
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestDefaultDirectory(t *testing.T) {
	dir, err := DefaultDirectory()
	require.NoError(t, err)

	assert.Len(t, dir.Companies, 110)
	assert.Equal(t, "Sharief Healthcare Limited", dir.Company("Port Talbot"))
	assert.Equal(t, "176", dir.BranchID("Port Talbot"))
	assert.Equal(t, "Cholsey Healthcare Limited", dir.Company("Cholsey Pharmacy"))
	assert.Equal(t, "20002", dir.BranchID("St Blazey (Sharief)"))
}

func TestDirectoryFileRoundTrip(t *testing.T) {
	in := types.Directory{
		Companies: map[string]string{"Fairfield": "Acme Ltd"},
		BranchIDs: map[string]string{"Fairfield": "018"},
	}
	data, err := MarshalDirectory(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "branch_ids:")

	path := writeFile(t, "dir.yaml", string(data))
	out, err := LoadDirectoryFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	cfg := &MainConfig{DirectoryFile: path}
	seeded, err := cfg.SeedDirectory()
	require.NoError(t, err)
	assert.Equal(t, in, seeded)
}

func TestParseDirectory_JSON(t *testing.T) {
	dir, err := ParseDirectory([]byte(`{"companies": {"A": "B"}}`))
	require.NoError(t, err)
	assert.Equal(t, "B", dir.Company("A"))
	assert.NotNil(t, dir.BranchIDs)

	_, err = ParseDirectory([]byte("companies: [unclosed"))
	assert.Error(t, err)
}
