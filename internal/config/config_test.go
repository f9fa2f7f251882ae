package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "enrich.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "completa", cfg.Lookup.Module)
	assert.Equal(t, 30, cfg.Lookup.TimeoutSecs)
	assert.Equal(t, 5, cfg.Enrich.BatchSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Enrich.RecordDelay())
	assert.Equal(t, 25, cfg.Enrich.MaxErrors)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/enrich
lookup:
  url_template: https://api.example.com/{module}/{cpf}?token={token}
  token: tok-1
reachability:
  url: https://graph.example.com/v1/contacts
  tokens: "tok-a, tok-b,tok-c"
enrich:
  batch_size: 10
  record_delay_ms: 500
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "tok-1", cfg.Lookup.Token)
	assert.Equal(t, []string{"tok-a", "tok-b", "tok-c"}, cfg.Reachability.TokenList())
	assert.Equal(t, 10, cfg.Enrich.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Enrich.RecordDelay())
}

func TestValidatePipeline(t *testing.T) {
	t.Parallel()

	valid := Config{
		Lookup:       LookupConfig{URLTemplate: "https://x/{cpf}", Token: "t"},
		Reachability: ReachabilityConfig{URL: "https://y", Tokens: "a"},
	}
	require.NoError(t, valid.ValidatePipeline())

	missing := valid
	missing.Lookup.Token = ""
	assert.Error(t, missing.ValidatePipeline())

	missing = valid
	missing.Reachability.Tokens = " , "
	assert.Error(t, missing.ValidatePipeline())
}

func TestTokenList_Empty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ReachabilityConfig{}.TokenList())
}
