package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clintrovert/trac2github/internal/trac"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	db := writeFile(t, dir, "trac.db", "")
	path := writeFile(t, dir, "trac2github.yaml", `
trac:
  driver: sqlite
  sqlite_path: `+db+`
  url: https://trac.osgeo.org/grass
github:
  project: OSGeo
  repo: grass
  user_email: ops@example.org
migration:
  components: [gui, wxGUI]
  revert_components: true
  ticket_ids: [3, 9]
  preserve_numbers: true
pacing:
  cooldown: 5s
  ticket_batch: 10
users:
  alice: alice-gh
labels:
  "T: defect": "T: bug"
  "C: Default": null
  "P: trivial": ""
`)
	t.Setenv("GITHUB_TOKEN", "secret")
	t.Setenv("TRAC_URL", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "secret", cfg.GitHub.Token)
	assert.Equal(t, "https://trac.osgeo.org/grass", cfg.Trac.URL)
	assert.Equal(t, "OSGeo/grass", cfg.Repository().FullName())
	assert.Equal(t, "trac2github for OSGeo, ops@example.org", cfg.UserAgent())

	sel := cfg.Selection()
	assert.Equal(t, []string{"gui", "wxGUI"}, sel.Components)
	assert.True(t, sel.ExcludeComponents)
	assert.Equal(t, []int{3, 9}, sel.TicketIDs)
	assert.True(t, cfg.Migration.PreserveNumbers)

	policy := cfg.Policy()
	assert.Equal(t, 5*time.Second, policy.Cooldown)
	assert.Equal(t, 10, policy.TicketBatch)
	assert.Equal(t, 20, policy.MaxRequests)
	assert.Equal(t, 10*time.Second, policy.WriteDelay)

	assert.Equal(t, map[string]string{"alice": "alice-gh"}, cfg.Users)
	require.Contains(t, cfg.Labels, "T: defect")
	assert.Equal(t, "T: bug", *cfg.Labels["T: defect"])
	require.Contains(t, cfg.Labels, "C: Default")
	assert.Nil(t, cfg.Labels["C: Default"])
	assert.Equal(t, "", *cfg.Labels["P: trivial"])

	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Equal(t, db, dsn)

	assert.Equal(t, "trac_tickets.json", cfg.Migration.SaveTickets)
	assert.Equal(t, "Version and provenance", cfg.Markup.VersionHeading)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalid)

	bad := writeFile(t, dir, "bad.yaml", "trac: [unclosed")
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GITHUB_USERNAME": "bot",
		"GITHUB_PASSWORD": "pw",
		"TRAC_DSN":        "user:pw@tcp(db:3306)/trac",
	}
	cfg := Default()
	cfg.GitHub.Username = "file-user"
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "bot", cfg.GitHub.Username)
	assert.Equal(t, "pw", cfg.GitHub.Password)
	assert.Equal(t, "user:pw@tcp(db:3306)/trac", cfg.Trac.DSN)
	assert.Empty(t, cfg.GitHub.Token)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.Trac.SQLitePath = writeFile(t, t.TempDir(), "trac.db", "")
	cfg.Trac.URL = "https://trac.example.org"
	cfg.GitHub.Project = "o"
	cfg.GitHub.Repo = "r"
	cfg.GitHub.Token = "t"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "basic auth", mutate: func(c *Config) {
			c.GitHub.Token = ""
			c.GitHub.Username = "u"
			c.GitHub.Password = "p"
		}, ok: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Trac.Driver = "oracle" }},
		{name: "missing sqlite file", mutate: func(c *Config) { c.Trac.SQLitePath = "/nonexistent/trac.db" }},
		{name: "mysql without database", mutate: func(c *Config) { c.Trac.Driver = "mysql" }},
		{name: "mysql with dsn", mutate: func(c *Config) {
			c.Trac.Driver = "mysql"
			c.Trac.DSN = "u:p@tcp(h)/trac"
		}, ok: true},
		{name: "missing trac url", mutate: func(c *Config) { c.Trac.URL = "" }},
		{name: "missing repo", mutate: func(c *Config) { c.GitHub.Repo = "" }},
		{name: "missing credentials", mutate: func(c *Config) { c.GitHub.Token = "" }},
		{name: "username without password", mutate: func(c *Config) {
			c.GitHub.Token = ""
			c.GitHub.Username = "u"
		}},
		{name: "negative batch", mutate: func(c *Config) { c.Pacing.TicketBatch = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestDSNFromFields(t *testing.T) {
	cfg := Default()
	cfg.Trac.Driver = "pgsql"
	cfg.Trac.Host = "db"
	cfg.Trac.Port = 5432
	cfg.Trac.Database = "trac"
	cfg.Trac.User = "trac"
	cfg.Trac.Password = "pw"

	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://trac:pw@db:5432/trac", dsn)

	driver, err := cfg.Driver()
	require.NoError(t, err)
	assert.Equal(t, trac.Postgres, driver)

	cfg.Trac.Driver = "MySQL"
	dsn, err = cfg.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "tcp(db:5432)/trac")
}
