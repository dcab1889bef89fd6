// Package config loads the migration settings from a YAML file, with
// secrets and connection strings overridable from the environment
// (which main populates from .env).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clintrovert/trac2github/internal/pacing"
	"github.com/clintrovert/trac2github/internal/trac"
	"github.com/clintrovert/trac2github/pkg/types"
)

// ErrInvalid marks a configuration error
var ErrInvalid = errors.New("invalid configuration")

// Config holds every setting of a migration run
type Config struct {
	Trac      TracConfig      `yaml:"trac"`
	GitHub    GitHubConfig    `yaml:"github"`
	Migration MigrationConfig `yaml:"migration"`
	Pacing    PacingConfig    `yaml:"pacing"`
	Markup    MarkupConfig    `yaml:"markup"`
	// Users maps Trac usernames to GitHub usernames.
	Users map[string]string `yaml:"users"`
	// Labels forces default label names to other names. A null or empty
	// value suppresses the label.
	Labels map[string]*string `yaml:"labels"`
}

// TracConfig locates the Trac database and site
type TracConfig struct {
	Driver string `yaml:"driver"`
	// DSN is used as is when set; otherwise it is built from the
	// structured fields below.
	DSN        string `yaml:"dsn"`
	SQLitePath string `yaml:"sqlite_path"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Database   string `yaml:"database"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	URL        string `yaml:"url"`
}

// GitHubConfig locates and authenticates against the destination repo
type GitHubConfig struct {
	BaseURL   string `yaml:"base_url"`
	Project   string `yaml:"project"`
	Repo      string `yaml:"repo"`
	Token     string `yaml:"token"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	UserEmail string `yaml:"user_email"`
}

// MigrationConfig holds the per-run toggles
type MigrationConfig struct {
	SkipMilestones  bool `yaml:"skip_milestones"`
	SkipLabels      bool `yaml:"skip_labels"`
	SkipTickets     bool `yaml:"skip_tickets"`
	SkipComments    bool `yaml:"skip_comments"`
	SkipAttachments bool `yaml:"skip_attachments"`

	Components       []string `yaml:"components"`
	RevertComponents bool     `yaml:"revert_components"`
	Milestones       []string `yaml:"milestones"`
	TicketIDs        []int    `yaml:"ticket_ids"`
	TicketOffset     int      `yaml:"ticket_offset"`
	TicketLimit      int      `yaml:"ticket_limit"`

	PreserveNumbers   bool   `yaml:"preserve_numbers"`
	AddMigratedSuffix bool   `yaml:"add_migrated_suffix"`
	SaveTickets       string `yaml:"save_tickets"`

	AttachmentDir         string `yaml:"attachment_dir"`
	AttachmentTicketStart int    `yaml:"attachment_ticket_start"`
	AttachmentTicketEnd   int    `yaml:"attachment_ticket_end"`
	CommitAttachments     bool   `yaml:"commit_attachments"`

	Verbose bool `yaml:"verbose"`
}

// PacingConfig tunes the request throttle
type PacingConfig struct {
	MaxRequests   int           `yaml:"max_requests"`
	Cooldown      time.Duration `yaml:"cooldown"`
	WriteDelay    time.Duration `yaml:"write_delay"`
	TicketBatch   int           `yaml:"ticket_batch"`
	BatchCooldown time.Duration `yaml:"batch_cooldown"`
}

// MarkupConfig tunes the rendering of issue bodies
type MarkupConfig struct {
	ManualURL      string `yaml:"manual_url"`
	VersionHeading string `yaml:"version_heading"`
}

// Default returns the configuration used for every unset key
func Default() *Config {
	p := pacing.DefaultPolicy()
	return &Config{
		Trac: TracConfig{Driver: string(trac.SQLite)},
		Migration: MigrationConfig{
			SaveTickets:   "trac_tickets.json",
			AttachmentDir: "attachments",
		},
		Pacing: PacingConfig{
			MaxRequests:   p.MaxRequests,
			Cooldown:      p.Cooldown,
			WriteDelay:    p.WriteDelay,
			TicketBatch:   p.TicketBatch,
			BatchCooldown: p.BatchCooldown,
		},
		Markup: MarkupConfig{
			ManualURL:      "https://grass.osgeo.org",
			VersionHeading: "Version and provenance",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalid, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalid, path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides secrets and locations from the environment
func (c *Config) ApplyEnv(getenv func(string) string) {
	override := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.GitHub.Token, "GITHUB_TOKEN")
	override(&c.GitHub.Username, "GITHUB_USERNAME")
	override(&c.GitHub.Password, "GITHUB_PASSWORD")
	override(&c.Trac.DSN, "TRAC_DSN")
	override(&c.Trac.URL, "TRAC_URL")
}

// Validate checks that a run can start
func (c *Config) Validate() error {
	driver, err := trac.ParseDriver(c.Trac.Driver)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if driver == trac.SQLite && c.Trac.DSN == "" {
		if c.Trac.SQLitePath == "" {
			return fmt.Errorf("%w: trac.sqlite_path or trac.dsn is required", ErrInvalid)
		}
		if _, err := os.Stat(c.Trac.SQLitePath); err != nil {
			return fmt.Errorf("%w: trac database: %v", ErrInvalid, err)
		}
	}
	if driver != trac.SQLite && c.Trac.DSN == "" && c.Trac.Database == "" {
		return fmt.Errorf("%w: trac.database or trac.dsn is required", ErrInvalid)
	}
	if c.Trac.URL == "" {
		return fmt.Errorf("%w: trac.url is required", ErrInvalid)
	}
	if c.GitHub.Project == "" || c.GitHub.Repo == "" {
		return fmt.Errorf("%w: github.project and github.repo are required", ErrInvalid)
	}
	if c.GitHub.Token == "" && (c.GitHub.Username == "" || c.GitHub.Password == "") {
		return fmt.Errorf("%w: github.token or github.username and github.password are required", ErrInvalid)
	}
	if c.Pacing.MaxRequests < 0 || c.Pacing.TicketBatch < 0 {
		return fmt.Errorf("%w: pacing counts must not be negative", ErrInvalid)
	}
	return nil
}

// Driver returns the parsed Trac driver
func (c *Config) Driver() (trac.Driver, error) {
	d, err := trac.ParseDriver(c.Trac.Driver)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return d, nil
}

// DSN returns the connection string for the Trac database
func (c *Config) DSN() (string, error) {
	if c.Trac.DSN != "" {
		return c.Trac.DSN, nil
	}
	driver, err := c.Driver()
	if err != nil {
		return "", err
	}
	switch driver {
	case trac.MySQL:
		return trac.MySQLDSN(c.Trac.Host, c.Trac.Port, c.Trac.Database, c.Trac.User, c.Trac.Password), nil
	case trac.Postgres:
		return trac.PostgresDSN(c.Trac.Host, c.Trac.Port, c.Trac.Database, c.Trac.User, c.Trac.Password), nil
	}
	return c.Trac.SQLitePath, nil
}

// Repository returns the destination repository
func (c *Config) Repository() types.Repository {
	return types.Repository{Owner: c.GitHub.Project, Name: c.GitHub.Repo}
}

// UserAgent identifies the migration to GitHub
func (c *Config) UserAgent() string {
	return fmt.Sprintf("trac2github for %s, %s", c.GitHub.Project, c.GitHub.UserEmail)
}

// Policy returns the pacing policy
func (c *Config) Policy() pacing.Policy {
	return pacing.Policy{
		MaxRequests:   c.Pacing.MaxRequests,
		Cooldown:      c.Pacing.Cooldown,
		WriteDelay:    c.Pacing.WriteDelay,
		TicketBatch:   c.Pacing.TicketBatch,
		BatchCooldown: c.Pacing.BatchCooldown,
	}
}

// Selection returns the ticket selection
func (c *Config) Selection() trac.Selection {
	return trac.Selection{
		TicketIDs:         c.Migration.TicketIDs,
		Components:        c.Migration.Components,
		ExcludeComponents: c.Migration.RevertComponents,
		Milestones:        c.Migration.Milestones,
		Offset:            c.Migration.TicketOffset,
		Limit:             c.Migration.TicketLimit,
	}
}
