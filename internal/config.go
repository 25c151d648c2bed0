package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/othala/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Cache      CacheConfig       `yaml:"cache"`
	Index      IndexConfig       `yaml:"index"`
	Checkpoint CheckpointConfig  `yaml:"checkpoint"`
	Remote     RemoteConfig      `yaml:"remote"`
	Sync       SyncConfig        `yaml:"sync"`
	Indexing   IndexingConfig    `yaml:"indexing"`
	Auth       AuthConfig        `yaml:"auth"`
	Watcher    WatcherConfig     `yaml:"watcher"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Indexing.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CacheConfig holds the path to the cache root directory.
type CacheConfig struct {
	Root string `yaml:"root"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// IndexConfig holds the SQLite search index configuration.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CheckpointConfig holds the checkpoint database configuration.
type CheckpointConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the checkpoint configuration.
func (c *CheckpointConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RemoteConfig holds the remote content store endpoint and credentials.
// Token usually comes from the environment via ${REMOTE_TOKEN} expansion.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
	)
}

// SyncConfig holds change detection and conflict resolution configuration.
type SyncConfig struct {
	// SkewWindowMinutes is the clock-skew tolerance for conflict detection.
	SkewWindowMinutes int `yaml:"skew_window_minutes"`
	// Strategy is the default conflict strategy for sync runs.
	Strategy string `yaml:"strategy"`
	// LeaseTTLMinutes bounds how long a crashed run blocks its successors.
	LeaseTTLMinutes int `yaml:"lease_ttl_minutes"`
}

// SkewWindow returns the skew tolerance as a duration.
func (c *SyncConfig) SkewWindow() time.Duration {
	return time.Duration(c.SkewWindowMinutes) * time.Minute
}

// LeaseTTL returns the run lease TTL as a duration.
func (c *SyncConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLMinutes) * time.Minute
}

// DefaultStrategy returns the configured strategy as a typed value.
func (c *SyncConfig) DefaultStrategy() models.ConflictStrategy {
	return models.ConflictStrategy(c.Strategy)
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SkewWindowMinutes, validation.Min(0)),
		validation.Field(&c.LeaseTTLMinutes, validation.Min(0)),
		validation.Field(&c.Strategy, validation.In(
			string(models.RemoteWins), string(models.LocalWins),
			string(models.NewerWins), string(models.UserPrompt), "",
		)),
	)
}

// IndexingConfig holds bulk indexer tuning.
type IndexingConfig struct {
	Concurrency     int `yaml:"concurrency"`
	CheckpointEvery int `yaml:"checkpoint_every"`
	MaxErrors       int `yaml:"max_errors"`
}

// Validate validates the indexing configuration.
func (c *IndexingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Min(0), validation.Max(64)),
		validation.Field(&c.CheckpointEvery, validation.Min(0)),
		validation.Field(&c.MaxErrors, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// WatcherConfig controls the cache-tree file watcher.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Cache: CacheConfig{
			Root: "./cache",
		},
		Index: IndexConfig{
			Path: "./othala.db",
		},
		Checkpoint: CheckpointConfig{
			Path: "./checkpoints.db",
		},
		Remote: RemoteConfig{
			BaseURL: "http://localhost:9090",
		},
		Sync: SyncConfig{
			SkewWindowMinutes: 5,
			Strategy:          string(models.NewerWins),
			LeaseTTLMinutes:   30,
		},
		Indexing: IndexingConfig{
			Concurrency:     4,
			CheckpointEvery: 25,
			MaxErrors:       50,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watcher: WatcherConfig{
			Enabled: true,
		},
	}
}
