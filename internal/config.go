package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Auth      AuthConfig        `yaml:"auth"`
	Telegram  TelegramConfig    `yaml:"telegram"`
	Agent     AgentConfig       `yaml:"agent"`
	Session   SessionConfig     `yaml:"session"`
	Vault     VaultConfig       `yaml:"vault"`
	Todoist   TodoistConfig     `yaml:"todoist"`
	Groq      GroqConfig        `yaml:"groq"`
	DailyPrep DailyPrepConfig   `yaml:"daily_prep"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Telegram.Validate(); err != nil {
		return err
	}
	if err := c.Agent.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	return c.DailyPrep.Validate()
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

// AuthConfig holds the Bearer token required on the HTTP API.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// Validate validates the auth configuration. The API is never open: a token
// is required because the service executes an agent with write access to the
// vault and task list.
func (c *AuthConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.Required),
	)
}

// TelegramConfig holds the bot token and the single allow-listed user.
type TelegramConfig struct {
	Token         string `yaml:"token"`
	AllowedUserID int64  `yaml:"allowed_user_id"`
}

// Validate validates the Telegram configuration. An empty token disables the
// bot entirely; an allow-listed user is mandatory when it is enabled.
func (c *TelegramConfig) Validate() error {
	if c.Token == "" {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.AllowedUserID, validation.Required),
	)
}

// Enabled reports whether the Telegram front-end should start.
func (c *TelegramConfig) Enabled() bool {
	return c.Token != ""
}

// AgentConfig describes how to invoke the external agent runtime CLI.
type AgentConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Workdir string        `yaml:"workdir"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the agent runtime configuration.
func (c *AgentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
	)
}

// SessionConfig holds session continuity tuning.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Validate validates the session configuration. The sweep must tick more
// often than entries expire, otherwise expired handles linger between sweeps.
func (c *SessionConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Required),
		validation.Field(&c.SweepInterval, validation.Required),
	); err != nil {
		return err
	}
	if c.SweepInterval >= c.TTL {
		return fmt.Errorf("session: sweep_interval (%s) must be shorter than ttl (%s)", c.SweepInterval, c.TTL)
	}
	return nil
}

// VaultConfig describes the git-backed note vault.
type VaultConfig struct {
	RemoteURL string `yaml:"remote_url"`
	Path      string `yaml:"path"`
	Branch    string `yaml:"branch"`
	NotesDir  string `yaml:"notes_dir"`
	Timezone  string `yaml:"timezone"`

	// Token enables HTTPS remotes. SSHKeyB64 carries a base64-encoded private
	// key for SSH remotes; KnownHost is the host to register before cloning.
	Token     string `yaml:"token"`
	SSHKeyB64 string `yaml:"ssh_key_b64"`
	KnownHost string `yaml:"known_host"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RemoteURL, validation.Required),
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.NotesDir, validation.Required),
		validation.Field(&c.Timezone, validation.Required),
	)
}

// TodoistConfig holds the Todoist API credential, passed through to the
// tool-protocol server subprocess.
type TodoistConfig struct {
	Token string `yaml:"token"`
}

// GroqConfig holds transcription service configuration.
type GroqConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Enabled reports whether voice transcription is available.
func (c *GroqConfig) Enabled() bool {
	return c.APIKey != ""
}

// DailyPrepConfig schedules the morning briefing job.
type DailyPrepConfig struct {
	Enabled bool `yaml:"enabled"`
	Hour    int  `yaml:"hour"`
	Minute  int  `yaml:"minute"`
}

// Validate validates the daily prep schedule.
func (c *DailyPrepConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Hour, validation.Min(0), validation.Max(23)),
		validation.Field(&c.Minute, validation.Min(0), validation.Max(59)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 3000,
			},
		},
		Agent: AgentConfig{
			Command: "claude",
			Timeout: 5 * time.Minute,
		},
		Session: SessionConfig{
			TTL:           2 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Vault: VaultConfig{
			Path:      "./vault",
			Branch:    "main",
			NotesDir:  "voice-notes",
			Timezone:  "America/New_York",
			KnownHost: "github.com",
		},
		Groq: GroqConfig{
			Model: "whisper-large-v3-turbo",
		},
		DailyPrep: DailyPrepConfig{
			Hour:   4,
			Minute: 0,
		},
	}
}
