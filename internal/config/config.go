package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "DRAXON"
	defaultHTTPAddress     = "127.0.0.1:8080"
	defaultDatabasePath    = "draxon.db"
	defaultLogLevel        = "info"
	defaultRSIBaseURL      = "https://api.starcitizen-api.com"
	defaultRSIVersion      = "v1"
	defaultRSIMode         = "live"
	defaultRSIPageSize     = 32
	defaultRSIRate         = 2.0
	defaultReconcileEvery  = 24 * time.Hour
	defaultReconcileMinGap = 23 * time.Hour
	defaultRetentionDays   = 90
	defaultCountersEvery   = 5 * time.Minute
	defaultIncidentsFeed   = "https://status.robertsspaceindustries.com/index.xml"
	defaultIncidentsEvery  = time.Hour
	defaultAdminIssuer     = "draxon-ai"
	defaultTokenTTL        = 24 * time.Hour
	defaultPulseCooldown   = 5 * time.Minute
	defaultAdminRole       = "Chairman"
)

var (
	defaultLadder       = []string{"Screening", "Applicant", "Employee", "Team Leader", "Manager", "Director", "Chairman"}
	defaultManagerRoles = []string{"Chairman", "Director"}
	defaultPulseRoles   = []string{"Chairman", "Director", "Manager", "Team Leader", "Employee", "Applicant"}
)

// DiscordConfig holds the bot credentials.
type DiscordConfig struct {
	Token string
	// GuildID scopes command registration to one guild when set.
	GuildID string
}

// RSIConfig describes the organisation directory.
type RSIConfig struct {
	APIKey            string
	BaseURL           string
	Version           string
	Mode              string
	OrgSID            string
	PageSize          int
	RequestsPerSecond float64
}

// RanksConfig describes the rank ladder and reconciliation policy.
type RanksConfig struct {
	Ladder            []string
	LeadershipCeiling string
	DefaultDemotion   string
	Unaffiliated      string
	ManagerRoles      []string
	AdminRole         string
}

// AdminConfig configures operator API tokens.
type AdminConfig struct {
	SigningSecret string
	Issuer        string
	TokenTTL      time.Duration
}

// AppConfig captures runtime configuration for the membership bot.
type AppConfig struct {
	Discord           DiscordConfig
	RSI               RSIConfig
	Ranks             RanksConfig
	Admin             AdminConfig
	DatabasePath      string
	LogLevel          string
	HTTPAddress       string
	ReconcileInterval time.Duration
	ReconcileMinGap   time.Duration
	HistoryRetention  time.Duration
	CountersInterval  time.Duration
	IncidentsFeedURL  string
	IncidentsInterval time.Duration
}

// PulseConfig captures runtime configuration for the alert bot.
type PulseConfig struct {
	Discord      DiscordConfig
	DatabasePath string
	LogLevel     string
	Cooldown     time.Duration
	AllowedRoles []string
	AdminRole    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)

	configViper.SetDefault("rsi.base_url", defaultRSIBaseURL)
	configViper.SetDefault("rsi.version", defaultRSIVersion)
	configViper.SetDefault("rsi.mode", defaultRSIMode)
	configViper.SetDefault("rsi.page_size", defaultRSIPageSize)
	configViper.SetDefault("rsi.requests_per_second", defaultRSIRate)

	configViper.SetDefault("ranks.ladder", defaultLadder)
	configViper.SetDefault("ranks.leadership_ceiling", "Team Leader")
	configViper.SetDefault("ranks.default_demotion", "Employee")
	configViper.SetDefault("ranks.unaffiliated", "Screening")
	configViper.SetDefault("ranks.manager_roles", defaultManagerRoles)
	configViper.SetDefault("ranks.admin_role", defaultAdminRole)

	configViper.SetDefault("reconcile.interval", defaultReconcileEvery)
	configViper.SetDefault("reconcile.min_interval", defaultReconcileMinGap)
	configViper.SetDefault("history.retention_days", defaultRetentionDays)
	configViper.SetDefault("counters.interval", defaultCountersEvery)
	configViper.SetDefault("incidents.feed_url", defaultIncidentsFeed)
	configViper.SetDefault("incidents.interval", defaultIncidentsEvery)

	configViper.SetDefault("admin.issuer", defaultAdminIssuer)
	configViper.SetDefault("admin.token_ttl", defaultTokenTTL)

	configViper.SetDefault("pulse.cooldown", defaultPulseCooldown)
	configViper.SetDefault("pulse.allowed_roles", defaultPulseRoles)
	configViper.SetDefault("pulse.admin_role", defaultAdminRole)
}

// Load parses the membership bot configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		Discord: loadDiscord(configViper),
		RSI: RSIConfig{
			APIKey:            configViper.GetString("rsi.api_key"),
			BaseURL:           configViper.GetString("rsi.base_url"),
			Version:           configViper.GetString("rsi.version"),
			Mode:              configViper.GetString("rsi.mode"),
			OrgSID:            configViper.GetString("rsi.org_sid"),
			PageSize:          configViper.GetInt("rsi.page_size"),
			RequestsPerSecond: configViper.GetFloat64("rsi.requests_per_second"),
		},
		Ranks: RanksConfig{
			Ladder:            stringList(configViper, "ranks.ladder"),
			LeadershipCeiling: configViper.GetString("ranks.leadership_ceiling"),
			DefaultDemotion:   configViper.GetString("ranks.default_demotion"),
			Unaffiliated:      configViper.GetString("ranks.unaffiliated"),
			ManagerRoles:      stringList(configViper, "ranks.manager_roles"),
			AdminRole:         configViper.GetString("ranks.admin_role"),
		},
		Admin: AdminConfig{
			SigningSecret: configViper.GetString("admin.signing_secret"),
			Issuer:        configViper.GetString("admin.issuer"),
			TokenTTL:      configViper.GetDuration("admin.token_ttl"),
		},
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		HTTPAddress:       configViper.GetString("http.address"),
		ReconcileInterval: configViper.GetDuration("reconcile.interval"),
		ReconcileMinGap:   configViper.GetDuration("reconcile.min_interval"),
		HistoryRetention:  time.Duration(configViper.GetInt("history.retention_days")) * 24 * time.Hour,
		CountersInterval:  configViper.GetDuration("counters.interval"),
		IncidentsFeedURL:  configViper.GetString("incidents.feed_url"),
		IncidentsInterval: configViper.GetDuration("incidents.interval"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadAdmin parses only what the offline operator commands need.
func LoadAdmin(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		Admin: AdminConfig{
			SigningSecret: configViper.GetString("admin.signing_secret"),
			Issuer:        configViper.GetString("admin.issuer"),
			TokenTTL:      configViper.GetDuration("admin.token_ttl"),
		},
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		HistoryRetention: time.Duration(configViper.GetInt("history.retention_days")) * 24 * time.Hour,
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return AppConfig{}, fmt.Errorf("database.path is required")
	}
	return cfg, nil
}

// LoadPulse parses the alert bot configuration from viper.
func LoadPulse(configViper *viper.Viper) (PulseConfig, error) {
	cfg := PulseConfig{
		Discord:      loadDiscord(configViper),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
		Cooldown:     configViper.GetDuration("pulse.cooldown"),
		AllowedRoles: stringList(configViper, "pulse.allowed_roles"),
		AdminRole:    configViper.GetString("pulse.admin_role"),
	}
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return PulseConfig{}, fmt.Errorf("discord.token is required")
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return PulseConfig{}, fmt.Errorf("database.path is required")
	}
	if cfg.Cooldown <= 0 {
		return PulseConfig{}, fmt.Errorf("pulse.cooldown must be positive")
	}
	if len(cfg.AllowedRoles) == 0 {
		return PulseConfig{}, fmt.Errorf("pulse.allowed_roles is required")
	}
	return cfg, nil
}

func loadDiscord(configViper *viper.Viper) DiscordConfig {
	return DiscordConfig{
		Token:   configViper.GetString("discord.token"),
		GuildID: configViper.GetString("discord.guild_id"),
	}
}

// stringList accepts a list value or a comma separated string, as environment variables provide.
func stringList(configViper *viper.Viper, key string) []string {
	var raw []string
	if text, ok := configViper.Get(key).(string); ok {
		raw = strings.Split(text, ",")
	} else {
		raw = configViper.GetStringSlice(key)
	}
	values := make([]string, 0, len(raw))
	for _, value := range raw {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required")
	}
	if strings.TrimSpace(c.RSI.APIKey) == "" {
		return fmt.Errorf("rsi.api_key is required")
	}
	if strings.TrimSpace(c.RSI.OrgSID) == "" {
		return fmt.Errorf("rsi.org_sid is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.Admin.SigningSecret) == "" {
		return fmt.Errorf("admin.signing_secret is required")
	}
	if len(c.Ranks.Ladder) == 0 {
		return fmt.Errorf("ranks.ladder is required")
	}
	if c.RSI.PageSize <= 0 {
		return fmt.Errorf("rsi.page_size must be positive")
	}
	if c.RSI.RequestsPerSecond <= 0 {
		return fmt.Errorf("rsi.requests_per_second must be positive")
	}
	if c.ReconcileInterval <= 0 || c.CountersInterval <= 0 || c.IncidentsInterval <= 0 {
		return fmt.Errorf("job intervals must be positive")
	}
	if c.ReconcileMinGap > c.ReconcileInterval {
		return fmt.Errorf("reconcile.min_interval must not exceed reconcile.interval")
	}
	if c.HistoryRetention <= 0 {
		return fmt.Errorf("history.retention_days must be positive")
	}
	return nil
}
