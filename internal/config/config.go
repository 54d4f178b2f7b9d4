// Package config loads service configuration from a YAML file with
// environment variable overrides. Every tracker field identifier, status
// name and transition name is configuration, never a literal in the logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPPort        = 8090
	defaultSettleDelay     = 5 * time.Second
	defaultJiraTimeout     = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Config is the root configuration object injected into every component.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Jira       JiraConfig       `yaml:"jira"`
	Automation AutomationConfig `yaml:"automation"`
	Fields     FieldConfig      `yaml:"fields"`
}

// ServiceConfig identifies the service in logs.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                   int `yaml:"port"`
	ReadTimeoutSeconds     int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds     int `yaml:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// JiraConfig configures the tracker REST gateway.
type JiraConfig struct {
	BaseURL        string `yaml:"base_url"`
	Email          string `yaml:"email"`
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AutomationConfig holds the lifecycle status names, transition names and
// timing knobs of the approval automation.
type AutomationConfig struct {
	SettleDelaySeconds int      `yaml:"settle_delay_seconds"`
	ReviewStatus       string   `yaml:"review_status"`
	ResolvedStatuses   []string `yaml:"resolved_statuses"`
	SuccessResolution  string   `yaml:"success_resolution"`
	SLAMetricName      string   `yaml:"sla_metric_name"`
	TransitionManual   string   `yaml:"transition_manual"`
	TransitionApprove  string   `yaml:"transition_approve"`
	TransitionReject   string   `yaml:"transition_reject"`
}

// FieldConfig maps the externally configured tracker custom field IDs.
type FieldConfig struct {
	EstimatedCost     string `yaml:"estimated_cost"`
	LaborCost         string `yaml:"labor_cost"`
	Organization      string `yaml:"organization"`
	PenaltyPercentage string `yaml:"penalty_percentage"`
	TotalCost         string `yaml:"total_cost"`
	Asset             string `yaml:"asset"` // reserved for asset-based pricing, currently unused
}

// Load reads CONFIG_PATH (default config.yaml), applies environment
// overrides and defaults, and validates required settings.
func Load() (*Config, error) {
	cfg := &Config{}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	envOverride(&cfg.Service.Name, "SERVICE_NAME")
	envOverride(&cfg.Service.Environment, "ENVIRONMENT")
	envOverride(&cfg.Service.Version, "SERVICE_VERSION")

	envOverrideInt(&cfg.Server.Port, "HTTP_PORT")

	envOverride(&cfg.Database.Host, "DB_HOST")
	envOverrideInt(&cfg.Database.Port, "DB_PORT")
	envOverride(&cfg.Database.User, "DB_USER")
	envOverride(&cfg.Database.Password, "DB_PASSWORD")
	envOverride(&cfg.Database.Database, "DB_NAME")
	envOverride(&cfg.Database.SSLMode, "DB_SSL_MODE")

	envOverride(&cfg.Jira.BaseURL, "JIRA_BASE_URL")
	envOverride(&cfg.Jira.Email, "JIRA_EMAIL")
	envOverride(&cfg.Jira.APIToken, "JIRA_API_TOKEN")
	envOverrideInt(&cfg.Jira.TimeoutSeconds, "JIRA_TIMEOUT_SECONDS")

	envOverrideInt(&cfg.Automation.SettleDelaySeconds, "AUTOMATION_SETTLE_DELAY_SECONDS")
	envOverride(&cfg.Automation.ReviewStatus, "REVIEW_STATUS")
	envOverride(&cfg.Automation.SuccessResolution, "SUCCESS_RESOLUTION")
	envOverride(&cfg.Automation.SLAMetricName, "SLA_METRIC_NAME")
	envOverride(&cfg.Automation.TransitionManual, "TRANSITION_MANUAL")
	envOverride(&cfg.Automation.TransitionApprove, "TRANSITION_APPROVE")
	envOverride(&cfg.Automation.TransitionReject, "TRANSITION_REJECT")

	envOverride(&cfg.Fields.EstimatedCost, "ESTIMATED_COST_FIELD_ID")
	envOverride(&cfg.Fields.LaborCost, "LABOR_COST_FIELD_ID")
	envOverride(&cfg.Fields.Organization, "ORGANIZATION_FIELD_ID")
	envOverride(&cfg.Fields.PenaltyPercentage, "PENALTY_PERCENTAGE_FIELD_ID")
	envOverride(&cfg.Fields.TotalCost, "TOTAL_COST_FIELD_ID")
	envOverride(&cfg.Fields.Asset, "ASSET_FIELD_ID")

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "be-sd-budget"
	}
	if c.Service.Environment == "" {
		c.Service.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultHTTPPort
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Server.IdleTimeoutSeconds == 0 {
		c.Server.IdleTimeoutSeconds = 60
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = int(defaultShutdownTimeout / time.Second)
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Jira.TimeoutSeconds == 0 {
		c.Jira.TimeoutSeconds = int(defaultJiraTimeout / time.Second)
	}
	if c.Automation.SettleDelaySeconds == 0 {
		c.Automation.SettleDelaySeconds = int(defaultSettleDelay / time.Second)
	}
	if c.Automation.ReviewStatus == "" {
		c.Automation.ReviewStatus = "En revisión"
	}
	if len(c.Automation.ResolvedStatuses) == 0 {
		c.Automation.ResolvedStatuses = []string{"Resuelto", "Completado"}
	}
	if c.Automation.SuccessResolution == "" {
		c.Automation.SuccessResolution = "Done"
	}
	if c.Automation.SLAMetricName == "" {
		c.Automation.SLAMetricName = "Time to resolution"
	}
	if c.Automation.TransitionManual == "" {
		c.Automation.TransitionManual = "Aprobación Manual"
	}
	if c.Automation.TransitionApprove == "" {
		c.Automation.TransitionApprove = "Auto Aprobación"
	}
	if c.Automation.TransitionReject == "" {
		c.Automation.TransitionReject = "Auto Rechazo"
	}
}

func (c *Config) validate() error {
	if c.Jira.BaseURL == "" {
		return fmt.Errorf("jira.base_url is required")
	}
	required := map[string]string{
		"fields.estimated_cost":     c.Fields.EstimatedCost,
		"fields.labor_cost":         c.Fields.LaborCost,
		"fields.organization":       c.Fields.Organization,
		"fields.penalty_percentage": c.Fields.PenaltyPercentage,
		"fields.total_cost":         c.Fields.TotalCost,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// SettleDelay is the flat wait before an automation pass starts, allowing
// upstream field propagation to settle.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Automation.SettleDelaySeconds) * time.Second
}

// JiraTimeout is the per-request timeout for tracker calls.
func (c *Config) JiraTimeout() time.Duration {
	return time.Duration(c.Jira.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func envOverride(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func envOverrideInt(target *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}
