// Package config loads the root expedite configuration from config.toml,
// an optional config.<env>.toml overlay and EXPEDITE_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/internal/delivery"
	"github.com/JaimeStill/expedite/internal/documents"
	"github.com/JaimeStill/expedite/internal/graph"
	"github.com/JaimeStill/expedite/internal/lock"
	"github.com/JaimeStill/expedite/internal/metrics"
	"github.com/JaimeStill/expedite/internal/reports"
	"github.com/JaimeStill/expedite/pkg/database"
	"github.com/JaimeStill/expedite/pkg/pagination"
	"github.com/JaimeStill/expedite/pkg/schedule"
	"github.com/JaimeStill/expedite/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvExpediteEnv             = "EXPEDITE_ENV"
	EnvExpediteMode            = "EXPEDITE_MODE"
	EnvExpediteResponsible     = "EXPEDITE_RESPONSIBLE"
	EnvExpediteTestAddress     = "EXPEDITE_TEST_ADDRESS"
	EnvExpediteTemplatesFile   = "EXPEDITE_TEMPLATES_FILE"
	EnvExpediteWorkDir         = "EXPEDITE_WORK_DIR"
	EnvExpediteCallTimeout     = "EXPEDITE_CALL_TIMEOUT"
	EnvExpediteDeliveryTimeout = "EXPEDITE_DELIVERY_TIMEOUT"
	EnvExpediteShutdownTimeout = "EXPEDITE_SHUTDOWN_TIMEOUT"
	EnvExpediteVersion         = "EXPEDITE_VERSION"
)

const (
	ModeProduction = "prod"
	ModeQA         = "qa"
)

var scheduleEnv = &schedule.Env{
	Timezone: "EXPEDITE_SCHEDULE_TIMEZONE",
}

var lockEnv = &lock.Env{
	Backend:        "EXPEDITE_LOCK_BACKEND",
	Staleness:      "EXPEDITE_LOCK_STALENESS",
	AcquireTimeout: "EXPEDITE_LOCK_ACQUIRE_TIMEOUT",
	ReleaseTimeout: "EXPEDITE_LOCK_RELEASE_TIMEOUT",
	RedisAddr:      "EXPEDITE_LOCK_REDIS_ADDR",
	RedisPassword:  "EXPEDITE_LOCK_REDIS_PASSWORD",
	RedisDB:        "EXPEDITE_LOCK_REDIS_DB",
}

var databaseEnv = &database.Env{
	URL:             "EXPEDITE_DB_URL",
	Host:            "EXPEDITE_DB_HOST",
	Port:            "EXPEDITE_DB_PORT",
	Name:            "EXPEDITE_DB_NAME",
	User:            "EXPEDITE_DB_USER",
	Password:        "EXPEDITE_DB_PASSWORD",
	SSLMode:         "EXPEDITE_DB_SSL_MODE",
	MaxOpenConns:    "EXPEDITE_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "EXPEDITE_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "EXPEDITE_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "EXPEDITE_DB_CONN_TIMEOUT",
	ApplicationName: "EXPEDITE_DB_APPLICATION_NAME",
}

var paginationEnv = &pagination.Env{
	DefaultPageSize: "EXPEDITE_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "EXPEDITE_PAGINATION_MAX_PAGE_SIZE",
}

var storageEnv = &storage.Env{
	ContainerName:    "EXPEDITE_STORAGE_CONTAINER_NAME",
	ConnectionString: "EXPEDITE_STORAGE_CONNECTION_STRING",
	Prefix:           "EXPEDITE_STORAGE_PREFIX",
	LinkExpiry:       "EXPEDITE_STORAGE_LINK_EXPIRY",
}

var casesEnv = &cases.Env{
	BaseURL:      "EXPEDITE_CASES_BASE_URL",
	TenantID:     "EXPEDITE_CASES_TENANT_ID",
	ClientID:     "EXPEDITE_CASES_CLIENT_ID",
	ClientSecret: "EXPEDITE_CASES_CLIENT_SECRET",
	PageSize:     "EXPEDITE_CASES_PAGE_SIZE",
	Timeout:      "EXPEDITE_CASES_TIMEOUT",
}

var documentsEnv = &documents.Env{
	BaseURL:     "EXPEDITE_DOCUMENTS_BASE_URL",
	Username:    "EXPEDITE_DOCUMENTS_USERNAME",
	Password:    "EXPEDITE_DOCUMENTS_PASSWORD",
	FileCabinet: "EXPEDITE_DOCUMENTS_FILE_CABINET",
	Timeout:     "EXPEDITE_DOCUMENTS_TIMEOUT",
}

var graphEnv = &graph.Env{
	TenantID:     "EXPEDITE_GRAPH_TENANT_ID",
	ClientID:     "EXPEDITE_GRAPH_CLIENT_ID",
	ClientSecret: "EXPEDITE_GRAPH_CLIENT_SECRET",
	Sender:       "EXPEDITE_GRAPH_SENDER",
	DriveUser:    "EXPEDITE_GRAPH_DRIVE_USER",
}

var deliveryEnv = &delivery.Env{
	Drive:     "EXPEDITE_DELIVERY_DRIVE",
	ShareRole: "EXPEDITE_DELIVERY_SHARE_ROLE",
}

var reportEnv = &reports.Env{
	AssistantCode: "EXPEDITE_REPORT_ASSISTANT_CODE",
	NetworkUser:   "EXPEDITE_REPORT_NETWORK_USER",
	Station:       "EXPEDITE_REPORT_STATION",
	Recipients:    "EXPEDITE_REPORT_RECIPIENTS",
	Archive:       "EXPEDITE_REPORT_ARCHIVE",
}

var metricsEnv = &metrics.Env{
	PushgatewayURL: "EXPEDITE_METRICS_PUSHGATEWAY_URL",
	Job:            "EXPEDITE_METRICS_JOB",
}

// Config is the root configuration for expedite.
type Config struct {
	Mode            string `toml:"mode"`
	Responsible     string `toml:"responsible"`
	TestAddress     string `toml:"test_address"`
	TemplatesFile   string `toml:"templates_file"`
	WorkDir         string `toml:"work_dir"`
	CallTimeout     string `toml:"call_timeout"`
	DeliveryTimeout string `toml:"delivery_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	Version         string `toml:"version"`

	Logging    LoggingConfig     `toml:"logging"`
	Schedule   schedule.Config   `toml:"schedule"`
	Lock       lock.Config       `toml:"lock"`
	Database   database.Config   `toml:"database"`
	Pagination pagination.Config `toml:"pagination"`
	Storage    storage.Config    `toml:"storage"`
	Cases      cases.Config      `toml:"cases"`
	Documents  documents.Config  `toml:"documents"`
	Graph      graph.Config      `toml:"graph"`
	Delivery   delivery.Config   `toml:"delivery"`
	Variants   VariantsConfig    `toml:"variants"`
	Report     reports.Config    `toml:"report"`
	Metrics    metrics.Config    `toml:"metrics"`
}

// Env returns the EXPEDITE_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvExpediteEnv); env != "" {
		return env
	}
	return "local"
}

// Production reports whether recipients are real case contacts.
func (c *Config) Production() bool {
	return c.Mode == ModeProduction
}

// Redirect returns the address that replaces every recipient outside
// production, or "" in production.
func (c *Config) Redirect() string {
	if c.Production() {
		return ""
	}
	return c.TestAddress
}

// CallTimeoutDuration returns CallTimeout as a time.Duration.
func (c *Config) CallTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CallTimeout)
	return d
}

// DeliveryTimeoutDuration returns DeliveryTimeout as a time.Duration.
func (c *Config) DeliveryTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.DeliveryTimeout)
	return d
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// NeedsStorage reports whether any component uses blob storage.
func (c *Config) NeedsStorage() bool {
	return c.Delivery.Drive == delivery.DriveBlob || c.Report.Archive
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	return LoadFile(BaseConfigFile)
}

// LoadFile is Load with an explicit base file. The overlay is resolved next
// to it.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(path); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(o)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Parse decodes TOML data without finalizing it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	merge := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	merge(&c.Mode, overlay.Mode)
	merge(&c.Responsible, overlay.Responsible)
	merge(&c.TestAddress, overlay.TestAddress)
	merge(&c.TemplatesFile, overlay.TemplatesFile)
	merge(&c.WorkDir, overlay.WorkDir)
	merge(&c.CallTimeout, overlay.CallTimeout)
	merge(&c.DeliveryTimeout, overlay.DeliveryTimeout)
	merge(&c.ShutdownTimeout, overlay.ShutdownTimeout)
	merge(&c.Version, overlay.Version)

	c.Logging.Merge(&overlay.Logging)
	c.Schedule.Merge(&overlay.Schedule)
	c.Lock.Merge(&overlay.Lock)
	c.Database.Merge(&overlay.Database)
	c.Pagination.Merge(&overlay.Pagination)
	c.Storage.Merge(&overlay.Storage)
	c.Cases.Merge(&overlay.Cases)
	c.Documents.Merge(&overlay.Documents)
	c.Graph.Merge(&overlay.Graph)
	c.Delivery.Merge(&overlay.Delivery)
	c.Variants.Merge(&overlay.Variants)
	c.Report.Merge(&overlay.Report)
	c.Metrics.Merge(&overlay.Metrics)
}

// Finalize applies defaults, environment overrides and validation to the
// root and every section. Storage is finalized only when NeedsStorage.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}

	sections := []struct {
		name     string
		finalize func() error
	}{
		{"logging", c.Logging.Finalize},
		{"schedule", func() error { return c.Schedule.Finalize(scheduleEnv) }},
		{"lock", func() error { return c.Lock.Finalize(lockEnv) }},
		{"database", func() error { return c.Database.Finalize(databaseEnv) }},
		{"pagination", func() error { return c.Pagination.Finalize(paginationEnv) }},
		{"cases", func() error { return c.Cases.Finalize(casesEnv) }},
		{"documents", func() error { return c.Documents.Finalize(documentsEnv) }},
		{"graph", func() error { return c.Graph.Finalize(graphEnv) }},
		{"delivery", func() error { return c.Delivery.Finalize(deliveryEnv) }},
		{"variants", c.Variants.Finalize},
		{"report", func() error { return c.Report.Finalize(reportEnv) }},
		{"metrics", func() error { return c.Metrics.Finalize(metricsEnv) }},
	}
	for _, s := range sections {
		if err := s.finalize(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	if c.NeedsStorage() {
		if err := c.Storage.Finalize(storageEnv); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.Mode == "" {
		c.Mode = ModeProduction
	}
	if c.TemplatesFile == "" {
		c.TemplatesFile = "templates.yaml"
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	if c.CallTimeout == "" {
		c.CallTimeout = "60s"
	}
	if c.DeliveryTimeout == "" {
		c.DeliveryTimeout = "10m"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	set := func(dst *string, name string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	set(&c.Mode, EnvExpediteMode)
	set(&c.Responsible, EnvExpediteResponsible)
	set(&c.TestAddress, EnvExpediteTestAddress)
	set(&c.TemplatesFile, EnvExpediteTemplatesFile)
	set(&c.WorkDir, EnvExpediteWorkDir)
	set(&c.CallTimeout, EnvExpediteCallTimeout)
	set(&c.DeliveryTimeout, EnvExpediteDeliveryTimeout)
	set(&c.ShutdownTimeout, EnvExpediteShutdownTimeout)
	set(&c.Version, EnvExpediteVersion)
}

func (c *Config) validate() error {
	// Anything other than qa runs against real recipients.
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode != ModeQA {
		c.Mode = ModeProduction
	}

	if strings.TrimSpace(c.Responsible) == "" {
		return fmt.Errorf("responsible required")
	}
	if c.Mode == ModeQA && strings.TrimSpace(c.TestAddress) == "" {
		return fmt.Errorf("test_address required in qa mode")
	}
	for name, v := range map[string]string{
		"call_timeout":     c.CallTimeout,
		"delivery_timeout": c.DeliveryTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func overlayPath(base string) string {
	if env := os.Getenv(EnvExpediteEnv); env != "" {
		path := filepath.Join(filepath.Dir(base), fmt.Sprintf(OverlayConfigPattern, env))
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
