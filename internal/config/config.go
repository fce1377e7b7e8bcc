// Package config provides configuration loading and management for the sync engine.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/civicportal/portal-sync/internal/model"
	"github.com/civicportal/portal-sync/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the engine.
const EnvPrefix = "PORTAL_SYNC"

// Engine defaults, matching the values the sync service has always shipped with.
const (
	DefaultPollInterval      = 5 * time.Minute
	DefaultMaxRetries        = 3
	DefaultBatchSize         = 50
	DefaultTenantConcurrency = 4
	DefaultFetchConcurrency  = 4
	DefaultFetchTimeout      = 30 * time.Second
	DefaultDBTimeout         = 10 * time.Second
	DefaultMaxContentBytes   = 10 << 20
	DefaultOutputRoot        = "./output"
	DefaultTemplate          = "documents"
	DefaultServerAddress     = ":8080"
	DefaultRequestsPerSecond = 5.0
)

const (
	// StorageTypeDatabase stores state in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeMemory keeps state in process memory
	StorageTypeMemory = "memory"
)

// Templates lists the artifact template types a folder may use.
var Templates = []string{"documents", "staff", "events", "notices", "jobs", "boards", "news", "table"}

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Engine    EngineConfig      `yaml:"engine"`
	Storage   StorageConfig     `yaml:"storage"`
	Database  *DatabaseConfig   `yaml:"database,omitempty"`
	Sources   SourcesConfig     `yaml:"sources"`
	Server    ServerConfig      `yaml:"server"`
	Auth      *AuthConfig       `yaml:"auth,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	// Tenants are seeded into the store at startup. They are the only
	// tenants known to the engine when the memory store is used.
	Tenants []TenantConfig `yaml:"tenants,omitempty"`
}

// EngineConfig holds the tunables of the polling engine
type EngineConfig struct {
	// PollInterval is the time between two cycles (e.g. "5m")
	PollInterval string `yaml:"pollInterval,omitempty"`

	// MaxRetries is the number of consecutive failed attempts after which
	// a record stays in error without further attempts
	MaxRetries *int `yaml:"maxRetries,omitempty"`

	// BatchSize caps the number of new or changed items processed per folder per cycle
	BatchSize int `yaml:"batchSize,omitempty"`

	// TenantConcurrency is the size of the tenant worker pool
	TenantConcurrency int `yaml:"tenantConcurrency,omitempty"`

	// FetchConcurrency bounds parallel fetch and parse within one folder
	FetchConcurrency int `yaml:"fetchConcurrency,omitempty"`

	// FetchTimeout is the request-level timeout of source calls
	FetchTimeout string `yaml:"fetchTimeout,omitempty"`

	// DBTimeout is the request-level timeout of store calls
	DBTimeout string `yaml:"dbTimeout,omitempty"`

	// MaxContentBytes caps the size of downloaded item content
	MaxContentBytes int64 `yaml:"maxContentBytes,omitempty"`

	// OutputRoot is the base directory of relative tenant output paths
	OutputRoot string `yaml:"outputRoot,omitempty"`
}

// StorageConfig selects the state backend
type StorageConfig struct {
	Type string `yaml:"type,omitempty"`
}

// SourcesConfig holds provider-level connector settings
type SourcesConfig struct {
	Google *GoogleConfig `yaml:"google,omitempty"`
	Local  *LocalConfig  `yaml:"local,omitempty"`
	Git    *GitConfig    `yaml:"git,omitempty"`
}

// GoogleConfig defines settings shared by the Drive and Sheets connectors
type GoogleConfig struct {
	// CredentialsFile is the default service account file for tenants without their own
	CredentialsFile string `yaml:"credentialsFile,omitempty"`

	// RequestsPerSecond throttles calls to the Google APIs per connector
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`

	// Endpoint overrides the API base URL, used against emulators and in tests
	Endpoint string `yaml:"endpoint,omitempty"`
}

// LocalConfig defines the local directory connector settings
type LocalConfig struct {
	// Root is the directory that local folder container IDs are resolved against
	Root string `yaml:"root"`
}

// GitConfig defines the git repository connector settings. Folder container IDs
// are directory paths inside the repository.
type GitConfig struct {
	// Repository is the URL of the repository to clone
	Repository string `yaml:"repository"`

	// Branch, Tag and Commit select the checked out revision; at most one may be set
	Branch string `yaml:"branch,omitempty"`
	Tag    string `yaml:"tag,omitempty"`
	Commit string `yaml:"commit,omitempty"`

	// Auth enables HTTP basic authentication
	Auth *GitAuthConfig `yaml:"auth,omitempty"`
}

// GitAuthConfig holds HTTP basic credentials for a git repository
type GitAuthConfig struct {
	Username string `yaml:"username"`

	// PasswordFile is the path to a file containing the password or access token
	PasswordFile string `yaml:"passwordFile"`
}

// GetPassword reads the password file, trimming surrounding whitespace
func (a *GitAuthConfig) GetPassword() (string, error) {
	data, err := os.ReadFile(filepath.Clean(a.PasswordFile))
	if err != nil {
		return "", fmt.Errorf("failed to read git password from file %s: %w", a.PasswordFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ServerConfig defines the admin HTTP server settings
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// AuthMode selects how admin API requests are authenticated
type AuthMode string

const (
	// AuthModeAnonymous serves every request without credentials
	AuthModeAnonymous AuthMode = "anonymous"

	// AuthModeJWT requires a bearer token signed by one of the configured keys
	AuthModeJWT AuthMode = "jwt"
)

// JWTAlgorithms lists the accepted token signing algorithms
var JWTAlgorithms = []string{
	"HS256", "HS384", "HS512",
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// AuthConfig defines authentication of the admin API
type AuthConfig struct {
	Mode AuthMode `yaml:"mode,omitempty"`

	// Realm is reported in WWW-Authenticate challenges
	Realm string `yaml:"realm,omitempty"`

	// PublicPaths are served without authentication in addition to the health,
	// readiness and version endpoints
	PublicPaths []string `yaml:"publicPaths,omitempty"`

	JWT *JWTConfig `yaml:"jwt,omitempty"`
}

// JWTConfig holds the token verification settings of the jwt mode
type JWTConfig struct {
	// Issuer and Audience are checked against the iss and aud claims when set
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`

	// Keys are tried in order until one verifies the token
	Keys []JWTKeyConfig `yaml:"keys"`
}

// JWTKeyConfig is one verification key
type JWTKeyConfig struct {
	Name      string `yaml:"name"`
	Algorithm string `yaml:"algorithm"`

	// KeyFile holds the shared secret for HS algorithms or a PEM public key otherwise
	KeyFile string `yaml:"keyFile"`
}

// ReadKey reads the key material from KeyFile
func (k *JWTKeyConfig) ReadKey() ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(k.KeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s from file %s: %w", k.Name, k.KeyFile, err)
	}
	return data, nil
}

// GetMode returns the auth mode, defaulting to anonymous
func (a *AuthConfig) GetMode() AuthMode {
	if a == nil || a.Mode == "" {
		return AuthModeAnonymous
	}
	return a.Mode
}

func (a *AuthConfig) validate() error {
	switch a.GetMode() {
	case AuthModeAnonymous:
		return nil
	case AuthModeJWT:
	default:
		return fmt.Errorf("unsupported mode %q", a.Mode)
	}

	if a.JWT == nil || len(a.JWT.Keys) == 0 {
		return fmt.Errorf("jwt.keys must contain at least one key in jwt mode")
	}
	names := make(map[string]bool)
	for i, key := range a.JWT.Keys {
		switch {
		case key.Name == "":
			return fmt.Errorf("jwt.keys[%d]: name is required", i)
		case names[key.Name]:
			return fmt.Errorf("jwt.keys[%d]: duplicate key name '%s'", i, key.Name)
		case !slices.Contains(JWTAlgorithms, key.Algorithm):
			return fmt.Errorf("jwt.keys[%d]: unsupported algorithm %q", i, key.Algorithm)
		case key.KeyFile == "":
			return fmt.Errorf("jwt.keys[%d]: keyFile is required", i)
		}
		names[key.Name] = true
	}
	for _, p := range a.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("public path %q must start with '/'", p)
		}
	}
	return nil
}

// TenantConfig describes a tenant and its folders
type TenantConfig struct {
	Key             string         `yaml:"key"`
	Name            string         `yaml:"name"`
	OutputPath      string         `yaml:"outputPath"`
	Enabled         *bool          `yaml:"enabled,omitempty"`
	CredentialsFile string         `yaml:"credentialsFile,omitempty"`
	Folders         []FolderConfig `yaml:"folders,omitempty"`
}

// FolderConfig describes one folder of a tenant
type FolderConfig struct {
	Name        string        `yaml:"name"`
	Source      string        `yaml:"source"`
	ContainerID string        `yaml:"containerId"`
	Template    string        `yaml:"template,omitempty"`
	Enabled     *bool         `yaml:"enabled,omitempty"`
	Filter      *FilterConfig `yaml:"filter,omitempty"`
}

// FilterConfig selects the listed items of a folder that are synchronized
type FilterConfig struct {
	Names *NameFilterConfig `yaml:"names,omitempty"`
	Kinds *KindFilterConfig `yaml:"kinds,omitempty"`
}

// NameFilterConfig holds glob patterns matched against item names
type NameFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// KindFilterConfig holds item kinds matched exactly
type KindFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// IsEnabled returns whether the tenant is enabled, defaulting to true
func (t *TenantConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// IsEnabled returns whether the folder is enabled, defaulting to true
func (f *FolderConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// FolderFilter returns the filter rules of a tenant folder, or nil when the folder
// has none or is not part of this configuration
func (c *Config) FolderFilter(tenantKey, folderName string) *FilterConfig {
	for i := range c.Tenants {
		if c.Tenants[i].Key != tenantKey {
			continue
		}
		for j := range c.Tenants[i].Folders {
			if c.Tenants[i].Folders[j].Name == folderName {
				return c.Tenants[i].Folders[j].Filter
			}
		}
	}
	return nil
}

// GetTemplate returns the folder template, using "documents" if not specified
func (f *FolderConfig) GetTemplate() string {
	if f.Template == "" {
		return DefaultTemplate
	}
	return f.Template
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the minimum number of connections kept in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// DynamicAuth replaces the static password with a token generated per connection
	DynamicAuth *DynamicAuthConfig `yaml:"dynamicAuth,omitempty"`
}

// DynamicAuthConfig selects a dynamic database authentication method
type DynamicAuthConfig struct {
	AWSRDSIAM *AWSRDSIAMConfig `yaml:"awsRdsIam,omitempty"`
}

// AWSRDSIAMConfig configures AWS RDS IAM authentication
type AWSRDSIAMConfig struct {
	// Region is the AWS region of the database, or "detect" to read it from instance metadata
	Region string `yaml:"region"`
}

// UsesAWSRDSIAM reports whether connections authenticate with AWS RDS IAM tokens
func (d *DatabaseConfig) UsesAWSRDSIAM() bool {
	return d.DynamicAuth != nil && d.DynamicAuth.AWSRDSIAM != nil
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from PORTAL_SYNC_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	return d.ConnectionStringWithPassword(password), nil
}

// ConnectionStringWithPassword builds a PostgreSQL connection string using the given password
func (d *DatabaseConfig) ConnectionStringWithPassword(password string) string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes, schema-checks and validates a YAML configuration document.
// Environment overrides are applied before validation.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	applyEnvOverrides(&config)

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides applies PORTAL_SYNC_* environment variables on top of the file values
func applyEnvOverrides(c *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if s := v.GetString("POLL_INTERVAL"); s != "" {
		c.Engine.PollInterval = s
	}
	if v.IsSet("MAX_RETRIES") {
		n := v.GetInt("MAX_RETRIES")
		c.Engine.MaxRetries = &n
	}
	if v.IsSet("BATCH_SIZE") {
		c.Engine.BatchSize = v.GetInt("BATCH_SIZE")
	}
	if s := v.GetString("OUTPUT_ROOT"); s != "" {
		c.Engine.OutputRoot = s
	}
}

// GetStorageType returns the storage type, using "memory" when no database is configured
func (c *Config) GetStorageType() string {
	if c.Storage.Type != "" {
		return c.Storage.Type
	}
	if c.Database != nil {
		return StorageTypeDatabase
	}
	return StorageTypeMemory
}

// GetServerAddress returns the admin server address, using ":8080" if not specified
func (c *Config) GetServerAddress() string {
	if c.Server.Address == "" {
		return DefaultServerAddress
	}
	return c.Server.Address
}

// GetPollInterval returns the cycle interval, using 5m if not specified
func (e *EngineConfig) GetPollInterval() time.Duration {
	return durationOr(e.PollInterval, DefaultPollInterval)
}

// GetMaxRetries returns the retry bound, using 3 if not specified
func (e *EngineConfig) GetMaxRetries() int {
	if e.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *e.MaxRetries
}

// GetBatchSize returns the per-folder batch size, using 50 if not specified
func (e *EngineConfig) GetBatchSize() int {
	if e.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return e.BatchSize
}

// GetTenantConcurrency returns the tenant worker pool size
func (e *EngineConfig) GetTenantConcurrency() int {
	if e.TenantConcurrency <= 0 {
		return DefaultTenantConcurrency
	}
	return e.TenantConcurrency
}

// GetFetchConcurrency returns the per-folder fetch concurrency
func (e *EngineConfig) GetFetchConcurrency() int {
	if e.FetchConcurrency <= 0 {
		return DefaultFetchConcurrency
	}
	return e.FetchConcurrency
}

// GetFetchTimeout returns the request-level timeout of source calls
func (e *EngineConfig) GetFetchTimeout() time.Duration {
	return durationOr(e.FetchTimeout, DefaultFetchTimeout)
}

// GetDBTimeout returns the request-level timeout of store calls
func (e *EngineConfig) GetDBTimeout() time.Duration {
	return durationOr(e.DBTimeout, DefaultDBTimeout)
}

// GetMaxContentBytes returns the download cap
func (e *EngineConfig) GetMaxContentBytes() int64 {
	if e.MaxContentBytes <= 0 {
		return DefaultMaxContentBytes
	}
	return e.MaxContentBytes
}

// GetOutputRoot returns the artifact output root
func (e *EngineConfig) GetOutputRoot() string {
	if e.OutputRoot == "" {
		return DefaultOutputRoot
	}
	return e.OutputRoot
}

// GetRequestsPerSecond returns the Google API throttle rate
func (g *GoogleConfig) GetRequestsPerSecond() float64 {
	if g == nil || g.RequestsPerSecond <= 0 {
		return DefaultRequestsPerSecond
	}
	return g.RequestsPerSecond
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if err := c.Engine.validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.GetStorageType() {
	case StorageTypeDatabase:
		if c.Database == nil {
			errs = append(errs, fmt.Errorf("storage: database section is required for storage type %q", StorageTypeDatabase))
		} else if c.Database.UsesAWSRDSIAM() && c.Database.DynamicAuth.AWSRDSIAM.Region == "" {
			errs = append(errs, fmt.Errorf("database: dynamicAuth.awsRdsIam.region is required"))
		}
	case StorageTypeMemory:
	default:
		errs = append(errs, fmt.Errorf("storage: unsupported type %q", c.Storage.Type))
	}

	if err := c.Sources.Git.validate(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Auth.validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	tenantKeys := make(map[string]bool)
	for i := range c.Tenants {
		tenant := &c.Tenants[i]
		if tenant.Key == "" {
			errs = append(errs, fmt.Errorf("tenant[%d]: key is required", i))
			continue
		}
		if tenantKeys[tenant.Key] {
			errs = append(errs, fmt.Errorf("tenant[%d]: duplicate tenant key '%s'", i, tenant.Key))
			continue
		}
		tenantKeys[tenant.Key] = true

		if err := c.validateTenant(tenant, i); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *EngineConfig) validate() error {
	for name, value := range map[string]string{
		"pollInterval": e.PollInterval,
		"fetchTimeout": e.FetchTimeout,
		"dbTimeout":    e.DBTimeout,
	} {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("engine: %s must be a valid duration (e.g., '30s', '5m'): %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("engine: %s must be positive", name)
		}
	}
	if e.MaxRetries != nil && *e.MaxRetries < 0 {
		return fmt.Errorf("engine: maxRetries must not be negative")
	}
	return nil
}

// validateTenant validates a single tenant configuration
func (c *Config) validateTenant(tenant *TenantConfig, index int) error {
	prefix := fmt.Sprintf("tenant[%d] (%s)", index, tenant.Key)

	if tenant.OutputPath == "" {
		return fmt.Errorf("%s: outputPath is required", prefix)
	}

	folderNames := make(map[string]bool)
	for j := range tenant.Folders {
		folder := &tenant.Folders[j]
		if folder.Name == "" {
			return fmt.Errorf("%s: folder[%d]: name is required", prefix, j)
		}
		if folderNames[folder.Name] {
			return fmt.Errorf("%s: folder[%d]: duplicate folder name '%s'", prefix, j, folder.Name)
		}
		folderNames[folder.Name] = true

		if err := c.validateFolder(folder, fmt.Sprintf("%s: folder[%d] (%s)", prefix, j, folder.Name)); err != nil {
			return err
		}
	}
	return nil
}

// validateFolder validates the static parts of a folder mapping. Missing container IDs
// are allowed here and reported at sync time so the folder is skipped, not the tenant.
func (c *Config) validateFolder(folder *FolderConfig, prefix string) error {
	if err := ValidateFolderName(folder.Name); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}

	switch folder.Source {
	case model.SourceDrive, model.SourceSheets:
	case model.SourceLocal:
		if c.Sources.Local == nil || c.Sources.Local.Root == "" {
			return fmt.Errorf("%s: sources.local.root is required for local folders", prefix)
		}
	case model.SourceGit:
		if c.Sources.Git == nil {
			return fmt.Errorf("%s: sources.git is required for git folders", prefix)
		}
	default:
		return fmt.Errorf("%s: unsupported source %q", prefix, folder.Source)
	}

	if !slices.Contains(Templates, folder.GetTemplate()) {
		return fmt.Errorf("%s: unsupported template %q", prefix, folder.Template)
	}

	if err := folder.Filter.validate(); err != nil {
		return fmt.Errorf("%s: filter: %w", prefix, err)
	}
	return nil
}

func (f *FilterConfig) validate() error {
	if f == nil {
		return nil
	}
	if f.Names != nil {
		for _, pattern := range slices.Concat(f.Names.Include, f.Names.Exclude) {
			if pattern == "" {
				return fmt.Errorf("name patterns must not be empty")
			}
			if _, err := glob.Compile(pattern); err != nil {
				return fmt.Errorf("invalid name pattern %q: %w", pattern, err)
			}
		}
	}
	if f.Kinds != nil {
		for _, kind := range slices.Concat(f.Kinds.Include, f.Kinds.Exclude) {
			if !model.Kind(kind).IsValid() {
				return fmt.Errorf("unknown item kind %q", kind)
			}
		}
	}
	return nil
}

func (g *GitConfig) validate() error {
	if g == nil {
		return nil
	}
	if g.Repository == "" {
		return fmt.Errorf("sources.git: repository is required")
	}

	refs := 0
	for _, ref := range []string{g.Branch, g.Tag, g.Commit} {
		if ref != "" {
			refs++
		}
	}
	if refs > 1 {
		return fmt.Errorf("sources.git: branch, tag and commit are mutually exclusive")
	}

	if g.Auth != nil && (g.Auth.Username == "" || g.Auth.PasswordFile == "") {
		return fmt.Errorf("sources.git: auth.username and auth.passwordFile must both be specified")
	}
	return nil
}

// ValidateFolderName ensures a folder name can be used as an artifact file name
func ValidateFolderName(name string) error {
	if name == "" {
		return fmt.Errorf("folder name is required")
	}
	if !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("folder name %q must be a plain file name", name)
	}
	return nil
}
