package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"tierstore/internal/models"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7380"
	DefaultDBFileName = ".tierstore.db"
	DefaultLogLevel   = "info"
	DefaultRegion     = "us-east-1"

	DefaultForceBatchSize = 100

	configFileName           = ".tierstore.toml"
	dataDirName              = ".tierstore"
	configDirEnvKey          = "TIERSTORE_CONFIG_DIR"
	trustProjectConfigEnvKey = "TIERSTORE_TRUST_PROJECT_CONFIG"
)

// StorageConfig selects the tier for new content and the local directories.
type StorageConfig struct {
	Location          string `toml:"location"`
	Tenant            string `toml:"tenant"`
	FilestoreDir      string `toml:"filestore_dir"`
	CacheDir          string `toml:"cache_dir"`
	S3Cache           bool   `toml:"s3_cache"`
	S3Delete          bool   `toml:"s3_delete"`
	DegradeReadErrors bool   `toml:"degrade_read_errors"`
	ForceBatchSize    int    `toml:"force_batch_size"`
}

// S3Config describes the S3-compatible endpoint.
type S3Config struct {
	EndpointURL     string `toml:"endpoint_url"`
	Region          string `toml:"region"`
	APIVersion      string `toml:"api_version"`
	UseSSL          bool   `toml:"use_ssl"`
	Verify          string `toml:"verify"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Bucket          string `toml:"bucket"`
}

// AdminConfig holds the bcrypt hash of the administrative token.
type AdminConfig struct {
	TokenHash string `toml:"token_hash"`
}

// Config defines runtime configuration for tierstore.
type Config struct {
	APIURL                   string        `toml:"api_url"`
	DBPath                   string        `toml:"db_path"`
	LogLevel                 string        `toml:"log_level"`
	Storage                  StorageConfig `toml:"storage"`
	S3                       S3Config      `toml:"s3"`
	Admin                    AdminConfig   `toml:"admin"`
	TrustedProjectConfigPath string        `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Location:       string(models.DefaultTier),
			S3Cache:        true,
			ForceBatchSize: DefaultForceBatchSize,
		},
		S3: S3Config{
			Region: DefaultRegion,
			UseSSL: true,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"storage.location",
	"storage.tenant",
	"storage.filestore_dir",
	"storage.cache_dir",
	"storage.s3_cache",
	"storage.s3_delete",
	"storage.degrade_read_errors",
	"storage.force_batch_size",
	"s3.endpoint_url",
	"s3.region",
	"s3.api_version",
	"s3.use_ssl",
	"s3.verify",
	"s3.access_key_id",
	"s3.secret_access_key",
	"s3.bucket",
	"admin.token_hash",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "storage.location":
		return c.Storage.Location, nil
	case "storage.tenant":
		return c.Storage.Tenant, nil
	case "storage.filestore_dir":
		return c.Storage.FilestoreDir, nil
	case "storage.cache_dir":
		return c.Storage.CacheDir, nil
	case "storage.s3_cache":
		return strconv.FormatBool(c.Storage.S3Cache), nil
	case "storage.s3_delete":
		return strconv.FormatBool(c.Storage.S3Delete), nil
	case "storage.degrade_read_errors":
		return strconv.FormatBool(c.Storage.DegradeReadErrors), nil
	case "storage.force_batch_size":
		return strconv.Itoa(c.Storage.ForceBatchSize), nil
	case "s3.endpoint_url":
		return c.S3.EndpointURL, nil
	case "s3.region":
		return c.S3.Region, nil
	case "s3.api_version":
		return c.S3.APIVersion, nil
	case "s3.use_ssl":
		return strconv.FormatBool(c.S3.UseSSL), nil
	case "s3.verify":
		return c.S3.Verify, nil
	case "s3.access_key_id":
		return c.S3.AccessKeyID, nil
	case "s3.secret_access_key":
		return c.S3.SecretAccessKey, nil
	case "s3.bucket":
		return c.S3.Bucket, nil
	case "admin.token_hash":
		return c.Admin.TokenHash, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	applyEnv(&cfg)
	cfg.normalize()

	return &cfg, nil
}

var envKeys = map[string]string{
	"TIERSTORE_API_URL":              "api_url",
	"TIERSTORE_DB":                   "db_path",
	"TIERSTORE_STORAGE_LOCATION":     "storage.location",
	"TIERSTORE_CACHE_DIR":            "storage.cache_dir",
	"TIERSTORE_S3_ENDPOINT_URL":      "s3.endpoint_url",
	"TIERSTORE_S3_REGION":            "s3.region",
	"TIERSTORE_S3_BUCKET":            "s3.bucket",
	"TIERSTORE_S3_ACCESS_KEY_ID":     "s3.access_key_id",
	"TIERSTORE_S3_SECRET_ACCESS_KEY": "s3.secret_access_key",
	"TIERSTORE_ADMIN_TOKEN_HASH":     "admin.token_hash",
}

func applyEnv(cfg *Config) {
	for envKey, key := range envKeys {
		raw := strings.TrimSpace(os.Getenv(envKey))
		if raw == "" {
			continue
		}
		_ = cfg.apply(key, raw)
	}
}

// apply sets one key on the in-memory config.
func (c *Config) apply(key, raw string) error {
	value, err := parseSetValue(key, raw)
	if err != nil {
		return err
	}
	switch key {
	case "api_url":
		c.APIURL = value.(string)
	case "db_path":
		c.DBPath = value.(string)
	case "log_level":
		c.LogLevel = value.(string)
	case "storage.location":
		c.Storage.Location = value.(string)
	case "storage.tenant":
		c.Storage.Tenant = value.(string)
	case "storage.filestore_dir":
		c.Storage.FilestoreDir = value.(string)
	case "storage.cache_dir":
		c.Storage.CacheDir = value.(string)
	case "storage.s3_cache":
		c.Storage.S3Cache = value.(bool)
	case "storage.s3_delete":
		c.Storage.S3Delete = value.(bool)
	case "storage.degrade_read_errors":
		c.Storage.DegradeReadErrors = value.(bool)
	case "storage.force_batch_size":
		c.Storage.ForceBatchSize = value.(int)
	case "s3.endpoint_url":
		c.S3.EndpointURL = value.(string)
	case "s3.region":
		c.S3.Region = value.(string)
	case "s3.api_version":
		c.S3.APIVersion = value.(string)
	case "s3.use_ssl":
		c.S3.UseSSL = value.(bool)
	case "s3.verify":
		c.S3.Verify = value.(string)
	case "s3.access_key_id":
		c.S3.AccessKeyID = value.(string)
	case "s3.secret_access_key":
		c.S3.SecretAccessKey = value.(string)
	case "s3.bucket":
		c.S3.Bucket = value.(string)
	case "admin.token_hash":
		c.Admin.TokenHash = value.(string)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "storage.force_batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.s3_cache", "storage.s3_delete", "storage.degrade_read_errors", "s3.use_ssl":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "storage.location":
		tier, err := models.ParseTier(value)
		if err != nil {
			return nil, err
		}
		return string(tier), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

// normalize fills directory and tenant defaults derived from the database path.
func (c *Config) normalize() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Storage.ForceBatchSize <= 0 {
		c.Storage.ForceBatchSize = DefaultForceBatchSize
	}
	if strings.TrimSpace(c.Storage.Location) == "" {
		c.Storage.Location = string(models.DefaultTier)
	}
	if c.DBPath == "" {
		return
	}
	dataDir := filepath.Join(filepath.Dir(c.DBPath), dataDirName)
	if strings.TrimSpace(c.Storage.FilestoreDir) == "" {
		c.Storage.FilestoreDir = filepath.Join(dataDir, "filestore")
	}
	if strings.TrimSpace(c.Storage.CacheDir) == "" {
		c.Storage.CacheDir = filepath.Join(dataDir, "s3_cache")
	}
	if strings.TrimSpace(c.Storage.Tenant) == "" {
		c.Storage.Tenant = tenantFromDBPath(c.DBPath)
	}
}

func tenantFromDBPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Trim(base, ".")
	if base == "" {
		return "default"
	}
	return base
}
