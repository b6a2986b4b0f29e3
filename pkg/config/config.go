package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config is the immutable input for one backup run. All sensitive values are
// secret references resolved at pod-start time, never literals.
type Config struct {
	Job      JobConfig      `yaml:"job"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Duration unmarshals yaml strings like "30m" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// JobConfig holds the Kubernetes Job settings for a run.
type JobConfig struct {
	Namespace       string    `yaml:"namespace"`
	Image           string    `yaml:"image"`
	ImagePullPolicy string    `yaml:"image_pull_policy"`
	ServiceAccount  string    `yaml:"service_account"`
	NamePrefix      string    `yaml:"name_prefix"`
	Timeout         Duration  `yaml:"timeout"`
	PollInterval    Duration  `yaml:"poll_interval"`
	TTLAfterFinish  int32     `yaml:"ttl_seconds_after_finished"`
	Resources       Resources `yaml:"resources"`
}

// Resources holds container resource requests and limits as quantity strings.
type Resources struct {
	Requests ResourceList `yaml:"requests"`
	Limits   ResourceList `yaml:"limits"`
}

// ResourceList holds CPU and memory quantities (e.g. "500m", "256Mi").
type ResourceList struct {
	CPU    string `yaml:"cpu"`
	Memory string `yaml:"memory"`
}

// DatabaseConfig holds the PostgreSQL connection settings passed to the
// backup container. The password is never part of this record.
type DatabaseConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Name      string `yaml:"name"`
	User      string `yaml:"user"`
	BackupAll bool   `yaml:"backup_all"`
}

// StorageConfig holds the S3 destination for the dump.
type StorageConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Profile   string `yaml:"profile"`
	Compress  bool   `yaml:"compress"`
	KeepLocal bool   `yaml:"keep_local"`
}

// SecretsConfig names the Kubernetes Secrets holding the sensitive values.
type SecretsConfig struct {
	Password  SecretRef `yaml:"password"`
	AccessKey SecretRef `yaml:"access_key"`
	SecretKey SecretRef `yaml:"secret_key"`
}

// SecretRef identifies one key inside a named Kubernetes Secret.
type SecretRef struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file and applies defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Job.Namespace == "" {
		c.Job.Namespace = "default"
	}
	if c.Job.ImagePullPolicy == "" {
		c.Job.ImagePullPolicy = "Always"
	}
	if c.Job.NamePrefix == "" {
		c.Job.NamePrefix = "pg-s3-backup"
	}
	if c.Job.Timeout == 0 {
		c.Job.Timeout = Duration(10 * time.Minute)
	}
	if c.Job.PollInterval == 0 {
		c.Job.PollInterval = Duration(5 * time.Second)
	}
	if c.Job.TTLAfterFinish == 0 {
		c.Job.TTLAfterFinish = 300
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
	if c.Storage.Profile == "" {
		c.Storage.Profile = "default"
	}
	if c.Secrets.Password.Name == "" {
		c.Secrets.Password.Name = "pg-password"
	}
	if c.Secrets.AccessKey.Name == "" {
		c.Secrets.AccessKey.Name = "aws-access-key"
	}
	if c.Secrets.SecretKey.Name == "" {
		c.Secrets.SecretKey.Name = "aws-secret-key"
	}
	for _, ref := range []*SecretRef{&c.Secrets.Password, &c.Secrets.AccessKey, &c.Secrets.SecretKey} {
		if ref.Key == "" {
			ref.Key = "value"
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Job.Image == "" {
		return fmt.Errorf("job image is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if !c.Database.BackupAll && c.Database.Name == "" {
		return fmt.Errorf("database name is required unless backup_all is set")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}

	if c.Job.Timeout <= 0 {
		return fmt.Errorf("job timeout must be greater than 0")
	}

	if c.Job.PollInterval <= 0 {
		return fmt.Errorf("job poll_interval must be greater than 0")
	}

	return nil
}
