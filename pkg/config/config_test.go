package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, "backups", cfg.Job.Namespace)
				assert.Equal(t, "regv2.gsingh.io/personal/pg-s3-backup:latest", cfg.Job.Image)
				assert.Equal(t, Duration(15*time.Minute), cfg.Job.Timeout)
				assert.Equal(t, "db.example.com", cfg.Database.Host)
				assert.Equal(t, "mydb", cfg.Database.Name)
				assert.Equal(t, "my-backups", cfg.Storage.Bucket)
				assert.Equal(t, "100m", cfg.Job.Resources.Requests.CPU)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	// Not set in the file, filled from documented defaults.
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "Always", cfg.Job.ImagePullPolicy)
	assert.Equal(t, "pg-s3-backup", cfg.Job.NamePrefix)
	assert.Equal(t, int32(300), cfg.Job.TTLAfterFinish)
	assert.Equal(t, "default", cfg.Storage.Profile)
	assert.Equal(t, "aws-access-key", cfg.Secrets.AccessKey.Name)
	assert.Equal(t, "value", cfg.Secrets.AccessKey.Key)

	// Set in the file, not overridden by defaults.
	assert.Equal(t, "eu-central-1", cfg.Storage.Region)
	assert.Equal(t, "password", cfg.Secrets.Password.Key)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Job: JobConfig{
				Image: "pg-s3-backup:latest",
			},
			Database: DatabaseConfig{
				Host: "db.example.com",
				Name: "mydb",
				User: "postgres",
			},
			Storage: StorageConfig{
				Bucket: "my-backups",
			},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing image",
			mutate:    func(c *Config) { c.Job.Image = "" },
			errString: "job image is required",
		},
		{
			name:      "missing host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "invalid port",
			mutate:    func(c *Config) { c.Database.Port = 70000 },
			errString: "invalid database port",
		},
		{
			name:      "missing user",
			mutate:    func(c *Config) { c.Database.User = "" },
			errString: "database user is required",
		},
		{
			name:      "missing database name",
			mutate:    func(c *Config) { c.Database.Name = "" },
			errString: "database name is required",
		},
		{
			name:   "missing name allowed with backup_all",
			mutate: func(c *Config) { c.Database.Name = ""; c.Database.BackupAll = true },
		},
		{
			name:      "missing bucket",
			mutate:    func(c *Config) { c.Storage.Bucket = "" },
			errString: "storage bucket is required",
		},
		{
			name:      "zero timeout",
			mutate:    func(c *Config) { c.Job.Timeout = 0 },
			errString: "job timeout must be greater than 0",
		},
		{
			name:      "zero poll interval",
			mutate:    func(c *Config) { c.Job.PollInterval = 0 },
			errString: "job poll_interval must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errString == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			}
		})
	}
}
