package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/goccy/go-json"
	"github.com/openmined/modsync/internal/checksum"
	"github.com/openmined/modsync/internal/utils"
	"github.com/spf13/viper"
)

const (
	DefaultFileName = "config.json"
	EnvPrefix       = "MODSYNC"

	placeholderAccessKey = "YOUR_ACCESS_KEY"
	placeholderSecretKey = "YOUR_SECRET_KEY"
)

var (
	ErrConfigMissing = errors.New("config missing")
	ErrConfigInvalid = errors.New("config invalid")
)

type Config struct {
	Endpoint    string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey   string `json:"access_key" mapstructure:"access_key"`
	SecretKey   string `json:"secret_key" mapstructure:"secret_key"`
	Bucket      string `json:"bucket" mapstructure:"bucket"`
	Region      string `json:"region" mapstructure:"region"`
	DownloadDir string `json:"download_dir" mapstructure:"download_dir"`

	// optional, defaulted on load
	Checksum    string `json:"checksum,omitempty" mapstructure:"checksum"`
	ManifestKey string `json:"manifest_key,omitempty" mapstructure:"manifest_key"`
	FilesPrefix string `json:"files_prefix,omitempty" mapstructure:"files_prefix"`

	Path string `json:"-" mapstructure:"-"`
}

// Template is written when no config exists yet. The credentials are
// placeholders that Validate rejects, so a run never starts with them.
func Template() *Config {
	return &Config{
		Endpoint:    "http://127.0.0.1:9000",
		AccessKey:   placeholderAccessKey,
		SecretKey:   placeholderSecretKey,
		Bucket:      "modpack",
		Region:      "us-east-1",
		DownloadDir: "./modpack",
	}
}

// WriteTemplate creates a template config at path. An existing file is never replaced.
func WriteTemplate(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(Template(), "", "  ")
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return err
	}
	return file.Close()
}

// Load reads the config at path through v, so env vars (MODSYNC_*) and any flags
// bound on v take precedence over the file. A missing file is replaced by a
// template and reported as ErrConfigMissing.
func Load(path string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if !utils.FileExists(path) {
		if err := WriteTemplate(path); err != nil {
			return nil, fmt.Errorf("%w: %s: write template: %w", ErrConfigMissing, path, err)
		}
		return nil, fmt.Errorf("%w: a template was generated at %s, fill it in and run again", ErrConfigMissing, path)
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("checksum", checksum.Default)
	v.SetDefault("manifest_key", "manifest.json")
	v.SetDefault("files_prefix", "files/")
	// register required keys so env overrides apply even when the file omits them
	for _, key := range []string{"endpoint", "access_key", "secret_key", "bucket", "region", "download_dir"} {
		v.SetDefault(key, "")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfigInvalid, path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrConfigInvalid, path, err)
	}
	cfg.Path = path

	return &cfg, nil
}

// Validate checks every required field and resolves DownloadDir to an absolute path.
func (c *Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"endpoint", c.Endpoint},
		{"access_key", c.AccessKey},
		{"secret_key", c.SecretKey},
		{"bucket", c.Bucket},
		{"region", c.Region},
		{"download_dir", c.DownloadDir},
	}
	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("%w: %s is required", ErrConfigInvalid, field.key)
		}
	}

	if c.AccessKey == placeholderAccessKey || c.SecretKey == placeholderSecretKey {
		return fmt.Errorf("%w: access_key and secret_key still hold template placeholders in %s", ErrConfigInvalid, c.Path)
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint %q must be an http(s) url", ErrConfigInvalid, c.Endpoint)
	}

	if _, err := checksum.New(c.Checksum); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	dir, err := utils.ResolvePath(c.DownloadDir)
	if err != nil {
		return fmt.Errorf("%w: download_dir: %w", ErrConfigInvalid, err)
	}
	c.DownloadDir = dir

	return nil
}
