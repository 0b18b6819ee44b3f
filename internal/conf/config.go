// Package conf loads and saves the shared configuration file used by every
// cvat-tools subcommand.
package conf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

// DefaultConfigFile is read from the working directory when --config is not given
const DefaultConfigFile = "config.json"

// EnvPrefix prefixes environment overrides, e.g. CVAT_TOOLS_CVAT_API_KEY
const EnvPrefix = "CVAT_TOOLS"

// Settings is the complete configuration
type Settings struct {
	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty" mapstructure:"debug"`

	CVAT            CVATSettings         `json:"cvat" yaml:"cvat" mapstructure:"cvat"`
	CloudStorage    CloudStorageSettings `json:"cloud_storage" yaml:"cloud_storage" mapstructure:"cloud_storage"`
	CloudStorageOld CloudStorageSettings `json:"cloud_storage_old,omitzero" yaml:"cloud_storage_old,omitempty" mapstructure:"cloud_storage_old"`
	Files           FilesSettings        `json:"files" yaml:"files" mapstructure:"files"`
	Task            TaskSettings         `json:"task" yaml:"task" mapstructure:"task"`
	Assignees       []Assignee           `json:"assignees,omitempty" yaml:"assignees,omitempty" mapstructure:"assignees"`
	ExcludedTasks   []int                `json:"excluded_tasks,omitempty" yaml:"excluded_tasks,omitempty" mapstructure:"excluded_tasks"`
	S3              S3Settings           `json:"s3" yaml:"s3" mapstructure:"s3"`
	HTTP            HTTPSettings         `json:"http" yaml:"http" mapstructure:"http"`
	Output          OutputSettings       `json:"output" yaml:"output" mapstructure:"output"`
	Logging         logger.LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
	Store           StoreSettings        `json:"store" yaml:"store" mapstructure:"store"`
	Notify          NotifySettings       `json:"notify,omitzero" yaml:"notify,omitempty" mapstructure:"notify"`
	MQTT            MQTTSettings         `json:"mqtt,omitzero" yaml:"mqtt,omitempty" mapstructure:"mqtt"`
	Sentry          SentrySettings       `json:"sentry,omitzero" yaml:"sentry,omitempty" mapstructure:"sentry"`
	Metrics         MetricsSettings      `json:"metrics,omitzero" yaml:"metrics,omitempty" mapstructure:"metrics"`
	ConfigFileUsed  string               `json:"-" yaml:"-" mapstructure:"-"`
}

// CVATSettings identifies the CVAT server and organization
type CVATSettings struct {
	URL        string `json:"url" yaml:"url" mapstructure:"url"`
	APIKey     string `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	APIKeyFile string `json:"api_key_file,omitempty" yaml:"api_key_file,omitempty" mapstructure:"api_key_file"`
	Org        string `json:"org" yaml:"org" mapstructure:"org"`
}

// CloudStorageSettings names a CVAT cloud storage
type CloudStorageSettings struct {
	ID   int    `json:"id" yaml:"id" mapstructure:"id"`
	Name string `json:"name" yaml:"name" mapstructure:"name"`
}

// FilesSettings locates local inputs
type FilesSettings struct {
	HumanSignalJSON string `json:"humansignal_json" yaml:"humansignal_json" mapstructure:"humansignal_json"`
	ServerPrefix    string `json:"server_prefix" yaml:"server_prefix" mapstructure:"server_prefix"`
}

// Label is a CVAT label definition used when creating tasks
type Label struct {
	Name  string `json:"name" yaml:"name" mapstructure:"name"`
	Color string `json:"color,omitempty" yaml:"color,omitempty" mapstructure:"color"`
}

// TaskSettings controls task creation
type TaskSettings struct {
	Name              string  `json:"name" yaml:"name" mapstructure:"name"`
	Labels            []Label `json:"labels,omitempty" yaml:"labels,omitempty" mapstructure:"labels"`
	UseJobFileMapping *bool   `json:"use_job_file_mapping,omitempty" yaml:"use_job_file_mapping,omitempty" mapstructure:"use_job_file_mapping"`
	ImageQuality      int     `json:"image_quality" yaml:"image_quality" mapstructure:"image_quality"`
}

// Assignee is an annotator jobs may be assigned to
type Assignee struct {
	ID   int    `json:"id" yaml:"id" mapstructure:"id"`
	Name string `json:"name" yaml:"name" mapstructure:"name"`
}

// S3Settings configures the S3-compatible bucket behind the CVAT cloud storage
type S3Settings struct {
	BucketName      string `json:"bucket_name" yaml:"bucket_name" mapstructure:"bucket_name"`
	Prefix          string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	AccessKeyID     string `json:"aws_access_key_id" yaml:"aws_access_key_id" mapstructure:"aws_access_key_id"`
	SecretAccessKey string `json:"aws_secret_access_key" yaml:"aws_secret_access_key" mapstructure:"aws_secret_access_key"`
	SecretKeyFile   string `json:"aws_secret_access_key_file,omitempty" yaml:"aws_secret_access_key_file,omitempty" mapstructure:"aws_secret_access_key_file"`
	Region          string `json:"region" yaml:"region" mapstructure:"region"`
	AccountID       string `json:"account_id,omitempty" yaml:"account_id,omitempty" mapstructure:"account_id"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Insecure        bool   `json:"insecure,omitempty" yaml:"insecure,omitempty" mapstructure:"insecure"`
}

// ResolvedEndpoint returns the configured endpoint or the Cloudflare R2
// endpoint derived from the account id.
func (s S3Settings) ResolvedEndpoint() string {
	if s.Endpoint != "" {
		return strings.TrimPrefix(strings.TrimPrefix(s.Endpoint, "https://"), "http://")
	}
	if s.AccountID != "" {
		return s.AccountID + ".r2.cloudflarestorage.com"
	}
	return "s3.amazonaws.com"
}

// HTTPSettings tunes the CVAT client
type HTTPSettings struct {
	Timeout     time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	RateLimitMS int           `json:"rate_limit_ms" yaml:"rate_limit_ms" mapstructure:"rate_limit_ms"`
}

// OutputSettings locates report directories
type OutputSettings struct {
	LogsDir    string `json:"logs_dir" yaml:"logs_dir" mapstructure:"logs_dir"`
	ReportsDir string `json:"reports_dir" yaml:"reports_dir" mapstructure:"reports_dir"`
}

// StoreSettings selects where daily snapshots and import records live
type StoreSettings struct {
	Type   string         `json:"type" yaml:"type" mapstructure:"type"`
	SQLite SQLiteSettings `json:"sqlite,omitzero" yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	MySQL  MySQLSettings  `json:"mysql,omitzero" yaml:"mysql,omitempty" mapstructure:"mysql"`
}

// SQLiteSettings configures the SQLite store
type SQLiteSettings struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// MySQLSettings configures the MySQL store
type MySQLSettings struct {
	Host         string `json:"host" yaml:"host" mapstructure:"host"`
	Port         string `json:"port" yaml:"port" mapstructure:"port"`
	Username     string `json:"username" yaml:"username" mapstructure:"username"`
	Password     string `json:"password" yaml:"password" mapstructure:"password"`
	PasswordFile string `json:"password_file,omitempty" yaml:"password_file,omitempty" mapstructure:"password_file"`
	Database     string `json:"database" yaml:"database" mapstructure:"database"`
}

// NotifySettings lists shoutrrr service URLs that receive run summaries
type NotifySettings struct {
	URLs []string `json:"urls,omitempty" yaml:"urls,omitempty" mapstructure:"urls"`
}

// MQTTSettings configures the MQTT summary publisher
type MQTTSettings struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Broker       string `json:"broker" yaml:"broker" mapstructure:"broker"`
	Topic        string `json:"topic" yaml:"topic" mapstructure:"topic"`
	Username     string `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	Password     string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	PasswordFile string `json:"password_file,omitempty" yaml:"password_file,omitempty" mapstructure:"password_file"`
}

// SentrySettings enables error reporting
type SentrySettings struct {
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// MetricsSettings enables the Prometheus textfile written at the end of a run
type MetricsSettings struct {
	Textfile string `json:"textfile,omitempty" yaml:"textfile,omitempty" mapstructure:"textfile"`
}

// JobFileMapping reports whether tasks should be created with a job file
// mapping. The legacy migration and the new-data import differ in default.
func (s *Settings) JobFileMapping(defaultValue bool) bool {
	if s.Task.UseJobFileMapping != nil {
		return *s.Task.UseJobFileMapping
	}
	return defaultValue
}

// LegacyCloudStorage returns cloud_storage_old when configured, else cloud_storage
func (s *Settings) LegacyCloudStorage() CloudStorageSettings {
	if s.CloudStorageOld.ID != 0 {
		return s.CloudStorageOld
	}
	return s.CloudStorage
}

// IsExcluded reports whether a task id is in excluded_tasks
func (s *Settings) IsExcluded(taskID int) bool {
	for _, id := range s.ExcludedTasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// Load reads the configuration file and environment variables.
// A missing file is not an error: defaults and environment still apply,
// so that `setup` can run on a fresh checkout.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigFile
	}
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.ConfigFileUsed = path

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// Save writes settings to path as JSON, or YAML when the extension is .yaml/.yml.
// The file is created with 0600 permissions because it holds credentials.
func Save(path string, settings *Settings) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(settings); err != nil {
			return fmt.Errorf("error encoding yaml config: %w", err)
		}
		_ = enc.Close()
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return fmt.Errorf("error encoding json config: %w", err)
		}
		data = append(data, '\n')
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
