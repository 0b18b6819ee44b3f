// Package runtime holds the state of one cvat-tools invocation: build
// metadata, the loaded settings and the services built from them.
package runtime

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cloudstore"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/metrics"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/notify"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/prompt"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/report"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/secrets"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/store"
)

// Context contains runtime metadata that is not user-configurable, plus
// the settings of the current run. Settings is nil until the root command
// has loaded the configuration file.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// RunID identifies this invocation in logs, metrics and notifications
	RunID   string
	Started time.Time

	ConfigPath string
	Settings   *conf.Settings

	In  io.Reader
	Out io.Writer

	Metrics  *metrics.Metrics
	Notifier *notify.Dispatcher

	mu      sync.Mutex
	fields  map[string]any
	secrets *secrets.Resolver
	client  *cvat.Client
	store   store.Interface
	prompt  *prompt.Prompter
}

// New returns a context for a fresh run on stdin/stdout
func New(version, buildDate string) *Context {
	return &Context{
		Version:   version,
		BuildDate: buildDate,
		RunID:     uuid.NewString(),
		Started:   time.Now(),
		In:        os.Stdin,
		Out:       os.Stdout,
		fields:    make(map[string]any),
		secrets:   secrets.OS(),
	}
}

// Init builds metrics and notification services from the loaded settings
func (c *Context) Init(settings *conf.Settings) error {
	c.Settings = settings
	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	c.Metrics = m

	notifySettings := *settings
	if settings.MQTT.Enabled {
		if notifySettings.MQTT.Password, err = c.secrets.Resolve(settings.MQTT.PasswordFile, settings.MQTT.Password); err != nil {
			return err
		}
	}
	if c.Notifier, err = notify.New(&notifySettings); err != nil {
		return err
	}
	return nil
}

// CVAT returns the CVAT client, building it on first use
func (c *Context) CVAT() (*cvat.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if err := c.Settings.RequireCVAT(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Component("runtime").
			Build()
	}
	key, err := c.secrets.Resolve(c.Settings.CVAT.APIKeyFile, c.Settings.CVAT.APIKey)
	if err != nil {
		return nil, err
	}
	client, err := cvat.NewClient(clientConfig(c.Settings, key), cvat.WithMetrics(c.Metrics))
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// clientConfig maps settings onto the client defaults. max_retries 0
// disables retrying.
func clientConfig(settings *conf.Settings, apiKey string) cvat.Config {
	cfg := cvat.DefaultConfig()
	cfg.BaseURL = settings.CVAT.URL
	cfg.APIKey = apiKey
	cfg.Org = settings.CVAT.Org
	if settings.HTTP.Timeout > 0 {
		cfg.Timeout = settings.HTTP.Timeout
	}
	if settings.HTTP.MaxRetries >= 0 {
		cfg.MaxRetries = settings.HTTP.MaxRetries
	}
	cfg.RateLimit = time.Duration(settings.HTTP.RateLimitMS) * time.Millisecond
	return cfg
}

// Bucket returns the configured cloud storage bucket
func (c *Context) Bucket() (cloudstore.Store, error) {
	if err := c.Settings.RequireS3(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Component("runtime").
			Build()
	}
	s3 := c.Settings.S3
	var err error
	if s3.AccessKeyID, err = secrets.Expand(s3.AccessKeyID); err != nil {
		return nil, err
	}
	if s3.SecretAccessKey, err = c.secrets.Resolve(s3.SecretKeyFile, s3.SecretAccessKey); err != nil {
		return nil, err
	}
	return cloudstore.NewBucket(s3)
}

// OptionalBucket returns the bucket, or nil when S3 is not configured
func (c *Context) OptionalBucket() (cloudstore.Store, error) {
	if c.Settings.S3.BucketName == "" {
		return nil, nil
	}
	return c.Bucket()
}

// Logs writes run artifacts such as status reports and mappings
func (c *Context) Logs() *report.Writer {
	return report.OS(c.Settings.Output.LogsDir)
}

// Reports writes daily and pre-annotation reports
func (c *Context) Reports() *report.Writer {
	return report.OS(c.Settings.Output.ReportsDir)
}

// Store opens the snapshot and record store, once per run
func (c *Context) Store() (store.Interface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return c.store, nil
	}
	settings := c.Settings.Store
	if settings.Type == "mysql" {
		password, err := c.secrets.Resolve(settings.MySQL.PasswordFile, settings.MySQL.Password)
		if err != nil {
			return nil, err
		}
		settings.MySQL.Password = password
	}
	st, err := store.Open(settings, c.Reports())
	if err != nil {
		return nil, err
	}
	c.store = st
	return st, nil
}

// Prompter reads interactive answers from In
func (c *Context) Prompter() *prompt.Prompter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompt == nil {
		c.prompt = prompt.New(c.In, c.Out)
	}
	return c.prompt
}

// Record adds a field to the run summary
func (c *Context) Record(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields[key] = value
}

// Summary describes the run so far
func (c *Context) Summary(command string, runErr error) *notify.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &notify.Summary{
		RunID:    c.RunID,
		Command:  command,
		Status:   notify.StatusSuccess,
		Started:  c.Started,
		Duration: time.Since(c.Started).Seconds(),
		Fields:   make(map[string]any, len(c.fields)),
	}
	for k, v := range c.fields {
		s.Fields[k] = v
	}
	if runErr != nil {
		s.Status = notify.StatusFailed
		s.Error = runErr.Error()
	}
	return s
}

// Finish records run metrics, writes the metrics textfile, sends the run
// summary and releases the store. Failures are logged, not returned.
func (c *Context) Finish(ctx context.Context, command string, runErr error) {
	log := GetLogger()
	if c.Settings == nil {
		return
	}
	c.Metrics.RecordRun(command, c.RunID, time.Since(c.Started))
	if err := c.Metrics.WriteTextfile(c.Settings.Metrics.Textfile); err != nil {
		log.Warn("could not write metrics textfile", logger.Error(err))
	}
	if err := c.Notifier.Send(ctx, c.Summary(command, runErr)); err != nil {
		log.Warn("run summary not delivered", logger.Error(err))
	}
	if err := c.Notifier.Close(); err != nil {
		log.Debug("closing notifier", logger.Error(err))
	}

	c.mu.Lock()
	st := c.store
	c.store = nil
	c.mu.Unlock()
	if st != nil {
		if err := st.Close(); err != nil {
			log.Warn("could not close store", logger.Error(err))
		}
	}
}
