// Package notify sends a summary of every finished run to the configured
// shoutrrr services and MQTT broker.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

// Run outcomes
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DefaultTimeout bounds a single delivery
const DefaultTimeout = 10 * time.Second

// Summary describes a finished run
type Summary struct {
	RunID    string         `json:"run_id"`
	Command  string         `json:"command"`
	Status   string         `json:"status"`
	Started  time.Time      `json:"started"`
	Duration float64        `json:"duration_seconds"`
	Error    string         `json:"error,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Title is the one-line subject of the summary
func (s *Summary) Title() string {
	return fmt.Sprintf("cvat-tools %s: %s", s.Command, s.Status)
}

// Line renders the summary as a single line with fields in key order
func (s *Summary) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s in %.1fs", s.Command, s.Status, s.Duration)
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, s.Fields[k])
	}
	if s.Error != "" {
		fmt.Fprintf(&b, " error=%q", logger.RedactSensitiveData(s.Error))
	}
	return b.String()
}

// Provider delivers summaries to one destination
type Provider interface {
	Name() string
	Send(ctx context.Context, s *Summary) error
	Close() error
}

// Dispatcher fans a summary out to every provider
type Dispatcher struct {
	providers []Provider
	timeout   time.Duration
	log       logger.Logger
}

// NewDispatcher returns a dispatcher over providers
func NewDispatcher(providers ...Provider) *Dispatcher {
	return &Dispatcher{providers: providers, timeout: DefaultTimeout, log: GetLogger()}
}

// New builds a dispatcher from settings. Without notify URLs or an enabled
// MQTT broker the dispatcher has no providers and Send does nothing.
func New(settings *conf.Settings) (*Dispatcher, error) {
	var providers []Provider
	if len(settings.Notify.URLs) > 0 {
		p, err := NewShoutrrr(settings.Notify.URLs, DefaultTimeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if settings.MQTT.Enabled {
		p, err := NewMQTT(settings.MQTT)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return NewDispatcher(providers...), nil
}

// Enabled reports whether any provider is configured
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.providers) > 0
}

// Send delivers s to all providers. A failing provider does not stop the
// others; the failures are joined into the returned error.
func (d *Dispatcher) Send(ctx context.Context, s *Summary) error {
	if !d.Enabled() {
		return nil
	}
	var errs []error
	for _, p := range d.providers {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := p.Send(sctx, s)
		cancel()
		if err != nil {
			d.log.Warn("notification failed",
				logger.String("provider", p.Name()),
				logger.String("command", s.Command),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		d.log.Debug("notification sent",
			logger.String("provider", p.Name()),
			logger.String("command", s.Command))
	}
	return errors.Join(errs...)
}

// Close releases provider connections
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, p := range d.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
