package notify

import (
	"context"
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

// Shoutrrr sends summaries through one sender covering all service URLs
type Shoutrrr struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrr validates urls by building their sender
func NewShoutrrr(urls []string, timeout time.Duration) (*Shoutrrr, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Category(errors.CategoryConfiguration).
			Component("notify").
			Build()
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// service URLs carry tokens
		return nil, errors.Newf("invalid notification URL: %s", logger.RedactSensitiveData(err.Error())).
			Category(errors.CategoryConfiguration).
			Component("notify").
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &Shoutrrr{urls: slices.Clone(urls), sender: sender}, nil
}

func (s *Shoutrrr) Name() string { return "shoutrrr" }

func (s *Shoutrrr) Close() error { return nil }

// Send ignores ctx; the router applies its own timeout
func (s *Shoutrrr) Send(_ context.Context, sum *Summary) error {
	params := stypes.Params{}
	params.SetTitle(sum.Title())
	for _, err := range s.sender.Send(sum.Line(), &params) {
		if err != nil {
			return errors.Newf("%s", logger.RedactSensitiveData(err.Error())).
				Category(errors.CategoryNetwork).
				Component("notify").
				Build()
		}
	}
	return nil
}
