// Package testutil provides shared test helpers for packages that talk to
// CVAT through a mocked transport.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

// BaseURL is the CVAT server every mocked client points at
const BaseURL = "https://cvat.test"

// DefaultTestTimeout bounds waits in tests
const DefaultTestTimeout = 5 * time.Second

// Logger returns a logger that discards output
func Logger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelDebug)
}

// NewCVATClient returns a client for org "wp" whose requests are served by
// the returned mock transport. Retries back off for a millisecond.
func NewCVATClient(t *testing.T, opts ...func(*cvat.Config)) (*cvat.Client, *httpmock.MockTransport) {
	t.Helper()

	cfg := cvat.Config{
		BaseURL:        BaseURL,
		APIKey:         "test-token",
		Org:            "wp",
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mock := httpmock.NewMockTransport()
	client, err := cvat.NewClient(cfg,
		cvat.WithHTTPClient(&http.Client{Transport: mock}),
		cvat.WithLogger(Logger()))
	require.NoError(t, err)
	return client, mock
}

// JSON returns a responder that serves body as JSON
func JSON(t *testing.T, status int, body any) httpmock.Responder {
	t.Helper()
	r, err := httpmock.NewJsonResponder(status, body)
	require.NoError(t, err)
	return r
}

// Page wraps results in a single CVAT list page
func Page[T any](results ...T) cvat.Page[T] {
	return cvat.Page[T]{Count: len(results), Results: results}
}

// URL joins a path onto BaseURL
func URL(format string, args ...any) string {
	return BaseURL + fmt.Sprintf(format, args...)
}

// Frames builds data meta for the given frame names
func Frames(names ...string) cvat.DataMeta {
	frames := make([]cvat.Frame, len(names))
	for i, n := range names {
		frames[i] = cvat.Frame{Name: n, Width: 640, Height: 480}
	}
	return cvat.DataMeta{StartFrame: 0, StopFrame: max(len(names)-1, 0), Size: len(names), Frames: frames}
}
