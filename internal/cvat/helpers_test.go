package cvat

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

const testBaseURL = "https://cvat.test"

// newTestClient returns a client whose HTTP traffic goes to a mock transport
func newTestClient(t *testing.T, opts ...func(*Config)) (*Client, *httpmock.MockTransport) {
	t.Helper()

	cfg := Config{
		BaseURL:        testBaseURL,
		APIKey:         "test-token",
		Org:            "wp",
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mock := httpmock.NewMockTransport()
	client, err := NewClient(cfg,
		WithHTTPClient(&http.Client{Transport: mock}),
		WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelDebug)))
	require.NoError(t, err)
	return client, mock
}

func jsonResponder(t *testing.T, status int, body any) httpmock.Responder {
	t.Helper()
	r, err := httpmock.NewJsonResponder(status, body)
	require.NoError(t, err)
	return r
}

func page[T any](results []T, next string) Page[T] {
	return Page[T]{Count: len(results), Next: next, Results: results}
}
