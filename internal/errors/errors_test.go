package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReporter struct {
	reported []*EnhancedError
}

func (s *stubReporter) ReportError(ee *EnhancedError) {
	s.reported = append(s.reported, ee)
	ee.MarkReported()
}

func (s *stubReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.IsReported())
}

func TestBuilderKeepsExplicitValues(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("task %d not found", 42).
		Component("cvat").
		Category(CategoryNotFound).
		Priority(PriorityHigh).
		Context("task_id", 42).
		Build()

	assert.Equal(t, "task 42 not found", ee.Error())
	assert.Equal(t, "cvat", ee.GetComponent())
	assert.Equal(t, PriorityHigh, ee.Priority)
	assert.Equal(t, 42, ee.GetContext()["task_id"])
	assert.True(t, IsNotFound(ee))
	assert.True(t, IsCategory(fmt.Errorf("wrapped: %w", ee), CategoryNotFound))
}

func TestPriorityIgnoresUnknownValues(t *testing.T) {
	ee := NewStd("x")
	built := New(ee).Priority("urgent").Build()
	assert.Empty(t, built.Priority)
}

func TestIsMatchesCategoryAndWrapped(t *testing.T) {
	sentinel := NewStd("sentinel")
	ee := New(sentinel).Category(CategoryLimit).Build()

	assert.ErrorIs(t, ee, sentinel)
	assert.True(t, Is(ee, &EnhancedError{Category: CategoryLimit}))
	assert.False(t, Is(ee, &EnhancedError{Category: CategoryNetwork}))
}

func TestReportingPathDetectsCategory(t *testing.T) {
	reporter := &stubReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(fmt.Errorf("dial tcp: connection refused")).Build()

	require.Len(t, reporter.reported, 1)
	assert.Equal(t, CategoryNetwork, ee.Category)
	assert.True(t, ee.IsReported())
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorCategory
	}{
		{"context canceled", CategoryCancellation},
		{"request timeout", CategoryTimeout},
		{"invalid character in json", CategoryFileParsing},
		{"open data/result.json: no such file", CategoryFileParsing},
		{"open config: no such file", CategoryFileIO},
		{"invalid task id", CategoryValidation},
		{"something else", CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(NewStd(tt.msg)))
		})
	}
}

func TestLookupComponentPrefersLongestPattern(t *testing.T) {
	RegisterComponent("internal/cvat/upload", "cvat.upload")
	t.Cleanup(func() {
		registryMutex.Lock()
		delete(componentRegistry, "internal/cvat/upload")
		registryMutex.Unlock()
	})

	assert.Equal(t, "cvat.upload", lookupComponent(modulePath+"/internal/cvat/upload.Run"))
	assert.Equal(t, "cvat", lookupComponent(modulePath+"/internal/cvat.(*Client).GetTask"))
	assert.Empty(t, lookupComponent("main.main"))
}

func TestURLScrubbing(t *testing.T) {
	scrubbed := basicURLScrub("Error at https://api.example.com?api_key=secret123&token=abc")
	assert.Equal(t, "Error at https://api.example.com?[REDACTED]", scrubbed)

	scrubbed = basicURLScrub("Config error: api_key=secret123 is invalid")
	assert.Contains(t, scrubbed, "[API_KEY_REDACTED]")

	scrubbed = basicURLScrub("Authorization failed with Token 0123456789abcdef0123456789abcdef")
	assert.False(t, strings.Contains(scrubbed, "0123456789abcdef0123456789abcdef"))
}

func BenchmarkErrorCreationNoTelemetry(b *testing.B) {
	SetTelemetryReporter(nil)
	err := NewStd("benchmark error")

	b.ReportAllocs()
	for b.Loop() {
		_ = New(err).
			Component("cvat").
			Category(CategoryHTTP).
			Context("status", 500).
			Build()
	}
}
