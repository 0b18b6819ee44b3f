package secrets

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
)

func TestExpand(t *testing.T) {
	t.Setenv("CVAT_TOKEN", "tok-123")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty", input: "", want: ""},
		{name: "literal", input: "literal-value", want: "literal-value"},
		{name: "dollar kept", input: "pa$$word", want: "pa$$word"},
		{name: "variable", input: "${CVAT_TOKEN}", want: "tok-123"},
		{name: "embedded", input: "Token ${CVAT_TOKEN}!", want: "Token tok-123!"},
		{name: "default used", input: "${UNSET_TOKEN:-fallback}", want: "fallback"},
		{name: "empty default", input: "${UNSET_TOKEN:-}", want: ""},
		{name: "missing", input: "${UNSET_TOKEN}", wantErr: true},
		{name: "missing in text", input: "a-${UNSET_TOKEN}-b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run/secrets/cvat", []byte("  key  \r\n\n"), 0o400))
	require.NoError(t, afero.WriteFile(fs, "/run/secrets/empty", nil, 0o400))
	require.NoError(t, fs.MkdirAll("/run/secrets/dir", 0o700))
	r := NewResolver(fs)

	got, err := r.ReadFile("/run/secrets/cvat")
	require.NoError(t, err)
	assert.Equal(t, "  key  ", got)

	_, err = r.ReadFile("")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = r.ReadFile("/run/secrets/missing")
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	_, err = r.ReadFile("/run/secrets/empty")
	assert.ErrorContains(t, err, "empty")

	_, err = r.ReadFile("/run/secrets/dir")
	assert.ErrorContains(t, err, "not a regular file")
}

func TestResolvePrefersFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/secret", []byte("from-file\n"), 0o600))
	t.Setenv("S3_SECRET", "from-env")
	r := NewResolver(fs)

	got, err := r.Resolve("/secret", "${S3_SECRET}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = r.Resolve("", "${S3_SECRET}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = r.Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
