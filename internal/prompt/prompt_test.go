package prompt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("\nhttps://cvat.example\n"), &out)

	s, err := p.String("CVAT URL", "https://app.cvat.ai")
	require.NoError(t, err)
	assert.Equal(t, "https://app.cvat.ai", s)

	s, err = p.String("CVAT URL", "")
	require.NoError(t, err)
	assert.Equal(t, "https://cvat.example", s)
	assert.Equal(t, "CVAT URL [https://app.cvat.ai]: CVAT URL: ", out.String())
}

func TestIntRepeats(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("abc\n42\n"), &out)
	n, err := p.Int("Task ID", 1966256)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Contains(t, out.String(), `"abc" is not a number`)
}

func TestConfirm(t *testing.T) {
	p := New(strings.NewReader("y\n\nnope\n"), &bytes.Buffer{})
	for _, want := range []bool{true, true, false} {
		ok, err := p.Confirm("Proceed?", true)
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
}

func TestConfirmWord(t *testing.T) {
	p := New(strings.NewReader("y\nyes"), &bytes.Buffer{})
	ok, err := p.ConfirmWord("Upload?", "yes")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.ConfirmWord("Upload?", "yes")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEOFIsAnError(t *testing.T) {
	p := New(strings.NewReader(""), &bytes.Buffer{})
	_, err := p.Confirm("Proceed?", true)
	require.Error(t, err)
}
