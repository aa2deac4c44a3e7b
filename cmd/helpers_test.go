package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"uuid", "5f2b1c4e-9a31-4a3f-8c6d-0123456789ab", "5f2b1c4e"},
		{"short", "abc", "abc"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shortID(tt.id))
		})
	}
}

func TestConfirmFunc(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "Yes\n", true},
		{"no", "n\n", false},
		{"default is no", "\n", false},
		{"garbage", "sure why not\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.SetIn(strings.NewReader(tt.input))
			var out bytes.Buffer
			cmd.SetOut(&out)

			ok, err := confirmFunc(cmd)("Proceed?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Contains(t, out.String(), "Proceed? [y/N]:")
		})
	}
}

func TestConfirmFunc_SequentialPrompts(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("y\nn\n"))
	cmd.SetOut(&bytes.Buffer{})

	confirm := confirmFunc(cmd)
	first, err := confirm("one")
	require.NoError(t, err)
	second, err := confirm("two")
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}
