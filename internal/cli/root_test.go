package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sitreperrors "github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/ui"
)

func TestIsUnknownCommandError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unknown command error",
			err:  errors.New(`unknown command "foo" for "sitrep"`),
			want: true,
		},
		{
			name: "unknown flag error",
			err:  errors.New(`unknown flag: --foo`),
			want: true,
		},
		{
			name: "other error",
			err:  errors.New("connection failed"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				// Can't call isUnknownCommandError with nil
				return
			}
			got := isUnknownCommandError(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractUnknownCommand(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "standard cobra format",
			err:  errors.New(`unknown command "foo" for "sitrep"`),
			want: "foo",
		},
		{
			name: "subcommand typo",
			err:  errors.New(`unknown command "snapshto" for "sitrep"`),
			want: "snapshto",
		},
		{
			name: "command with hyphen",
			err:  errors.New(`unknown command "my-task" for "sitrep"`),
			want: "my-task",
		},
		{
			name: "no quotes returns empty",
			err:  errors.New("unknown command foo"),
			want: "",
		},
		{
			name: "single quote returns empty",
			err:  errors.New(`unknown command "foo`),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractUnknownCommand(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderError(t *testing.T) {
	t.Run("plain error gets a cross", func(t *testing.T) {
		got := renderError(errors.New("boom"))
		assert.Equal(t, ui.SymbolFail+" boom\n", got)
	})

	t.Run("structured error is left alone", func(t *testing.T) {
		err := sitreperrors.New(sitreperrors.ErrConfig, "Bad config", "Fix it")
		got := renderError(err)
		assert.True(t, strings.HasPrefix(got, ui.SymbolFail+" Bad config"))
		assert.Equal(t, 1, strings.Count(got, ui.SymbolFail))
		assert.True(t, strings.HasSuffix(got, "\n"))
	})
}

func TestRootCommandFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "no-color", "log-file"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
	for _, name := range []string{"interval", "sort", "metrics-addr", "no-docker", "no-swarm"} {
		assert.NotNil(t, rootCmd.Flags().Lookup(name), "root should accept dashboard flag --%s", name)
	}
	v := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, v)
	assert.Equal(t, "v", v.Shorthand)
}
