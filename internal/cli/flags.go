package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rileyhilliard/sitrep/internal/config"
	"github.com/rileyhilliard/sitrep/internal/errors"
)

// Output formats for one-shot commands.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// OutputFlags holds --output for commands that print data.
type OutputFlags struct {
	Format string
}

// AddOutputFlags registers --output/-o on a command.
func AddOutputFlags(cmd *cobra.Command, flags *OutputFlags) {
	cmd.Flags().StringVarP(&flags.Format, "output", "o", OutputText, "output format: text, json, or yaml")
}

// ParseOutputFormat validates an --output value.
func ParseOutputFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON, OutputYAML:
		return f, nil
	default:
		return "", errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown output format %q", format),
			"Use text, json, or yaml.")
	}
}

// ParseInterval parses a sampling interval flag. Returns zero duration if the
// flag is empty.
func ParseInterval(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid interval", flag),
			"Try something like 2s, 5s, or 1m.")
	}
	if d < config.MinInterval {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("Interval %s is too short", flag),
			fmt.Sprintf("Minimum interval is %s; sampling faster mostly measures sitrep itself.", config.MinInterval))
	}
	return d, nil
}

// confirmPrompt is swapped out in tests.
var confirmPrompt = func(title, description string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// isTerminal is swapped out in tests.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirmAction asks before a mutation described by what, e.g. "stop web".
// --yes skips the prompt; without a terminal there is nobody to ask, so the
// action is refused.
func confirmAction(yes bool, what, description string) (bool, error) {
	if yes {
		return true, nil
	}
	if !isTerminal() {
		return false, errors.New(errors.ErrConfig,
			"Refusing to "+what+" without confirmation",
			"Pass --yes to confirm in non-interactive runs.")
	}
	ok, err := confirmPrompt(strings.ToUpper(what[:1])+what[1:]+"?", description)
	if err != nil {
		return false, nil
	}
	return ok, nil
}
