package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// Set from main, which receives them through ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	versionShort  bool
	versionOutput OutputFlags
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Built    string `json:"built" yaml:"built"`
	Go       string `json:"go" yaml:"go"`
	Platform string `json:"platform" yaml:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit and build date of sitrep, plus the Go toolchain and platform it was built for.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return versionCommand(cmd.OutOrStdout())
	},
}

func init() {
	AddOutputFlags(versionCmd, &versionOutput)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
	rootCmd.AddCommand(versionCmd)
}

func currentBuild() BuildInfo {
	return BuildInfo{
		Version:  displayVersion(version),
		Commit:   commit,
		Built:    date,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func versionCommand(out io.Writer) error {
	if versionShort {
		_, err := fmt.Fprintln(out, version)
		return err
	}
	format, err := ParseOutputFormat(versionOutput.Format)
	if err != nil {
		return err
	}
	info := currentBuild()
	return render(out, format, info, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "sitrep %s\ncommit: %s\nbuilt: %s\ngo: %s\nos/arch: %s\n",
			info.Version, info.Commit, info.Built, info.Go, info.Platform)
		return err
	})
}

// displayVersion adds a v to release versions; dev builds stay as-is.
func displayVersion(v string) string {
	if v == "" || v == "dev" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// SetVersionInfo records build metadata from main.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}
