package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// versionInfo is the structured form of the version command
type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Show version information",
	Long:        `Display the version, commit hash, and build date of sharedmods.`,
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version:   Version,
			Commit:    Commit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}

		f := GetFormatter()
		if f.Structured() {
			return f.Print(info)
		}

		_, _ = fmt.Fprintf(f.Writer, "sharedmods %s\n", info.Version)
		_, _ = fmt.Fprintf(f.Writer, "Commit: %s\n", info.Commit)
		_, _ = fmt.Fprintf(f.Writer, "Build Date: %s\n", info.BuildDate)
		_, _ = fmt.Fprintf(f.Writer, "Go: %s (%s/%s)\n", info.GoVersion, runtime.GOOS, runtime.GOARCH)
		return nil
	},
}
