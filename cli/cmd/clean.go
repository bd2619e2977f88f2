package cmd

import (
	"github.com/spf13/cobra"
)

var cleanYes bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the output directory",
	Long: `Remove every built package, the install manifest and the build log from
the output directory. The next bundle run rebuilds everything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir := cfg.Project.OutputPath()
		if err := wipeOutput(outDir, cleanYes); err != nil {
			return err
		}
		GetFormatter().PrintSuccess("Removed " + outDir)
		return nil
	},
}

func init() {
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "skip confirmation prompt")
}
