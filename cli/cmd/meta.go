package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/sharedmods/cli/output"
	"github.com/fluxbase-eu/sharedmods/internal/registry"
)

var metaCmd = &cobra.Command{
	Use:   "meta [package]",
	Short: "Show the descriptors of built packages",
	Long: `Show the meta.json descriptor of a built package: its library name and
the externals, with their symbols, it expects in the runtime registry.

Without a package name every built package is listed.

Examples:
  sharedmods meta
  sharedmods meta react-dom -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMeta,
}

func runMeta(cmd *cobra.Command, args []string) error {
	outDir := cfg.Project.OutputPath()
	f := GetFormatter()

	if len(args) == 1 {
		meta, err := registry.ReadMeta(registry.PackageDir(outDir, args[0]))
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("package %s has not been built", args[0])
		}
		if err != nil {
			return err
		}
		if f.Structured() {
			return f.Print(meta)
		}
		return f.PrintTable(externalsTable(meta))
	}

	metas, err := registry.ListMeta(outDir)
	if errors.Is(err, os.ErrNotExist) {
		f.PrintWarning("Nothing has been built yet")
		return nil
	}
	if err != nil {
		return err
	}
	if f.Structured() {
		return f.Print(metas)
	}
	return f.PrintTable(metaTable(metas))
}

func metaTable(metas []*registry.Meta) output.TableData {
	data := output.TableData{
		Headers: []string{"NAME", "LIBRARY", "EXTERNALS"},
	}
	for _, meta := range metas {
		data.Rows = append(data.Rows, []string{
			meta.Name,
			meta.Library,
			strings.Join(meta.ExternalNames(), ", "),
		})
	}
	return data
}

func externalsTable(meta *registry.Meta) output.TableData {
	data := output.TableData{
		Headers: []string{"EXTERNAL", "SYMBOLS"},
	}
	for _, name := range meta.ExternalNames() {
		data.Rows = append(data.Rows, []string{
			name,
			strings.Join(meta.ExternalDependencies[name], ", "),
		})
	}
	return data
}
