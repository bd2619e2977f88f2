package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/sharedmods/cli/output"
	"github.com/fluxbase-eu/sharedmods/internal/registry"
)

var loadOrderCmd = &cobra.Command{
	Use:   "load-order <package>...",
	Short: "Show the order a loader must resolve packages in",
	Long: `Show the order in which the runtime loader has to resolve built packages
into the module registry before the given packages can execute. Every
package is preceded by the externals its descriptor lists.

Examples:
  sharedmods load-order react-dom
  sharedmods load-order my-plugin-entry another-entry -o yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoadOrder,
}

func runLoadOrder(cmd *cobra.Command, args []string) error {
	plan, err := registry.LoadPlan(registry.DirSource(cfg.Project.OutputPath()), args...)
	if err != nil {
		return err
	}

	f := GetFormatter()
	if f.Structured() {
		return f.Print(plan)
	}

	if err := f.PrintTable(planTable(plan)); err != nil {
		return err
	}
	for _, name := range plan.Unavailable {
		f.PrintWarning(fmt.Sprintf("%s has not been built", name))
	}
	for _, cycle := range plan.Cycles {
		f.PrintWarning(fmt.Sprintf("dependency cycle: %s", cycle))
	}
	return nil
}

func planTable(plan *registry.Plan) output.TableData {
	data := output.TableData{
		Headers: []string{"STEP", "PACKAGE", "SYMBOLS"},
	}
	for i, step := range plan.Steps {
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(i + 1),
			step.Package,
			strings.Join(step.Symbols, ", "),
		})
	}
	return data
}
