package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/sharedmods/cli/output"
	"github.com/fluxbase-eu/sharedmods/internal/logging"
)

var (
	logsLevel string
	logsRunID string
	logsAll   bool
	logsTail  int
)

var logsCmd = &cobra.Command{
	Use:     "logs [package]",
	Aliases: []string{"log"},
	Short:   "Show the build log",
	Long: `Show the events recorded in the build log of the output directory.

By default only the most recent run is shown. Pass a package name to see the
events of one package.

Examples:
  sharedmods logs
  sharedmods logs react-dom --level warn
  sharedmods logs --all --tail 50
  sharedmods logs --run 0b6f6a0e-... -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum level (debug, info, warn, error)")
	logsCmd.Flags().StringVar(&logsRunID, "run", "", "show the events of this run id")
	logsCmd.Flags().BoolVar(&logsAll, "all", false, "show every run, not only the last one")
	logsCmd.Flags().IntVar(&logsTail, "tail", 0, "show only the last N events")
}

func runLogs(cmd *cobra.Command, args []string) error {
	f := GetFormatter()

	events, err := logging.ReadBuildLog(cfg.Project.OutputPath())
	if errors.Is(err, os.ErrNotExist) {
		f.PrintWarning("No build log yet, run 'sharedmods bundle' first")
		return nil
	}
	if err != nil {
		return err
	}

	filter := logging.EventFilter{RunID: logsRunID, MinLevel: logging.Level(logsLevel)}
	if len(args) == 1 {
		filter.Package = args[0]
	}
	if filter.RunID == "" && !logsAll {
		filter.RunID = logging.LastRunID(events)
	}

	events = logging.Filter(events, filter)
	if logsTail > 0 && len(events) > logsTail {
		events = events[len(events)-logsTail:]
	}

	if f.Structured() {
		if events == nil {
			events = []logging.Event{}
		}
		return f.Print(events)
	}
	if len(events) == 0 {
		f.PrintWarning("No matching events")
		return nil
	}
	return f.PrintTable(eventsTable(events))
}

func eventsTable(events []logging.Event) output.TableData {
	data := output.TableData{
		Headers: []string{"TIME", "LEVEL", "PACKAGE", "MESSAGE"},
	}
	for _, event := range events {
		message := event.Message
		if event.Error != "" {
			message = fmt.Sprintf("%s: %s", message, event.Error)
		}
		data.Rows = append(data.Rows, []string{
			event.Timestamp.Local().Format(time.TimeOnly),
			string(event.Level),
			event.Package,
			message,
		})
	}
	return data
}
