package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/sharedmods/cli/output"
	"github.com/fluxbase-eu/sharedmods/cli/util"
	"github.com/fluxbase-eu/sharedmods/internal/config"
	"github.com/fluxbase-eu/sharedmods/internal/deps"
	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/install"
	"github.com/fluxbase-eu/sharedmods/internal/logging"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
	"github.com/fluxbase-eu/sharedmods/internal/observability"
	"github.com/fluxbase-eu/sharedmods/internal/registry"
	"github.com/fluxbase-eu/sharedmods/internal/walker"
)

var (
	bundleRebundle   bool
	bundleProduction bool
	bundleInstall    bool
	bundleWorkers    int
	bundleThreshold  float64
	bundleYes        bool
	bundleStrict     bool
)

var bundleCmd = &cobra.Command{
	Use:   "bundle [package...]",
	Short: "Build shared artifacts for declared frontend dependencies",
	Long: `Build one shared artifact per frontend dependency declared by the
consumer packages (plugins and themes), and recursively for every shared
package those artifacts import.

Packages already present in the output directory are reused. Pass package
names to limit the walk to those roots.

Examples:
  sharedmods bundle
  sharedmods bundle react react-dom --production
  sharedmods bundle --rebundle --yes -o json`,
	RunE: runBundle,
}

func init() {
	bundleCmd.Flags().BoolVar(&bundleRebundle, "rebundle", false, "wipe the output directory before building")
	bundleCmd.Flags().BoolVar(&bundleProduction, "production", false, "minify artifacts")
	bundleCmd.Flags().BoolVar(&bundleInstall, "install", false, "install the requested packages into the output directory first")
	bundleCmd.Flags().IntVar(&bundleWorkers, "workers", 0, "packages built concurrently (overrides bundler.workers)")
	bundleCmd.Flags().Float64Var(&bundleThreshold, "threshold", 0, "namespace collapse threshold (overrides bundler.collapse_threshold)")
	bundleCmd.Flags().BoolVarP(&bundleYes, "yes", "y", false, "skip confirmation prompts")
	bundleCmd.Flags().BoolVar(&bundleStrict, "strict", false, "exit with an error when a package fails to build")
}

func runBundle(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	applyBundleFlags(cmd, &cfg.Bundler)
	if err := cfg.Bundler.Validate(); err != nil {
		return err
	}

	outDir := cfg.Project.OutputPath()
	if cfg.Bundler.Rebundle {
		if err := wipeOutput(outDir, bundleYes); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	buildLog, err := logging.OpenBuildLog(outDir)
	if err != nil {
		return err
	}
	setupLogging(buildLog)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		setupLogging(nil)
		if err := buildLog.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush build log")
		}
	}()

	shutdown, err := startTracer(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	requests, consumers, err := deps.Collect(cfg.Project.Root, cfg.Project.Consumers, log.Logger)
	if err != nil {
		return err
	}
	requests = selectRequests(requests, args)
	log.Debug().
		Int("consumers", len(consumers)).
		Int("requests", len(requests)).
		Str("output", outDir).
		Msg("Bundling selected requests")

	f := GetFormatter()
	if len(requests) == 0 {
		f.PrintWarning("No frontend dependencies declared")
		return nil
	}

	if cfg.Bundler.Install.Enabled {
		installer, err := install.NewInstaller(cfg.Bundler.Install.Command, log.Logger)
		if err != nil {
			return err
		}
		if err := installer.Install(ctx, outDir, requests); err != nil {
			return err
		}
	}

	resolver := manifest.NewResolver(outDir, cfg.Project.Root)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	w := walker.New(walker.Options{
		OutDir:     outDir,
		Workers:    cfg.Bundler.Workers,
		Threshold:  cfg.Bundler.CollapseThreshold,
		Production: cfg.Bundler.Production,
		Metrics:    metrics,
	}, resolver, newIntrospector(&cfg.Bundler, resolver, outDir), log.Logger)

	report, walkErr := w.Walk(ctx, requests)
	if report != nil {
		if err := printReport(f, report); err != nil {
			return err
		}
	}
	if dropped := buildLog.Dropped(); dropped > 0 {
		f.PrintWarning(fmt.Sprintf("%d event(s) could not be written to %s", dropped, buildLog.Path()))
	}

	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("Failed to write metrics textfile")
		}
	}

	if walkErr != nil {
		return walkErr
	}

	if public := cfg.Project.PublicPath(); public != "" {
		if err := linkPublic(public, outDir); err != nil {
			return err
		}
		log.Debug().Str("public_dir", public).Msg("Output linked into public directory")
	}

	if failed := report.Names(walker.StatusFailed); bundleStrict && len(failed) > 0 {
		return fmt.Errorf("%d package(s) failed to build: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// applyBundleFlags overrides the bundler configuration with explicitly set flags.
func applyBundleFlags(cmd *cobra.Command, bc *config.BundlerConfig) {
	flags := cmd.Flags()
	if flags.Changed("rebundle") {
		bc.Rebundle = bundleRebundle
	}
	if flags.Changed("production") {
		bc.Production = bundleProduction
	}
	if flags.Changed("install") {
		bc.Install.Enabled = bundleInstall
	}
	if flags.Changed("workers") {
		bc.Workers = bundleWorkers
	}
	if flags.Changed("threshold") {
		bc.CollapseThreshold = bundleThreshold
	}
}

// selectRequests limits requests to names. Names nobody declared are
// requested without overrides.
func selectRequests(requests deps.Set, names []string) deps.Set {
	if len(names) == 0 {
		return requests
	}

	byName := make(map[string]deps.Request, len(requests))
	for _, req := range requests {
		if _, ok := byName[req.Name]; !ok {
			byName[req.Name] = req
		}
	}

	selected := make([]deps.Request, 0, len(names))
	for _, name := range names {
		req, ok := byName[name]
		if !ok {
			req = deps.Request{Name: name}
		}
		selected = append(selected, req)
	}
	return deps.Dedupe(selected)
}

// newIntrospector builds the export introspector selected in the configuration.
// The chain falls back to static analysis when node is missing or fails.
func newIntrospector(bc *config.BundlerConfig, resolver *manifest.Resolver, outDir string) exports.Introspector {
	static := exports.NewStaticIntrospector(resolver)
	switch bc.Introspector {
	case config.IntrospectorStatic:
		return static
	case config.IntrospectorNode:
		return exports.NewNodeIntrospector(bc.NodePath, outDir)
	}

	node := exports.NewNodeIntrospector(bc.NodePath, outDir)
	if !node.Available() {
		log.Debug().Msg("node not found, reading exports statically")
		return static
	}
	return exports.ChainIntrospector{node, static}
}

// wipeOutput removes the output directory, asking first on a terminal.
func wipeOutput(outDir string, yes bool) error {
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil
	}
	if !yes && util.IsInteractive() {
		ok, err := util.Confirm(fmt.Sprintf("Remove %s?", outDir), false)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("aborted")
		}
	}
	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("failed to remove output directory: %w", err)
	}
	log.Info().Str("output", outDir).Msg("Output directory removed")
	return nil
}

// linkPublic makes the output directory reachable as <publicDir>/built_modules.
// An existing link is replaced; an existing directory is left alone.
func linkPublic(publicDir, outDir string) error {
	link := filepath.Join(publicDir, registry.PublicPrefix)
	target, err := filepath.Abs(outDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(publicDir, 0755); err != nil {
		return fmt.Errorf("failed to create public directory: %w", err)
	}

	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			if linkAbs, _ := filepath.Abs(link); linkAbs == target {
				return nil
			}
			return fmt.Errorf("%s exists and is not a symlink", link)
		}
		if current, err := os.Readlink(link); err == nil && current == target {
			return nil
		}
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("failed to replace %s: %w", link, err)
		}
	}

	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to link %s: %w", link, err)
	}
	return nil
}

// reportTable renders one row per package.
func reportTable(report *walker.Report) output.TableData {
	data := output.TableData{
		Headers: []string{"NAME", "VERSION", "STATUS", "EXTERNALS", "SIZE", "DURATION"},
	}
	for _, res := range report.Packages {
		size := ""
		if res.Bytes > 0 {
			size = util.FormatBytes(int64(res.Bytes))
		}
		data.Rows = append(data.Rows, []string{
			res.Name,
			res.Version,
			string(res.Status),
			formatExternals(res.Externals),
			size,
			util.FormatDuration(res.Duration),
		})
	}
	return data
}

func formatExternals(externals map[string][]string) string {
	names := make([]string, 0, len(externals))
	for name := range externals {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func printReport(f *output.Formatter, report *walker.Report) error {
	if f.Structured() {
		return f.Print(report)
	}

	if err := f.PrintTable(reportTable(report)); err != nil {
		return err
	}

	for _, res := range report.Packages {
		if res.Status == walker.StatusFailed {
			f.PrintWarning(fmt.Sprintf("%s: %s", res.Name, res.Error))
		}
	}
	undeclared := report.Undeclared()
	names := make([]string, 0, len(undeclared))
	for name := range undeclared {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f.PrintWarning(fmt.Sprintf("%s is used by %s without being declared, it was inlined",
			name, strings.Join(undeclared[name], ", ")))
	}

	summary := fmt.Sprintf("%d built, %d cached, %d skipped, %d failed in %s",
		report.Count(walker.StatusBuilt),
		report.Count(walker.StatusCached),
		report.Count(walker.StatusSkipped),
		report.Count(walker.StatusFailed),
		util.FormatDuration(report.Duration()))
	if report.TraceID != "" {
		summary += fmt.Sprintf(" (trace %s)", report.TraceID)
	}
	f.PrintSuccess(summary)
	return nil
}
