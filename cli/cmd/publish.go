package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/sharedmods/cli/util"
	"github.com/fluxbase-eu/sharedmods/internal/config"
	"github.com/fluxbase-eu/sharedmods/internal/observability"
	"github.com/fluxbase-eu/sharedmods/internal/storage"
)

var (
	publishPrefix string
	publishList   bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload built packages to object storage",
	Long: `Upload every successfully built package in the output directory to the
configured storage provider (a local directory or any S3-compatible service).
Packages without a meta.json descriptor are not published. Content-hashed
chunks and assets already present in the bucket are not uploaded again.

Examples:
  sharedmods publish
  sharedmods publish --prefix v1.4.0
  sharedmods publish --list`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishPrefix, "prefix", "", "object key prefix (overrides storage.prefix)")
	publishCmd.Flags().BoolVar(&publishList, "list", false, "list the packages already published and exit")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Flags().Changed("prefix") {
		cfg.Storage.Prefix = publishPrefix
	}

	shutdown, err := startTracer(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	provider, err := newStorageProvider(&cfg.Storage)
	if err != nil {
		return err
	}

	publisher := storage.NewPublisher(provider, cfg.Storage.Bucket, cfg.Storage.Prefix, log.Logger)
	if publishList {
		ctx, span := observability.StartStorageSpan(ctx, "list", cfg.Storage.Bucket, cfg.Storage.Prefix)
		names, err := publisher.Published(ctx)
		observability.EndSpan(span, err)
		if err != nil {
			return err
		}
		return GetFormatter().PrintList(names)
	}

	ctx, span := observability.StartStorageSpan(ctx, "publish", cfg.Storage.Bucket, cfg.Storage.Prefix)
	result, err := publisher.Publish(ctx, cfg.Project.OutputPath())
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metrics := observability.NewMetrics()
		metrics.RecordPublish(result.Objects, result.Bytes)
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("Failed to write metrics textfile")
		}
	}

	f := GetFormatter()
	if f.Structured() {
		return f.Print(result)
	}
	f.PrintSuccess(fmt.Sprintf("Published %d package(s), %d object(s), %s to %s/%s (%d unchanged)",
		len(result.Packages), result.Objects, util.FormatBytes(result.Bytes), provider.Name(), cfg.Storage.Bucket, result.Unchanged))
	return nil
}

// newStorageProvider creates the provider selected in the configuration.
func newStorageProvider(sc *config.StorageConfig) (storage.Provider, error) {
	switch sc.Provider {
	case "s3":
		return storage.NewS3Storage(storage.S3Options{
			Endpoint:  sc.S3Endpoint,
			AccessKey: sc.S3AccessKey,
			SecretKey: sc.S3SecretKey,
			Region:    sc.S3Region,
			UseSSL:    sc.S3UseSSL,
		}, log.Logger)
	case "local":
		return storage.NewLocalStorage(sc.LocalPath)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", sc.Provider)
	}
}
