package admin

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cloo-solutions/quotedesk/internal/ingest"
	"github.com/cloo-solutions/quotedesk/internal/repository"
	"github.com/cloo-solutions/quotedesk/internal/service"
	"github.com/spf13/cobra"
)

const (
	sourceFS = "fs"
	sourceS3 = "s3"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	var (
		source      string
		root        string
		prefix      string
		force       bool
		concurrency int
		noMigrate   bool
		syncIndex   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest carrier guideline documents",
		Long: `Reads .txt and .pdf guidelines laid out as carrier/lob/state/version/<file>,
chunks and embeds them, and stores the chunks. Unchanged documents are skipped
unless --force is given. With the faiss backend, --sync-index reloads the
vector index from scratch once ingestion finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, cleanup, err := setup(ctx, !noMigrate)
			if err != nil {
				return err
			}
			defer cleanup()

			var src ingest.Source
			switch source {
			case sourceFS:
				if root == "" {
					root = rt.cfg.DocsRoot
				}
				if root == "" {
					return fmt.Errorf("no document root: pass --root or set QUOTEDESK_DOCS_ROOT")
				}
				src = ingest.NewDirSource(root)
			case sourceS3:
				client, err := rt.s3Client(ctx)
				if err != nil {
					return err
				}
				src = ingest.NewBucketSource(client, prefix)
			default:
				return fmt.Errorf("unknown source %q (want %s or %s)", source, sourceFS, sourceS3)
			}

			embedder, err := rt.embedder()
			if err != nil {
				return fmt.Errorf("failed to create embedder: %w", err)
			}

			svc := service.NewIngestService(src, embedder,
				repository.NewDocumentRepository(rt.pool),
				repository.NewTxRunner(rt.pool),
				service.IngestConfig{Chunking: service.DefaultChunkConfig(), EmbedConcurrency: concurrency},
			)

			report, err := svc.Run(ctx, service.IngestOptions{Force: force})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "files=%d ingested=%d replaced=%d skipped=%d failed=%d chunks=%d\n",
				report.Files, report.Ingested, report.Replaced, report.Skipped, report.Failed, report.Chunks)
			for key, msg := range report.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", key, msg)
			}

			if !rt.cfg.UsesPGVector() && report.Ingested > 0 {
				if syncIndex {
					syncSvc := service.NewIndexSyncService(rt.vectorIndex(), repository.NewChunkRepository(rt.pool))
					sr, err := syncSvc.Sync(ctx, service.SyncOptions{Reset: true})
					if err != nil {
						return fmt.Errorf("index sync: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "index: loaded=%d skipped=%d failed_batches=%d total=%d\n",
						sr.Loaded, sr.Skipped, sr.FailedBatches, sr.IndexTotal)
				} else if report.Replaced > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d documents were replaced; the vector index holds their old chunks until 'quotedesk index sync --reset' runs\n", report.Replaced)
				}
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d documents failed to ingest", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", sourceFS, "Document source: fs or s3")
	cmd.Flags().StringVar(&root, "root", "", "Document root for the fs source (default QUOTEDESK_DOCS_ROOT)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix for the s3 source")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest documents whose content is unchanged")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Concurrent embedding requests per document")
	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "Skip database migrations")
	cmd.Flags().BoolVar(&syncIndex, "sync-index", false, "Reset and reload the faiss vector index after ingesting")

	return cmd
}
