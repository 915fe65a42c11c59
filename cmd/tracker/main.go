package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aman124598/upi-tracker/internal/archive"
	"github.com/aman124598/upi-tracker/internal/config"
	"github.com/aman124598/upi-tracker/internal/domain"
	"github.com/aman124598/upi-tracker/internal/ingest"
	"github.com/aman124598/upi-tracker/internal/logger"
	"github.com/aman124598/upi-tracker/internal/reconcile"
	"github.com/aman124598/upi-tracker/internal/remote"
	"github.com/aman124598/upi-tracker/internal/store"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(log)
	case "add":
		runAdd(log)
	case "list":
		runList(log)
	case "delete":
		runDelete(log)
	case "sync":
		runSync(log)
	case "backfill":
		runBackfill(log)
	case "watch":
		runWatch(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("UPI Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  tracker <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest    Ingest notification messages from stdin or a flag, one per line")
	fmt.Println("  add       Add a transaction record by hand")
	fmt.Println("  list      List stored transaction records")
	fmt.Println("  delete    Delete a record, or all records with --all")
	fmt.Println("  sync      Run one full two-way sync against the remote store")
	fmt.Println("  backfill  Categorize stored records that still lack a category")
	fmt.Println("  watch     Apply remote live updates until interrupted")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'tracker <command> -h' for more information on a command.")
}

func openStore(cfg config.Config, log zerolog.Logger) store.RecordStore {
	st, err := store.NewJSONFile(cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StorePath).Msg("Failed to open record store")
	}
	return st
}

// openRemote resolves the configured remote provider; nil when none is
// configured.
func openRemote(ctx context.Context, cfg config.Config, log zerolog.Logger) remote.Provider {
	switch cfg.Remote {
	case "":
		return nil
	case "memory":
		return remote.NewHub().Client()
	case "notion":
		if cfg.NotionToken == "" || cfg.NotionDatabaseID == "" {
			log.Fatal().Msg("Error: NOTION_TOKEN and NOTION_DATABASE_ID are required for the notion remote")
		}
		return remote.NewNotion(cfg.NotionToken, cfg.NotionDatabaseID)
	case "bigquery":
		if cfg.BigQueryProject == "" {
			log.Fatal().Msg("Error: BIGQUERY_PROJECT is required for the bigquery remote")
		}
		provider, err := remote.NewBigQuery(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		return provider
	default:
		log.Fatal().Str("remote", cfg.Remote).Msg("Unknown remote provider")
		return nil
	}
}

func openArchiver(ctx context.Context, cfg config.Config, log zerolog.Logger) archive.Archiver {
	if cfg.ArchiveBucket != "" {
		a, err := archive.NewGCS(ctx, cfg.ArchiveBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive client")
		}
		return a
	}
	if cfg.ArchiveDir != "" {
		return archive.NewDir(cfg.ArchiveDir)
	}
	return nil
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	message := fs.String("message", "", "Single message text (default: read lines from stdin)")
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(cfg, log)
	provider := openRemote(ctx, cfg, log)
	archiver := openArchiver(ctx, cfg, log)

	var uploader *reconcile.QueueUploader
	var coordinator *ingest.Coordinator
	if provider != nil {
		rec := reconcile.New(st, provider)
		uploader = reconcile.NewQueueUploader(rec, 64)
		uploader.Start(ctx)
		coordinator = ingest.New(st, uploader)
	} else {
		coordinator = ingest.New(st, nil)
	}

	process := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if archiver != nil {
			if _, err := archiver.Archive(ctx, text); err != nil {
				log.Warn().Err(err).Msg("Failed to archive message")
			}
		}
		outcome, err := coordinator.Ingest(ctx, text)
		if err != nil {
			log.Error().Err(err).Msg("Ingestion failed")
			return
		}
		if outcome.Inserted {
			fmt.Printf("inserted\t%s\n", outcome.ID)
		} else {
			fmt.Printf("skipped\t%s\n", outcome.Skipped)
		}
	}

	if *message != "" {
		process(*message)
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			process(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to read stdin")
		}
	}

	if uploader != nil {
		uploader.Stop()
	}

	stats := coordinator.Stats()
	log.Info().Int("inserted", stats.Inserted).Msg("Ingestion completed")
	for reason, n := range stats.Skipped {
		log.Info().Str("reason", string(reason)).Int("count", n).Msg("Skipped messages")
	}
}

func runAdd(log zerolog.Logger) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	amount := fs.String("amount", "", "Amount, e.g. 450.00")
	merchant := fs.String("merchant", "", "Merchant name")
	category := fs.String("category", "", "Category (default: classified from merchant)")
	date := fs.String("date", "", "Transaction date, YYYY-MM-DD (default: today)")
	fs.Parse(os.Args[2:])

	if *amount == "" {
		log.Fatal().Msg("Error: --amount is required")
	}
	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: --amount is not a number")
	}

	occurredAt := time.Now()
	if *date != "" {
		occurredAt, err = time.Parse("2006-01-02", *date)
		if err != nil {
			log.Fatal().Err(err).Msg("Error: --date must be YYYY-MM-DD")
		}
	}

	cfg := config.Load()
	ctx := logger.WithContext(context.Background(), log)

	st := openStore(cfg, log)
	coordinator := ingest.New(st, nil)

	id, err := coordinator.AddManual(ctx, amt, *merchant, domain.Category(*category), occurredAt)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add record")
	}
	fmt.Printf("inserted\t%s\n", id)
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Maximum records to print (0 = all)")
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	ctx := logger.WithContext(context.Background(), log)

	st := openStore(cfg, log)
	records, err := st.QueryAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list records")
	}
	if *limit > 0 && len(records) > *limit {
		records = records[:*limit]
	}

	for _, rec := range records {
		synced := "-"
		if rec.SyncedAt != nil {
			synced = rec.SyncedAt.Format(time.RFC3339)
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%s\tsynced=%s\n",
			rec.ID,
			rec.OccurredAt.Format("2006-01-02"),
			rec.Amount.StringFixed(2),
			rec.Merchant,
			rec.Category,
			synced,
		)
	}
	fmt.Printf("%d record(s)\n", len(records))
}

func runDelete(log zerolog.Logger) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "Record id to delete")
	all := fs.Bool("all", false, "Delete every record")
	fs.Parse(os.Args[2:])

	if (*id == "" && !*all) || (*id != "" && *all) {
		log.Fatal().Msg("Error: exactly one of --id and --all is required")
	}

	cfg := config.Load()
	ctx := logger.WithContext(context.Background(), log)
	st := openStore(cfg, log)

	if *all {
		if err := st.Reset(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset store")
		}
		fmt.Println("All records deleted; deletions propagate on the next sync.")
		return
	}
	if err := st.Delete(ctx, *id); err != nil {
		log.Fatal().Err(err).Str("record_id", *id).Msg("Failed to delete record")
	}
	fmt.Printf("deleted\t%s\n", *id)
}

func runSync(log zerolog.Logger) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(cfg, log)
	provider := openRemote(ctx, cfg, log)
	if provider == nil {
		log.Fatal().Msg("Error: TRACKER_REMOTE is not configured")
	}

	rec := reconcile.New(st, provider)
	if err := rec.Sync(ctx); err != nil {
		if errors.Is(err, reconcile.ErrSyncInProgress) {
			log.Fatal().Msg("A sync is already running")
		}
		log.Fatal().Err(err).Msg("Sync failed")
	}

	status := rec.Status()
	if status.LastError != nil {
		log.Warn().Err(status.LastError).Msg("Sync completed with record-level failures")
	}
	fmt.Println("Sync completed.")
}

func runBackfill(log zerolog.Logger) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	ctx := logger.WithContext(context.Background(), log)

	st := openStore(cfg, log)
	coordinator := ingest.New(st, nil)

	updated, err := coordinator.BackfillCategories(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Backfill failed")
	}
	fmt.Printf("Backfilled %d record(s).\n", updated)
}

func runWatch(log zerolog.Logger) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(cfg, log)
	provider := openRemote(ctx, cfg, log)
	if provider == nil {
		log.Fatal().Msg("Error: TRACKER_REMOTE is not configured")
	}

	rec := reconcile.New(st, provider)
	stop, err := rec.StartLiveUpdates(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrSubscribeUnsupported) {
			log.Fatal().Str("remote", cfg.Remote).Msg("This remote has no live update feed; use 'tracker sync'")
		}
		log.Fatal().Err(err).Msg("Failed to start live updates")
	}
	defer stop()

	log.Info().Msg("Watching for remote changes; Ctrl-C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("Stopped.")
}
