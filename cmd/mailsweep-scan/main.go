package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailsweep/internal/credential"
	"github.com/nhle/mailsweep/internal/mailbox"
	"github.com/nhle/mailsweep/internal/model"
	"github.com/nhle/mailsweep/internal/report"
	"github.com/nhle/mailsweep/internal/scan"
	"github.com/nhle/mailsweep/internal/seen"
	"github.com/nhle/mailsweep/internal/store"
)

type scanFlags struct {
	email    string
	password string
	name     string
	months   int
	server   string
	port     string
	output   string
	seenPath string
	cfgPath  string
}

func main() {
	flags := parseScanFlags()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Logger()

	if err := run(log, flags); err != nil {
		log.Error().Err(err).Msg("mailsweep-scan failed")
		os.Exit(1)
	}
}

func parseScanFlags() scanFlags {
	email := flag.String("email", "", "mailbox address to scan (required)")
	password := flag.String("password", "", "mailbox password or app password (default: system keyring)")
	name := flag.String("name", "", "personal name to detect in subjects and bodies")
	months := flag.Int("months", 0, "lookback window in 30-day months")
	server := flag.String("server", "", "IMAP server hostname")
	port := flag.String("port", "", "IMAP server port")
	output := flag.String("output", "", "domain report CSV path")
	seenPath := flag.String("seen", "", "previously-seen identifier file")
	cfgPath := flag.String("config", model.DefaultConfigPath(), "configuration file path")
	flag.Parse()

	return scanFlags{
		email:    *email,
		password: *password,
		name:     *name,
		months:   *months,
		server:   *server,
		port:     *port,
		output:   *output,
		seenPath: *seenPath,
		cfgPath:  *cfgPath,
	}
}

func run(log zerolog.Logger, flags scanFlags) error {
	if flags.email == "" {
		return fmt.Errorf("-email is required")
	}

	cfg, err := model.LoadConfig(flags.cfgPath)
	if err != nil {
		return err
	}
	applyScanFlags(cfg, flags)

	password := flags.password
	if password == "" {
		password, err = credential.Get("imap:" + flags.email)
		if err != nil {
			return fmt.Errorf("no -password given and keyring lookup failed: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	prior, err := seen.Load(cfg.Scan.SeenPath)
	if err != nil {
		return err
	}
	log.Info().Int("identifiers", prior.Len()).Str("file", cfg.Scan.SeenPath).
		Msg("loaded previously-seen set")

	history := openHistory(log, cfg.DBPath)
	if history != nil {
		defer history.Close()
	}

	box, err := mailbox.Dial(log, cfg.IMAP.Host, cfg.IMAP.Port, flags.email, password)
	if err != nil {
		return err
	}
	defer func() {
		if err := box.Close(); err != nil {
			log.Warn().Err(err).Msg("closing mailbox session")
		}
	}()

	runRec := model.Run{
		ID:         uuid.NewString(),
		Kind:       model.RunKindScan,
		Mailbox:    flags.email,
		StartedAt:  time.Now(),
		ReportPath: cfg.Scan.ReportPath,
	}
	recordStart(ctx, log, history, runRec)

	agg := scan.NewAggregator(log, flags.name, prior)
	svc := scan.NewService(log, box, agg)

	since := time.Now().AddDate(0, 0, -30*cfg.Scan.Months)
	sum, err := svc.Run(ctx, since)
	if err != nil {
		return err
	}

	if err := report.Write(cfg.Scan.ReportPath, agg.Domains()); err != nil {
		return err
	}

	prior.AddAll(agg.Identifiers())
	if err := prior.Save(cfg.Scan.SeenPath); err != nil {
		return err
	}

	reportable := 0
	for _, rec := range agg.Domains() {
		if rec.TotalEmails() >= 2 {
			reportable++
		}
	}

	runRec.FinishedAt = time.Now()
	runRec.Scanned = sum.Scanned
	runRec.Skipped = sum.Skipped
	runRec.Domains = reportable
	recordFinish(ctx, log, history, runRec)

	log.Info().
		Int("scanned", sum.Scanned).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("reportable_domains", reportable).
		Int("personalized_senders", len(agg.Personalized())).
		Str("report", cfg.Scan.ReportPath).
		Str("seen_file", cfg.Scan.SeenPath).
		Msg("scan finished")

	return nil
}

// applyScanFlags overlays non-empty CLI flags onto the loaded config.
func applyScanFlags(cfg *model.AppConfig, flags scanFlags) {
	if flags.server != "" {
		cfg.IMAP.Host = flags.server
	}
	if flags.port != "" {
		cfg.IMAP.Port = flags.port
	}
	if flags.months > 0 {
		cfg.Scan.Months = flags.months
	}
	if flags.output != "" {
		cfg.Scan.ReportPath = flags.output
	}
	if flags.seenPath != "" {
		cfg.Scan.SeenPath = flags.seenPath
	}
}

// openHistory opens the run-history store; history is best-effort and
// never blocks a scan.
func openHistory(log zerolog.Logger, dbPath string) store.Store {
	if dbPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Warn().Err(err).Msg("run history disabled")
		return nil
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		log.Warn().Err(err).Str("db", dbPath).Msg("run history disabled")
		return nil
	}
	return s
}

func recordStart(ctx context.Context, log zerolog.Logger, history store.Store, run model.Run) {
	if history == nil {
		return
	}
	if err := history.StartRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("recording run start failed")
	}
}

func recordFinish(ctx context.Context, log zerolog.Logger, history store.Store, run model.Run) {
	if history == nil {
		return
	}
	if err := history.FinishRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("recording run finish failed")
	}
}
