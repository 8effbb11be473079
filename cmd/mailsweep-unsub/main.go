package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailsweep/internal/credential"
	"github.com/nhle/mailsweep/internal/mailbox"
	"github.com/nhle/mailsweep/internal/model"
	"github.com/nhle/mailsweep/internal/smtpout"
	"github.com/nhle/mailsweep/internal/store"
	"github.com/nhle/mailsweep/internal/unsub"
)

type unsubFlags struct {
	email      string
	password   string
	csvPath    string
	server     string
	smtpServer string
	smtpPort   string
	days       int
	cfgPath    string
}

func main() {
	flags := parseUnsubFlags()

	log, logClose, err := openLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening log file:", err)
		os.Exit(1)
	}
	defer logClose()

	if err := run(log, flags); err != nil {
		log.Error().Err(err).Msg("mailsweep-unsub failed")
		os.Exit(1)
	}
}

func parseUnsubFlags() unsubFlags {
	email := flag.String("email", "", "mailbox address (required)")
	password := flag.String("password", "", "mailbox password or app password (default: system keyring)")
	csvPath := flag.String("csv", "", "edited domain report CSV (required)")
	server := flag.String("server", "", "IMAP server hostname for the fallback search")
	smtpServer := flag.String("smtp-server", "", "SMTP submission server hostname")
	smtpPort := flag.String("smtp-port", "", "SMTP submission server port")
	days := flag.Int("days", 0, "lookback window in days for the fallback search")
	cfgPath := flag.String("config", model.DefaultConfigPath(), "configuration file path")
	flag.Parse()

	return unsubFlags{
		email:      *email,
		password:   *password,
		csvPath:    *csvPath,
		server:     *server,
		smtpServer: *smtpServer,
		smtpPort:   *smtpPort,
		days:       *days,
		cfgPath:    *cfgPath,
	}
}

// openLogger writes to the console and to a timestamped log file so
// each unsubscribe run leaves an audit trail.
func openLogger() (zerolog.Logger, func(), error) {
	name := "unsubscribe_log_" + time.Now().Format("20060102_150405") + ".txt"
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	w := zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stdout}, f)
	log := zerolog.New(w).With().Timestamp().Logger()
	log.Info().Str("file", name).Msg("logging to file")

	return log, func() { f.Close() }, nil
}

func run(log zerolog.Logger, flags unsubFlags) error {
	if flags.email == "" {
		return fmt.Errorf("-email is required")
	}
	if flags.csvPath == "" {
		return fmt.Errorf("-csv is required")
	}
	if _, err := os.Stat(flags.csvPath); err != nil {
		return fmt.Errorf("report %s: %w", flags.csvPath, err)
	}

	cfg, err := model.LoadConfig(flags.cfgPath)
	if err != nil {
		return err
	}
	applyUnsubFlags(cfg, flags)

	password := flags.password
	if password == "" {
		password, err = credential.Get("imap:" + flags.email)
		if err != nil {
			return fmt.Errorf("no -password given and keyring lookup failed: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	box, err := mailbox.Dial(log, cfg.IMAP.Host, cfg.IMAP.Port, flags.email, password)
	if err != nil {
		return err
	}
	defer closeQuietly(log, "mailbox", box)

	// mailto targets need a working submission session, but a failed
	// SMTP connect should not abandon the HTTP attempts.
	var sender unsub.Sender
	smtpSession, err := smtpout.Connect(log, smtpout.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: flags.email,
		Password: password,
	})
	if err != nil {
		log.Warn().Err(err).Msg("SMTP unavailable, mailto targets will be skipped")
	} else {
		sender = smtpSession
		defer closeQuietly(log, "smtp", smtpSession)
	}

	history := openHistory(log, cfg.DBPath)
	if history != nil {
		defer history.Close()
	}

	runRec := model.Run{
		ID:         uuid.NewString(),
		Kind:       model.RunKindUnsubscribe,
		Mailbox:    flags.email,
		StartedAt:  time.Now(),
		ReportPath: flags.csvPath,
	}
	recordStart(ctx, log, history, runRec)

	exec := unsub.NewExecutor(log, unsub.Options{
		Fetcher:  unsub.NewHTTPFetcher(),
		Sender:   sender,
		Finder:   box,
		Recorder: history,
		RunID:    runRec.ID,
		DaysBack: cfg.Unsubscribe.Days,
	})

	sum, err := exec.Run(ctx, flags.csvPath)
	if err != nil {
		return err
	}

	runRec.FinishedAt = time.Now()
	runRec.Scanned = sum.Rows
	runRec.Skipped = sum.Skipped
	runRec.Domains = len(sum.Processed)
	recordFinish(ctx, log, history, runRec)

	for _, d := range sum.Processed {
		log.Info().Str("domain", d).Msg("unsubscribed")
	}
	log.Info().
		Int("rows", sum.Rows).
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).
		Msg("done")

	return nil
}

// applyUnsubFlags overlays non-empty CLI flags onto the loaded config.
func applyUnsubFlags(cfg *model.AppConfig, flags unsubFlags) {
	if flags.server != "" {
		cfg.IMAP.Host = flags.server
	}
	if flags.smtpServer != "" {
		cfg.SMTP.Host = flags.smtpServer
	}
	if flags.smtpPort != "" {
		cfg.SMTP.Port = flags.smtpPort
	}
	if flags.days > 0 {
		cfg.Unsubscribe.Days = flags.days
	}
}

// openHistory opens the run-history store; history is best-effort and
// never blocks a run.
func openHistory(log zerolog.Logger, dbPath string) store.Store {
	if dbPath == "" {
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

func closeQuietly(log zerolog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("session", what).Msg("close failed")
	}
}
