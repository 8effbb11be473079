// Package unsub executes unsubscribe attempts for report rows flagged
// by the user, and rewrites the report with per-row outcomes.
package unsub

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsweep/internal/extract"
	"github.com/nhle/mailsweep/internal/model"
	"github.com/nhle/mailsweep/internal/report"
)

// Fetcher issues a timed GET and reports the response status code.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (int, error)
}

// Sender submits a textual unsubscribe request over the mail-submission
// session.
type Sender interface {
	Send(to, subject, body string) error
}

// HeaderFinder searches the mailbox for a domain's List-Unsubscribe
// header; used as a fallback when a row carries no stored candidates.
type HeaderFinder interface {
	FindListUnsubscribe(domain string, since time.Time) (string, error)
}

// OutcomeRecorder persists per-row outcomes to the run history.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, o model.Outcome) error
}

// Summary reports what a completed execution did.
type Summary struct {
	Rows      int
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int

	// Processed lists the domains successfully unsubscribed, sorted.
	Processed []string
}

// Executor walks an edited report and attempts unsubscription per row.
type Executor struct {
	log      zerolog.Logger
	fetcher  Fetcher
	sender   Sender
	finder   HeaderFinder
	recorder OutcomeRecorder

	runID     string
	daysBack  int
	processed map[string]struct{}
}

// Options configures an Executor. Sender, HeaderFinder, and
// OutcomeRecorder may be nil; the corresponding steps are skipped with
// a recorded reason.
type Options struct {
	Fetcher  Fetcher
	Sender   Sender
	Finder   HeaderFinder
	Recorder OutcomeRecorder
	RunID    string
	DaysBack int
}

// NewExecutor creates an executor with an empty processed set.
func NewExecutor(log zerolog.Logger, opts Options) *Executor {
	days := opts.DaysBack
	if days <= 0 {
		days = 30
	}
	return &Executor{
		log:       log.With().Str("component", "unsub").Logger(),
		fetcher:   opts.Fetcher,
		sender:    opts.Sender,
		finder:    opts.Finder,
		recorder:  opts.Recorder,
		runID:     opts.RunID,
		daysBack:  days,
		processed: make(map[string]struct{}),
	}
}

// Run reads the report at path, processes every row, and atomically
// rewrites the file with a Status column added. All original columns
// and row order are preserved.
func (e *Executor) Run(ctx context.Context, path string) (Summary, error) {
	tbl, err := report.ReadTable(path)
	if err != nil {
		return Summary{}, err
	}

	domainCol := tbl.Index(report.ColDomain)
	deleteCol := tbl.Index(report.ColDelete)
	hasHeaderCol := tbl.Index(report.ColHasHeader)
	urlsCol := tbl.Index(report.ColURLs)
	mailtosCol := tbl.Index(report.ColMailtos)
	rawHeaderCol := tbl.Index(report.ColRawHeader)
	statusCol := tbl.EnsureColumn(report.ColStatus)

	sum := Summary{Rows: len(tbl.Rows)}
	for i := range tbl.Rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		domain := strings.TrimSpace(tbl.Get(i, domainCol))
		status := e.processRow(ctx, rowInput{
			domain:    domain,
			delete:    tbl.Get(i, deleteCol),
			hasHeader: tbl.Get(i, hasHeaderCol),
			urls:      splitList(tbl.Get(i, urlsCol)),
			mailtos:   splitList(tbl.Get(i, mailtosCol)),
			rawHeader: strings.TrimSpace(tbl.Get(i, rawHeaderCol)),
		})
		tbl.Set(i, statusCol, status)

		switch {
		case strings.HasPrefix(status, "Success"):
			sum.Attempted++
			sum.Succeeded++
		case strings.HasPrefix(status, "Failed"):
			sum.Attempted++
			sum.Failed++
		default:
			sum.Skipped++
		}
	}

	if err := tbl.WriteAtomic(path); err != nil {
		return sum, err
	}

	for d := range e.processed {
		sum.Processed = append(sum.Processed, d)
	}
	sort.Strings(sum.Processed)

	e.log.Info().
		Int("rows", sum.Rows).
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).
		Str("report", path).
		Msg("unsubscribe run complete")

	return sum, nil
}

// rowInput is the per-row data the state machine consumes.
type rowInput struct {
	domain    string
	delete    string
	hasHeader string
	urls      []string
	mailtos   []string
	rawHeader string
}

// processRow runs the per-row state machine: Skipped unless the row is
// action-flagged, carries the unsubscribe-header flag, and its domain
// has not already been processed this run; otherwise Attempting, ending
// in Success(method) or Failed(reason).
func (e *Executor) processRow(ctx context.Context, row rowInput) string {
	if row.domain == "" || !isAffirmative(row.delete) || !isAffirmative(row.hasHeader) {
		return model.StatusSkipped
	}
	if _, done := e.processed[row.domain]; done {
		return model.StatusAlreadyProcessed
	}

	e.log.Info().Str("domain", row.domain).Msg("attempting unsubscribe")

	method, reason := e.attempt(ctx, row)
	now := time.Now()

	if method != "" {
		e.processed[row.domain] = struct{}{}
		e.record(ctx, model.Outcome{
			RunID:       e.runID,
			Domain:      row.domain,
			Status:      model.SuccessStatus(method),
			Method:      method,
			AttemptedAt: now,
		})
		e.log.Info().Str("domain", row.domain).Str("method", method).Msg("unsubscribed")
		return model.SuccessStatus(method)
	}

	status := model.FailedStatus(reason)
	e.record(ctx, model.Outcome{
		RunID:       e.runID,
		Domain:      row.domain,
		Status:      status,
		Reason:      reason,
		AttemptedAt: now,
	})
	e.log.Warn().Str("domain", row.domain).Str("reason", reason).Msg("unsubscribe failed")
	return status
}

// attempt tries every method in priority order and returns the
// successful method label, or "" and the last recorded reason.
func (e *Executor) attempt(ctx context.Context, row rowInput) (method, lastReason string) {
	urls := row.urls
	mailtos := row.mailtos
	rawHeader := row.rawHeader

	// Mailbox fallback: a flagged row with nothing stored at all gets
	// one more chance via a recent message's header.
	if len(urls) == 0 && len(mailtos) == 0 && rawHeader == "" && e.finder != nil {
		since := time.Now().AddDate(0, 0, -e.daysBack)
		found, err := e.finder.FindListUnsubscribe(row.domain, since)
		if err != nil {
			lastReason = "mailbox search: " + err.Error()
		} else {
			rawHeader = found
		}
	}

	if m, reason := e.tryURLs(ctx, urls, model.MethodStoredURL); m != "" {
		return m, ""
	} else if reason != "" {
		lastReason = reason
	}

	if m, reason := e.tryMailtos(mailtos, model.MethodStoredMailto); m != "" {
		return m, ""
	} else if reason != "" {
		lastReason = reason
	}

	if rawHeader != "" {
		headerURLs, headerMailtos := extract.FromHeader(rawHeader)
		if m, reason := e.tryURLs(ctx, headerURLs, model.MethodHeaderURL); m != "" {
			return m, ""
		} else if reason != "" {
			lastReason = reason
		}
		if m, reason := e.tryMailtos(headerMailtos, model.MethodHeaderMailto); m != "" {
			return m, ""
		} else if reason != "" {
			lastReason = reason
		}
	}

	return "", lastReason
}

// tryURLs fetches each URL in order; the first 200 wins.
func (e *Executor) tryURLs(ctx context.Context, urls []string, label string) (method, lastReason string) {
	if e.fetcher == nil {
		return "", ""
	}
	for _, u := range urls {
		status, err := e.fetcher.Fetch(ctx, u)
		if err != nil {
			lastReason = "GET " + u + ": " + err.Error()
			e.log.Warn().Str("url", u).Err(err).Msg("HTTP unsubscribe failed")
			continue
		}
		if status != 200 {
			lastReason = "GET " + u + ": status " + strconv.Itoa(status)
			e.log.Warn().Str("url", u).Int("status", status).Msg("HTTP unsubscribe rejected")
			continue
		}
		return label, ""
	}
	return "", lastReason
}

// tryMailtos sends an unsubscribe message to each target in order.
func (e *Executor) tryMailtos(mailtos []string, label string) (method, lastReason string) {
	if e.sender == nil {
		if len(mailtos) > 0 {
			return "", "no mail-submission session for mailto targets"
		}
		return "", ""
	}
	for _, m := range mailtos {
		parsed, err := extract.ParseMailto(m)
		if err != nil {
			lastReason = "mailto " + m + ": " + err.Error()
			continue
		}
		if err := e.sender.Send(parsed.To, parsed.Subject, parsed.Body); err != nil {
			lastReason = "mailto " + parsed.To + ": " + err.Error()
			e.log.Warn().Str("to", parsed.To).Err(err).Msg("mailto unsubscribe failed")
			continue
		}
		return label, ""
	}
	return "", lastReason
}

// record writes an outcome to the run history; failures are logged,
// never fatal.
func (e *Executor) record(ctx context.Context, o model.Outcome) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordOutcome(ctx, o); err != nil {
		e.log.Warn().Err(err).Str("domain", o.Domain).Msg("recording outcome failed")
	}
}

// isAffirmative reports whether a user-edited cell means yes.
func isAffirmative(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}

// splitList splits a semicolon-joined report cell into its entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
