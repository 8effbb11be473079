// Package scan implements the scan phase: fetch messages over a
// lookback window and fold them into per-domain statistics.
package scan

import (
	"context"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"

	"github.com/nhle/mailsweep/internal/mailbox"
)

// progressEvery controls how often the scan loop logs progress.
const progressEvery = 25

// Mailbox is the message-retrieval collaborator the scan consumes.
type Mailbox interface {
	SearchSince(since time.Time) ([]imap.UID, error)
	Fetch(uid imap.UID) (*mailbox.Message, error)
}

// Summary reports what a completed scan did.
type Summary struct {
	Found   int
	Scanned int
	Skipped int
	Failed  int
}

// Service runs the scan loop against a mailbox and an aggregator.
type Service struct {
	log zerolog.Logger
	box Mailbox
	agg *Aggregator
}

// NewService creates a scan service.
func NewService(log zerolog.Logger, box Mailbox, agg *Aggregator) *Service {
	return &Service{
		log: log.With().Str("component", "scan").Logger(),
		box: box,
		agg: agg,
	}
}

// Run searches for messages since the given date and ingests each one.
// Per-message failures are logged and skipped; only search failure or
// context cancellation aborts the scan.
func (s *Service) Run(ctx context.Context, since time.Time) (Summary, error) {
	uids, err := s.box.SearchSince(since)
	if err != nil {
		return Summary{}, err
	}

	total := len(uids)
	s.log.Info().Int("messages", total).Time("since", since).Msg("starting scan")

	sum := Summary{Found: total}
	for i, uid := range uids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		msg, err := s.box.Fetch(uid)
		if err != nil {
			sum.Failed++
			s.log.Warn().Err(err).Uint32("uid", uint32(uid)).Msg("skipping unreadable message")
			continue
		}

		date := msg.Date
		if date.IsZero() {
			date = time.Now()
		}

		s.agg.Ingest(Message{
			Sender:          msg.From,
			Subject:         msg.Subject,
			BodyParts:       msg.Parts,
			ListUnsubscribe: msg.ListUnsubscribe,
			Date:            date,
		})
		sum.Scanned++

		if (i+1)%progressEvery == 0 || i+1 == total {
			s.log.Info().
				Int("done", i+1).
				Int("total", total).
				Msg("scan progress")
		}
	}

	sum.Skipped = s.agg.Skipped()
	s.log.Info().
		Int("scanned", sum.Scanned).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("domains", len(s.agg.Domains())).
		Msg("scan complete")

	return sum, nil
}
