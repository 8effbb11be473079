package scan

import (
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsweep/internal/classify"
	"github.com/nhle/mailsweep/internal/extract"
	"github.com/nhle/mailsweep/internal/model"
	"github.com/nhle/mailsweep/internal/seen"
)

// atDomain extracts an @domain token from unstructured sender text.
var atDomain = regexp.MustCompile(`@[\w.-]+`)

// bareDomain extracts a domain-like token without a leading @. The TLD
// list is fixed; anything else falls through to the raw sender string.
var bareDomain = regexp.MustCompile(
	`(?i)[\w-]+(?:\.[\w-]+)*\.(?:com|net|org|io|co|edu|gov|mil|biz|info|me|app|dev)\b`,
)

// subjectAccountKeywords flag subjects that suggest an account
// relationship with the sender.
var subjectAccountKeywords = []string{"account", "subscription", "login", "welcome"}

// ResolveDomain maps a sender header (or a bare service keyword) to its
// aggregation domain. The strategies are tried in order, first match
// wins:
//  1. parse as a structured address and take the part after @
//  2. regex-extract an @domain token
//  3. regex-extract a bare domain-like token
//  4. the lowercased input itself
//
// Step 4 means single-word service keywords resolve to themselves,
// which groups classification hits under the service name rather than a
// real mailbox domain. Report consumers rely on that grouping.
func ResolveDomain(sender string) string {
	if addr, err := mail.ParseAddress(sender); err == nil {
		if _, domain, ok := strings.Cut(addr.Address, "@"); ok && domain != "" {
			return strings.ToLower(domain)
		}
	}

	if m := atDomain.FindString(sender); m != "" {
		return strings.ToLower(strings.TrimPrefix(m, "@"))
	}

	if m := bareDomain.FindString(sender); m != "" {
		return strings.ToLower(m)
	}

	return strings.ToLower(sender)
}

// Message is one scanned mailbox message, already fetched and decoded.
type Message struct {
	// Sender is the full raw From header string.
	Sender string

	Subject string

	// BodyParts holds the decoded text/plain and text/html part bodies.
	BodyParts []string

	// ListUnsubscribe is the raw List-Unsubscribe header value, if any.
	ListUnsubscribe string

	// Date is the message timestamp (callers substitute time.Now() when
	// the date header is absent or unparseable).
	Date time.Time
}

// Aggregator folds a stream of messages into per-domain statistics. It
// is not safe for concurrent use; the scan loop is sequential.
type Aggregator struct {
	log        zerolog.Logger
	targetName string
	prior      *seen.Set

	domains        map[string]*model.DomainRecord
	personalized   map[string]struct{}
	accountSenders map[string]struct{}
	skipped        int
	ingested       int
}

// NewAggregator creates an aggregator that skips identifiers in prior
// and flags personalization for targetName (case-insensitive).
func NewAggregator(log zerolog.Logger, targetName string, prior *seen.Set) *Aggregator {
	if prior == nil {
		prior = seen.NewSet()
	}
	return &Aggregator{
		log:            log.With().Str("component", "aggregator").Logger(),
		targetName:     strings.ToLower(targetName),
		prior:          prior,
		domains:        make(map[string]*model.DomainRecord),
		personalized:   make(map[string]struct{}),
		accountSenders: make(map[string]struct{}),
	}
}

// record returns the DomainRecord for domain, creating it on first use.
func (a *Aggregator) record(domain string) *model.DomainRecord {
	r, ok := a.domains[domain]
	if !ok {
		r = model.NewDomainRecord(domain)
		a.domains[domain] = r
	}
	return r
}

// Ingest folds one message into the aggregation state.
func (a *Aggregator) Ingest(msg Message) {
	domain := ResolveDomain(msg.Sender)

	if a.prior.Contains(msg.Sender) || a.prior.Contains(domain) {
		a.skipped++
		a.log.Debug().Str("domain", domain).Msg("skipping previously seen sender")
		return
	}

	a.ingested++
	rec := a.record(domain)
	rec.Senders[msg.Sender]++

	if subjectSuggestsAccount(msg.Subject) {
		a.accountSenders[msg.Sender] = struct{}{}
	}

	for _, part := range msg.BodyParts {
		for _, m := range classify.Classify(part) {
			// Categories attach to the matched service's own resolved
			// domain, which for bare keywords is the keyword itself.
			serviceDomain := ResolveDomain(m.Service)
			a.record(serviceDomain).Categories[m.Category] = struct{}{}
		}
	}

	body := strings.Join(msg.BodyParts, "\n")
	for _, c := range extract.Extract(msg.ListUnsubscribe, body, msg.Date) {
		rec.MergeCandidate(c)
		switch c.Kind {
		case model.CandidateURL:
			rec.UnsubscribeURLs[c.Target] = struct{}{}
		case model.CandidateMailto:
			rec.UnsubscribeMailtos[c.Target] = struct{}{}
		}
	}
	if msg.ListUnsubscribe != "" {
		rec.HasListUnsubscribe = true
		rec.LastListUnsubscribe = msg.ListUnsubscribe
	}

	if a.isPersonalized(msg) {
		a.personalized[msg.Sender] = struct{}{}
	}
}

// isPersonalized reports whether the target name appears in the subject
// or any body part.
func (a *Aggregator) isPersonalized(msg Message) bool {
	if a.targetName == "" {
		return false
	}
	if strings.Contains(strings.ToLower(msg.Subject), a.targetName) {
		return true
	}
	for _, part := range msg.BodyParts {
		if strings.Contains(strings.ToLower(part), a.targetName) {
			return true
		}
	}
	return false
}

// subjectSuggestsAccount reports whether the subject mentions one of
// the account-relationship keywords.
func subjectSuggestsAccount(subject string) bool {
	s := strings.ToLower(subject)
	for _, kw := range subjectAccountKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Domains returns the aggregation state keyed by domain.
func (a *Aggregator) Domains() map[string]*model.DomainRecord {
	return a.domains
}

// Skipped returns the number of messages skipped via the seen set.
func (a *Aggregator) Skipped() int { return a.skipped }

// Ingested returns the number of messages folded into state.
func (a *Aggregator) Ingested() int { return a.ingested }

// Personalized returns the sorted senders that used the target name.
func (a *Aggregator) Personalized() []string {
	out := make([]string, 0, len(a.personalized))
	for s := range a.personalized {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// AccountSenders returns the sorted senders whose subjects suggested an
// account relationship.
func (a *Aggregator) AccountSenders() []string {
	out := make([]string, 0, len(a.accountSenders))
	for s := range a.accountSenders {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Identifiers returns every identifier this run produced, for the
// previously-seen union: all domains, personalized senders, and
// account-flagged senders.
func (a *Aggregator) Identifiers() []string {
	var out []string
	for d := range a.domains {
		out = append(out, d)
	}
	out = append(out, a.Personalized()...)
	out = append(out, a.AccountSenders()...)
	return out
}
