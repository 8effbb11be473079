package model

import (
	"sort"
	"time"
)

// CandidateKind identifies the mechanism behind an unsubscribe candidate.
type CandidateKind string

const (
	CandidateURL    CandidateKind = "url"
	CandidateMailto CandidateKind = "mailto"
)

// Candidate is a single unsubscribe target harvested from a message,
// stamped with the message date and an optional token pulled from the
// target's query string.
type Candidate struct {
	// Target is the raw http(s) URL or mailto address.
	Target string

	// Kind distinguishes URL targets from mailto targets.
	Kind CandidateKind

	// Timestamp is the date of the message the candidate was seen in.
	Timestamp time.Time

	// Token is the first recognized query-string token, if any.
	Token string
}

// DomainRecord accumulates everything observed for one sending domain
// over the course of a scan. Keys into Senders are the full raw From
// header strings; the record's Domain is always lowercase.
type DomainRecord struct {
	Domain string

	// Senders maps raw From header strings to occurrence counts.
	Senders map[string]int

	// Categories is the set of service categories matched for this domain.
	Categories map[string]struct{}

	// Candidates maps unsubscribe targets to their newest-seen candidate.
	// A stored candidate is replaced only by a strictly later timestamp.
	Candidates map[string]Candidate

	// HasListUnsubscribe is true if any message from this domain carried
	// a List-Unsubscribe header.
	HasListUnsubscribe bool

	// LastListUnsubscribe is the last-seen raw header text.
	LastListUnsubscribe string

	// UnsubscribeURLs and UnsubscribeMailtos are the raw target sets
	// observed across all messages, independent of Candidates.
	UnsubscribeURLs    map[string]struct{}
	UnsubscribeMailtos map[string]struct{}
}

// NewDomainRecord creates an empty record for the given lowercase domain.
func NewDomainRecord(domain string) *DomainRecord {
	return &DomainRecord{
		Domain:             domain,
		Senders:            make(map[string]int),
		Categories:         make(map[string]struct{}),
		Candidates:         make(map[string]Candidate),
		UnsubscribeURLs:    make(map[string]struct{}),
		UnsubscribeMailtos: make(map[string]struct{}),
	}
}

// TotalEmails returns the sum of all sender occurrence counts.
func (r *DomainRecord) TotalEmails() int {
	total := 0
	for _, n := range r.Senders {
		total += n
	}
	return total
}

// MergeCandidate stores c under its target, replacing an existing entry
// only when c's timestamp is strictly later.
func (r *DomainRecord) MergeCandidate(c Candidate) {
	existing, ok := r.Candidates[c.Target]
	if ok && !c.Timestamp.After(existing.Timestamp) {
		return
	}
	r.Candidates[c.Target] = c
}

// NewestCandidate returns the candidate with the latest timestamp, or
// false if the record has none. Ties resolve to the lexically smallest
// target so the result is deterministic.
func (r *DomainRecord) NewestCandidate() (Candidate, bool) {
	var best Candidate
	found := false
	targets := make([]string, 0, len(r.Candidates))
	for t := range r.Candidates {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		c := r.Candidates[t]
		if !found || c.Timestamp.After(best.Timestamp) {
			best = c
			found = true
		}
	}
	return best, found
}

// SortedCategories returns the category set as a sorted slice.
func (r *DomainRecord) SortedCategories() []string {
	out := make([]string, 0, len(r.Categories))
	for c := range r.Categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
