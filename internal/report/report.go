// Package report renders aggregation state to the CSV domain report and
// reads edited reports back for the unsubscribe phase.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/nhle/mailsweep/internal/model"
)

// Report column names. The unsubscribe phase appends ColStatus.
const (
	ColDomain        = "Domain"
	ColCategories    = "Categories"
	ColUniqueSenders = "Unique Senders"
	ColTotalEmails   = "Total Emails"
	ColSenders       = "Senders"
	ColURLs          = "Unsubscribe URLs"
	ColMailtos       = "Unsubscribe Mailtos"
	ColHasHeader     = "List-Unsubscribe"
	ColRawHeader     = "List-Unsubscribe Header"
	ColToken         = "Unsubscribe Token"
	ColLastDate      = "Last Unsubscribe Date"
	ColDelete        = "Delete"
	ColStatus        = "Status"
)

// Sentinels for domains without any unsubscribe candidate.
const (
	NoToken = "No token"
	NoDate  = "N/A"
)

// minTotalEmails suppresses single-contact domains as noise.
const minTotalEmails = 2

// dateLayout formats candidate timestamps in the report.
const dateLayout = "2006-01-02 15:04:05"

// Header is the fixed column order of a freshly written report.
var Header = []string{
	ColDomain, ColCategories, ColUniqueSenders, ColTotalEmails,
	ColSenders, ColURLs, ColMailtos, ColHasHeader, ColRawHeader,
	ColToken, ColLastDate, ColDelete,
}

// Write renders one row per reportable domain (total emails >= 2),
// sorted by domain, to a CSV file at path. Output is deterministic for
// identical aggregation state.
func Write(path string, domains map[string]*model.DomainRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}

	keys := make([]string, 0, len(domains))
	for d := range domains {
		keys = append(keys, d)
	}
	sort.Strings(keys)

	for _, d := range keys {
		rec := domains[d]
		if rec.TotalEmails() < minTotalEmails {
			continue
		}
		if err := w.Write(row(rec)); err != nil {
			return fmt.Errorf("writing report row for %s: %w", d, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing report %s: %w", path, err)
	}
	return f.Close()
}

// row projects a DomainRecord into report columns.
func row(rec *model.DomainRecord) []string {
	categories := "Uncategorized"
	if cats := rec.SortedCategories(); len(cats) > 0 {
		categories = strings.Join(cats, ", ")
	}

	hasHeader := "No"
	if rec.HasListUnsubscribe {
		hasHeader = "Yes"
	}

	token := NoToken
	lastDate := NoDate
	if c, ok := rec.NewestCandidate(); ok {
		if c.Token != "" {
			token = c.Token
		}
		lastDate = c.Timestamp.Format(dateLayout)
	}

	return []string{
		rec.Domain,
		categories,
		fmt.Sprintf("%d", len(rec.Senders)),
		fmt.Sprintf("%d", rec.TotalEmails()),
		joinSorted(rec.Senders),
		joinSortedSet(rec.UnsubscribeURLs),
		joinSortedSet(rec.UnsubscribeMailtos),
		hasHeader,
		rec.LastListUnsubscribe,
		token,
		lastDate,
		"", // Delete: user-editable action column
	}
}

func joinSorted(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}

func joinSortedSet(m map[string]struct{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}
