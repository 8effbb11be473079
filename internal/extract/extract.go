// Package extract pulls unsubscribe mechanisms out of message headers
// and bodies: List-Unsubscribe targets, body links containing opt-out
// keywords, query-string tokens, and mailto parameters.
package extract

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nhle/mailsweep/internal/model"
)

// bracketEntry matches the pointy-bracket-delimited entries of a
// List-Unsubscribe header.
var bracketEntry = regexp.MustCompile(`<([^>]+)>`)

// bodyUnsubscribeURL matches URL-shaped substrings whose path or query
// contains one of the fixed opt-out keywords.
var bodyUnsubscribeURL = regexp.MustCompile(
	`(?i)https?://[^\s<>"']*(?:unsubscribe|opt-out|email-preferences|manage-subscriptions)[^\s<>"']*`,
)

// quotedPrintable replaces the escape sequences that show up in soft-wrapped
// List-Unsubscribe headers. "=3A//" first so scheme separators survive the
// bare "=3A" pass.
var quotedPrintable = strings.NewReplacer(
	"=3A//", "://",
	"=3A", ":",
	"=2E", ".",
	"=2F", "/",
	"=5F", "_",
	"=2D", "-",
	"=3D", "=",
	"=26", "&",
	"=3F", "?",
	"=3C", "<",
	"=3E", ">",
	"=40", "@",
	"=20", " ",
)

// encodedWord matches RFC 2047 Q-encoded header fragments.
var encodedWord = regexp.MustCompile(`=\?[Uu][Ss]-[Aa][Ss][Cc][Ii][Ii]\?[Qq]\?(.*?)\?=`)

// tokenParams is the ordered list of query parameter names recognized
// as unsubscribe tokens. First present wins.
var tokenParams = []string{"token", "id", "uid", "key", "code", "hash", "verify"}

// percentDecode percent-decodes s, returning s unchanged when it is not
// valid percent-encoding. Decoding plain text is a no-op.
func percentDecode(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// DecodeHeader normalizes a raw header value: whitespace is collapsed,
// Q-encoded fragments are unwrapped, escape sequences and
// percent-encoding are decoded. Already-plain text passes through
// unchanged, so the function is safe to apply twice.
func DecodeHeader(header string) string {
	header = strings.Join(strings.Fields(header), " ")

	parts := encodedWord.FindAllStringSubmatch(header, -1)
	if len(parts) > 0 {
		var joined strings.Builder
		for _, p := range parts {
			joined.WriteString(p[1])
		}
		header = joined.String()
	}

	return percentDecode(quotedPrintable.Replace(header))
}

// CleanURL decodes escape sequences and percent-encoding in a single
// unsubscribe target. Idempotent on already-clean targets.
func CleanURL(raw string) string {
	return percentDecode(quotedPrintable.Replace(strings.TrimSpace(raw)))
}

// FromHeader splits a List-Unsubscribe header value into its HTTP URLs
// and bare mailto addresses, in header order.
func FromHeader(header string) (urls, mailtos []string) {
	decoded := DecodeHeader(header)
	for _, m := range bracketEntry.FindAllStringSubmatch(decoded, -1) {
		entry := CleanURL(m[1])
		switch {
		case strings.HasPrefix(entry, "http"):
			urls = append(urls, entry)
		case strings.HasPrefix(entry, "mailto:"):
			mailtos = append(mailtos, strings.TrimPrefix(entry, "mailto:"))
		}
	}
	return urls, mailtos
}

// FromBody scans free body text for unsubscribe-looking URLs.
func FromBody(body string) []string {
	return bodyUnsubscribeURL.FindAllString(body, -1)
}

// Token parses a URL's query string and returns the value of the first
// recognized token parameter, or "" if none is present.
func Token(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, name := range tokenParams {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// Extract gathers all unsubscribe candidates from a message's
// List-Unsubscribe header value (may be empty) and body text, stamping
// each with ts. Candidates from both sources are unioned and deduped by
// exact target string.
func Extract(header, body string, ts time.Time) []model.Candidate {
	var out []model.Candidate
	seen := make(map[string]struct{})

	add := func(target string, kind model.CandidateKind) {
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		c := model.Candidate{Target: target, Kind: kind, Timestamp: ts}
		if kind == model.CandidateURL {
			c.Token = Token(target)
		}
		out = append(out, c)
	}

	if header != "" {
		urls, mailtos := FromHeader(header)
		for _, u := range urls {
			add(u, model.CandidateURL)
		}
		for _, m := range mailtos {
			add(m, model.CandidateMailto)
		}
	}

	for _, u := range FromBody(body) {
		add(u, model.CandidateURL)
	}

	return out
}
