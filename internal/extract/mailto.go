package extract

import (
	"fmt"
	"strings"
)

// defaultMailtoBody is sent when a mailto target carries no body param.
const defaultMailtoBody = "Please unsubscribe me from this mailing list."

// Mailto is a parsed mailto unsubscribe target with subject and body
// defaults applied.
type Mailto struct {
	To      string
	Subject string
	Body    string
}

// ParseMailto parses a mailto target into recipient, subject, and body.
// The "mailto:" scheme prefix is optional. Subject defaults to
// "Unsubscribe" and body to a boilerplate unsubscribe request.
func ParseMailto(raw string) (Mailto, error) {
	s := percentDecode(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "mailto:")

	addr := s
	params := ""
	if i := strings.Index(s, "?"); i >= 0 {
		addr = s[:i]
		params = s[i+1:]
	}

	if addr == "" {
		return Mailto{}, fmt.Errorf("mailto target %q has no recipient", raw)
	}

	m := Mailto{
		To:      addr,
		Subject: "Unsubscribe",
		Body:    defaultMailtoBody,
	}

	for _, pair := range strings.Split(params, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		value = percentDecode(value)
		switch strings.ToLower(key) {
		case "subject":
			if value != "" {
				m.Subject = value
			}
		case "body":
			if value != "" {
				m.Body = value
			}
		}
	}

	return m, nil
}
