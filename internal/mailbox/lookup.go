package mailbox

import (
	"strings"
	"time"
)

// FindListUnsubscribe searches the mailbox, newest first, for a message
// from the given domain carrying a List-Unsubscribe header, and returns
// the raw header value. It returns "" when no such message exists in
// the window. Per-message fetch failures are logged and skipped.
func (c *Client) FindListUnsubscribe(domain string, since time.Time) (string, error) {
	uids, err := c.SearchSince(since)
	if err != nil {
		return "", err
	}

	needle := strings.ToLower(domain)
	for i := len(uids) - 1; i >= 0; i-- {
		msg, err := c.Fetch(uids[i])
		if err != nil {
			c.log.Warn().Err(err).Uint32("uid", uint32(uids[i])).
				Msg("skipping unreadable message during header lookup")
			continue
		}
		if !strings.Contains(strings.ToLower(msg.From), needle) {
			continue
		}
		if msg.ListUnsubscribe != "" {
			c.log.Info().Str("domain", domain).Str("from", msg.From).
				Msg("found List-Unsubscribe header in mailbox")
			return msg.ListUnsubscribe, nil
		}
	}

	return "", nil
}
