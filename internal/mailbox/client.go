// Package mailbox wraps go-imap v2 in the narrow interface the scan and
// unsubscribe phases need: one authenticated session per run, searched
// by date and fetched message by message.
package mailbox

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"
)

// dialTimeout caps how long a connection attempt may block.
const dialTimeout = 30 * time.Second

// AuthError indicates the server rejected the supplied credentials.
// It is fatal to the run.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Client is an authenticated IMAP session with INBOX selected. It is
// owned by the top-level run and must be released via Close on all exit
// paths.
type Client struct {
	log zerolog.Logger
	cli *imapclient.Client
}

// Dial connects to the IMAP server over TLS, authenticates, and selects
// INBOX. Login failure returns an AuthError.
func Dial(log zerolog.Logger, host, port, username, password string) (*Client, error) {
	addr := net.JoinHostPort(host, port)

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	cli := imapclient.New(conn, nil)

	if err := cli.Login(username, password).Wait(); err != nil {
		_ = cli.Logout().Wait()
		return nil, &AuthError{
			Message: fmt.Sprintf("authentication failed for %s: %v", username, err),
		}
	}

	if _, err := cli.Select("INBOX", nil).Wait(); err != nil {
		_ = cli.Logout().Wait()
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	log.Info().Str("server", addr).Str("user", username).Msg("IMAP connection established")

	return &Client{
		log: log.With().Str("component", "mailbox").Logger(),
		cli: cli,
	}, nil
}

// SearchSince returns the UIDs of all INBOX messages received on or
// after since, in mailbox order.
func (c *Client) SearchSince(since time.Time) ([]imap.UID, error) {
	criteria := &imap.SearchCriteria{Since: since}

	searchData, err := c.cli.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages since %s: %w",
			since.Format("2006-01-02"), err)
	}

	return searchData.AllUIDs(), nil
}

// Fetch retrieves and parses the full message for the given UID.
func (c *Client) Fetch(uid imap.UID) (*Message, error) {
	uidSet := imap.UIDSetNum(uid)

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := c.cli.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body section", uid)
	}

	return ParseRaw(raw), nil
}

// Close logs out of the IMAP session.
func (c *Client) Close() error {
	if err := c.cli.Logout().Wait(); err != nil {
		return fmt.Errorf("logging out of IMAP: %w", err)
	}
	return nil
}
