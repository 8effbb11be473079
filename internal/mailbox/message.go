package mailbox

import (
	"bytes"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is a fetched mailbox message reduced to the headers and text
// parts the scan pipeline consumes.
type Message struct {
	// From is the full raw From header string, RFC 2047 decoded.
	From string

	Subject string

	// Date is the parsed Date header; zero when absent or unparseable.
	Date time.Time

	// ListUnsubscribe is the raw List-Unsubscribe header value, if any.
	ListUnsubscribe string

	// Parts holds the decoded text/plain and text/html part bodies, in
	// message order.
	Parts []string
}

// ParseRaw parses a raw RFC 2822 message. Headers and parts that fail
// to decode fall back to best-effort text; parsing never fails outright.
func ParseRaw(raw []byte) *Message {
	out := &Message{}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Unparseable structure: treat the whole payload as one plain
		// text part so the scan still sees something.
		out.Parts = append(out.Parts, DecodeText(raw))
		return out
	}
	defer mr.Close()

	out.From = headerText(mr.Header, "From")
	out.Subject = headerText(mr.Header, "Subject")
	out.ListUnsubscribe = mr.Header.Get("List-Unsubscribe")
	if date, err := mr.Header.Date(); err == nil {
		out.Date = date
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") &&
			!strings.HasPrefix(contentType, "text/html") {
			continue
		}

		body, readErr := io.ReadAll(part.Body)
		if readErr != nil && len(body) == 0 {
			continue
		}
		out.Parts = append(out.Parts, DecodeText(body))
	}

	return out
}

// headerText returns the decoded text of a header field, falling back
// to the raw value when RFC 2047 decoding fails.
func headerText(h mail.Header, key string) string {
	if text, err := h.Text(key); err == nil {
		return text
	}
	return h.Get(key)
}
