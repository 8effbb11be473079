package mailbox

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// legacyEncodings is the ordered fallback chain applied to part bodies
// that are not valid UTF-8. First successful decode wins.
var legacyEncodings = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
	charmap.ISO8859_15,
}

// DecodeText converts raw message bytes to a string: valid UTF-8 passes
// through, otherwise the legacy single-byte encodings are tried in
// order, and as a last resort the bytes are kept as-is. It never fails.
func DecodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	for _, enc := range legacyEncodings {
		if decoded, err := enc.NewDecoder().Bytes(b); err == nil {
			return string(decoded)
		}
	}
	return string(b)
}
