package object

import (
	"bytes"
	"strings"

	"github.com/nivlgo/gitlite/internal/readutil"
)

// readContinuationLines reconstructs a multi-line header value. first is the
// text already read on the header's own line; any immediately following
// line starting with a single space is a continuation of that value, per
// git's header format. It returns the rebuilt value (continuation lines
// joined with "\n", leading space stripped) and the number of bytes
// consumed from rest for those continuation lines (not including first).
func readContinuationLines(rest []byte, first string) (value string, consumed int) {
	value = first
	for consumed < len(rest) && rest[consumed] == ' ' {
		line := readutil.ReadTo(rest[consumed+1:], '\n')
		value += "\n" + string(line)
		consumed += len(line) + 2 // +1 for the leading space, +1 for the \n
	}
	return value, consumed
}

// writeHeaderValue writes "key value\n" to buf, re-prefixing any
// continuation line (joined in value by "\n") with a single space so the
// header round-trips byte for byte.
func writeHeaderValue(buf *bytes.Buffer, key, value string) {
	lines := strings.Split(value, "\n")
	buf.WriteString(key)
	buf.WriteByte(' ')
	buf.WriteString(lines[0])
	buf.WriteByte('\n')
	for _, l := range lines[1:] {
		buf.WriteByte(' ')
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
}
