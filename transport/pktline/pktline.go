// Package pktline implements the length-prefixed line framing used by
// the git smart-HTTP protocol: a 4-hex-digit big-endian ASCII length
// field (counting itself) followed by length-4 payload bytes.
// https://git-scm.com/docs/protocol-common#_pkt_line_format
package pktline

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"golang.org/x/xerrors"
)

// MaxLineSize is the largest payload a single pkt-line may carry.
const MaxLineSize = 65516

const lenPrefixSize = 4

var (
	// ErrLineTooLong is returned when a caller asks to write a payload
	// larger than MaxLineSize.
	ErrLineTooLong = errors.New("pktline: payload exceeds maximum line size")
	// ErrBadLength is returned when a line's length prefix isn't valid
	// hex, or declares a length between 1 and 3 (too short to be a real
	// data line but not one of the reserved special lengths).
	ErrBadLength = errors.New("pktline: invalid length prefix")
	// ErrTruncated is returned when the stream ends before a declared
	// payload has been fully read.
	ErrTruncated = errors.New("pktline: truncated payload")
)

// Special, content-less packet lengths.
const (
	flushLen       = 0x0000
	delimLen       = 0x0001
	responseEndLen = 0x0002
)

// Flush, Delim and ResponseEnd are the pre-encoded special frames a
// writer emits in place of a data line.
var (
	Flush       = []byte("0000")
	Delim       = []byte("0001")
	ResponseEnd = []byte("0002")
)

// LineType tags the kind of frame a Reader produced.
type LineType int

const (
	// Data is a regular pkt-line carrying a payload.
	Data LineType = iota
	// FlushPkt is the "0000" terminator of a section.
	FlushPkt
	// DelimPkt is the "0001" separator used inside protocol v2 sections.
	DelimPkt
	// ResponseEndPkt is the "0002" terminator of a v2 response.
	ResponseEndPkt
)

// Writer encodes pkt-lines onto an underlying byte stream.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer that frames lines onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteLine frames payload as a single pkt-line and writes it.
// The caller is responsible for including any trailing LF it wants the
// line to carry; pkt-line framing itself is LF-agnostic.
func (w *Writer) WriteLine(payload []byte) error {
	if len(payload) > MaxLineSize {
		return ErrLineTooLong
	}
	length := len(payload) + lenPrefixSize
	if _, err := fmt.Fprintf(w.w, "%04x", length); err != nil {
		return xerrors.Errorf("pktline: could not write length prefix: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return xerrors.Errorf("pktline: could not write payload: %w", err)
	}
	return nil
}

// WriteString is a convenience wrapper around WriteLine for textual
// negotiation lines such as "want <oid>\n".
func (w *Writer) WriteString(line string) error {
	return w.WriteLine([]byte(line))
}

// WriteFlush emits the "0000" flush-pkt.
func (w *Writer) WriteFlush() error {
	_, err := w.w.Write(Flush)
	return err
}

// WriteDelim emits the "0001" delim-pkt.
func (w *Writer) WriteDelim() error {
	_, err := w.w.Write(Delim)
	return err
}

// WriteDone emits the "done\n" line that closes a fetch negotiation.
func (w *Writer) WriteDone() error {
	return w.WriteString("done\n")
}

// Reader decodes pkt-lines from an underlying byte stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader that reads framed lines from r.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br}
}

// Underlying returns the buffered reader backing r, positioned right
// after the last frame ReadLine returned. Used to hand off a stream to
// a consumer that reads raw, unframed bytes once pkt-line framing ends
// (e.g. the packfile that follows the ACK/NAK preface).
func (r *Reader) Underlying() *bufio.Reader {
	return r.r
}

// ReadLine reads a single frame. It returns (payload, Data, nil) for a
// regular line, (nil, FlushPkt/DelimPkt/ResponseEndPkt, nil) for a
// special frame, and (nil, _, io.EOF) once the underlying stream is
// exhausted with nothing left to read.
//
// Callers must not assume a returned payload ends in LF: some producers
// omit it (notably the last line before a flush-pkt in some
// implementations), per the pkt-line contract.
func (r *Reader) ReadLine() ([]byte, LineType, error) {
	var lenHex [lenPrefixSize]byte
	if _, err := io.ReadFull(r.r, lenHex[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, Data, io.EOF
		}
		return nil, Data, xerrors.Errorf("pktline: could not read length prefix: %w", err)
	}

	length, err := parseHexLen(lenHex)
	if err != nil {
		return nil, Data, err
	}

	switch length {
	case flushLen:
		return nil, FlushPkt, nil
	case delimLen:
		return nil, DelimPkt, nil
	case responseEndLen:
		return nil, ResponseEndPkt, nil
	}
	if length < lenPrefixSize {
		return nil, Data, ErrBadLength
	}

	payload := make([]byte, length-lenPrefixSize)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, Data, ErrTruncated
		}
		return nil, Data, xerrors.Errorf("pktline: could not read payload: %w", err)
	}
	return payload, Data, nil
}

func parseHexLen(b [lenPrefixSize]byte) (int, error) {
	length := 0
	for _, c := range b {
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'a' && c <= 'f':
			v = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = int(c-'A') + 10
		default:
			return 0, ErrBadLength
		}
		length = length<<4 | v
	}
	if length > MaxLineSize+lenPrefixSize {
		return 0, ErrBadLength
	}
	return length, nil
}
