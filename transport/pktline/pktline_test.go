package pktline

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterWriteLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteString("want "+strings.Repeat("a", 40)+"\n"))
	assert.Equal(t, "0032want "+strings.Repeat("a", 40)+"\n", buf.String())
}

func TestWriterWriteLineTooLong(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.WriteLine(make([]byte, MaxLineSize+1))
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestWriterSpecialFrames(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFlush())
	require.NoError(t, w.WriteDelim())
	require.NoError(t, w.WriteDone())
	assert.Equal(t, "000000010009done\n", buf.String())
}

func TestReaderReadLine(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("0006a\n0000"))

	payload, typ, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, Data, typ)
	assert.Equal(t, []byte("a\n"), payload)

	payload, typ, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, FlushPkt, typ)
	assert.Nil(t, payload)
}

func TestReaderSpecialLengths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want LineType
	}{
		{"flush", "0000", FlushPkt},
		{"delim", "0001", DelimPkt},
		{"response-end", "0002", ResponseEndPkt},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, typ, err := NewReader(strings.NewReader(tt.in)).ReadLine()
			require.NoError(t, err)
			assert.Equal(t, tt.want, typ)
		})
	}
}

func TestReaderBadLength(t *testing.T) {
	t.Parallel()

	_, _, err := NewReader(strings.NewReader("000x")).ReadLine()
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestReaderTooShortLength(t *testing.T) {
	t.Parallel()

	_, _, err := NewReader(strings.NewReader("0003abc")).ReadLine()
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestReaderTruncatedPayload(t *testing.T) {
	t.Parallel()

	_, _, err := NewReader(strings.NewReader("0010abc")).ReadLine()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReaderEOF(t *testing.T) {
	t.Parallel()

	_, _, err := NewReader(strings.NewReader("")).ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderDoesNotAssumeLFTermination(t *testing.T) {
	t.Parallel()

	// a producer may omit the trailing LF on the last line of a section
	r := NewReader(strings.NewReader("000ahas-lf"))
	payload, typ, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, Data, typ)
	assert.Equal(t, []byte("has-lf"), payload)
}
