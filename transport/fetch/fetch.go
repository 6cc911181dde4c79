// Package fetch builds the negotiation body a client sends to an
// upload-pack service after ref discovery: a set of "want" lines
// (capabilities attached to the first), optional shallow/deepen lines,
// "have" lines for subsequent rounds, and the closing "done".
package fetch

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/nivlgo/gitlite/ginternals"
	"github.com/nivlgo/gitlite/transport/pktline"
)

// ErrNoWants is returned when Request is built with an empty want list.
var ErrNoWants = errors.New("fetch: at least one want is required")

// Request describes a single negotiation round.
type Request struct {
	// Wants are the object ids the client wants the server to include
	// history for. Must be non-empty.
	Wants []ginternals.Oid
	// Haves are object ids the client already has locally, advertised
	// so the server can compute the minimal pack. Empty for a plain
	// clone's single round.
	Haves []ginternals.Oid
	// Shallow lists commits the client already treats as shallow
	// boundaries.
	Shallow []ginternals.Oid
	// Depth limits history depth; zero means full history.
	Depth int
	// Capabilities are sent on the first want line.
	Capabilities []string
}

// Write encodes req onto w. For a minimal single-round clone (no
// haves), the body is: one want line carrying capabilities, zero or
// more additional want lines, a flush-pkt, then "done".
func Write(w io.Writer, req Request) error {
	if len(req.Wants) == 0 {
		return ErrNoWants
	}

	pw := pktline.NewWriter(w)

	for i, oid := range req.Wants {
		line := "want " + oid.String()
		if i == 0 && len(req.Capabilities) > 0 {
			line += " " + strings.Join(req.Capabilities, " ")
		}
		line += "\n"
		if err := pw.WriteString(line); err != nil {
			return err
		}
	}
	for _, oid := range req.Shallow {
		if err := pw.WriteString("shallow " + oid.String() + "\n"); err != nil {
			return err
		}
	}
	if req.Depth > 0 {
		if err := pw.WriteString("deepen " + strconv.Itoa(req.Depth) + "\n"); err != nil {
			return err
		}
	}
	if err := pw.WriteFlush(); err != nil {
		return err
	}

	if len(req.Haves) == 0 {
		return pw.WriteDone()
	}

	for _, oid := range req.Haves {
		if err := pw.WriteString("have " + oid.String() + "\n"); err != nil {
			return err
		}
	}
	if err := pw.WriteFlush(); err != nil {
		return err
	}
	return pw.WriteDone()
}
