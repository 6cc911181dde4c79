package packfile

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"crypto/sha1" //nolint:gosec // this is the hash git itself uses for packfile checksums
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nivlgo/gitlite/ginternals"
	"github.com/nivlgo/gitlite/ginternals/object"
)

// countingReader tracks how many bytes have been pulled out of the
// wrapped reader, so the position of each entry in the pack can be
// recovered even though a buffered reader sits on top of it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Pack is the result of parsing a single pack stream: every object it
// contains, fully reconstructed (deltas resolved), in the order they
// were encountered.
type Pack struct {
	objects  []*object.Object
	byOid    map[ginternals.Oid]*object.Object
	checksum ginternals.Oid
}

// Objects returns every object found in the pack, in pack order.
func (p *Pack) Objects() []*object.Object {
	return p.objects
}

// Object returns an object from the pack by its oid, if present.
func (p *Pack) Object(oid ginternals.Oid) (*object.Object, bool) {
	o, ok := p.byOid[oid]
	return o, ok
}

// Checksum returns the trailing SHA-1 the pack stream claims over its
// own content.
func (p *Pack) Checksum() ginternals.Oid {
	return p.checksum
}

// Parse reads a full pack stream from r: the header, every entry
// (resolving ofs-delta and ref-delta entries as it goes), and the
// trailing checksum. resolver is consulted for ref-delta bases that
// aren't found earlier in the same pack (i.e. bases that already live
// in the local object store); it may be nil if the caller knows the
// pack to be self-contained.
func Parse(r io.Reader, resolver BaseResolver) (*Pack, error) {
	// bufio pulls a full buffer from the underlying reader on its first
	// fill, so a tee sitting under it sees bytes far past what's been
	// logically consumed. Capture everything pulled off the wire here and
	// hash only the prefix pos() reports as consumed, once parsing is done.
	var raw bytes.Buffer
	cr := &countingReader{r: io.TeeReader(r, &raw)}
	br := bufio.NewReader(cr)

	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("could not read packfile header: %w", err)
	}
	if !bytes.Equal(hdr[0:4], magic[:]) {
		return nil, ErrInvalidMagic
	}
	if !bytes.Equal(hdr[4:8], version[:]) {
		return nil, ErrInvalidVersion
	}
	count := binary.BigEndian.Uint32(hdr[8:12])

	pos := func() uint64 {
		return uint64(cr.n - int64(br.Buffered()))
	}

	byOffset := make(map[uint64]*object.Object, count)
	p := &Pack{
		objects: make([]*object.Object, count),
		byOid:   make(map[ginternals.Oid]*object.Object, count),
	}

	// deferredDelta is a ref-delta entry whose base wasn't found on first
	// pass, because it's stored later in the same pack. Resolved in a
	// fixed-point pass once every entry has been scanned once.
	type deferredDelta struct {
		index   int
		offset  uint64
		baseOid ginternals.Oid
		content []byte
	}
	var deferred []deferredDelta

	for i := uint32(0); i < count; i++ {
		offset := pos()

		typ, size, err := readEntryHeader(br)
		if err != nil {
			return nil, fmt.Errorf("could not read header of entry %d: %w", i, err)
		}

		var baseOffset uint64
		var baseOid ginternals.Oid
		hasBaseOid := false

		switch typ { //nolint:exhaustive // only delta types carry extra framing
		case object.ObjectDeltaOFS:
			// up to 9 bytes, read one at a time since we can't safely
			// look ahead on a non-seekable stream
			var b [1]byte
			var parts []byte
			for {
				if _, err := io.ReadFull(br, b[:]); err != nil {
					return nil, fmt.Errorf("could not read ofs-delta base offset for entry %d: %w", i, err)
				}
				parts = append(parts, b[0])
				if !isMSBSet(b[0]) {
					break
				}
			}
			rel, _, err := readDeltaOffset(parts)
			if err != nil {
				return nil, fmt.Errorf("could not decode ofs-delta base offset for entry %d: %w", i, err)
			}
			baseOffset = offset - rel
		case object.ObjectDeltaRef:
			var rawOid [ginternals.OidSize]byte
			if _, err := io.ReadFull(br, rawOid[:]); err != nil {
				return nil, fmt.Errorf("could not read ref-delta base oid for entry %d: %w", i, err)
			}
			baseOid, err = ginternals.NewOidFromHex(rawOid[:])
			if err != nil {
				return nil, fmt.Errorf("could not parse ref-delta base oid for entry %d: %w", i, err)
			}
			hasBaseOid = true
		}

		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("could not open zlib stream for entry %d: %w", i, err)
		}
		var content bytes.Buffer
		if _, err := io.Copy(&content, zr); err != nil {
			zr.Close() //nolint:errcheck // we're already bubbling up a read error
			return nil, fmt.Errorf("could not inflate entry %d: %w", i, err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("could not finalize zlib stream for entry %d: %w", i, err)
		}

		switch typ { //nolint:exhaustive // only delta types need base resolution
		case object.ObjectDeltaOFS, object.ObjectDeltaRef:
			if int(size) != content.Len() {
				return nil, fmt.Errorf("entry %d: delta payload size mismatch: expected %d, got %d", i, size, content.Len())
			}

			var base *object.Object
			if hasBaseOid {
				base = p.byOid[baseOid]
				if base == nil && resolver != nil {
					base, err = resolver.Object(baseOid)
					if err != nil && !errors.Is(err, ginternals.ErrObjectNotFound) {
						return nil, fmt.Errorf("could not resolve ref-delta base %s for entry %d: %w", baseOid, i, err)
					}
				}
				if base == nil {
					// the base may be stored later in this same pack;
					// park the entry and retry once every entry has
					// been scanned at least once.
					deferred = append(deferred, deferredDelta{
						index:   int(i),
						offset:  offset,
						baseOid: baseOid,
						content: append([]byte(nil), content.Bytes()...),
					})
					continue
				}
			} else {
				// ofs-delta always points strictly backwards in the
				// pack, so its base is guaranteed to already be resolved.
				base = byOffset[baseOffset]
				if base == nil {
					return nil, fmt.Errorf("entry %d: %w", i, ErrDeltaBaseNotFound)
				}
			}
			resolved, err := applyDelta(base.Bytes(), content.Bytes())
			if err != nil {
				return nil, fmt.Errorf("could not reconstruct entry %d: %w", i, err)
			}
			o := object.New(base.Type(), resolved)
			byOffset[offset] = o
			p.byOid[o.ID()] = o
			p.objects[i] = o
		default:
			if !typ.IsValid() {
				return nil, fmt.Errorf("entry %d: %w", i, ErrUnknownEntryType)
			}
			if content.Len() != int(size) {
				return nil, fmt.Errorf("entry %d: size mismatch: expected %d, got %d", i, size, content.Len())
			}
			o := object.New(typ, content.Bytes())
			byOffset[offset] = o
			p.byOid[o.ID()] = o
			p.objects[i] = o
		}
	}

	for progress := true; progress && len(deferred) > 0; {
		progress = false
		remaining := deferred[:0]
		for _, d := range deferred {
			base := p.byOid[d.baseOid]
			if base == nil {
				remaining = append(remaining, d)
				continue
			}
			resolved, err := applyDelta(base.Bytes(), d.content)
			if err != nil {
				return nil, fmt.Errorf("could not reconstruct entry %d: %w", d.index, err)
			}
			o := object.New(base.Type(), resolved)
			byOffset[d.offset] = o
			p.byOid[o.ID()] = o
			p.objects[d.index] = o
			progress = true
		}
		deferred = remaining
	}
	if len(deferred) > 0 {
		return nil, fmt.Errorf("entry %d: %w", deferred[0].index, ErrDeltaBaseNotFound)
	}

	// pos() is the logical read position: bytes pulled off the wire minus
	// whatever bufio still has buffered but unconsumed. Hashing exactly
	// that prefix of raw covers the header and entries, not the trailer
	// bytes we're about to read (which may already sit in bufio's buffer).
	consumed := pos()
	digest := sha1.Sum(raw.Bytes()[:consumed]) //nolint:gosec // matches git's own packfile checksum algorithm
	var computed ginternals.Oid
	copy(computed[:], digest[:])

	var trailer [checksumSize]byte
	if _, err := io.ReadFull(br, trailer[:]); err != nil {
		return nil, fmt.Errorf("could not read packfile checksum: %w", err)
	}
	claimed, err := ginternals.NewOidFromHex(trailer[:])
	if err != nil {
		return nil, fmt.Errorf("could not parse packfile checksum: %w", err)
	}
	if claimed != computed {
		return nil, ErrInvalidChecksum
	}
	p.checksum = claimed

	return p, nil
}

// readEntryHeader decodes the type + size of a pack entry.
// The first byte holds the MSB continuation bit, a 3-bit type, and the
// low 4 bits of the size; subsequent bytes each contribute 7 more bits
// of size, little-endian, until a byte with the MSB clear is read.
func readEntryHeader(r io.Reader) (object.Type, uint64, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, 0, err
	}
	typ := object.Type((b[0] & 0b_0111_0000) >> 4)
	size := uint64(b[0] & 0b_0000_1111)

	shift := uint8(4)
	for isMSBSet(b[0]) {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, 0, err
		}
		size |= uint64(unsetMSB(b[0])) << shift
		shift += 7
	}

	return typ, size, nil
}
