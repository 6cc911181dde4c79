// Package packfile parses the pack stream produced by a remote
// upload-pack service: a 12-byte header, a sequence of zlib-compressed
// entries (simple objects and offset/reference deltas), and a trailing
// SHA-1 checksum of everything that came before it.
// https://github.com/git/git/blob/master/Documentation/technical/pack-format.txt
package packfile

import (
	"errors"

	"github.com/nivlgo/gitlite/ginternals"
	"github.com/nivlgo/gitlite/ginternals/object"
)

const (
	// headerSize is the size, in bytes, of a packfile's header: 4 bytes
	// of magic, 4 bytes of version, 4 bytes of object count.
	headerSize = 12
	// checksumSize is the size, in bytes, of the trailing SHA-1 over the
	// whole packfile (header + entries).
	checksumSize = 20
)

var (
	magic   = [4]byte{'P', 'A', 'C', 'K'}
	version = [4]byte{0, 0, 0, 2}
)

var (
	// ErrIntOverflow is returned when a variable-length integer (object
	// size or delta offset) ends before its final byte. Values wider than
	// 64 bits are not detected.
	ErrIntOverflow = errors.New("int64 overflow")
	// ErrInvalidMagic is returned when a stream doesn't start with the
	// expected "PACK" magic.
	ErrInvalidMagic = errors.New("invalid packfile magic")
	// ErrInvalidVersion is returned when a stream declares an
	// unsupported pack version. Only version 2 is supported.
	ErrInvalidVersion = errors.New("unsupported packfile version")
	// ErrInvalidChecksum is returned when the trailing checksum doesn't
	// match the SHA-1 of the bytes that preceded it.
	ErrInvalidChecksum = errors.New("packfile checksum mismatch")
	// ErrDeltaBaseNotFound is returned when a delta entry's base object
	// still can't be resolved after the deferred-entry fixed-point pass:
	// neither earlier nor later in the same pack, nor through the
	// supplied BaseResolver.
	ErrDeltaBaseNotFound = errors.New("delta base object not found")
	// ErrUnknownEntryType is returned when an entry header advertises
	// an object type gitlite doesn't know how to handle.
	ErrUnknownEntryType = errors.New("unknown packfile entry type")
	// ErrReservedDeltaOpcode is returned when a delta instruction stream
	// contains the reserved 0x00 opcode.
	ErrReservedDeltaOpcode = errors.New("reserved delta opcode 0x00")
)

// BaseResolver looks up an object outside of the packfile being parsed.
// It's used to resolve ref-delta bases that point at objects already
// present in the local object store instead of earlier in the same
// pack. backend.Backend satisfies this interface.
type BaseResolver interface {
	Object(oid ginternals.Oid) (*object.Object, error)
}
