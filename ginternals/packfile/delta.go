package packfile

import (
	"encoding/binary"
	"fmt"
)

// readVarIntLE reads a little-endian base-128 varint used for object
// and delta-result sizes. Every byte contributes 7 bits; the MSB of a
// byte signals that another byte follows.
func readVarIntLE(data []byte) (value uint64, bytesRead int, err error) {
	for i, b := range data {
		bytesRead++
		value = insertLittleEndian7(value, unsetMSB(b), uint8(i))
		if !isMSBSet(b) {
			return value, bytesRead, nil
		}
	}
	return 0, 0, ErrIntOverflow
}

// readDeltaOffset reads a big-endian base-128 varint used for ofs-delta
// base offsets. Every chunk but the last is stored off-by-one to save a
// byte on the common one-byte-offset case.
func readDeltaOffset(data []byte) (offset uint64, bytesRead int, err error) {
	for _, b := range data {
		bytesRead++
		chunk := unsetMSB(b)
		if isMSBSet(b) {
			chunk++
		}
		offset = offset<<7 + uint64(chunk)
		if !isMSBSet(b) {
			return offset, bytesRead, nil
		}
	}
	return 0, 0, ErrIntOverflow
}

// insertLittleEndian7 inserts the 7 meaningful bits of chunk into base
// at the given 7-bit-wide position, low chunk first.
func insertLittleEndian7(base uint64, chunk, position uint8) uint64 {
	return (uint64(chunk) << (position * 7)) | base
}

func isMSBSet(b byte) bool {
	return b >= 0b_1000_0000
}

func unsetMSB(b byte) byte {
	return b & 0b_0111_1111
}

// applyDelta reconstructs a target object's content by replaying a
// delta instruction stream against base's content.
// Delta format: <source size varint><target size varint><instructions>
// Each instruction is either a COPY (MSB set: copy a byte range from the
// base, offset/size encoded in the following bytes) or an INSERT (MSB
// clear: the 7 low bits are a literal byte count to copy from the delta
// stream itself).
func applyDelta(base []byte, delta []byte) ([]byte, error) {
	srcSize, n, err := readVarIntLE(delta)
	if err != nil {
		return nil, fmt.Errorf("could not read delta source size: %w", err)
	}
	if int(srcSize) != len(base) {
		return nil, fmt.Errorf("delta base size mismatch: expected %d, base has %d", srcSize, len(base))
	}
	delta = delta[n:]

	targetSize, n, err := readVarIntLE(delta)
	if err != nil {
		return nil, fmt.Errorf("could not read delta target size: %w", err)
	}
	instructions := delta[n:]

	out := make([]byte, 0, targetSize)
	for i := 0; i < len(instructions); {
		instr := instructions[i]
		i++

		if instr == 0 {
			return nil, ErrReservedDeltaOpcode
		}

		if isMSBSet(instr) {
			// COPY: the low 4 bits of instr say which of the next 4
			// bytes encode the (little-endian) offset, the next 3
			// bits say which of the following 3 bytes encode the size.
			var offsetBytes, sizeBytes [4]byte
			for j := 0; j < 4; j++ {
				if instr&(1<<uint(j)) != 0 {
					if i >= len(instructions) {
						return nil, fmt.Errorf("delta copy instruction truncated")
					}
					offsetBytes[j] = instructions[i]
					i++
				}
			}
			for j := 0; j < 3; j++ {
				if instr&(1<<uint(4+j)) != 0 {
					if i >= len(instructions) {
						return nil, fmt.Errorf("delta copy instruction truncated")
					}
					sizeBytes[j] = instructions[i]
					i++
				}
			}
			offset := binary.LittleEndian.Uint32(offsetBytes[:])
			size := binary.LittleEndian.Uint32(sizeBytes[:])
			if size == 0 {
				// git special-cases a zero-encoded copy size as 0x10000
				size = 0x10000
			}
			if uint64(offset)+uint64(size) > uint64(len(base)) {
				return nil, fmt.Errorf("delta copy instruction out of bounds: offset %d size %d base %d", offset, size, len(base))
			}
			out = append(out, base[offset:offset+size]...)
			continue
		}

		// INSERT: instr itself is the literal byte count (1-127).
		size := int(instr)
		if i+size > len(instructions) {
			return nil, fmt.Errorf("delta insert instruction out of bounds")
		}
		out = append(out, instructions[i:i+size]...)
		i += size
	}

	if uint64(len(out)) != targetSize {
		return nil, fmt.Errorf("delta reconstruction size mismatch: expected %d, got %d", targetSize, len(out))
	}
	return out, nil
}
