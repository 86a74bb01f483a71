package exfat

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// upcaseTable is the volume's case-folding table, used for case-insensitive
// name comparison while names themselves keep their stored case. It is loaded
// once when the volume is opened and shared read-only afterwards.
type upcaseTable struct {
	mapping []uint16
}

// upcaseTableFromBytes decodes the up-case table file. The on-disk form is a
// sequence of 16-bit code units, optionally compressed: the marker 0xFFFF is
// followed by a count of code units that fold to themselves.
func upcaseTableFromBytes(b []byte, storedChecksum uint32) (*upcaseTable, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("up-case table length %d is not a multiple of 2: %w", len(b), ErrCorruptVolume)
	}
	if sum := checksum32(b); sum != storedChecksum {
		return nil, fmt.Errorf("up-case table checksum 0x%08x does not match stored 0x%08x: %w", sum, storedChecksum, ErrCorruptVolume)
	}

	var (
		mapping    = make([]uint16, 0, len(b)/2)
		identities = false
	)
	for i := 0; i+2 <= len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i : i+2])
		switch {
		case identities:
			if len(mapping)+int(u) > 0x10000 {
				return nil, fmt.Errorf("up-case table identity run of %d overflows the code unit space: %w", u, ErrCorruptVolume)
			}
			for j := 0; j < int(u); j++ {
				mapping = append(mapping, uint16(len(mapping)))
			}
			identities = false
		case u == 0xffff:
			identities = true
		default:
			mapping = append(mapping, u)
		}
	}
	if identities {
		return nil, fmt.Errorf("up-case table ends on an identity-run marker: %w", ErrCorruptVolume)
	}

	return &upcaseTable{mapping: mapping}, nil
}

// fold maps a code unit to its upper-case equivalent; unmapped units fold to
// themselves
func (u *upcaseTable) fold(c uint16) uint16 {
	if int(c) < len(u.mapping) {
		return u.mapping[c]
	}
	return c
}

func (u *upcaseTable) foldUnits(units []uint16) []uint16 {
	folded := make([]uint16, len(units))
	for i, c := range units {
		folded[i] = u.fold(c)
	}
	return folded
}

// equalFold reports whether two names match case-insensitively under this
// volume's table
func (u *upcaseTable) equalFold(a, b string) bool {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	if len(ua) != len(ub) {
		return false
	}
	for i := range ua {
		if u.fold(ua[i]) != u.fold(ub[i]) {
			return false
		}
	}
	return true
}
