// Package bleuuid converts between the 16-, 32- and 128-bit UUID forms used on
// the Bluetooth wire and the canonical 128-bit value.
//
// Short UUIDs are offsets into the Bluetooth base UUID:
//
//	0000xxxx-0000-1000-8000-00805F9B34FB  (16-bit)
//	xxxxxxxx-0000-1000-8000-00805F9B34FB  (32-bit)
//
// All wire forms are little-endian.
package bleuuid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// Wire lengths of the three UUID forms.
const (
	Len16  = 2
	Len32  = 4
	Len128 = 16
)

// Base is the Bluetooth base UUID.
var Base = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// ErrInvalidUUIDEncoding is returned for byte slices that are not 2, 4 or 16 bytes long.
var ErrInvalidUUIDEncoding = errors.New("invalid UUID encoding")

// Parse decodes a little-endian 2, 4 or 16 byte UUID.
func Parse(b []byte) (uuid.UUID, error) {
	switch len(b) {
	case Len16:
		return From16(binary.LittleEndian.Uint16(b)), nil
	case Len32:
		return From32(binary.LittleEndian.Uint32(b)), nil
	case Len128:
		var u uuid.UUID
		for i := range u {
			u[i] = b[Len128-1-i]
		}
		return u, nil
	default:
		return uuid.Nil, fmt.Errorf("%w: length %d", ErrInvalidUUIDEncoding, len(b))
	}
}

// MustParse is like Parse but panics on error. Meant for constants in tests.
func MustParse(b []byte) uuid.UUID {
	u, err := Parse(b)
	if err != nil {
		panic(err)
	}
	return u
}

// From16 expands a 16-bit UUID against the base UUID.
func From16(v uint16) uuid.UUID {
	return From32(uint32(v))
}

// From32 expands a 32-bit UUID against the base UUID.
func From32(v uint32) uuid.UUID {
	u := Base
	binary.BigEndian.PutUint32(u[0:4], v)
	return u
}

// Is32Bit reports whether u lies in the base UUID range.
func Is32Bit(u uuid.UUID) bool {
	for i := 4; i < Len128; i++ {
		if u[i] != Base[i] {
			return false
		}
	}
	return true
}

// Is16Bit reports whether u has a 16-bit short form.
func Is16Bit(u uuid.UUID) bool {
	return Is32Bit(u) && u[0] == 0 && u[1] == 0
}

// Short returns the 32-bit short value of u if it has one.
func Short(u uuid.UUID) (uint32, bool) {
	if !Is32Bit(u) {
		return 0, false
	}
	return binary.BigEndian.Uint32(u[0:4]), true
}

// Bytes encodes u in its shortest little-endian wire form.
func Bytes(u uuid.UUID) []byte {
	if Is16Bit(u) {
		b := make([]byte, Len16)
		binary.LittleEndian.PutUint16(b, binary.BigEndian.Uint16(u[2:4]))
		return b
	}
	if v, ok := Short(u); ok {
		b := make([]byte, Len32)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	b := make([]byte, Len128)
	for i := range u {
		b[Len128-1-i] = u[i]
	}
	return b
}

// ToBluetooth converts u for use with tinygo bluetooth.
func ToBluetooth(u uuid.UUID) bluetooth.UUID {
	return bluetooth.NewUUID([16]byte(u))
}

// FromString parses a canonical UUID string or a 4/8 digit short form ("180d", "0000fe95").
func FromString(s string) (uuid.UUID, error) {
	switch len(s) {
	case 4, 8:
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid short UUID %q: %w", s, err)
		}
		return From32(uint32(v)), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u, nil
}
