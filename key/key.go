// Package key implements the 128-bit prefix-keyed value used throughout the
// trie: a fixed-width value paired with a bit length, MSB-justified, plus
// the partial order and XOR-based common-prefix operation the tries are
// built on.
package key

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"math/bits"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxSize is the number of bits in a Key's data.
const MaxSize = 128

// Order is the result of comparing two keys under the partial order.
type Order int

// Order values.
const (
	Unordered Order = iota
	Less
	Greater
	Equivalent
)

// Key is a 128-bit value together with the number of significant bits,
// counted from the most significant bit of Hi. Bits at or beyond Size are
// always zero.
type Key struct {
	Hi   uint64
	Lo   uint64
	Size uint32
}

// New creates a key from two 64-bit halves and a size, verifying that no
// bit outside the prefix is set.
func New(hi, lo uint64, size uint32) (Key, error) {
	if size > MaxSize {
		return Key{}, errors.Errorf("key size %d exceeds %d bits", size, MaxSize)
	}

	mh, ml := Mask(size)
	if hi&^mh != 0 || lo&^ml != 0 {
		return Key{}, errors.Errorf("key data has bits set beyond size %d", size)
	}

	return Key{Hi: hi, Lo: lo, Size: size}, nil
}

// FromText parses "<hexdigits>/<size>", e.g. "1a2b/16" or a full 32-hex-digit
// 128-bit prefix. The hex value is read as a size-bit number, so missing
// digits are leading zero bits: "1/1" is the one-bit prefix 1 and "1a/16"
// is 0x001a/16.
func FromText(s string) (Key, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return Key{}, errors.Errorf("malformed key text %q: expected <hex>/<size>", s)
	}

	size64, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Key{}, errors.Wrapf(err, "malformed key size in %q", s)
	}
	size := uint32(size64)
	if size > MaxSize {
		return Key{}, errors.Errorf("key size %d exceeds %d bits", size, MaxSize)
	}

	hexDigits := strings.TrimPrefix(parts[0], "0x")
	if hexDigits == "" {
		hexDigits = "0"
	}

	v, ok := new(big.Int).SetString(hexDigits, 16)
	if !ok {
		return Key{}, errors.Errorf("malformed hex payload in %q", s)
	}
	if v.BitLen() > int(size) {
		return Key{}, errors.Errorf("hex payload %q does not fit in %d bits", parts[0], size)
	}

	// Left-justify: the value occupies the top `size` bits of the field.
	v.Lsh(v, uint(MaxSize-size))

	buf := make([]byte, 16)
	v.FillBytes(buf)
	hi := binary.BigEndian.Uint64(buf[:8])
	lo := binary.BigEndian.Uint64(buf[8:])

	return Key{Hi: hi, Lo: lo, Size: size}, nil
}

// Mask returns the size-bit, MSB-first mask split across the Hi/Lo halves.
func Mask(size uint32) (hi, lo uint64) {
	switch {
	case size >= MaxSize:
		return ^uint64(0), ^uint64(0)
	case size >= 64:
		return ^uint64(0), ^uint64(0) << (MaxSize - size)
	case size == 0:
		return 0, 0
	default:
		return ^uint64(0) << (64 - size), 0
	}
}

// Concrete reports whether the key is a full 128-bit key rather than a
// prefix.
func (k Key) Concrete() bool {
	return k.Size == MaxSize
}

// Bit returns the i-th bit counted from the most significant bit (0-based).
// i must be < 128.
func (k Key) Bit(i uint32) uint8 {
	if i < 64 {
		return uint8((k.Hi >> (63 - i)) & 1)
	}
	return uint8((k.Lo >> (127 - i)) & 1)
}

// Extend returns a new key of Size+1 with the given bit appended. Requires
// Size < 128.
func (k Key) Extend(bit uint8) (Key, error) {
	if k.Size >= MaxSize {
		return Key{}, errors.New("cannot extend a 128-bit key")
	}
	if bit != 0 && bit != 1 {
		return Key{}, errors.Errorf("bit must be 0 or 1, got %d", bit)
	}

	n := k
	n.Size++
	if bit == 1 {
		if k.Size < 64 {
			n.Hi |= uint64(1) << (64 - n.Size)
		} else {
			n.Lo |= uint64(1) << (128 - n.Size)
		}
	}
	return n, nil
}

// Xor returns the longest common prefix of a and b: the size is
// min(a.Size, b.Size, leading zeroes of a.Hi^a.Lo XOR b.Hi^b.Lo), and the
// data is truncated to that size.
func (k Key) Xor(other Key) Key {
	xh := k.Hi ^ other.Hi
	xl := k.Lo ^ other.Lo

	lz := uint32(bits.LeadingZeros64(xh))
	if lz == 64 {
		lz += uint32(bits.LeadingZeros64(xl))
	}

	size := k.Size
	if other.Size < size {
		size = other.Size
	}
	if lz < size {
		size = lz
	}

	mh, ml := Mask(size)
	return Key{Hi: k.Hi & mh, Lo: k.Lo & ml, Size: size}
}

// Compare implements the partial order of §3: a <= b iff a.Size <= b.Size
// and b's top a.Size bits equal a.Data. Returns Equivalent, Less, Greater
// or Unordered.
func (k Key) Compare(other Key) Order {
	switch {
	case k.Size == other.Size:
		if k.sameData(other, k.Size) {
			return Equivalent
		}
		return Unordered
	case k.Size < other.Size:
		if k.sameData(other, k.Size) {
			return Less
		}
		return Unordered
	default:
		if k.sameData(other, other.Size) {
			return Greater
		}
		return Unordered
	}
}

func (k Key) sameData(other Key, size uint32) bool {
	mh, ml := Mask(size)
	return k.Hi&mh == other.Hi&mh && k.Lo&ml == other.Lo&ml
}

// LessOrEqual reports whether k <= other under the partial order (Less or
// Equivalent).
func (k Key) LessOrEqual(other Key) bool {
	o := k.Compare(other)
	return o == Less || o == Equivalent
}

// LessTiebreak is the total tie-breaker used on unordered pairs (or as a
// canonical ordering when a strict weak order is required regardless of
// comparability): compare the bit at the first differing position, i.e. at
// (a XOR b).Size.
func (k Key) LessTiebreak(other Key) bool {
	common := k.Xor(other)
	if common.Size >= k.Size {
		return false
	}
	if common.Size >= other.Size {
		return true
	}
	return k.Bit(common.Size) < other.Bit(common.Size)
}

// Equal reports bitwise-and-size equality.
func (k Key) Equal(other Key) bool {
	return k.Compare(other) == Equivalent
}

// String renders "0x<data>/<size>" using ceil(size/4) hex digits.
func (k Key) String() string {
	nibbles := (k.Size + 3) / 4
	if nibbles == 0 {
		return "0x/0"
	}

	full := fmt.Sprintf("%016x%016x", k.Hi, k.Lo)
	return fmt.Sprintf("0x%s/%d", full[:nibbles], k.Size)
}
