package consensus

import "encoding/binary"

// cursor is a forward-only reader over a fixed byte slice. Every read method
// bounds-checks before advancing pos, returning a parse error rather than
// panicking on truncated input.
type cursor struct {
	b   []byte
	pos int
}

func newCursor(b []byte) *cursor {
	return &cursor{b: b}
}

func (c *cursor) remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *cursor) readExact(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, newErr(ErrParse, "truncated input")
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *cursor) readU8() (uint8, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readBool() (bool, error) {
	b, err := c.readU8()
	if err != nil {
		return false, err
	}
	if b > 1 {
		return false, newErr(ErrParse, "invalid bool byte")
	}
	return b == 1, nil
}

func (c *cursor) readI32LE() (int32, error) {
	b, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (c *cursor) readI64LE() (int64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (c *cursor) readHash32() (Hash32, error) {
	b, err := c.readExact(32)
	if err != nil {
		return Hash32{}, err
	}
	var h Hash32
	copy(h[:], b)
	return h, nil
}

func (c *cursor) readPublicKey() (PublicKey, error) {
	b, err := c.readExact(33)
	if err != nil {
		return PublicKey{}, err
	}
	var p PublicKey
	copy(p[:], b)
	return p, nil
}

func (c *cursor) readSignature() (Signature, error) {
	b, err := c.readExact(64)
	if err != nil {
		return Signature{}, err
	}
	var s Signature
	copy(s[:], b)
	return s, nil
}

func appendU8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

func appendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func appendI32LE(dst []byte, v int32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return append(dst, buf[:]...)
}

func appendI64LE(dst []byte, v int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return append(dst, buf[:]...)
}
