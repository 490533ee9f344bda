package consensus

// HeaderBytesLen is the fixed wire size of a BlockHeader, signature included.
const HeaderBytesLen = 290

// headerUnsignedLen is HeaderBytesLen minus the trailing 64-byte signature.
const headerUnsignedLen = HeaderBytesLen - 64

// BlockHeader is the fixed-layout consensus header.
type BlockHeader struct {
	Version     uint8
	ParentHash  Hash32
	Height      Height
	Timestamp   int64
	Difficulty  Difficulty
	Epoch       Epoch
	Challenge   Hash32
	PlotRoot    Hash32
	ProofScore  Hash32
	TxRoot      Hash32
	MinerID     PublicKey
	Signature   Signature
	hasSignature bool
}

// HasSignature reports whether the header carries a (possibly unverified)
// signature.
func (h BlockHeader) HasSignature() bool {
	return h.hasSignature && !h.Signature.IsZero()
}

// WithSignature returns a copy of h with sig attached.
func (h BlockHeader) WithSignature(sig Signature) BlockHeader {
	h.Signature = sig
	h.hasSignature = true
	return h
}

// EncodeHeaderUnsigned serializes every header field except the trailing
// signature — the bytes that are hashed and signed.
func EncodeHeaderUnsigned(h BlockHeader) []byte {
	out := make([]byte, 0, headerUnsignedLen)
	out = appendU8(out, h.Version)
	out = append(out, h.ParentHash[:]...)
	out = appendI64LE(out, h.Height)
	out = appendI64LE(out, h.Timestamp)
	out = appendI64LE(out, h.Difficulty)
	out = appendI64LE(out, h.Epoch)
	out = append(out, h.Challenge[:]...)
	out = append(out, h.PlotRoot[:]...)
	out = append(out, h.ProofScore[:]...)
	out = append(out, h.TxRoot[:]...)
	out = append(out, h.MinerID[:]...)
	return out
}

// EncodeHeader serializes the full 290-byte header, signature included.
func EncodeHeader(h BlockHeader) []byte {
	out := EncodeHeaderUnsigned(h)
	out = append(out, h.Signature[:]...)
	return out
}

// DecodeHeader parses a full HeaderBytesLen-byte header, rejecting trailing
// bytes.
func DecodeHeader(b []byte) (BlockHeader, error) {
	if len(b) != HeaderBytesLen {
		return BlockHeader{}, newErrf(ErrParse, "header: want %d bytes, got %d", HeaderBytesLen, len(b))
	}
	cur := newCursor(b)
	var h BlockHeader
	var err error

	if h.Version, err = cur.readU8(); err != nil {
		return BlockHeader{}, err
	}
	if h.ParentHash, err = cur.readHash32(); err != nil {
		return BlockHeader{}, err
	}
	if h.Height, err = cur.readI64LE(); err != nil {
		return BlockHeader{}, err
	}
	if h.Timestamp, err = cur.readI64LE(); err != nil {
		return BlockHeader{}, err
	}
	if h.Difficulty, err = cur.readI64LE(); err != nil {
		return BlockHeader{}, err
	}
	if h.Epoch, err = cur.readI64LE(); err != nil {
		return BlockHeader{}, err
	}
	if h.Challenge, err = cur.readHash32(); err != nil {
		return BlockHeader{}, err
	}
	if h.PlotRoot, err = cur.readHash32(); err != nil {
		return BlockHeader{}, err
	}
	if h.ProofScore, err = cur.readHash32(); err != nil {
		return BlockHeader{}, err
	}
	if h.TxRoot, err = cur.readHash32(); err != nil {
		return BlockHeader{}, err
	}
	if h.MinerID, err = cur.readPublicKey(); err != nil {
		return BlockHeader{}, err
	}
	if h.Signature, err = cur.readSignature(); err != nil {
		return BlockHeader{}, err
	}
	h.hasSignature = !h.Signature.IsZero()
	if cur.remaining() != 0 {
		return BlockHeader{}, newErr(ErrParse, "trailing bytes after header")
	}
	return h, nil
}

// HashHeader returns SHA256(serialize(header_without_signature)), the
// header's identity.
func HashHeader(h BlockHeader) Hash32 {
	return sha256Sum(EncodeHeaderUnsigned(h))
}
