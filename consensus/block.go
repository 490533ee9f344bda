package consensus

// PlotMetadataBytesLen is the fixed wire size of a BlockPlotMetadata.
const PlotMetadataBytesLen = 73

// BlockPlotMetadata describes the plot file a proof was drawn from.
type BlockPlotMetadata struct {
	LeafCount      int64
	PlotID         Hash32
	PlotHeaderHash Hash32
	Version        uint8
}

func encodePlotMetadata(m BlockPlotMetadata) []byte {
	out := make([]byte, 0, PlotMetadataBytesLen)
	out = appendI64LE(out, m.LeafCount)
	out = append(out, m.PlotID[:]...)
	out = append(out, m.PlotHeaderHash[:]...)
	out = appendU8(out, m.Version)
	return out
}

func decodePlotMetadata(cur *cursor) (BlockPlotMetadata, error) {
	var m BlockPlotMetadata
	var err error
	if m.LeafCount, err = cur.readI64LE(); err != nil {
		return m, err
	}
	if m.PlotID, err = cur.readHash32(); err != nil {
		return m, err
	}
	if m.PlotHeaderHash, err = cur.readHash32(); err != nil {
		return m, err
	}
	if m.Version, err = cur.readU8(); err != nil {
		return m, err
	}
	if m.LeafCount <= 0 {
		return m, newErr(ErrParse, "plot_metadata: leaf_count must be > 0")
	}
	return m, nil
}

// BlockProof is the PoST proof binding a block to a miner's plot commitment.
type BlockProof struct {
	LeafValue       Hash32
	LeafIndex       int64
	MerklePath      []Hash32
	OrientationBits []bool
	PlotMetadata    BlockPlotMetadata
}

func encodeProof(p BlockProof) ([]byte, error) {
	if len(p.MerklePath) != len(p.OrientationBits) {
		return nil, newErr(ErrParse, "proof: path/orientation length mismatch")
	}
	if p.LeafIndex < 0 {
		return nil, newErr(ErrParse, "proof: leaf_index must be >= 0")
	}
	out := make([]byte, 0, 32+8+4+len(p.MerklePath)*32+4+len(p.OrientationBits)+PlotMetadataBytesLen)
	out = append(out, p.LeafValue[:]...)
	out = appendI64LE(out, p.LeafIndex)
	out = appendI32LE(out, int32(len(p.MerklePath)))
	for _, h := range p.MerklePath {
		out = append(out, h[:]...)
	}
	out = appendI32LE(out, int32(len(p.OrientationBits)))
	for _, b := range p.OrientationBits {
		out = appendBool(out, b)
	}
	out = append(out, encodePlotMetadata(p.PlotMetadata)...)
	return out, nil
}

func decodeProof(cur *cursor) (BlockProof, error) {
	var p BlockProof
	var err error
	if p.LeafValue, err = cur.readHash32(); err != nil {
		return p, err
	}
	if p.LeafIndex, err = cur.readI64LE(); err != nil {
		return p, err
	}
	if p.LeafIndex < 0 {
		return p, newErr(ErrParse, "proof: leaf_index must be >= 0")
	}
	pathCount, err := cur.readI32LE()
	if err != nil {
		return p, err
	}
	if pathCount < 0 {
		return p, newErr(ErrParse, "proof: negative path_count")
	}
	p.MerklePath = make([]Hash32, pathCount)
	for i := range p.MerklePath {
		if p.MerklePath[i], err = cur.readHash32(); err != nil {
			return p, err
		}
	}
	bitCount, err := cur.readI32LE()
	if err != nil {
		return p, err
	}
	if bitCount != pathCount {
		return p, newErr(ErrParse, "proof: bit_count must equal path_count")
	}
	p.OrientationBits = make([]bool, bitCount)
	for i := range p.OrientationBits {
		if p.OrientationBits[i], err = cur.readBool(); err != nil {
			return p, err
		}
	}
	if p.PlotMetadata, err = decodePlotMetadata(cur); err != nil {
		return p, err
	}
	return p, nil
}

// BlockBody holds the transaction list and PoST proof attached to a header.
type BlockBody struct {
	Transactions []Transaction
	Proof        BlockProof
}

func encodeBody(body BlockBody) ([]byte, error) {
	out := make([]byte, 0, 4+len(body.Transactions)*(4+TxBytesLen))
	out = appendI32LE(out, int32(len(body.Transactions)))
	for _, tx := range body.Transactions {
		txBytes := EncodeTx(tx)
		out = appendI32LE(out, int32(len(txBytes)))
		out = append(out, txBytes...)
	}
	proofBytes, err := encodeProof(body.Proof)
	if err != nil {
		return nil, err
	}
	out = append(out, proofBytes...)
	return out, nil
}

func decodeBody(cur *cursor) (BlockBody, error) {
	var body BlockBody
	txCount, err := cur.readI32LE()
	if err != nil {
		return body, err
	}
	if txCount < 0 {
		return body, newErr(ErrParse, "body: negative tx_count")
	}
	body.Transactions = make([]Transaction, txCount)
	for i := range body.Transactions {
		n, err := cur.readI32LE()
		if err != nil {
			return body, err
		}
		if n < 0 {
			return body, newErr(ErrParse, "body: negative tx length")
		}
		raw, err := cur.readExact(int(n))
		if err != nil {
			return body, err
		}
		tx, err := DecodeTx(raw)
		if err != nil {
			return body, err
		}
		body.Transactions[i] = tx
	}
	if body.Proof, err = decodeProof(cur); err != nil {
		return body, err
	}
	return body, nil
}

// Block is a full header+body consensus unit.
type Block struct {
	Header BlockHeader
	Body   BlockBody
}

// EncodeBlock serializes a full block: the fixed-size header followed by
// the body.
func EncodeBlock(b Block) ([]byte, error) {
	bodyBytes, err := encodeBody(b.Body)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, HeaderBytesLen+len(bodyBytes))
	out = append(out, EncodeHeader(b.Header)...)
	out = append(out, bodyBytes...)
	return out, nil
}

// DecodeBlock parses a full block, rejecting trailing bytes.
func DecodeBlock(b []byte) (Block, error) {
	if len(b) < HeaderBytesLen {
		return Block{}, newErr(ErrParse, "block: shorter than header")
	}
	header, err := DecodeHeader(b[:HeaderBytesLen])
	if err != nil {
		return Block{}, err
	}
	cur := newCursor(b[HeaderBytesLen:])
	body, err := decodeBody(cur)
	if err != nil {
		return Block{}, err
	}
	if cur.remaining() != 0 {
		return Block{}, newErr(ErrParse, "trailing bytes after block body")
	}
	return Block{Header: header, Body: body}, nil
}

// TxHashes returns the hash of every transaction in the block, in order.
func TxHashes(txs []Transaction) []Hash32 {
	out := make([]Hash32, len(txs))
	for i, tx := range txs {
		out[i] = HashTx(tx)
	}
	return out
}
