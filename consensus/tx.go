package consensus

// TxBytesLen is the fixed wire size of a Transaction.
const TxBytesLen = 155

// txUnsignedLen is TxBytesLen minus the trailing 64-byte signature.
const txUnsignedLen = TxBytesLen - 64

// Transaction is the fixed-layout account-based transaction.
type Transaction struct {
	Version   uint8
	Sender    PublicKey
	Recipient PublicKey
	Amount    Amount
	Nonce     Nonce
	Fee       int64
	Signature Signature
}

// EncodeTxUnsigned serializes every field except the trailing signature —
// the bytes that are hashed and signed.
func EncodeTxUnsigned(tx Transaction) []byte {
	out := make([]byte, 0, txUnsignedLen)
	out = appendU8(out, tx.Version)
	out = append(out, tx.Sender[:]...)
	out = append(out, tx.Recipient[:]...)
	out = appendI64LE(out, tx.Amount)
	out = appendI64LE(out, tx.Nonce)
	out = appendI64LE(out, tx.Fee)
	return out
}

// EncodeTx serializes the full 155-byte transaction, signature included.
func EncodeTx(tx Transaction) []byte {
	out := EncodeTxUnsigned(tx)
	out = append(out, tx.Signature[:]...)
	return out
}

// DecodeTx parses a full TxBytesLen-byte transaction, rejecting trailing
// bytes.
func DecodeTx(b []byte) (Transaction, error) {
	if len(b) != TxBytesLen {
		return Transaction{}, newErrf(ErrParse, "tx: want %d bytes, got %d", TxBytesLen, len(b))
	}
	cur := newCursor(b)
	var tx Transaction
	var err error

	if tx.Version, err = cur.readU8(); err != nil {
		return Transaction{}, err
	}
	if tx.Sender, err = cur.readPublicKey(); err != nil {
		return Transaction{}, err
	}
	if tx.Recipient, err = cur.readPublicKey(); err != nil {
		return Transaction{}, err
	}
	if tx.Amount, err = cur.readI64LE(); err != nil {
		return Transaction{}, err
	}
	if tx.Nonce, err = cur.readI64LE(); err != nil {
		return Transaction{}, err
	}
	if tx.Fee, err = cur.readI64LE(); err != nil {
		return Transaction{}, err
	}
	if tx.Signature, err = cur.readSignature(); err != nil {
		return Transaction{}, err
	}
	if cur.remaining() != 0 {
		return Transaction{}, newErr(ErrParse, "trailing bytes after transaction")
	}
	return tx, nil
}

// HashTx returns SHA256(serialize(tx_without_signature)), the transaction's
// identity.
func HashTx(tx Transaction) Hash32 {
	return sha256Sum(EncodeTxUnsigned(tx))
}
