package consensus

// TransactionValidationConfig parameterizes TransactionValidator.
type TransactionValidationConfig struct {
	MinFee                   int64
	MaxFee                   int64
	MaxTransactionsPerBlock  int
	CheckDuplicateTransactions bool
	MaxTransactionSize       int
	SupportedVersion         uint8
}

// BlockValidationContext tracks tentative per-sender (balance, nonce) state
// while validating a sequence of transactions destined for the same block,
// so that a same-account sequence is checked coherently: an in-block double
// spend or a skipped nonce is caught even though account state has not
// actually been committed yet.
type BlockValidationContext struct {
	tentative map[PublicKey]tentativeAccount
}

type tentativeAccount struct {
	balance Amount
	nonce   Nonce
}

// NewBlockValidationContext returns an empty context.
func NewBlockValidationContext() *BlockValidationContext {
	return &BlockValidationContext{tentative: make(map[PublicKey]tentativeAccount)}
}

func (c *BlockValidationContext) lookup(addr PublicKey, accounts AccountView) (Amount, Nonce) {
	if t, ok := c.tentative[addr]; ok {
		return t.balance, t.nonce
	}
	balance, nonce, ok := accounts.GetAccount(addr)
	if !ok {
		return 0, 0
	}
	return balance, nonce
}

func (c *BlockValidationContext) commit(addr PublicKey, balance Amount, nonce Nonce) {
	c.tentative[addr] = tentativeAccount{balance: balance, nonce: nonce}
}

// TransactionValidator validates a single transaction either standalone
// (against committed account state) or as part of a block (threading a
// BlockValidationContext across a sequence from the same sender).
type TransactionValidator struct {
	cfg      TransactionValidationConfig
	verifier SignatureVerifier
}

// NewTransactionValidator constructs a TransactionValidator bound to cfg and
// a signature verifier.
func NewTransactionValidator(cfg TransactionValidationConfig, verifier SignatureVerifier) *TransactionValidator {
	return &TransactionValidator{cfg: cfg, verifier: verifier}
}

// ValidateStandalone runs the cheap-to-expensive checks against committed
// account state in accounts, with an optional duplicate check against idx
// when CheckDuplicateTransactions is set.
func (v *TransactionValidator) ValidateStandalone(tx Transaction, accounts AccountView, idx TransactionIndex) error {
	if err := v.validateBasic(tx); err != nil {
		return err
	}
	if tx.Version != v.cfg.SupportedVersion {
		return newErr(ErrUnsupportedVersion, "unsupported transaction version")
	}
	if err := v.validateFee(tx); err != nil {
		return err
	}
	if err := v.validateSize(tx); err != nil {
		return err
	}
	if err := v.validateSignature(tx); err != nil {
		return err
	}
	if v.cfg.CheckDuplicateTransactions && idx != nil {
		if idx.Contains(HashTx(tx)) {
			return newErr(ErrDuplicateTransaction, "transaction already indexed")
		}
	}

	balance, nonce, _ := accounts.GetAccount(tx.Sender)
	if tx.Nonce != nonce {
		return newErr(ErrInvalidNonce, "nonce does not match account nonce")
	}
	if balance < tx.Amount+tx.Fee {
		return newErr(ErrInsufficientBalance, "balance insufficient for amount plus fee")
	}
	return nil
}

// ValidateInBlock runs the same checks as ValidateStandalone, except the
// duplicate check against the transaction index, but consults
// and updates ctx instead of the committed account view for nonce/balance,
// so later transactions from the same sender see the effect of earlier ones
// in this block.
func (v *TransactionValidator) ValidateInBlock(tx Transaction, accounts AccountView, ctx *BlockValidationContext) error {
	if err := v.validateBasic(tx); err != nil {
		return err
	}
	if tx.Version != v.cfg.SupportedVersion {
		return newErr(ErrUnsupportedVersion, "unsupported transaction version")
	}
	if err := v.validateFee(tx); err != nil {
		return err
	}
	if err := v.validateSize(tx); err != nil {
		return err
	}
	if err := v.validateSignature(tx); err != nil {
		return err
	}

	balance, nonce := ctx.lookup(tx.Sender, accounts)
	if tx.Nonce != nonce {
		return newErr(ErrInvalidNonce, "nonce does not match tentative account nonce")
	}
	if balance < tx.Amount+tx.Fee {
		return newErr(ErrInsufficientBalance, "tentative balance insufficient for amount plus fee")
	}

	ctx.commit(tx.Sender, balance-tx.Amount-tx.Fee, nonce+1)
	if tx.Recipient != tx.Sender {
		recvBalance, recvNonce := ctx.lookup(tx.Recipient, accounts)
		ctx.commit(tx.Recipient, recvBalance+tx.Amount, recvNonce)
	}
	return nil
}

// ValidateBatch validates txs in order for inclusion in a block. If the
// batch exceeds MaxTransactionsPerBlock, every entry reports
// Other("stopped due to earlier failure"). Otherwise it stops at the first
// failure: the failing entry reports its own error and every later entry
// reports Other("stopped due to earlier failure").
func (v *TransactionValidator) ValidateBatch(txs []Transaction, accounts AccountView) []error {
	results := make([]error, len(txs))
	if len(txs) > v.cfg.MaxTransactionsPerBlock {
		for i := range results {
			results[i] = newErr(ErrOther, "stopped due to earlier failure")
		}
		return results
	}

	ctx := NewBlockValidationContext()
	stopped := false
	for i, tx := range txs {
		if stopped {
			results[i] = newErr(ErrOther, "stopped due to earlier failure")
			continue
		}
		if err := v.ValidateInBlock(tx, accounts, ctx); err != nil {
			results[i] = err
			stopped = true
			continue
		}
		results[i] = nil
	}
	return results
}

func (v *TransactionValidator) validateBasic(tx Transaction) error {
	if tx.Signature.IsZero() {
		return newErr(ErrBasicValidationFailed, "transaction is not signed")
	}
	if tx.Amount <= 0 {
		return newErr(ErrBasicValidationFailed, "amount must be > 0")
	}
	if tx.Fee < 0 {
		return newErr(ErrBasicValidationFailed, "fee must be >= 0")
	}
	if tx.Nonce < 0 {
		return newErr(ErrBasicValidationFailed, "nonce must be >= 0")
	}
	if tx.Sender == tx.Recipient {
		return newErr(ErrSelfTransfer, "sender and recipient must differ")
	}
	return nil
}

func (v *TransactionValidator) validateFee(tx Transaction) error {
	if tx.Fee < v.cfg.MinFee {
		return newErr(ErrFeeTooLow, "fee below minimum")
	}
	if tx.Fee > v.cfg.MaxFee {
		return newErr(ErrFeeTooHigh, "fee above maximum")
	}
	return nil
}

func (v *TransactionValidator) validateSize(tx Transaction) error {
	if len(EncodeTx(tx)) > v.cfg.MaxTransactionSize {
		return newErr(ErrTransactionTooLarge, "serialized transaction exceeds max size")
	}
	return nil
}

func (v *TransactionValidator) validateSignature(tx Transaction) error {
	if v.verifier == nil {
		return newErr(ErrInvalidSignature, "no signature verifier configured")
	}
	hash := HashTx(tx)
	if !v.verifier.Verify(hash, tx.Signature, tx.Sender) {
		return newErr(ErrInvalidSignature, "signature does not verify under sender key")
	}
	return nil
}
