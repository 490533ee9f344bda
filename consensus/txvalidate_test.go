package consensus

import "testing"

type alwaysVerifies struct{}

func (alwaysVerifies) Verify(Hash32, Signature, PublicKey) bool { return true }
func (alwaysVerifies) ValidPublicKey(PublicKey) bool            { return true }

type fixedAccounts map[PublicKey]struct {
	balance Amount
	nonce   Nonce
}

func (a fixedAccounts) GetAccount(addr PublicKey) (Amount, Nonce, bool) {
	v, ok := a[addr]
	return v.balance, v.nonce, ok
}

func addr(b byte) PublicKey {
	var p PublicKey
	p[0] = b
	return p
}

func signedTx(sender, recipient PublicKey, amount, nonce, fee int64) Transaction {
	return Transaction{
		Version:   1,
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Nonce:     nonce,
		Fee:       fee,
		Signature: Signature{0x01},
	}
}

func testValidatorCfg() TransactionValidationConfig {
	return TransactionValidationConfig{
		MinFee:                  0,
		MaxFee:                  1000,
		MaxTransactionsPerBlock: 10,
		MaxTransactionSize:      TxBytesLen,
		SupportedVersion:        1,
	}
}

func TestValidateBatch_AcceptsInOrderNonces(t *testing.T) {
	sender := addr(1)
	recipient := addr(2)
	accounts := fixedAccounts{sender: {balance: 1000, nonce: 5}}

	v := NewTransactionValidator(testValidatorCfg(), alwaysVerifies{})
	txs := []Transaction{
		signedTx(sender, recipient, 10, 5, 1),
		signedTx(sender, recipient, 10, 6, 1),
	}
	results := v.ValidateBatch(txs, accounts)
	for i, err := range results {
		if err != nil {
			t.Errorf("tx[%d] unexpected error: %v", i, err)
		}
	}
}

func TestValidateBatch_RejectsOutOfOrderNonces(t *testing.T) {
	sender := addr(1)
	recipient := addr(2)
	accounts := fixedAccounts{sender: {balance: 1000, nonce: 5}}

	v := NewTransactionValidator(testValidatorCfg(), alwaysVerifies{})
	// Swapped: nonces 6 then 5, but the account's current nonce is 5, so the
	// first transaction in this order must be rejected as InvalidNonce.
	txs := []Transaction{
		signedTx(sender, recipient, 10, 6, 1),
		signedTx(sender, recipient, 10, 5, 1),
	}
	results := v.ValidateBatch(txs, accounts)
	if CodeOf(results[0]) != ErrInvalidNonce {
		t.Errorf("tx[0] code = %v, want ErrInvalidNonce", CodeOf(results[0]))
	}
}

func TestValidateBatch_RejectsInBlockDoubleSpend(t *testing.T) {
	sender := addr(1)
	recipient := addr(2)
	accounts := fixedAccounts{sender: {balance: 100, nonce: 0}}

	v := NewTransactionValidator(testValidatorCfg(), alwaysVerifies{})
	txs := []Transaction{
		signedTx(sender, recipient, 60, 0, 1),
		signedTx(sender, recipient, 60, 1, 1),
	}
	results := v.ValidateBatch(txs, accounts)
	if results[0] != nil {
		t.Errorf("tx[0] unexpected error: %v", results[0])
	}
	if CodeOf(results[1]) != ErrInsufficientBalance {
		t.Errorf("tx[1] code = %v, want ErrInsufficientBalance", CodeOf(results[1]))
	}
}

func TestValidateStandalone_RejectsFeeBelowMinimum(t *testing.T) {
	sender := addr(1)
	recipient := addr(2)
	accounts := fixedAccounts{sender: {balance: 1000, nonce: 0}}

	cfg := testValidatorCfg()
	cfg.MinFee = 5
	v := NewTransactionValidator(cfg, alwaysVerifies{})
	err := v.ValidateStandalone(signedTx(sender, recipient, 10, 0, 1), accounts, nil)
	if CodeOf(err) != ErrFeeTooLow {
		t.Errorf("code = %v, want ErrFeeTooLow", CodeOf(err))
	}
}

func TestValidateStandalone_RejectsSelfTransfer(t *testing.T) {
	sender := addr(1)
	accounts := fixedAccounts{sender: {balance: 1000, nonce: 0}}

	v := NewTransactionValidator(testValidatorCfg(), alwaysVerifies{})
	err := v.ValidateStandalone(signedTx(sender, sender, 10, 0, 1), accounts, nil)
	if CodeOf(err) != ErrSelfTransfer {
		t.Errorf("code = %v, want ErrSelfTransfer", CodeOf(err))
	}
}

func TestValidateBatch_StopsAtFirstFailure(t *testing.T) {
	sender := addr(1)
	recipient := addr(2)
	accounts := fixedAccounts{sender: {balance: 1000, nonce: 0}}

	v := NewTransactionValidator(testValidatorCfg(), alwaysVerifies{})
	txs := []Transaction{
		signedTx(sender, recipient, 10, 1, 1), // wrong nonce: fails immediately
		signedTx(sender, recipient, 10, 1, 1),
	}
	results := v.ValidateBatch(txs, accounts)
	if CodeOf(results[0]) != ErrInvalidNonce {
		t.Errorf("tx[0] code = %v, want ErrInvalidNonce", CodeOf(results[0]))
	}
	if CodeOf(results[1]) != ErrOther {
		t.Errorf("tx[1] code = %v, want ErrOther (stopped due to earlier failure)", CodeOf(results[1]))
	}
}
