package lnwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/wire"
)

// ClosingTransaction is a cooperative close of a channel paying each party
// to its delivery script.
type ClosingTransaction struct {
	// ToHolderValue is what we receive, zero if we get no output.
	ToHolderValue btcutil.Amount

	// ToCounterpartyValue is what the counterparty receives, zero if it
	// gets no output.
	ToCounterpartyValue btcutil.Amount

	// ToHolderScript is our delivery script.
	ToHolderScript []byte

	// ToCounterpartyScript is the counterparty's delivery script.
	ToCounterpartyScript []byte

	// FundingOutpoint is the outpoint the transaction spends.
	FundingOutpoint wire.OutPoint

	tx *wire.MsgTx
}

// NewClosingTransaction creates a transaction which if signed by both
// parties, then broadcast cooperatively closes an active channel. The fee
// must already be taken from the balances. In the event that one side doesn't
// have any settled funds within the channel then a refund output for that
// particular side can be omitted.
func NewClosingTransaction(toHolder, toCounterparty btcutil.Amount,
	holderScript, counterpartyScript []byte,
	fundingOutpoint wire.OutPoint) *ClosingTransaction {

	closeTx := wire.NewMsgTx(2)
	closeTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: fundingOutpoint,
		Sequence:         wire.MaxTxInSequenceNum,
	})

	if toHolder != 0 {
		closeTx.AddTxOut(&wire.TxOut{
			PkScript: holderScript,
			Value:    int64(toHolder),
		})
	}
	if toCounterparty != 0 {
		closeTx.AddTxOut(&wire.TxOut{
			PkScript: counterpartyScript,
			Value:    int64(toCounterparty),
		})
	}

	txsort.InPlaceSort(closeTx)

	return &ClosingTransaction{
		ToHolderValue:        toHolder,
		ToCounterpartyValue:  toCounterparty,
		ToHolderScript:       holderScript,
		ToCounterpartyScript: counterpartyScript,
		FundingOutpoint:      fundingOutpoint,
		tx:                   closeTx,
	}
}

// Tx returns a copy of the unsigned closing transaction.
func (c *ClosingTransaction) Tx() *wire.MsgTx {
	return c.tx.Copy()
}

// Verify rebuilds the closing transaction with the given funding outpoint
// and checks that it matches.
func (c *ClosingTransaction) Verify(fundingOutpoint wire.OutPoint) error {
	rebuilt := NewClosingTransaction(
		c.ToHolderValue, c.ToCounterpartyValue, c.ToHolderScript,
		c.ToCounterpartyScript, fundingOutpoint,
	)
	if rebuilt.tx.TxHash() != c.tx.TxHash() {
		return fmt.Errorf("closing transaction %v does not spend "+
			"funding outpoint %v", c.tx.TxHash(), fundingOutpoint)
	}

	return nil
}
