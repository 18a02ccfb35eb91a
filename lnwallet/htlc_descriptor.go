package lnwallet

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrMissingPreimage is returned when the witness of an HTLC success
// transaction is requested without the payment preimage.
var ErrMissingPreimage = errors.New("htlc success requires the preimage")

// HTLCDescriptor describes an HTLC of our own commitment that we resolve
// with a second-level transaction.
type HTLCDescriptor struct {
	// CommitmentTxID is the txid of the commitment holding the HTLC.
	CommitmentTxID chainhash.Hash

	// PerCommitmentNumber is the signer index of the commitment.
	PerCommitmentNumber uint64

	// PerCommitmentPoint is our point of the commitment.
	PerCommitmentPoint *btcec.PublicKey

	// FeePerKw is the fee rate of the commitment.
	FeePerKw chainfee.SatPerKWeight

	// HTLC is the HTLC, its output index must be set.
	HTLC HTLC

	// Preimage is the payment preimage, required for received HTLCs.
	Preimage fn.Option[lntypes.Preimage]

	// CounterpartySig is the counterparty's signature on the second-level
	// transaction.
	CounterpartySig input.Signature
}

// Keys returns the keys of the commitment holding the HTLC.
func (d *HTLCDescriptor) Keys(
	params *DirectedChannelTransactionParameters) *TxCreationKeys {

	return DeriveTxCreationKeys(
		d.PerCommitmentPoint, params.BroadcasterPubKeys(),
		params.CountersignatoryPubKeys(),
	)
}

// WitnessScript returns the witness script of the HTLC output.
func (d *HTLCDescriptor) WitnessScript(
	params *DirectedChannelTransactionParameters) ([]byte, error) {

	return HtlcWitnessScript(params.ChannelType(), &d.HTLC, d.Keys(params))
}

// PreviousOutput returns the HTLC output of the commitment.
func (d *HTLCDescriptor) PreviousOutput(
	params *DirectedChannelTransactionParameters) (*wire.TxOut, error) {

	witnessScript, err := d.WitnessScript(params)
	if err != nil {
		return nil, err
	}
	pkScript, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}

	return &wire.TxOut{
		Value:    int64(d.HTLC.Amount.ToSatoshis()),
		PkScript: pkScript,
	}, nil
}

// UnsignedTx builds the second-level transaction resolving the HTLC.
func (d *HTLCDescriptor) UnsignedTx(
	params *DirectedChannelTransactionParameters) (*wire.MsgTx, error) {

	commitment := &CommitmentTransaction{
		FeePerKw:     d.FeePerKw,
		Keys:         d.Keys(params),
		ChannelType:  params.ChannelType(),
		ContestDelay: params.ContestDelay(),
		txid:         d.CommitmentTxID,
	}

	return commitment.HtlcTx(&d.HTLC)
}

// Amount returns the value of the HTLC output.
func (d *HTLCDescriptor) Amount() btcutil.Amount {
	return d.HTLC.Amount.ToSatoshis()
}

// TxInputWitness assembles the witness of the second-level transaction from
// the counterparty's signature and ours.
func (d *HTLCDescriptor) TxInputWitness(
	params *DirectedChannelTransactionParameters,
	sig input.Signature) (wire.TxWitness, error) {

	witnessScript, err := d.WitnessScript(params)
	if err != nil {
		return nil, err
	}
	sigHashType := HtlcSigHashType(params.ChannelType())

	if d.HTLC.Offered {
		return input.SenderHtlcSpendTimeout(
			d.CounterpartySig, sigHashType, sig, witnessScript,
		), nil
	}

	preimage, err := d.Preimage.UnwrapOrErr(ErrMissingPreimage)
	if err != nil {
		return nil, err
	}

	return input.ReceiverHtlcSpendRedeem(
		d.CounterpartySig, sigHashType, sig, preimage[:],
		witnessScript,
	), nil
}
