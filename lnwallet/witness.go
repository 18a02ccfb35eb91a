package lnwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// RevokedOutputWitnessWeight is the witness weight of an input sweeping the
// to_local output of a revoked commitment.
func RevokedOutputWitnessWeight() lntypes.WeightUnit {
	return input.ToLocalPenaltyWitnessSize
}

// RevokedHtlcWitnessWeight is the witness weight of an input sweeping an HTLC
// output of a revoked commitment. Offered is relative to the broadcaster.
func RevokedHtlcWitnessWeight(chanType lnwire.ChannelType,
	offered bool) lntypes.WeightUnit {

	confirmed := chanType.HasAnchorsZeroFeeHtlcTx()

	switch {
	case offered && confirmed:
		return input.OfferedHtlcPenaltyWitnessSizeConfirmed
	case offered:
		return input.OfferedHtlcPenaltyWitnessSize
	case confirmed:
		return input.AcceptedHtlcPenaltyWitnessSizeConfirmed
	default:
		return input.AcceptedHtlcPenaltyWitnessSize
	}
}

// CounterpartyHtlcWitnessWeight is the witness weight of an input spending an
// HTLC output of the counterparty's commitment directly: with the preimage
// for HTLCs the counterparty offered, after the timeout for the others.
func CounterpartyHtlcWitnessWeight(chanType lnwire.ChannelType,
	offered bool) lntypes.WeightUnit {

	confirmed := chanType.HasAnchorsZeroFeeHtlcTx()

	switch {
	case offered && confirmed:
		return input.OfferedHtlcSuccessWitnessSizeConfirmed
	case offered:
		return input.OfferedHtlcSuccessWitnessSize
	case confirmed:
		return input.AcceptedHtlcTimeoutWitnessSizeConfirmed
	default:
		return input.AcceptedHtlcTimeoutWitnessSize
	}
}

// HolderHtlcTransactionWitnessWeight is the witness weight of the input of a
// second-level transaction spending an HTLC of our own commitment.
func HolderHtlcTransactionWitnessWeight(chanType lnwire.ChannelType,
	offered bool) lntypes.WeightUnit {

	confirmed := chanType.HasAnchorsZeroFeeHtlcTx()

	switch {
	case offered && confirmed:
		return input.OfferedHtlcTimeoutWitnessSizeConfirmed
	case offered:
		return input.OfferedHtlcTimeoutWitnessSize
	case confirmed:
		return input.AcceptedHtlcSuccessWitnessSizeConfirmed
	default:
		return input.AcceptedHtlcSuccessWitnessSize
	}
}

// WitnessBuilder assembles the witnesses that spend outputs of the
// counterparty's commitments, using the channel signer for the signatures.
type WitnessBuilder struct {
	signer ChannelSigner
}

// NewWitnessBuilder creates a witness builder on top of a channel signer.
func NewWitnessBuilder(signer ChannelSigner) *WitnessBuilder {
	return &WitnessBuilder{
		signer: signer,
	}
}

// counterpartyCommitment returns the parameters and keys of the
// counterparty's commitment with the given per-commitment point.
func (w *WitnessBuilder) counterpartyCommitment(
	commitPoint *btcec.PublicKey) (*DirectedChannelTransactionParameters,
	*TxCreationKeys, error) {

	params, err := w.signer.ChannelParameters()
	if err != nil {
		return nil, nil, err
	}
	directed, err := params.AsCounterpartyBroadcastable()
	if err != nil {
		return nil, nil, err
	}

	keys := DeriveTxCreationKeys(
		commitPoint, directed.BroadcasterPubKeys(),
		directed.CountersignatoryPubKeys(),
	)

	return directed, keys, nil
}

// SpendJusticeRevokedOutput builds the witness sweeping the to_local output
// of a revoked counterparty commitment, given the per-commitment secret of
// that commitment.
func (w *WitnessBuilder) SpendJusticeRevokedOutput(justiceTx *wire.MsgTx,
	inputIndex int, amount btcutil.Amount,
	perCommitmentKey *btcec.PrivateKey) (wire.TxWitness, error) {

	sig, err := w.signer.SignJusticeRevokedOutput(
		justiceTx, inputIndex, amount, perCommitmentKey,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignerUnavailable, err)
	}

	directed, keys, err := w.counterpartyCommitment(
		perCommitmentKey.PubKey(),
	)
	if err != nil {
		return nil, err
	}

	witnessScript, err := input.CommitScriptToSelf(
		uint32(directed.ContestDelay()),
		keys.BroadcasterDelayedPaymentKey, keys.RevocationKey,
	)
	if err != nil {
		return nil, err
	}

	return input.CommitRevokeWitness(
		sig, txscript.SigHashAll, witnessScript,
	), nil
}

// SpendJusticeRevokedHtlc builds the witness sweeping an HTLC output of a
// revoked counterparty commitment.
func (w *WitnessBuilder) SpendJusticeRevokedHtlc(justiceTx *wire.MsgTx,
	inputIndex int, amount btcutil.Amount,
	perCommitmentKey *btcec.PrivateKey, htlc *HTLC) (wire.TxWitness,
	error) {

	sig, err := w.signer.SignJusticeRevokedHtlc(
		justiceTx, inputIndex, amount, perCommitmentKey, htlc,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignerUnavailable, err)
	}

	directed, keys, err := w.counterpartyCommitment(
		perCommitmentKey.PubKey(),
	)
	if err != nil {
		return nil, err
	}

	witnessScript, err := HtlcWitnessScript(
		directed.ChannelType(), htlc, keys,
	)
	if err != nil {
		return nil, err
	}

	return input.HtlcRevokeWitness(
		sig, txscript.SigHashAll, keys.RevocationKey, witnessScript,
	), nil
}

// SpendCounterpartyHtlcOutput builds the witness spending an HTLC output of
// the counterparty's commitment with our HTLC key: with the preimage if the
// counterparty offered the HTLC, after its timeout otherwise.
func (w *WitnessBuilder) SpendCounterpartyHtlcOutput(sweepTx *wire.MsgTx,
	inputIndex int, amount btcutil.Amount, commitPoint *btcec.PublicKey,
	htlc *HTLC, preimage fn.Option[lntypes.Preimage]) (wire.TxWitness,
	error) {

	sig, err := w.signer.SignCounterpartyHtlcTransaction(
		sweepTx, inputIndex, amount, commitPoint, htlc,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignerUnavailable, err)
	}

	directed, keys, err := w.counterpartyCommitment(commitPoint)
	if err != nil {
		return nil, err
	}

	witnessScript, err := HtlcWitnessScript(
		directed.ChannelType(), htlc, keys,
	)
	if err != nil {
		return nil, err
	}

	witnessItem := fn.MapOptionZ(preimage, func(p lntypes.Preimage) []byte {
		return p[:]
	})

	return input.HtlcClaimWitness(
		sig, txscript.SigHashAll, witnessItem, witnessScript,
	), nil
}
