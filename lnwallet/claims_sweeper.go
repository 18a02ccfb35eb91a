package lnwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// PackageSolvingData is the data needed to spend one output the chain
// watcher wants to claim.
type PackageSolvingData interface {
	// Amount is the value of the output being claimed.
	Amount() btcutil.Amount

	// WitnessWeight is the weight of the witness spending the output.
	WitnessWeight(chanType lnwire.ChannelType) lntypes.WeightUnit
}

// RevokedOutput is the to_local output of a revoked counterparty commitment.
type RevokedOutput struct {
	// PerCommitmentKey is the revealed secret of the commitment.
	PerCommitmentKey *btcec.PrivateKey

	// Value is the value of the output.
	Value btcutil.Amount
}

// Amount returns the value of the output.
func (r *RevokedOutput) Amount() btcutil.Amount {
	return r.Value
}

// WitnessWeight returns the weight of the penalty witness.
func (r *RevokedOutput) WitnessWeight(lnwire.ChannelType) lntypes.WeightUnit {
	return RevokedOutputWitnessWeight()
}

// RevokedHTLCOutput is an HTLC output of a revoked counterparty commitment.
type RevokedHTLCOutput struct {
	// PerCommitmentKey is the revealed secret of the commitment.
	PerCommitmentKey *btcec.PrivateKey

	// HTLC is the HTLC, Offered relative to the counterparty.
	HTLC HTLC
}

// Amount returns the value of the HTLC output.
func (r *RevokedHTLCOutput) Amount() btcutil.Amount {
	return r.HTLC.Amount.ToSatoshis()
}

// WitnessWeight returns the weight of the penalty witness.
func (r *RevokedHTLCOutput) WitnessWeight(
	chanType lnwire.ChannelType) lntypes.WeightUnit {

	return RevokedHtlcWitnessWeight(chanType, r.HTLC.Offered)
}

// CounterpartyOfferedHTLCOutput is an HTLC the counterparty offered us on its
// commitment, claimed with the preimage.
type CounterpartyOfferedHTLCOutput struct {
	// PerCommitmentPoint is the counterparty's point of the commitment.
	PerCommitmentPoint *btcec.PublicKey

	// Preimage is the payment preimage.
	Preimage lntypes.Preimage

	// HTLC is the HTLC.
	HTLC HTLC
}

// Amount returns the value of the HTLC output.
func (c *CounterpartyOfferedHTLCOutput) Amount() btcutil.Amount {
	return c.HTLC.Amount.ToSatoshis()
}

// WitnessWeight returns the weight of the success witness.
func (c *CounterpartyOfferedHTLCOutput) WitnessWeight(
	chanType lnwire.ChannelType) lntypes.WeightUnit {

	return CounterpartyHtlcWitnessWeight(chanType, true)
}

// CounterpartyReceivedHTLCOutput is an HTLC we offered that sits on the
// counterparty's commitment, reclaimed after its timeout.
type CounterpartyReceivedHTLCOutput struct {
	// PerCommitmentPoint is the counterparty's point of the commitment.
	PerCommitmentPoint *btcec.PublicKey

	// HTLC is the HTLC.
	HTLC HTLC
}

// Amount returns the value of the HTLC output.
func (c *CounterpartyReceivedHTLCOutput) Amount() btcutil.Amount {
	return c.HTLC.Amount.ToSatoshis()
}

// WitnessWeight returns the weight of the timeout witness.
func (c *CounterpartyReceivedHTLCOutput) WitnessWeight(
	chanType lnwire.ChannelType) lntypes.WeightUnit {

	return CounterpartyHtlcWitnessWeight(chanType, false)
}

// HolderHTLCOutput is an HTLC of our own commitment, resolved with a
// second-level transaction the signer completes on its own.
type HolderHTLCOutput struct {
	// Descriptor describes the HTLC.
	Descriptor *HTLCDescriptor
}

// Amount returns the value of the HTLC output.
func (h *HolderHTLCOutput) Amount() btcutil.Amount {
	return h.Descriptor.Amount()
}

// WitnessWeight returns the weight of the second-level witness.
func (h *HolderHTLCOutput) WitnessWeight(
	chanType lnwire.ChannelType) lntypes.WeightUnit {

	return HolderHtlcTransactionWitnessWeight(
		chanType, h.Descriptor.HTLC.Offered,
	)
}

// HolderFundingOutput is the funding output spent by our own commitment.
type HolderFundingOutput struct {
	// Value is the channel value.
	Value btcutil.Amount
}

// Amount returns the channel value.
func (h *HolderFundingOutput) Amount() btcutil.Amount {
	return h.Value
}

// WitnessWeight returns the weight of the 2-of-2 funding witness.
func (h *HolderFundingOutput) WitnessWeight(
	lnwire.ChannelType) lntypes.WeightUnit {

	return fundingWitnessWeight
}

// fundingWitnessWeight is the weight of the witness of a 2-of-2 funding
// input: <0> <sig1> <sig2> <script>.
const fundingWitnessWeight lntypes.WeightUnit = 1 + 1 + 1 + 73 + 1 + 73 +
	1 + 71

// ClaimsSweeper fills in the witnesses of claim transactions built by the
// chain watcher.
type ClaimsSweeper struct {
	witnesses *WitnessBuilder
}

// NewClaimsSweeper creates a sweeper on top of a channel signer.
func NewClaimsSweeper(signer ChannelSigner) *ClaimsSweeper {
	return &ClaimsSweeper{
		witnesses: NewWitnessBuilder(signer),
	}
}

// FinalizeInput sets the witness of input i of the claim transaction. It
// returns false if the signer refused to sign a penalty, in which case the
// transaction must not be broadcast. A refused signature on a counterparty
// HTLC leaves the input unsigned and still returns true, the caller may drop
// that input and broadcast the rest. Claims the sweeper does not handle are
// a programming error and panic.
func (s *ClaimsSweeper) FinalizeInput(claim PackageSolvingData,
	tx *wire.MsgTx, i int) bool {

	switch c := claim.(type) {
	case *RevokedOutput:
		witness, err := s.witnesses.SpendJusticeRevokedOutput(
			tx, i, c.Amount(), c.PerCommitmentKey,
		)
		if err != nil {
			walletLog.Warnf("Unable to sign revoked output "+
				"claim: %v", err)

			return false
		}
		tx.TxIn[i].Witness = witness

	case *RevokedHTLCOutput:
		witness, err := s.witnesses.SpendJusticeRevokedHtlc(
			tx, i, c.Amount(), c.PerCommitmentKey, &c.HTLC,
		)
		if err != nil {
			walletLog.Warnf("Unable to sign revoked htlc claim: %v",
				err)

			return false
		}
		tx.TxIn[i].Witness = witness

	case *CounterpartyOfferedHTLCOutput:
		witness, err := s.witnesses.SpendCounterpartyHtlcOutput(
			tx, i, c.Amount(), c.PerCommitmentPoint, &c.HTLC,
			fn.Some(c.Preimage),
		)
		if err != nil {
			walletLog.Debugf("Skipping counterparty htlc claim: %v",
				err)

			break
		}
		tx.TxIn[i].Witness = witness

	case *CounterpartyReceivedHTLCOutput:
		witness, err := s.witnesses.SpendCounterpartyHtlcOutput(
			tx, i, c.Amount(), c.PerCommitmentPoint, &c.HTLC,
			fn.None[lntypes.Preimage](),
		)
		if err != nil {
			walletLog.Debugf("Skipping counterparty htlc claim: %v",
				err)

			break
		}
		tx.TxIn[i].Witness = witness

	default:
		panic(fmt.Errorf("%w: %T", ErrUnknownClaimType, claim))
	}

	return true
}
