package lnwallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/keychain"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrParamsNotPopulated is returned when the channel parameters are
	// accessed before both key sets and the funding outpoint are known.
	ErrParamsNotPopulated = errors.New("channel parameters not populated")

	// ErrParamsMismatch is returned when channel parameters are provided
	// a second time with different values.
	ErrParamsMismatch = errors.New("channel parameters already set " +
		"to different values")

	// ErrFundingOutpointMismatch is returned when a funding outpoint is
	// provided that differs from the one already known.
	ErrFundingOutpointMismatch = errors.New("funding outpoint already " +
		"set to a different value")
)

// unknownWitnessScriptSize is the size of the largest witness program of an
// unknown version, the output type with the highest dust threshold that is
// still standard.
const unknownWitnessScriptSize = 1 + 1 + 40

// DustLimitForSize retrieves the dust limit for a given pkscript size. Given
// the size, it automatically determines the kind of witness output. It calls
// btcd's GetDustThreshold method under the hood. It must be called with a
// proper size parameter or else a panic occurs.
func DustLimitForSize(scriptSize int) btcutil.Amount {
	// With the size of the script, determine which type of pkscript to
	// create. This will be used in the call to GetDustThreshold. The
	// contents of the script itself don't matter.
	var pkScript []byte
	switch scriptSize {
	case input.P2WKHSize:
		pkScript = append([]byte{txscript.OP_0, txscript.OP_DATA_20},
			make([]byte, 20)...)

	case input.P2WSHSize:
		pkScript = append([]byte{txscript.OP_0, txscript.OP_DATA_32},
			make([]byte, 32)...)

	case input.P2ASize:
		pkScript = input.PayToAnchorScript

	case unknownWitnessScriptSize:
		pkScript = append([]byte{txscript.OP_16, txscript.OP_DATA_40},
			make([]byte, 40)...)

	default:
		panic("invalid script size")
	}

	txOut := &wire.TxOut{PkScript: pkScript}

	return btcutil.Amount(mempool.GetDustThreshold(txOut))
}

// DustLimitUnknownWitness returns the dust limit of an output paying to a
// witness program of unknown version. No channel dust limit may be lower.
func DustLimitUnknownWitness() btcutil.Amount {
	return DustLimitForSize(unknownWitnessScriptSize)
}

// ChannelPublicKeys is the set of basepoints one party contributes to a
// channel. The funding key signs the 2-of-2 funding output, the remaining
// points are tweaked with the per-commitment point of every state.
type ChannelPublicKeys struct {
	// FundingKey is the key of the 2-of-2 funding output and of the keyed
	// anchor output.
	FundingKey keychain.KeyDescriptor

	// RevocationBasePoint is combined with the counterparty's
	// per-commitment point to build the revocation key of the
	// counterparty's commitments.
	RevocationBasePoint keychain.KeyDescriptor

	// PaymentBasePoint receives the to_remote output of the
	// counterparty's commitments.
	PaymentBasePoint keychain.KeyDescriptor

	// DelayedPaymentBasePoint receives the delayed to_local output of our
	// own commitments.
	DelayedPaymentBasePoint keychain.KeyDescriptor

	// HtlcBasePoint signs for HTLC outputs of both commitments.
	HtlcBasePoint keychain.KeyDescriptor
}

// keyEqual compares the public halves of two key descriptors.
func keyEqual(a, b keychain.KeyDescriptor) bool {
	if a.PubKey == nil || b.PubKey == nil {
		return a.PubKey == b.PubKey
	}

	return a.PubKey.IsEqual(b.PubKey)
}

// Equal returns true if both key sets carry the same public keys.
func (k *ChannelPublicKeys) Equal(other *ChannelPublicKeys) bool {
	return keyEqual(k.FundingKey, other.FundingKey) &&
		keyEqual(k.RevocationBasePoint, other.RevocationBasePoint) &&
		keyEqual(k.PaymentBasePoint, other.PaymentBasePoint) &&
		keyEqual(
			k.DelayedPaymentBasePoint, other.DelayedPaymentBasePoint,
		) &&
		keyEqual(k.HtlcBasePoint, other.HtlcBasePoint)
}

// CounterpartyChannelTransactionParameters are the parameters the
// counterparty contributes to the channel.
type CounterpartyChannelTransactionParameters struct {
	// PubKeys are the counterparty's basepoints.
	PubKeys ChannelPublicKeys

	// SelectedContestDelay is the relative delay the counterparty applies
	// to the to_local output of our commitments.
	SelectedContestDelay uint16
}

// ChannelTransactionParameters holds everything about a channel that stays
// fixed across its commitments. The counterparty parameters and the funding
// outpoint become known during the funding flow, the parameters are only
// usable to build transactions once both are set.
type ChannelTransactionParameters struct {
	// HolderPubKeys are our own basepoints.
	HolderPubKeys ChannelPublicKeys

	// HolderSelectedContestDelay is the relative delay we apply to the
	// to_local output of the counterparty's commitments.
	HolderSelectedContestDelay uint16

	// IsOutboundFromHolder is true if we opened the channel and
	// therefore pay the commitment fee and anchor values.
	IsOutboundFromHolder bool

	// CounterpartyParameters are set once the counterparty accepted the
	// channel.
	CounterpartyParameters fn.Option[CounterpartyChannelTransactionParameters]

	// FundingOutpoint is set once the funding transaction is known.
	FundingOutpoint fn.Option[wire.OutPoint]

	// ChannelType is the negotiated channel type.
	ChannelType lnwire.ChannelType

	// ChannelValue is the value of the funding output.
	ChannelValue btcutil.Amount
}

// IsPopulated returns true once the counterparty parameters and the funding
// outpoint are both known.
func (p *ChannelTransactionParameters) IsPopulated() bool {
	return p.CounterpartyParameters.IsSome() && p.FundingOutpoint.IsSome()
}

// Equal returns true if both parameter sets are identical.
func (p *ChannelTransactionParameters) Equal(
	other *ChannelTransactionParameters) bool {

	if !p.HolderPubKeys.Equal(&other.HolderPubKeys) ||
		p.HolderSelectedContestDelay != other.HolderSelectedContestDelay ||
		p.IsOutboundFromHolder != other.IsOutboundFromHolder ||
		!p.ChannelType.Equal(other.ChannelType) ||
		p.ChannelValue != other.ChannelValue {

		return false
	}

	if p.FundingOutpoint != other.FundingOutpoint {
		return false
	}

	if p.CounterpartyParameters.IsSome() !=
		other.CounterpartyParameters.IsSome() {

		return false
	}

	ours := p.CounterpartyParameters.UnwrapOr(
		CounterpartyChannelTransactionParameters{},
	)
	theirs := other.CounterpartyParameters.UnwrapOr(
		CounterpartyChannelTransactionParameters{},
	)

	return ours.SelectedContestDelay == theirs.SelectedContestDelay &&
		ours.PubKeys.Equal(&theirs.PubKeys)
}

// Copy returns a deep enough copy of the parameters that the caller may set
// the optional fields without affecting the original.
func (p *ChannelTransactionParameters) Copy() *ChannelTransactionParameters {
	c := *p
	c.ChannelType = lnwire.ChannelType(
		*(*lnwire.RawFeatureVector)(&p.ChannelType).Clone(),
	)

	return &c
}

// AsHolderBroadcastable returns the parameters as seen from our own
// commitment transactions.
func (p *ChannelTransactionParameters) AsHolderBroadcastable() (
	*DirectedChannelTransactionParameters, error) {

	return p.directed(true)
}

// AsCounterpartyBroadcastable returns the parameters as seen from the
// counterparty's commitment transactions.
func (p *ChannelTransactionParameters) AsCounterpartyBroadcastable() (
	*DirectedChannelTransactionParameters, error) {

	return p.directed(false)
}

func (p *ChannelTransactionParameters) directed(holderIsBroadcaster bool) (
	*DirectedChannelTransactionParameters, error) {

	if !p.IsPopulated() {
		return nil, ErrParamsNotPopulated
	}

	return &DirectedChannelTransactionParameters{
		inner:               p,
		counterparty:        p.CounterpartyParameters.UnsafeFromSome(),
		fundingOutpoint:     p.FundingOutpoint.UnsafeFromSome(),
		holderIsBroadcaster: holderIsBroadcaster,
	}, nil
}

// DirectedChannelTransactionParameters is a view of the channel parameters
// from the perspective of one commitment: the broadcaster publishes it, the
// countersignatory signed it.
type DirectedChannelTransactionParameters struct {
	inner               *ChannelTransactionParameters
	counterparty        CounterpartyChannelTransactionParameters
	fundingOutpoint     wire.OutPoint
	holderIsBroadcaster bool
}

// HolderIsBroadcaster returns true if this is a view of our own commitment.
func (d *DirectedChannelTransactionParameters) HolderIsBroadcaster() bool {
	return d.holderIsBroadcaster
}

// BroadcasterPubKeys returns the basepoints of the party that broadcasts the
// commitment.
func (d *DirectedChannelTransactionParameters) BroadcasterPubKeys() *ChannelPublicKeys {
	if d.holderIsBroadcaster {
		return &d.inner.HolderPubKeys
	}

	return &d.counterparty.PubKeys
}

// CountersignatoryPubKeys returns the basepoints of the party that signed the
// commitment for the broadcaster.
func (d *DirectedChannelTransactionParameters) CountersignatoryPubKeys() *ChannelPublicKeys {
	if d.holderIsBroadcaster {
		return &d.counterparty.PubKeys
	}

	return &d.inner.HolderPubKeys
}

// ContestDelay returns the relative delay of the broadcaster's to_local
// output, which is selected by the countersignatory.
func (d *DirectedChannelTransactionParameters) ContestDelay() uint16 {
	if d.holderIsBroadcaster {
		return d.counterparty.SelectedContestDelay
	}

	return d.inner.HolderSelectedContestDelay
}

// IsOutbound returns true if the broadcaster opened the channel.
func (d *DirectedChannelTransactionParameters) IsOutbound() bool {
	return d.holderIsBroadcaster == d.inner.IsOutboundFromHolder
}

// FundingOutpoint returns the outpoint every commitment spends.
func (d *DirectedChannelTransactionParameters) FundingOutpoint() wire.OutPoint {
	return d.fundingOutpoint
}

// ChannelType returns the negotiated channel type.
func (d *DirectedChannelTransactionParameters) ChannelType() lnwire.ChannelType {
	return d.inner.ChannelType
}

// ChannelValue returns the value of the funding output.
func (d *DirectedChannelTransactionParameters) ChannelValue() btcutil.Amount {
	return d.inner.ChannelValue
}

// FundingScript returns the 2-of-2 witness script of the funding output and
// the output itself.
func (d *DirectedChannelTransactionParameters) FundingScript() ([]byte,
	*wire.TxOut, error) {

	return input.GenFundingPkScript(
		d.inner.HolderPubKeys.FundingKey.PubKey.SerializeCompressed(),
		d.counterparty.PubKeys.FundingKey.PubKey.SerializeCompressed(),
		int64(d.inner.ChannelValue),
	)
}

// StateHintObfuscator returns the obfuscator of the commitment number, taken
// from the payment basepoints of the opener and the accepter in that order.
func (d *DirectedChannelTransactionParameters) StateHintObfuscator() [StateHintSize]byte {
	opener, accepter := d.BroadcasterPubKeys(), d.CountersignatoryPubKeys()
	if !d.IsOutbound() {
		opener, accepter = accepter, opener
	}

	return DeriveStateHintObfuscator(
		opener.PaymentBasePoint.PubKey, accepter.PaymentBasePoint.PubKey,
	)
}

// TxCreationKeys are the keys of a single commitment, derived from the
// per-commitment point of the broadcaster and both parties' basepoints.
type TxCreationKeys struct {
	// PerCommitmentPoint is the broadcaster's point of this commitment.
	PerCommitmentPoint *btcec.PublicKey

	// RevocationKey lets the countersignatory sweep every output of the
	// broadcaster once this commitment is revoked.
	RevocationKey *btcec.PublicKey

	// BroadcasterHtlcKey is the broadcaster's key in the HTLC scripts.
	BroadcasterHtlcKey *btcec.PublicKey

	// CountersignatoryHtlcKey is the countersignatory's key in the HTLC
	// scripts.
	CountersignatoryHtlcKey *btcec.PublicKey

	// BroadcasterDelayedPaymentKey is the key of the broadcaster's delayed
	// to_local output.
	BroadcasterDelayedPaymentKey *btcec.PublicKey
}

// DeriveTxCreationKeys derives the keys of one commitment, as described in
// BOLT 3, "Key Derivation".
func DeriveTxCreationKeys(commitPoint *btcec.PublicKey,
	broadcaster, countersignatory *ChannelPublicKeys) *TxCreationKeys {

	return &TxCreationKeys{
		PerCommitmentPoint: commitPoint,
		RevocationKey: input.DeriveRevocationPubkey(
			countersignatory.RevocationBasePoint.PubKey,
			commitPoint,
		),
		BroadcasterHtlcKey: input.TweakPubKey(
			broadcaster.HtlcBasePoint.PubKey, commitPoint,
		),
		CountersignatoryHtlcKey: input.TweakPubKey(
			countersignatory.HtlcBasePoint.PubKey, commitPoint,
		),
		BroadcasterDelayedPaymentKey: input.TweakPubKey(
			broadcaster.DelayedPaymentBasePoint.PubKey, commitPoint,
		),
	}
}

// String returns a short human readable form of the key set.
func (k *TxCreationKeys) String() string {
	return fmt.Sprintf("point=%x revocation=%x",
		k.PerCommitmentPoint.SerializeCompressed(),
		k.RevocationKey.SerializeCompressed())
}

// pubKeysEqual compares two optional public keys.
func pubKeysEqual(a, b *btcec.PublicKey) bool {
	if a == nil || b == nil {
		return a == b
	}

	return bytes.Equal(a.SerializeCompressed(), b.SerializeCompressed())
}

// Equal returns true if both key sets are identical.
func (k *TxCreationKeys) Equal(other *TxCreationKeys) bool {
	return pubKeysEqual(k.PerCommitmentPoint, other.PerCommitmentPoint) &&
		pubKeysEqual(k.RevocationKey, other.RevocationKey) &&
		pubKeysEqual(k.BroadcasterHtlcKey, other.BroadcasterHtlcKey) &&
		pubKeysEqual(
			k.CountersignatoryHtlcKey, other.CountersignatoryHtlcKey,
		) &&
		pubKeysEqual(
			k.BroadcasterDelayedPaymentKey,
			other.BroadcasterDelayedPaymentKey,
		)
}
