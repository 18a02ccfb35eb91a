package lnwallet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrCommitmentMismatch is returned when a commitment does not match the one
// rebuilt from the channel parameters.
var ErrCommitmentMismatch = errors.New("commitment does not match channel " +
	"parameters")

// TxBuilder builds the commitment transactions of a channel.
type TxBuilder interface {
	// ProvidePopulatedParameters sets the channel parameters, which must
	// be complete.
	ProvidePopulatedParameters(params *ChannelTransactionParameters)

	// ProvideChannelParameters sets the channel parameters once the
	// counterparty's parameters are known but the funding outpoint isn't.
	ProvideChannelParameters(params *ChannelTransactionParameters)

	// ProvideFundingOutpoint completes the channel parameters with the
	// funding outpoint.
	ProvideFundingOutpoint(outpoint wire.OutPoint)

	// PopulatedParameters returns the complete channel parameters.
	PopulatedParameters() *ChannelTransactionParameters

	// BuildCommitment runs the full pipeline from the channel state to
	// the commitment transaction.
	BuildCommitment(req *CommitmentRequest) (*CommitmentTransaction,
		*CommitmentStats, error)

	// BuildCommitmentTransaction assembles a commitment from final
	// balances and the non-dust HTLCs.
	BuildCommitmentTransaction(local bool, commitNum uint64,
		commitPoint *btcec.PublicKey, toBroadcaster,
		toCountersignatory btcutil.Amount,
		feePerKw chainfee.SatPerKWeight,
		htlcs []*HTLC) (*CommitmentTransaction, error)
}

// SpecTxBuilder builds commitment transactions as described in BOLT 3.
type SpecTxBuilder struct {
	mu     sync.RWMutex
	params *ChannelTransactionParameters
}

// A compile time check to ensure SpecTxBuilder implements the TxBuilder
// interface.
var _ TxBuilder = (*SpecTxBuilder)(nil)

// NewSpecTxBuilder creates a builder without channel parameters.
func NewSpecTxBuilder() *SpecTxBuilder {
	return &SpecTxBuilder{}
}

// ProvidePopulatedParameters sets the channel parameters, which must be
// complete. Providing the same parameters again is a no-op, providing
// different ones panics.
func (b *SpecTxBuilder) ProvidePopulatedParameters(
	params *ChannelTransactionParameters) {

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.params != nil {
		if !b.params.Equal(params) {
			panic(ErrParamsMismatch)
		}

		return
	}

	if !params.IsPopulated() {
		panic(ErrParamsNotPopulated)
	}

	b.params = params.Copy()
}

// ProvideChannelParameters sets the channel parameters once the
// counterparty's parameters are known. The funding outpoint must not be set
// yet. Providing the same parameters again is a no-op, providing different
// ones panics.
func (b *SpecTxBuilder) ProvideChannelParameters(
	params *ChannelTransactionParameters) {

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.params != nil {
		if !b.params.Equal(params) {
			panic(ErrParamsMismatch)
		}

		return
	}

	if params.CounterpartyParameters.IsNone() ||
		params.FundingOutpoint.IsSome() {

		panic("channel parameters must carry the counterparty " +
			"parameters and no funding outpoint")
	}

	b.params = params.Copy()
}

// ProvideFundingOutpoint completes the channel parameters with the funding
// outpoint. Providing the same outpoint again is a no-op, providing a
// different one panics.
func (b *SpecTxBuilder) ProvideFundingOutpoint(outpoint wire.OutPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.params == nil || b.params.CounterpartyParameters.IsNone() {
		panic(ErrParamsNotPopulated)
	}

	err := fn.MapOptionZ(
		b.params.FundingOutpoint, func(known wire.OutPoint) error {
			if known != outpoint {
				return ErrFundingOutpointMismatch
			}

			return nil
		},
	)
	if err != nil {
		panic(err)
	}

	b.params.FundingOutpoint = fn.Some(outpoint)
	if !b.params.IsPopulated() {
		panic(ErrParamsNotPopulated)
	}
}

// PopulatedParameters returns a copy of the complete channel parameters. It
// panics if they are not complete yet.
func (b *SpecTxBuilder) PopulatedParameters() *ChannelTransactionParameters {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.params == nil || !b.params.IsPopulated() {
		panic(ErrParamsNotPopulated)
	}

	return b.params.Copy()
}

// Parameters returns a copy of the complete channel parameters, or
// ErrParamsNotPopulated if they are not complete yet.
func (b *SpecTxBuilder) Parameters() (*ChannelTransactionParameters, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.params == nil || !b.params.IsPopulated() {
		return nil, ErrParamsNotPopulated
	}

	return b.params.Copy(), nil
}

// directedParameters returns the parameters as seen from the broadcaster of
// the commitment.
func (b *SpecTxBuilder) directedParameters(
	local bool) *DirectedChannelTransactionParameters {

	params := b.PopulatedParameters()

	var (
		directed *DirectedChannelTransactionParameters
		err      error
	)
	if local {
		directed, err = params.AsHolderBroadcastable()
	} else {
		directed, err = params.AsCounterpartyBroadcastable()
	}
	if err != nil {
		panic(err)
	}

	return directed
}

// CommitmentRequest is the channel state a commitment is built from.
type CommitmentRequest struct {
	// Local is true for our own commitment, false for the
	// counterparty's.
	Local bool

	// CommitmentNumber is the number of the commitment, starting at zero
	// and counting up.
	CommitmentNumber uint64

	// PerCommitmentPoint is the broadcaster's point of this commitment.
	PerCommitmentPoint *btcec.PublicKey

	// ValueToHolder is our balance, including the HTLCs we offered that
	// are still pending.
	ValueToHolder lnwire.MilliSatoshi

	// HTLCs are the pending HTLCs, with Offered relative to the
	// broadcaster. The output index of every HTLC is set by the build.
	HTLCs []*HTLC

	// FeePerKw is the commitment fee rate.
	FeePerKw chainfee.SatPerKWeight

	// BroadcasterDustLimit is the dust limit of the broadcaster. It
	// applies to the HTLCs and to both main outputs.
	BroadcasterDustLimit btcutil.Amount
}

// BuildCommitment trims dust HTLCs, takes the fee and anchors from the
// funder, drops main outputs below the dust limit and assembles the
// commitment. The trimmed HTLCs end up with an unset output index.
//
// NOTE: HTLCs in excess of the balance of the party that offered them cause a
// panic, the caller must refuse such updates beforehand.
func (b *SpecTxBuilder) BuildCommitment(req *CommitmentRequest) (
	*CommitmentTransaction, *CommitmentStats, error) {

	params := b.PopulatedParameters()
	chanType := params.ChannelType

	var (
		nonDust = make([]*HTLC, 0, len(req.HTLCs))
		amounts = make([]HTLCAmountDirection, 0, len(req.HTLCs))
	)
	for _, htlc := range req.HTLCs {
		amounts = append(amounts, HTLCAmountDirection{
			OutboundFromHolder: htlc.Offered == req.Local,
			Amount:             htlc.Amount,
		})

		if htlc.IsDust(
			chanType, req.FeePerKw, req.BroadcasterDustLimit,
		) {

			walletLog.Tracef("Trimming dust %v", htlc)
			htlc.OutputIndex = fn.None[uint32]()

			continue
		}

		nonDust = append(nonDust, htlc)
	}

	stats := BuildCommitmentStats(&StatsRequest{
		Local:                req.Local,
		IsOutboundFromHolder: params.IsOutboundFromHolder,
		ChannelType:          chanType,
		ChannelValue:         params.ChannelValue,
		ValueToHolder:        req.ValueToHolder,
		HTLCs:                amounts,
		FeePerKw:             req.FeePerKw,
		BroadcasterDustLimit: req.BroadcasterDustLimit,
	})

	// The funder pays the fee, possibly down to nothing.
	var (
		fee          = lnwire.NewMSatFromSatoshis(stats.TotalFee)
		holder       = stats.HolderBalanceBeforeFee
		counterparty = stats.CounterpartyBalanceBeforeFee
	)
	if params.IsOutboundFromHolder {
		holder = saturatingSub(holder, fee)
	} else {
		counterparty = saturatingSub(counterparty, fee)
	}

	toBroadcaster := holder.ToSatoshis()
	toCountersignatory := counterparty.ToSatoshis()
	if !req.Local {
		toBroadcaster, toCountersignatory = toCountersignatory,
			toBroadcaster
	}

	if toBroadcaster < req.BroadcasterDustLimit {
		toBroadcaster = 0
	}
	if toCountersignatory < req.BroadcasterDustLimit {
		toCountersignatory = 0
	}

	commitment, err := b.BuildCommitmentTransaction(
		req.Local, req.CommitmentNumber, req.PerCommitmentPoint,
		toBroadcaster, toCountersignatory, req.FeePerKw, nonDust,
	)
	if err != nil {
		return nil, nil, err
	}

	walletLog.Debugf("Built commitment %v (local=%v, number=%v): %v",
		commitment.TxHash(), req.Local, req.CommitmentNumber, stats)
	walletLog.Tracef("Commitment transaction: %v",
		newLogClosure(commitment.tx))

	return commitment, stats, nil
}

// BuildCommitmentTransaction assembles the commitment transaction of the
// given balances and non-dust HTLCs. Zero balances get no output. The output
// index of every HTLC is set to its position in the sorted outputs.
func (b *SpecTxBuilder) BuildCommitmentTransaction(local bool,
	commitNum uint64, commitPoint *btcec.PublicKey, toBroadcaster,
	toCountersignatory btcutil.Amount, feePerKw chainfee.SatPerKWeight,
	htlcs []*HTLC) (*CommitmentTransaction, error) {

	directed := b.directedParameters(local)
	keys := DeriveTxCreationKeys(
		commitPoint, directed.BroadcasterPubKeys(),
		directed.CountersignatoryPubKeys(),
	)
	chanType := directed.ChannelType()

	commitTx := wire.NewMsgTx(CommitTxVersion(chanType))
	commitTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: directed.FundingOutpoint(),
	})
	err := SetStateNumHint(
		commitTx, commitNum, directed.StateHintObfuscator(),
	)
	if err != nil {
		return nil, err
	}

	// Track the HTLC behind every output, -1 for the others, so the
	// output indexes can be assigned once the outputs are sorted.
	var (
		cltvs     []uint32
		htlcIndex []int
	)
	addOutput := func(txOut *wire.TxOut, cltv uint32, htlc int) {
		commitTx.AddTxOut(txOut)
		cltvs = append(cltvs, cltv)
		htlcIndex = append(htlcIndex, htlc)
	}

	if toBroadcaster > 0 {
		toLocal, err := toLocalOutput(directed, keys, toBroadcaster)
		if err != nil {
			return nil, err
		}
		addOutput(toLocal, 0, -1)
	}

	if toCountersignatory > 0 {
		toRemote, err := toRemoteOutput(
			directed, commitPoint, toCountersignatory,
		)
		if err != nil {
			return nil, err
		}
		addOutput(toRemote, 0, -1)
	}

	var htlcTotal btcutil.Amount
	for i, htlc := range htlcs {
		witnessScript, err := HtlcWitnessScript(chanType, htlc, keys)
		if err != nil {
			return nil, err
		}
		pkScript, err := input.WitnessScriptHash(witnessScript)
		if err != nil {
			return nil, err
		}

		amt := htlc.Amount.ToSatoshis()
		htlcTotal += amt

		addOutput(&wire.TxOut{
			Value:    int64(amt),
			PkScript: pkScript,
		}, htlc.RefundTimeout, i)
	}

	switch {
	// Each party gets a keyed anchor while it has something to protect on
	// the commitment.
	case chanType.HasAnchorsZeroFeeHtlcTx():
		if toBroadcaster > 0 || len(htlcs) > 0 {
			anchor, err := anchorOutput(
				directed.BroadcasterPubKeys(),
			)
			if err != nil {
				return nil, err
			}
			addOutput(anchor, 0, -1)
		}

		if toCountersignatory > 0 || len(htlcs) > 0 {
			anchor, err := anchorOutput(
				directed.CountersignatoryPubKeys(),
			)
			if err != nil {
				return nil, err
			}
			addOutput(anchor, 0, -1)
		}

	// The shared anchor collects what the rounding and trimming left
	// over, up to its dust threshold.
	case chanType.HasZeroFeeCommitments():
		remainder := directed.ChannelValue() - toBroadcaster -
			toCountersignatory - htlcTotal
		addOutput(&wire.TxOut{
			Value:    int64(max(min(P2AMaxValue, remainder), 0)),
			PkScript: input.PayToAnchorScript,
		}, 0, -1)
	}

	positions := InPlaceCommitSort(commitTx, cltvs)

	sorted := make([]HTLC, 0, len(htlcs))
	for newIndex, oldIndex := range positions {
		i := htlcIndex[oldIndex]
		if i < 0 {
			continue
		}

		htlcs[i].OutputIndex = fn.Some(uint32(newIndex))
		sorted = append(sorted, *htlcs[i])
	}

	if err := checkCommitmentSanity(commitTx, directed); err != nil {
		return nil, err
	}

	return &CommitmentTransaction{
		CommitmentNumber:        commitNum,
		ToBroadcasterValue:      toBroadcaster,
		ToCountersignatoryValue: toCountersignatory,
		FeePerKw:                feePerKw,
		HTLCs:                   sorted,
		Keys:                    keys,
		ChannelType:             chanType,
		HolderIsBroadcaster:     local,
		ContestDelay:            directed.ContestDelay(),
		tx:                      commitTx,
		txid:                    commitTx.TxHash(),
	}, nil
}

// VerifyCommitment rebuilds a commitment from the channel parameters and
// checks that it matches the given one.
func (b *SpecTxBuilder) VerifyCommitment(c *CommitmentTransaction) error {
	htlcs := make([]*HTLC, 0, len(c.HTLCs))
	for i := range c.HTLCs {
		htlc := c.HTLCs[i]
		htlcs = append(htlcs, &htlc)
	}

	rebuilt, err := b.BuildCommitmentTransaction(
		c.HolderIsBroadcaster, c.CommitmentNumber,
		c.Keys.PerCommitmentPoint, c.ToBroadcasterValue,
		c.ToCountersignatoryValue, c.FeePerKw, htlcs,
	)
	if err != nil {
		return err
	}

	if rebuilt.TxHash() != c.TxHash() || !rebuilt.Keys.Equal(c.Keys) {
		return fmt.Errorf("%w: expected %v, got %v",
			ErrCommitmentMismatch, rebuilt.TxHash(), c.TxHash())
	}

	return nil
}

// checkCommitmentSanity runs the context free consensus checks on the
// commitment and makes sure it does not spend more than the channel holds.
func checkCommitmentSanity(commitTx *wire.MsgTx,
	directed *DirectedChannelTransactionParameters) error {

	err := blockchain.CheckTransactionSanity(btcutil.NewTx(commitTx))
	if err != nil {
		return err
	}

	var total btcutil.Amount
	for _, txOut := range commitTx.TxOut {
		total += btcutil.Amount(txOut.Value)
	}
	if total > directed.ChannelValue() {
		return fmt.Errorf("%w: outputs %v, capacity %v",
			ErrCommitmentExceedsCapacity, total,
			directed.ChannelValue())
	}

	return nil
}

// toLocalOutput builds the broadcaster's delayed output, which the
// countersignatory may sweep with the revocation key.
func toLocalOutput(directed *DirectedChannelTransactionParameters,
	keys *TxCreationKeys, amt btcutil.Amount) (*wire.TxOut, error) {

	witnessScript, err := input.CommitScriptToSelf(
		uint32(directed.ContestDelay()),
		keys.BroadcasterDelayedPaymentKey, keys.RevocationKey,
	)
	if err != nil {
		return nil, err
	}
	pkScript, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}

	return &wire.TxOut{
		Value:    int64(amt),
		PkScript: pkScript,
	}, nil
}

// ToRemoteScript returns the witness script (nil for P2WKH) and the output
// script paying the countersignatory of a commitment.
func ToRemoteScript(chanType lnwire.ChannelType,
	countersignatory *ChannelPublicKeys,
	commitPoint *btcec.PublicKey) ([]byte, []byte, error) {

	paymentKey := countersignatory.PaymentBasePoint.PubKey

	switch {
	// Anchor channels lock the output behind one confirmation so it
	// cannot be used to pin the commitment.
	case chanType.HasAnchorsZeroFeeHtlcTx():
		witnessScript, err := input.CommitScriptToRemoteConfirmed(
			paymentKey,
		)
		if err != nil {
			return nil, nil, err
		}
		pkScript, err := input.WitnessScriptHash(witnessScript)
		if err != nil {
			return nil, nil, err
		}

		return witnessScript, pkScript, nil

	case chanType.HasStaticRemoteKey() || chanType.HasZeroFeeCommitments():
		pkScript, err := input.CommitScriptUnencumbered(paymentKey)

		return nil, pkScript, err

	default:
		pkScript, err := input.CommitScriptUnencumbered(
			input.TweakPubKey(paymentKey, commitPoint),
		)

		return nil, pkScript, err
	}
}

// toRemoteOutput builds the countersignatory's output.
func toRemoteOutput(directed *DirectedChannelTransactionParameters,
	commitPoint *btcec.PublicKey, amt btcutil.Amount) (*wire.TxOut, error) {

	_, pkScript, err := ToRemoteScript(
		directed.ChannelType(), directed.CountersignatoryPubKeys(),
		commitPoint,
	)
	if err != nil {
		return nil, err
	}

	return &wire.TxOut{
		Value:    int64(amt),
		PkScript: pkScript,
	}, nil
}

// anchorOutput builds the keyed anchor of one party.
func anchorOutput(keys *ChannelPublicKeys) (*wire.TxOut, error) {
	witnessScript, err := input.CommitScriptAnchor(keys.FundingKey.PubKey)
	if err != nil {
		return nil, err
	}
	pkScript, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}

	return &wire.TxOut{
		Value:    int64(AnchorOutputValue),
		PkScript: pkScript,
	}, nil
}

// HtlcWitnessScript returns the witness script of an HTLC output of the
// commitment the keys belong to. Anchor channels add a one block CSV to the
// non-revocation paths.
func HtlcWitnessScript(chanType lnwire.ChannelType, htlc *HTLC,
	keys *TxCreationKeys) ([]byte, error) {

	confirmedSpend := chanType.HasAnchorsZeroFeeHtlcTx()

	if htlc.Offered {
		return input.SenderHTLCScript(
			keys.BroadcasterHtlcKey, keys.CountersignatoryHtlcKey,
			keys.RevocationKey, htlc.RHash[:], confirmedSpend,
		)
	}

	return input.ReceiverHTLCScript(
		htlc.RefundTimeout, keys.CountersignatoryHtlcKey,
		keys.BroadcasterHtlcKey, keys.RevocationKey, htlc.RHash[:],
		confirmedSpend,
	)
}

// CommitmentTransaction is a built commitment together with everything
// needed to sign it and its second-level transactions.
type CommitmentTransaction struct {
	// CommitmentNumber is the number of the commitment, counting up.
	CommitmentNumber uint64

	// ToBroadcasterValue is the value of the broadcaster's output, zero
	// if it was dropped.
	ToBroadcasterValue btcutil.Amount

	// ToCountersignatoryValue is the value of the countersignatory's
	// output, zero if it was dropped.
	ToCountersignatoryValue btcutil.Amount

	// FeePerKw is the fee rate the commitment was built at.
	FeePerKw chainfee.SatPerKWeight

	// HTLCs are the non-dust HTLCs in output order.
	HTLCs []HTLC

	// Keys are the keys of this commitment.
	Keys *TxCreationKeys

	// ChannelType is the negotiated channel type.
	ChannelType lnwire.ChannelType

	// HolderIsBroadcaster is true for our own commitments.
	HolderIsBroadcaster bool

	// ContestDelay is the relative delay of the broadcaster's outputs.
	ContestDelay uint16

	tx   *wire.MsgTx
	txid chainhash.Hash
}

// Tx returns a copy of the unsigned commitment transaction.
func (c *CommitmentTransaction) Tx() *wire.MsgTx {
	return c.tx.Copy()
}

// TxHash returns the txid of the commitment.
func (c *CommitmentTransaction) TxHash() chainhash.Hash {
	return c.txid
}

// HtlcTx builds the second-level transaction of one of the commitment's
// HTLCs: a timeout transaction for offered HTLCs, a success transaction for
// received ones. The second-level fee is taken from the HTLC value.
func (c *CommitmentTransaction) HtlcTx(htlc *HTLC) (*wire.MsgTx, error) {
	outputIndex, err := htlc.OutputIndex.UnwrapOrErr(
		errors.New("htlc has no output on the commitment"),
	)
	if err != nil {
		return nil, err
	}

	outpoint := wire.OutPoint{
		Hash:  c.txid,
		Index: outputIndex,
	}
	fee := htlcSecondStageFee(c.ChannelType, htlc.Offered, c.FeePerKw)
	amt := htlc.Amount.ToSatoshis() - fee

	if htlc.Offered {
		return CreateHtlcTimeoutTx(
			c.ChannelType, outpoint, amt, htlc.RefundTimeout,
			uint32(c.ContestDelay), c.Keys.RevocationKey,
			c.Keys.BroadcasterDelayedPaymentKey,
		)
	}

	return CreateHtlcSuccessTx(
		c.ChannelType, outpoint, amt, uint32(c.ContestDelay),
		c.Keys.RevocationKey, c.Keys.BroadcasterDelayedPaymentKey,
	)
}

// HolderCommitmentTransaction is one of our own commitments together with
// the counterparty's signatures on it and on its HTLC transactions.
type HolderCommitmentTransaction struct {
	*CommitmentTransaction

	// CounterpartySig is the counterparty's signature on the commitment.
	CounterpartySig input.Signature

	// CounterpartyHtlcSigs are the counterparty's signatures on the
	// second-level transactions, in the order of the HTLCs.
	CounterpartyHtlcSigs []input.Signature
}
