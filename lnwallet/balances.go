package lnwallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// DefaultMaxDustHTLCExposure is the default ceiling on the value we
	// let sit in dust HTLCs and excess commitment fees.
	DefaultMaxDustHTLCExposure = lnwire.MilliSatoshi(500_000_000)

	// DefaultFeeSpikeBufferMultiple is the default factor the funder's
	// commitment fee is multiplied by when it reserves room for a fee
	// rate increase.
	DefaultFeeSpikeBufferMultiple = 2
)

// ChannelConstraints are the limits one side of a channel operates under.
type ChannelConstraints struct {
	// DustLimit is the dust limit of this party's commitments.
	DustLimit btcutil.Amount

	// ChanReserve is the balance this party must keep on its side of the
	// channel.
	ChanReserve btcutil.Amount

	// MaxPendingAmount is the largest total value of HTLCs this party
	// accepts in flight.
	MaxPendingAmount lnwire.MilliSatoshi

	// MinHTLC is the smallest HTLC this party accepts.
	MinHTLC lnwire.MilliSatoshi

	// MaxAcceptedHtlcs is the largest number of HTLCs this party accepts
	// in flight.
	MaxAcceptedHtlcs uint16
}

// BalanceRequest is the channel state the available balances are estimated
// from.
type BalanceRequest struct {
	// IsOutboundFromHolder is true if we opened the channel.
	IsOutboundFromHolder bool

	// ChannelType is the negotiated channel type.
	ChannelType lnwire.ChannelType

	// ChannelValue is the value of the funding output.
	ChannelValue btcutil.Amount

	// ValueToHolder is our balance, including the HTLCs we offered that
	// are still pending.
	ValueToHolder lnwire.MilliSatoshi

	// PendingHTLCs are all HTLCs pending in either direction.
	PendingHTLCs []HTLCAmountDirection

	// FeePerKw is the current commitment fee rate.
	FeePerKw chainfee.SatPerKWeight

	// DustExposureLimitingFeeRate is the fee rate above which the fee of
	// the counterparty's commitment counts towards our dust exposure.
	DustExposureLimitingFeeRate fn.Option[chainfee.SatPerKWeight]

	// Holder are our constraints.
	Holder ChannelConstraints

	// Counterparty are the counterparty's constraints.
	Counterparty ChannelConstraints
}

// AvailableBalances are the amounts a channel can move in its current state.
type AvailableBalances struct {
	// InboundCapacity is what the counterparty can still send us.
	InboundCapacity lnwire.MilliSatoshi

	// OutboundCapacity is what we can send the counterparty, ignoring
	// fees and per-HTLC limits.
	OutboundCapacity lnwire.MilliSatoshi

	// NextOutboundHTLCLimit is the largest HTLC we can add next.
	NextOutboundHTLCLimit lnwire.MilliSatoshi

	// NextOutboundHTLCMinimum is the smallest HTLC we can add next.
	NextOutboundHTLCMinimum lnwire.MilliSatoshi
}

// String returns a human readable form of the balances.
func (a *AvailableBalances) String() string {
	return fmt.Sprintf("inbound=%v outbound=%v next_limit=%v next_min=%v",
		a.InboundCapacity, a.OutboundCapacity, a.NextOutboundHTLCLimit,
		a.NextOutboundHTLCMinimum)
}

// EstimatorConfig holds the policy knobs of the available balance estimator.
//
//nolint:ll
type EstimatorConfig struct {
	MaxDustHTLCExposure lnwire.MilliSatoshi `long:"maxdusthtlcexposure" description:"The maximum value in msat that may sit in dust HTLCs and excess commitment fees of a channel"`

	FeeSpikeBufferMultiple uint64 `long:"feespikebuffermultiple" description:"The factor the funder's commitment fee is multiplied by to leave room for fee rate spikes"`
}

// DefaultEstimatorConfig returns the default estimator policy.
func DefaultEstimatorConfig() *EstimatorConfig {
	return &EstimatorConfig{
		MaxDustHTLCExposure:    DefaultMaxDustHTLCExposure,
		FeeSpikeBufferMultiple: DefaultFeeSpikeBufferMultiple,
	}
}

// Validate checks the estimator policy.
func (c *EstimatorConfig) Validate() error {
	if c.FeeSpikeBufferMultiple == 0 {
		return errors.New("fee spike buffer multiple must be positive")
	}

	return nil
}

// BalanceEstimator bounds the HTLCs that can be added to a channel without
// violating reserves, in-flight limits or the dust exposure ceiling.
type BalanceEstimator struct {
	cfg *EstimatorConfig
}

// NewBalanceEstimator creates an estimator with the given policy.
func NewBalanceEstimator(cfg *EstimatorConfig) *BalanceEstimator {
	return &BalanceEstimator{
		cfg: cfg,
	}
}

// statsRequest builds the stats request of one of the two commitments.
func (r *BalanceRequest) statsRequest(local bool, dustLimit btcutil.Amount,
	feeBufferHtlcs int) *StatsRequest {

	return &StatsRequest{
		Local:                local,
		IsOutboundFromHolder: r.IsOutboundFromHolder,
		ChannelType:          r.ChannelType,
		ChannelValue:         r.ChannelValue,
		ValueToHolder:        r.ValueToHolder,
		HTLCs:                r.PendingHTLCs,
		FeePerKw:             r.FeePerKw,
		BroadcasterDustLimit: dustLimit,
		FeeBufferHtlcs:       feeBufferHtlcs,
	}
}

// AvailableBalances computes what can be sent and received over the channel
// next. Unlike the commitment builder it reports pending HTLCs in excess of
// a balance as ErrBalanceUnderflow, as it may run against states that were
// not validated yet.
func (e *BalanceEstimator) AvailableBalances(req *BalanceRequest) (
	*AvailableBalances, error) {

	var (
		chanType    = req.ChannelType
		feePerKw    = req.FeePerKw
		limitingFee = req.DustExposureLimitingFeeRate
		holderDust  = req.Holder.DustLimit
		cpDust      = req.Counterparty.DustLimit
	)

	// Zero-fee commitments don't pay a fee that could spike.
	feeSpikeBufferHtlc := 1
	if chanType.HasZeroFeeCommitments() {
		feeSpikeBufferHtlc = 0
	}

	localMaxFee, err := nextCommitmentStats(
		req.statsRequest(true, holderDust, feeSpikeBufferHtlc+1),
		limitingFee,
	)
	if err != nil {
		return nil, err
	}
	localMinFee, err := nextCommitmentStats(
		req.statsRequest(true, holderDust, feeSpikeBufferHtlc),
		limitingFee,
	)
	if err != nil {
		return nil, err
	}
	remote, err := nextCommitmentStats(
		req.statsRequest(false, cpDust, 1), limitingFee,
	)
	if err != nil {
		return nil, err
	}

	outbound := saturatingSub(
		localMaxFee.HolderBalanceBeforeFee,
		lnwire.NewMSatFromSatoshis(req.Holder.ChanReserve),
	)
	available := outbound

	if req.IsOutboundFromHolder {
		// We pay the fee, so the HTLC must leave enough for the fee of
		// the commitment it is added to, plus some more in case the fee
		// rate rises.
		realDustTimeout := lnwire.NewMSatFromSatoshis(
			HtlcTimeoutFee(chanType, feePerKw) + holderDust,
		)
		maxReservedFee := lnwire.NewMSatFromSatoshis(
			localMaxFee.TotalFee,
		)
		minReservedFee := lnwire.NewMSatFromSatoshis(
			localMinFee.TotalFee,
		)
		if !chanType.HasAnchorsZeroFeeHtlcTx() {
			multiple := lnwire.MilliSatoshi(e.cfg.FeeSpikeBufferMultiple)
			maxReservedFee *= multiple
			minReservedFee *= multiple
		}

		// If the HTLC would be dust, it does not add an output and
		// the smaller fee applies.
		capMinusMaxFee := saturatingSub(available, maxReservedFee)
		if capMinusMaxFee < realDustTimeout {
			available = min(
				realDustTimeout-1,
				saturatingSub(available, minReservedFee),
			)
		} else {
			available = capMinusMaxFee
		}
	} else {
		// The counterparty pays the fee. If they can't afford another
		// HTLC output, we may only send HTLCs that are dust on their
		// commitment.
		realDustSuccess := lnwire.NewMSatFromSatoshis(
			HtlcSuccessFee(chanType, feePerKw) + cpDust,
		)
		remoteFee := lnwire.NewMSatFromSatoshis(remote.TotalFee)
		cpReserve := lnwire.NewMSatFromSatoshis(
			req.Counterparty.ChanReserve,
		)
		if remote.CounterpartyBalanceBeforeFee < remoteFee+cpReserve {
			available = min(available, realDustSuccess-1)
		}
	}

	nextMinimum := req.Counterparty.MinHTLC

	// Judge dust exposure at the inflated fee rate, HTLCs that are not
	// dust now may become dust once the fee rate rises.
	var (
		maxExposure   = e.cfg.MaxDustHTLCExposure
		bufferFeeRate = chainfee.DustBufferFeeRate(feePerKw)
		bufferSuccess = lnwire.NewMSatFromSatoshis(
			HtlcSuccessFee(chanType, bufferFeeRate) + cpDust,
		)
		bufferTimeout = lnwire.NewMSatFromSatoshis(
			HtlcTimeoutFee(chanType, bufferFeeRate) + holderDust,
		)
		dustLimit lnwire.MilliSatoshi
	)

	// If one more HTLC would put the counterparty's excess fees over the
	// ceiling, we can only send HTLCs that are dust.
	remote.ExtraAcceptedHtlcDustExposure.WhenSome(
		func(extra lnwire.MilliSatoshi) {
			if extra > maxExposure {
				available = min(available, bufferSuccess)
			}
		},
	)

	// Each commitment that would exceed the ceiling with one more dust
	// HTLC bounds the dust HTLCs we can still add to its own headroom.
	dustHeadroom := fn.None[lnwire.MilliSatoshi]()
	limitHeadroom := func(exposure lnwire.MilliSatoshi) {
		headroom := saturatingSub(maxExposure, exposure)
		dustHeadroom = fn.Some(min(
			dustHeadroom.UnwrapOr(headroom), headroom,
		))
	}

	if saturatingAdd(remote.DustExposure, bufferSuccess) >
		saturatingAdd(maxExposure, 1) {

		dustLimit = max(dustLimit, bufferSuccess)
		limitHeadroom(remote.DustExposure)
	}
	if saturatingAdd(localMaxFee.DustExposure, bufferTimeout) >
		saturatingAdd(maxExposure, 1) {

		dustLimit = max(dustLimit, bufferTimeout)
		limitHeadroom(localMaxFee.DustExposure)
	}

	if dustLimit > 0 {
		if available < dustLimit {
			// Every HTLC we can afford is dust, it has to fit
			// under the ceiling of the commitments that hit it.
			available = min(
				available, dustHeadroom.UnwrapOr(available),
			)
		} else {
			nextMinimum = max(nextMinimum, dustLimit)
		}
	}

	var (
		pendingOutboundValue lnwire.MilliSatoshi
		pendingOutboundCount int
	)
	for _, htlc := range req.PendingHTLCs {
		if !htlc.OutboundFromHolder {
			continue
		}

		pendingOutboundValue += htlc.Amount
		pendingOutboundCount++
	}

	available = min(
		available, saturatingSub(
			req.Counterparty.MaxPendingAmount, pendingOutboundValue,
		),
	)

	if pendingOutboundCount+1 > int(req.Counterparty.MaxAcceptedHtlcs) {
		available = 0
	}

	balances := &AvailableBalances{
		InboundCapacity: saturatingSub(
			remote.CounterpartyBalanceBeforeFee,
			lnwire.NewMSatFromSatoshis(req.Counterparty.ChanReserve),
		),
		OutboundCapacity:        outbound,
		NextOutboundHTLCLimit:   available,
		NextOutboundHTLCMinimum: nextMinimum,
	}

	walletLog.Debugf("Available balances: %v", balances)

	return balances, nil
}
