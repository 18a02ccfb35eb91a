package lnwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// saturatingSub returns a-b, or zero if b exceeds a.
func saturatingSub(a, b lnwire.MilliSatoshi) lnwire.MilliSatoshi {
	if b > a {
		return 0
	}

	return a - b
}

// saturatingAdd returns a+b, or the largest value if the sum overflows.
func saturatingAdd(a, b lnwire.MilliSatoshi) lnwire.MilliSatoshi {
	sum := a + b
	if sum < a {
		return ^lnwire.MilliSatoshi(0)
	}

	return sum
}

// checkedSub returns a-b and true, or false if b exceeds a.
func checkedSub(a, b lnwire.MilliSatoshi) (lnwire.MilliSatoshi, bool) {
	if b > a {
		return 0, false
	}

	return a - b, true
}

// StatsRequest holds the channel state a commitment is built from.
type StatsRequest struct {
	// Local is true for our own commitment, false for the
	// counterparty's.
	Local bool

	// IsOutboundFromHolder is true if we opened the channel and therefore
	// pay the fee and the anchors.
	IsOutboundFromHolder bool

	// ChannelType is the negotiated channel type.
	ChannelType lnwire.ChannelType

	// ChannelValue is the value of the funding output.
	ChannelValue btcutil.Amount

	// ValueToHolder is our balance, including the HTLCs we offered that
	// are still pending.
	ValueToHolder lnwire.MilliSatoshi

	// HTLCs are the pending HTLCs of the commitment.
	HTLCs []HTLCAmountDirection

	// FeePerKw is the commitment fee rate.
	FeePerKw chainfee.SatPerKWeight

	// BroadcasterDustLimit is the dust limit of the party broadcasting
	// the commitment.
	BroadcasterDustLimit btcutil.Amount

	// FeeBufferHtlcs is the number of extra non-dust HTLCs the fee is
	// computed for, reserving room for HTLCs that are not added yet.
	FeeBufferHtlcs int
}

// CommitmentStats summarises the accounting of one commitment.
type CommitmentStats struct {
	// TotalFee is the commitment fee the funder pays.
	TotalFee btcutil.Amount

	// NonDustHtlcCount is the number of HTLCs that get an output, not
	// counting the fee buffer.
	NonDustHtlcCount int

	// HolderBalanceBeforeFee is our balance after pending HTLCs and, if
	// we are the funder, anchors but before the fee.
	HolderBalanceBeforeFee lnwire.MilliSatoshi

	// CounterpartyBalanceBeforeFee is the counterparty's balance after
	// pending HTLCs and, if they are the funder, anchors but before the
	// fee.
	CounterpartyBalanceBeforeFee lnwire.MilliSatoshi
}

// String returns a human readable summary of the stats.
func (s *CommitmentStats) String() string {
	return fmt.Sprintf("fee=%v nondust_htlcs=%v holder=%v "+
		"counterparty=%v", s.TotalFee, s.NonDustHtlcCount,
		s.HolderBalanceBeforeFee, s.CounterpartyBalanceBeforeFee)
}

// commitmentStats runs the accounting of a commitment, reporting an
// ErrBalanceUnderflow if the HTLCs of either party exceed its balance.
func commitmentStats(req *StatsRequest) (*CommitmentStats, error) {
	var (
		outbound, inbound lnwire.MilliSatoshi
		nonDust           int
	)
	for _, htlc := range req.HTLCs {
		// The raw amount is earmarked regardless of dust status, a
		// trimmed HTLC ends up in the fee.
		if htlc.OutboundFromHolder {
			outbound += htlc.Amount
		} else {
			inbound += htlc.Amount
		}

		if !htlc.IsDust(
			req.Local, req.FeePerKw, req.BroadcasterDustLimit,
			req.ChannelType,
		) {

			nonDust++
		}
	}

	fee := CommitFee(
		req.FeePerKw, nonDust+req.FeeBufferHtlcs, req.ChannelType,
	)

	holderBal, ok := checkedSub(req.ValueToHolder, outbound)
	if !ok {
		return nil, fmt.Errorf("%w: holder balance %v, outbound htlcs "+
			"%v", ErrBalanceUnderflow, req.ValueToHolder, outbound)
	}

	channelValue := lnwire.NewMSatFromSatoshis(req.ChannelValue)
	counterpartyValue, ok := checkedSub(channelValue, req.ValueToHolder)
	if !ok {
		return nil, fmt.Errorf("%w: holder balance %v exceeds channel "+
			"value %v", ErrBalanceUnderflow, req.ValueToHolder,
			channelValue)
	}
	counterpartyBal, ok := checkedSub(counterpartyValue, inbound)
	if !ok {
		return nil, fmt.Errorf("%w: counterparty balance %v, inbound "+
			"htlcs %v", ErrBalanceUnderflow, counterpartyValue,
			inbound)
	}

	// Anchors are taken from the funder and may eat up its whole
	// balance.
	anchors := lnwire.NewMSatFromSatoshis(anchorsValue(req.ChannelType))
	if req.IsOutboundFromHolder {
		holderBal = saturatingSub(holderBal, anchors)
	} else {
		counterpartyBal = saturatingSub(counterpartyBal, anchors)
	}

	return &CommitmentStats{
		TotalFee:                     fee,
		NonDustHtlcCount:             nonDust,
		HolderBalanceBeforeFee:       holderBal,
		CounterpartyBalanceBeforeFee: counterpartyBal,
	}, nil
}

// BuildCommitmentStats computes the fee, the number of non-dust HTLCs and
// both balances before the fee for a commitment. HTLCs exceeding the balance
// of the party that owes them are a broken invariant of the caller and cause
// a panic.
func BuildCommitmentStats(req *StatsRequest) *CommitmentStats {
	stats, err := commitmentStats(req)
	if err != nil {
		panic(err)
	}

	walletLog.Tracef("Commitment stats (local=%v): %v", req.Local, stats)

	return stats
}

// NextCommitmentStats extends the stats of a commitment with the value at
// risk in its dust HTLCs.
type NextCommitmentStats struct {
	CommitmentStats

	// DustExposure is the sum of the HTLCs that are dust at the dust
	// buffer fee rate. On the counterparty's commitment it includes the
	// fees paid above the dust exposure limiting fee rate.
	DustExposure lnwire.MilliSatoshi

	// ExtraAcceptedHtlcDustExposure is the dust exposure of the
	// counterparty's commitment if one more HTLC were accepted. It is
	// None on our own commitment, or if the fee rate is below the
	// limiting fee rate.
	ExtraAcceptedHtlcDustExposure fn.Option[lnwire.MilliSatoshi]
}

// nextCommitmentStats runs the accounting of a commitment that may receive
// more HTLCs, including the dust exposure at the dust buffer fee rate. The
// limiting fee rate caps the commitment fee the counterparty may impose on us
// before the excess counts as exposure.
func nextCommitmentStats(req *StatsRequest,
	limitingFeeRate fn.Option[chainfee.SatPerKWeight]) (
	*NextCommitmentStats, error) {

	stats, err := commitmentStats(req)
	if err != nil {
		return nil, err
	}

	bufferFeeRate := chainfee.DustBufferFeeRate(req.FeePerKw)

	var (
		exposure                        lnwire.MilliSatoshi
		acceptedNonDust, offeredNonDust int
	)
	for _, htlc := range req.HTLCs {
		if htlc.IsDust(
			req.Local, bufferFeeRate, req.BroadcasterDustLimit,
			req.ChannelType,
		) {

			exposure += htlc.Amount
		}

		if htlc.IsDust(
			req.Local, req.FeePerKw, req.BroadcasterDustLimit,
			req.ChannelType,
		) {

			continue
		}

		if htlc.offered(req.Local) {
			offeredNonDust++
		} else {
			acceptedNonDust++
		}
	}

	next := &NextCommitmentStats{
		CommitmentStats:               *stats,
		DustExposure:                  exposure,
		ExtraAcceptedHtlcDustExposure: fn.None[lnwire.MilliSatoshi](),
	}

	// Our own commitment is not subject to the counterparty's fee rate
	// choice.
	if req.Local {
		return next, nil
	}

	limit := limitingFeeRate.UnwrapOr(req.FeePerKw)
	if req.FeePerKw < limit {
		return next, nil
	}
	excessFeeRate := req.FeePerKw - limit

	excessFees := lnwire.NewMSatFromSatoshis(commitAndHtlcTxFees(
		excessFeeRate, acceptedNonDust, offeredNonDust, req.ChannelType,
	))
	extraExcessFees := lnwire.NewMSatFromSatoshis(commitAndHtlcTxFees(
		excessFeeRate, acceptedNonDust+1, offeredNonDust,
		req.ChannelType,
	))

	next.ExtraAcceptedHtlcDustExposure = fn.Some(
		exposure + extraExcessFees,
	)
	next.DustExposure = exposure + excessFees

	return next, nil
}
