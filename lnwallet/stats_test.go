package lnwallet

import (
	"math"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSaturatingArithmetic(t *testing.T) {
	t.Parallel()

	require.EqualValues(t, 0, saturatingSub(5, 6))
	require.EqualValues(t, 1, saturatingSub(6, 5))
	require.EqualValues(t, 0, saturatingSub(6, 6))

	require.EqualValues(t, 11, saturatingAdd(5, 6))
	require.EqualValues(t, uint64(math.MaxUint64),
		saturatingAdd(math.MaxUint64-1, 2))

	diff, ok := checkedSub(6, 6)
	require.True(t, ok)
	require.Zero(t, diff)

	_, ok = checkedSub(6, 7)
	require.False(t, ok)
}

func TestCommitmentStats(t *testing.T) {
	t.Parallel()

	anchors := lnwire.AnchorsChannelType()
	htlcs := []HTLCAmountDirection{
		{OutboundFromHolder: true, Amount: 100_000_000},
		{OutboundFromHolder: false, Amount: 50_000_000},
		{OutboundFromHolder: true, Amount: 300_000},
	}

	testCases := []struct {
		name             string
		local            bool
		outbound         bool
		feeBuffer        int
		expectedNonDust  int
		expectedFeeHtlcs int
		holder           lnwire.MilliSatoshi
		counterparty     lnwire.MilliSatoshi
	}{
		{
			name:             "local funder",
			local:            true,
			outbound:         true,
			expectedNonDust:  2,
			expectedFeeHtlcs: 2,
			holder:           600_000_000 - 100_300_000 - 660_000,
			counterparty:     400_000_000 - 50_000_000,
		},
		{
			name:             "remote fundee with buffer",
			local:            false,
			outbound:         false,
			feeBuffer:        1,
			expectedNonDust:  2,
			expectedFeeHtlcs: 3,
			holder:           600_000_000 - 100_300_000,
			counterparty:     400_000_000 - 50_000_000 - 660_000,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			stats := BuildCommitmentStats(&StatsRequest{
				Local:                tc.local,
				IsOutboundFromHolder: tc.outbound,
				ChannelType:          anchors,
				ChannelValue:         1_000_000,
				ValueToHolder:        600_000_000,
				HTLCs:                htlcs,
				FeePerKw:             2_000,
				BroadcasterDustLimit: 354,
				FeeBufferHtlcs:       tc.feeBuffer,
			})

			require.Equal(t, tc.expectedNonDust, stats.NonDustHtlcCount)
			require.Equal(t, CommitFee(
				2_000, tc.expectedFeeHtlcs, anchors,
			), stats.TotalFee)
			require.Equal(t, tc.holder, stats.HolderBalanceBeforeFee)
			require.Equal(t, tc.counterparty,
				stats.CounterpartyBalanceBeforeFee)
		})
	}
}

// TestCommitmentStatsUnderflow checks that HTLCs in excess of a balance are
// reported, and are a panic for the builder.
func TestCommitmentStatsUnderflow(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		value lnwire.MilliSatoshi
		htlc  HTLCAmountDirection
	}{
		{
			name:  "holder",
			value: 1_000_000,
			htlc: HTLCAmountDirection{
				OutboundFromHolder: true, Amount: 1_000_001,
			},
		},
		{
			name:  "counterparty",
			value: 1_000_000_000 - 1_000_000,
			htlc: HTLCAmountDirection{
				OutboundFromHolder: false, Amount: 1_000_001,
			},
		},
		{
			name:  "holder exceeds channel",
			value: 1_000_000_001,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := &StatsRequest{
				Local:                true,
				IsOutboundFromHolder: true,
				ChannelType:          lnwire.AnchorsChannelType(),
				ChannelValue:         1_000_000,
				ValueToHolder:        tc.value,
				HTLCs:                []HTLCAmountDirection{tc.htlc},
				FeePerKw:             253,
				BroadcasterDustLimit: 354,
			}

			_, err := commitmentStats(req)
			require.ErrorIs(t, err, ErrBalanceUnderflow)

			require.Panics(t, func() {
				BuildCommitmentStats(req)
			})
		})
	}

	// Anchors may take the whole balance of the funder.
	stats := BuildCommitmentStats(&StatsRequest{
		Local:                true,
		IsOutboundFromHolder: true,
		ChannelType:          lnwire.AnchorsChannelType(),
		ChannelValue:         1_000_000,
		ValueToHolder:        500_000,
		FeePerKw:             253,
		BroadcasterDustLimit: 354,
	})
	require.Zero(t, stats.HolderBalanceBeforeFee)
}

// TestNextCommitmentStatsDustExposure checks the exposure on both
// commitments, and the excess fees counted on the counterparty's one.
func TestNextCommitmentStatsDustExposure(t *testing.T) {
	t.Parallel()

	legacy := lnwire.StaticRemoteKeyChannelType()

	// Not dust at 1000 sat/kw, dust at the buffer rate of 3530 sat/kw.
	htlcs := []HTLCAmountDirection{
		{OutboundFromHolder: true, Amount: 2_000_000},
		{OutboundFromHolder: false, Amount: 100_000_000},
	}
	req := &StatsRequest{
		Local:                true,
		IsOutboundFromHolder: true,
		ChannelType:          legacy,
		ChannelValue:         1_000_000,
		ValueToHolder:        500_000_000,
		HTLCs:                htlcs,
		FeePerKw:             1_000,
		BroadcasterDustLimit: 354,
	}

	local, err := nextCommitmentStats(req, fn.None[chainfee.SatPerKWeight]())
	require.NoError(t, err)
	require.Equal(t, 2, local.NonDustHtlcCount)
	require.EqualValues(t, 2_000_000, local.DustExposure)
	require.True(t, local.ExtraAcceptedHtlcDustExposure.IsNone())

	// At the limiting fee rate, no fee counts as excess.
	remoteReq := *req
	remoteReq.Local = false
	remote, err := nextCommitmentStats(
		&remoteReq, fn.None[chainfee.SatPerKWeight](),
	)
	require.NoError(t, err)
	require.EqualValues(t, 2_000_000, remote.DustExposure)
	require.Equal(t, fn.Some(lnwire.MilliSatoshi(2_000_000)),
		remote.ExtraAcceptedHtlcDustExposure)

	// Above it, the excess commitment and second-level fees do.
	remote, err = nextCommitmentStats(&remoteReq, fn.Some(
		chainfee.SatPerKWeight(500),
	))
	require.NoError(t, err)

	excess := lnwire.NewMSatFromSatoshis(commitAndHtlcTxFees(500, 1, 1, legacy))
	extra := lnwire.NewMSatFromSatoshis(commitAndHtlcTxFees(500, 2, 1, legacy))
	require.Equal(t, 2_000_000+excess, remote.DustExposure)
	require.Equal(t, fn.Some(2_000_000+extra),
		remote.ExtraAcceptedHtlcDustExposure)

	// Below it, nothing is reported.
	remote, err = nextCommitmentStats(&remoteReq, fn.Some(
		chainfee.SatPerKWeight(5_000),
	))
	require.NoError(t, err)
	require.True(t, remote.ExtraAcceptedHtlcDustExposure.IsNone())
}

// drawChannelState draws a channel with non-dust HTLCs that leave both main
// outputs well above the dust limit.
func drawChannelState(t *rapid.T) (btcutil.Amount, lnwire.MilliSatoshi,
	[]HTLCAmountDirection) {

	chanValue := btcutil.Amount(
		rapid.Int64Range(1_000_000, 100_000_000).Draw(t, "chanValue"),
	)

	htlcs := rapid.SliceOfN(rapid.Custom(
		func(t *rapid.T) HTLCAmountDirection {
			return HTLCAmountDirection{
				OutboundFromHolder: rapid.Bool().Draw(
					t, "outbound",
				),
				Amount: lnwire.MilliSatoshi(rapid.Uint64Range(
					10_000_000, 50_000_000,
				).Draw(t, "amount")),
			}
		},
	), 0, 10).Draw(t, "htlcs")

	var outbound, inbound lnwire.MilliSatoshi
	for _, htlc := range htlcs {
		if htlc.OutboundFromHolder {
			outbound += htlc.Amount
		} else {
			inbound += htlc.Amount
		}
	}

	reserve := lnwire.NewMSatFromSatoshis(100_000)
	valueToHolder := lnwire.MilliSatoshi(rapid.Uint64Range(
		uint64(outbound+reserve),
		uint64(lnwire.NewMSatFromSatoshis(chanValue)-inbound-reserve),
	).Draw(t, "valueToHolder"))

	return chanValue, valueToHolder, htlcs
}

// TestCommitmentStatsConservation checks that the stats account for every
// msat of the channel.
func TestCommitmentStatsConservation(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		chanValue, valueToHolder, htlcs := drawChannelState(t)
		chanType := rapid.SampledFrom(testChannelTypes).Draw(
			t, "chanType",
		)

		req := &StatsRequest{
			Local:                rapid.Bool().Draw(t, "local"),
			IsOutboundFromHolder: rapid.Bool().Draw(t, "outbound"),
			ChannelType:          chanType,
			ChannelValue:         chanValue,
			ValueToHolder:        valueToHolder,
			HTLCs:                htlcs,
			FeePerKw: chainfee.SatPerKWeight(
				rapid.Int64Range(253, 10_000).Draw(t, "feePerKw"),
			),
			BroadcasterDustLimit: 354,
		}
		stats := BuildCommitmentStats(req)

		total := stats.HolderBalanceBeforeFee +
			stats.CounterpartyBalanceBeforeFee +
			lnwire.NewMSatFromSatoshis(anchorsValue(chanType))
		for _, htlc := range htlcs {
			total += htlc.Amount
		}
		require.Equal(t, lnwire.NewMSatFromSatoshis(chanValue), total)
		require.Equal(t, len(htlcs), stats.NonDustHtlcCount)
	})
}

// TestBuildCommitmentConservation checks that the outputs and the fee of a
// built commitment add up to the channel value, up to the msat rounding of
// the balances and HTLC outputs.
func TestBuildCommitmentConservation(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		chanValue, valueToHolder, amounts := drawChannelState(t)
		chanType := rapid.SampledFrom(testChannelTypes).Draw(
			t, "chanType",
		)
		local := rapid.Bool().Draw(t, "local")
		feePerKw := chainfee.SatPerKWeight(
			rapid.Int64Range(253, 10_000).Draw(t, "feePerKw"),
		)

		htlcs := make([]*HTLC, 0, len(amounts))
		for i, amt := range amounts {
			htlcs = append(htlcs, &HTLC{
				Offered:       amt.OutboundFromHolder == local,
				Amount:        amt.Amount,
				RefundTimeout: uint32(1_000 + i),
				RHash:         lntypes.Hash{byte(i)},
			})
		}

		funder, fundee := testChannelParams(chanType, chanValue)
		params := funder
		if rapid.Bool().Draw(t, "fundee") {
			params = fundee
		}

		req := &CommitmentRequest{
			Local:                local,
			CommitmentNumber:     rapid.Uint64Range(0, 1<<48-1).Draw(t, "num"),
			PerCommitmentPoint:   testCommitPoint(7),
			ValueToHolder:        valueToHolder,
			HTLCs:                htlcs,
			FeePerKw:             feePerKw,
			BroadcasterDustLimit: 354,
		}
		commitTx, stats, err := testBuilder(params).BuildCommitment(req)
		require.NoError(t, err)

		var outputs btcutil.Amount
		for _, txOut := range commitTx.Tx().TxOut {
			outputs += btcutil.Amount(txOut.Value)
		}

		// Zero-fee commitments hand the rounding to the shared anchor.
		if chanType.HasZeroFeeCommitments() {
			require.Equal(t, chanValue, outputs)
			return
		}

		lost := chanValue - outputs - stats.TotalFee
		require.GreaterOrEqual(t, int64(lost), int64(0))
		require.LessOrEqual(t, int64(lost), int64(len(htlcs)+1))
	})
}

// TestCommitmentStatsIdempotent checks that the accounting only depends on
// its inputs and leaves them untouched.
func TestCommitmentStatsIdempotent(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		chanValue, valueToHolder, htlcs := drawChannelState(t)
		feePerKw := chainfee.SatPerKWeight(
			rapid.Int64Range(253, 100_000).Draw(t, "feePerKw"),
		)

		req := &StatsRequest{
			Local:                rapid.Bool().Draw(t, "local"),
			IsOutboundFromHolder: rapid.Bool().Draw(t, "outbound"),
			ChannelType: rapid.SampledFrom(testChannelTypes).Draw(
				t, "chanType",
			),
			ChannelValue:         chanValue,
			ValueToHolder:        valueToHolder,
			HTLCs:                htlcs,
			FeePerKw:             feePerKw,
			BroadcasterDustLimit: 546,
			FeeBufferHtlcs:       rapid.IntRange(0, 2).Draw(t, "buffer"),
		}
		before := *req
		before.HTLCs = append([]HTLCAmountDirection(nil), htlcs...)

		first, err := nextCommitmentStats(req, fn.Some(feePerKw/2))
		require.NoError(t, err)
		second, err := nextCommitmentStats(req, fn.Some(feePerKw/2))
		require.NoError(t, err)

		require.Equal(t, first, second)
		require.Equal(t, &before, req)
	})
}
