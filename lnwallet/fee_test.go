package lnwallet

import (
	"testing"

	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCommitFee(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		chanType lnwire.ChannelType
		feePerKw chainfee.SatPerKWeight
		numHTLCs int
		expected int64
	}{
		{"legacy empty", lnwire.StaticRemoteKeyChannelType(), 1_000, 0, 724},
		{"legacy two htlcs", lnwire.StaticRemoteKeyChannelType(), 1_000, 2, 1_068},
		{"anchors empty", lnwire.AnchorsChannelType(), 1_000, 0, 1_124},
		{"anchors rounds down", lnwire.AnchorsChannelType(), 253, 1, 327},
		{"zero fee", lnwire.ZeroFeeCommitmentsChannelType(), 50_000, 30, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fee := CommitFee(tc.feePerKw, tc.numHTLCs, tc.chanType)
			require.EqualValues(t, tc.expected, fee)
		})
	}
}

func TestHtlcTxFees(t *testing.T) {
	t.Parallel()

	legacy := lnwire.StaticRemoteKeyChannelType()
	require.EqualValues(t, 2*703+3*663, HtlcTxFees(1_000, 2, 3, legacy))

	anchors := lnwire.AnchorsChannelType()
	require.Zero(t, HtlcTxFees(1_000, 2, 3, anchors))

	require.EqualValues(t, 2*AnchorOutputValue, anchorsValue(anchors))
	require.Zero(t, anchorsValue(legacy))
	require.Zero(t, anchorsValue(lnwire.ZeroFeeCommitmentsChannelType()))
}

// TestCommitFeeMonotonic checks that the commitment fee never decreases with
// the fee rate or the number of HTLCs.
func TestCommitFeeMonotonic(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		chanType := rapid.SampledFrom(testChannelTypes).Draw(
			t, "chanType",
		)
		feePerKw := chainfee.SatPerKWeight(
			rapid.Int64Range(0, 1_000_000).Draw(t, "feePerKw"),
		)
		numHTLCs := rapid.IntRange(0, 966).Draw(t, "numHTLCs")

		fee := CommitFee(feePerKw, numHTLCs, chanType)
		require.GreaterOrEqual(t, int64(fee), int64(0))

		moreFee := feePerKw + chainfee.SatPerKWeight(
			rapid.Int64Range(0, 1_000_000).Draw(t, "feeIncrease"),
		)
		require.GreaterOrEqual(t,
			CommitFee(moreFee, numHTLCs, chanType), fee,
		)

		moreHTLCs := numHTLCs + rapid.IntRange(0, 100).Draw(
			t, "htlcIncrease",
		)
		require.GreaterOrEqual(t,
			CommitFee(feePerKw, moreHTLCs, chanType), fee,
		)

		if chanType.HasZeroFeeCommitments() {
			require.Zero(t, fee)
		}
	})
}
