package chainfee

import (
	"math"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestFeeRateTypes checks that converting fee rates between the
// different types that represent fee rates and calculating fees work as
// expected.
func TestFeeRateTypes(t *testing.T) {
	t.Parallel()

	// 1 sat/kw is 4 sat/kvb.
	require.Equal(t, SatPerKVByte(4), SatPerKWeight(1).FeePerKVByte())
	require.Equal(t, SatPerKWeight(250), SatPerKVByte(1000).FeePerKWeight())

	// Fees are rounded down.
	require.Equal(
		t, btcutil.Amount(1), SatPerKWeight(1999).FeeForWeight(1),
	)
	require.Equal(
		t, btcutil.Amount(183), SatPerKWeight(253).FeeForWeight(724),
	)
	require.Equal(
		t, btcutil.Amount(1), SatPerKWeight(250).FeeForVByte(
			lntypes.VByte(1),
		),
	)
}

// TestDustBufferFeeRate checks both branches of the dust buffer rate as well
// as the saturation at the top of the range.
func TestDustBufferFeeRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		feeRate SatPerKWeight
		expRate SatPerKWeight
	}{
		// The absolute floor dominates for small rates.
		{feeRate: 0, expRate: 2530},
		{feeRate: 253, expRate: 2783},
		{feeRate: 10_120, expRate: 12_650},

		// The 25% increase dominates from 10_120 sat/kw upwards.
		{feeRate: 20_000, expRate: 25_000},
		{feeRate: 20_001, expRate: 25_001},

		// Saturation instead of wrapping.
		{feeRate: math.MaxInt64, expRate: math.MaxInt64},
	}

	for _, test := range tests {
		require.Equal(
			t, test.expRate, DustBufferFeeRate(test.feeRate),
			"fee rate %v", test.feeRate,
		)
	}
}

// TestDustBufferFeeRateProperties asserts the buffer rate always exceeds the
// rate it is derived from by at least the fixed increase.
func TestDustBufferFeeRateProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		feeRate := SatPerKWeight(
			rapid.Int64Range(0, 1_000_000_000).Draw(t, "feeRate"),
		)
		buffer := DustBufferFeeRate(feeRate)

		require.GreaterOrEqual(t, buffer, feeRate+2530)
		require.GreaterOrEqual(t, buffer, feeRate*5/4)
	})
}

// TestSparseConfEstimator checks parsing of a fee table and extrapolation of
// missing targets.
func TestSparseConfEstimator(t *testing.T) {
	t.Parallel()

	const table = `{"fee_by_block_target": {"2": 40000, "6": 8000, ` +
		`"144": 400}}`

	est, err := ParseSparseConfFees(strings.NewReader(table), 253)
	require.NoError(t, err)

	fee, err := est.EstimateFeePerKW(2)
	require.NoError(t, err)
	require.Equal(t, SatPerKWeight(10000), fee)

	// Target 10 falls back to the next lowest known target, 6.
	fee, err = est.EstimateFeePerKW(10)
	require.NoError(t, err)
	require.Equal(t, SatPerKWeight(2000), fee)

	// The floor is applied to very low estimates.
	fee, err = est.EstimateFeePerKW(200)
	require.NoError(t, err)
	require.Equal(t, FeePerKwFloor, fee)

	_, err = est.EstimateFeePerKW(1)
	require.Error(t, err)

	require.Equal(t, SatPerKWeight(253), est.RelayFeePerKW())

	static := NewStaticEstimator(5000, 253)
	fee, err = static.EstimateFeePerKW(6)
	require.NoError(t, err)
	require.Equal(t, SatPerKWeight(5000), fee)
}
