package input

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/stretchr/testify/require"
)

// TestScriptSizes makes sure the script size constants match the scripts we
// actually generate.
func TestScriptSizes(t *testing.T) {
	t.Parallel()

	c := newTestChannel()

	// A four byte cltv is the largest the accepted script can carry.
	const cltvExpiry = 1 << 23

	testCases := []struct {
		name string
		gen  func() ([]byte, error)
		size int
	}{
		{
			name: "offered",
			gen: func() ([]byte, error) {
				return SenderHTLCScript(
					c.localHtlcKey, c.remoteHtlcKey,
					c.revocationKey, c.paymentHash, false,
				)
			},
			size: OfferedHtlcScriptSize,
		},
		{
			name: "offered confirmed",
			gen: func() ([]byte, error) {
				return SenderHTLCScript(
					c.localHtlcKey, c.remoteHtlcKey,
					c.revocationKey, c.paymentHash, true,
				)
			},
			size: OfferedHtlcScriptSizeConfirmed,
		},
		{
			name: "accepted",
			gen: func() ([]byte, error) {
				return ReceiverHTLCScript(
					cltvExpiry, c.remoteHtlcKey,
					c.localHtlcKey, c.revocationKey,
					c.paymentHash, false,
				)
			},
			size: AcceptedHtlcScriptSize,
		},
		{
			name: "accepted confirmed",
			gen: func() ([]byte, error) {
				return ReceiverHTLCScript(
					cltvExpiry, c.remoteHtlcKey,
					c.localHtlcKey, c.revocationKey,
					c.paymentHash, true,
				)
			},
			size: AcceptedHtlcScriptSizeConfirmed,
		},
		{
			name: "to_local with four byte delay",
			gen: func() ([]byte, error) {
				return CommitScriptToSelf(
					1<<23, c.localDelayKey,
					c.revocationKey,
				)
			},
			size: ToLocalScriptSize,
		},
		{
			name: "p2wkh",
			gen: func() ([]byte, error) {
				return CommitScriptUnencumbered(c.localHtlcKey)
			},
			size: P2WKHSize,
		},
	}

	for _, tc := range testCases {
		script, err := tc.gen()
		require.NoError(t, err, tc.name)
		require.Len(t, script, tc.size, tc.name)
	}

	// The well known witness sizes.
	require.Equal(t, 324, AcceptedHtlcSuccessWitnessSize)
	require.Equal(t, 327, AcceptedHtlcSuccessWitnessSizeConfirmed)
	require.Equal(t, 285, OfferedHtlcTimeoutWitnessSize)
	require.Equal(t, 288, OfferedHtlcTimeoutWitnessSizeConfirmed)
	require.Equal(t, 157, ToLocalPenaltyWitnessSize)
	require.Equal(t, lntypes.WeightUnit(666), HtlcTimeoutWeightConfirmed)
	require.Equal(t, lntypes.WeightUnit(706), HtlcSuccessWeightConfirmed)
}

// TestTxWeightEstimator compares the estimator against the weight of a
// serialized transaction of the same shape.
func TestTxWeightEstimator(t *testing.T) {
	t.Parallel()

	// One P2WKH input with a maximum size witness, one P2WKH and one
	// P2WSH output.
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		Witness: wire.TxWitness{
			bytes.Repeat([]byte{1}, 73),
			bytes.Repeat([]byte{2}, 33),
		},
	})
	tx.AddTxOut(&wire.TxOut{PkScript: make([]byte, P2WKHSize)})
	tx.AddTxOut(&wire.TxOut{PkScript: make([]byte, P2WSHSize)})

	var estimator TxWeightEstimator
	estimator.AddP2WKHInput().AddP2WKHOutput().AddP2WSHOutput()

	expected := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	require.EqualValues(t, expected, estimator.Weight())

	// A single wallet input and change output make up the fixed overhead
	// of a sweep.
	var overhead TxWeightEstimator
	overhead.AddP2WKHInput().AddP2WKHOutput()
	require.Equal(t, lntypes.WeightUnit(439), overhead.Weight())
	require.Equal(t, lntypes.VByte(110), overhead.VSize())

	// Adding a known output counts its serialized size.
	overhead.AddTxOutput(&wire.TxOut{PkScript: PayToAnchorScript})
	require.Equal(
		t, lntypes.WeightUnit(439+P2AOutputSize*4), overhead.Weight(),
	)
}
