package lnwallet

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// p2aOutput returns the shared anchor output of a commitment.
func p2aOutput(t *testing.T, tx *wire.MsgTx) *wire.TxOut {
	t.Helper()

	for _, txOut := range tx.TxOut {
		if bytes.Equal(txOut.PkScript, input.PayToAnchorScript) {
			return txOut
		}
	}

	t.Fatalf("no pay-to-anchor output in %v", tx.TxHash())

	return nil
}

// TestZeroFeeCommitmentAnchorValue checks that the shared anchor of a zero
// fee commitment collects the value lost to msat rounding and trimmed HTLCs,
// capped at its dust threshold.
func TestZeroFeeCommitmentAnchorValue(t *testing.T) {
	t.Parallel()

	const (
		chanValue = btcutil.Amount(10_000_000)
		dustLimit = btcutil.Amount(354)
	)

	testCases := []struct {
		name     string
		offered  []lnwire.MilliSatoshi
		received []lnwire.MilliSatoshi
		expected btcutil.Amount
	}{
		{"no htlcs", nil, nil, 0},
		{"1 msat", []lnwire.MilliSatoshi{1}, nil, 1},
		{"238 sat", []lnwire.MilliSatoshi{238_000}, nil, 238},
		{"238 sat plus 1 msat", []lnwire.MilliSatoshi{238_001}, nil, 239},
		{"240 sat", []lnwire.MilliSatoshi{240_000}, nil, 240},
		{"240 sat plus 1 msat", []lnwire.MilliSatoshi{240_001}, nil, 240},
		{"353 sat", []lnwire.MilliSatoshi{353_000}, nil, 240},
		{"largest dust", []lnwire.MilliSatoshi{353_999}, nil, 240},
		{"smallest non-dust", []lnwire.MilliSatoshi{354_000}, nil, 0},
		{"non-dust plus 1 msat", []lnwire.MilliSatoshi{354_001}, nil, 1},
		{"two 1 msat", []lnwire.MilliSatoshi{1, 1}, nil, 1},
		{"1 and 999 msat", []lnwire.MilliSatoshi{1, 999}, nil, 1},
		{"1 and 1000 msat", []lnwire.MilliSatoshi{1, 1000}, nil, 2},
		{
			"non-dust and 999 msat",
			[]lnwire.MilliSatoshi{354_001, 999}, nil, 1,
		},
		{
			"non-dust and 1000 msat",
			[]lnwire.MilliSatoshi{354_001, 1000}, nil, 2,
		},
		{
			"non-dust and 1999 msat",
			[]lnwire.MilliSatoshi{354_001, 1999}, nil, 2,
		},
		{
			"non-dust plus 2 msat and 1999 msat",
			[]lnwire.MilliSatoshi{354_002, 1999}, nil, 3,
		},
		{
			"1 msat each way",
			[]lnwire.MilliSatoshi{1}, []lnwire.MilliSatoshi{1}, 2,
		},
		{
			"1 and 999 msat each way",
			[]lnwire.MilliSatoshi{1}, []lnwire.MilliSatoshi{999}, 2,
		},
		{
			"1 and 1000 msat each way",
			[]lnwire.MilliSatoshi{1}, []lnwire.MilliSatoshi{1000}, 2,
		},
		{
			"non-dust and 999 msat each way",
			[]lnwire.MilliSatoshi{354_001},
			[]lnwire.MilliSatoshi{999}, 2,
		},
		{
			"non-dust and 1000 msat each way",
			[]lnwire.MilliSatoshi{354_001},
			[]lnwire.MilliSatoshi{1000}, 2,
		},
		{
			"non-dust and 1999 msat each way",
			[]lnwire.MilliSatoshi{354_001},
			[]lnwire.MilliSatoshi{1999}, 3,
		},
		{
			"non-dust plus 2 msat and 1999 msat each way",
			[]lnwire.MilliSatoshi{354_002},
			[]lnwire.MilliSatoshi{1999}, 3,
		},
		{
			"dust each way",
			[]lnwire.MilliSatoshi{353_000},
			[]lnwire.MilliSatoshi{353_000}, 240,
		},
		{
			"dust plus 1 msat offered",
			[]lnwire.MilliSatoshi{353_001},
			[]lnwire.MilliSatoshi{353_000}, 240,
		},
		{
			"dust plus 1 msat received",
			[]lnwire.MilliSatoshi{353_000},
			[]lnwire.MilliSatoshi{353_001}, 240,
		},
		{
			"dust plus 1 msat each way",
			[]lnwire.MilliSatoshi{353_001},
			[]lnwire.MilliSatoshi{353_001}, 240,
		},
	}

	funder, _ := testChannelParams(
		lnwire.ZeroFeeCommitmentsChannelType(), chanValue,
	)
	builder := testBuilder(funder)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var htlcs []*HTLC
			add := func(offered bool, amts []lnwire.MilliSatoshi) {
				for _, amt := range amts {
					htlcs = append(htlcs, &HTLC{
						Offered:       offered,
						Amount:        amt,
						RefundTimeout: 500_000 + uint32(len(htlcs)),
						RHash:         lntypes.Hash{byte(len(htlcs))},
					})
				}
			}
			add(true, tc.offered)
			add(false, tc.received)

			// Half of the channel was pushed to the fundee.
			commitTx, stats, err := builder.BuildCommitment(
				&CommitmentRequest{
					Local:                true,
					PerCommitmentPoint:   testCommitPoint(1),
					ValueToHolder:        5_000_000_000,
					HTLCs:                htlcs,
					FeePerKw:             253,
					BroadcasterDustLimit: dustLimit,
				},
			)
			require.NoError(t, err)
			require.Zero(t, stats.TotalFee)

			anchor := p2aOutput(t, commitTx.Tx())
			require.EqualValues(t, tc.expected, anchor.Value)

			var total int64
			for _, txOut := range commitTx.Tx().TxOut {
				total += txOut.Value
			}
			require.LessOrEqual(t, total, int64(chanValue))
		})
	}
}

// TestBuildCommitmentTrimsDust checks the output set of an anchor
// commitment with dust and non-dust HTLCs in both directions.
func TestBuildCommitmentTrimsDust(t *testing.T) {
	t.Parallel()

	const feePerKw = 1_000

	funder, fundee := testChannelParams(
		lnwire.AnchorsChannelType(), 1_000_000,
	)

	htlcs := []*HTLC{
		{Offered: true, Amount: 50_000_000, RefundTimeout: 100},
		{Offered: true, Amount: 400_000, RefundTimeout: 101},
		{Offered: false, Amount: 30_000_000, RefundTimeout: 102},
		{Offered: false, Amount: 500_000, RefundTimeout: 103},
	}

	builder := testBuilder(funder)
	commitTx, stats, err := builder.BuildCommitment(&CommitmentRequest{
		Local:                true,
		CommitmentNumber:     42,
		PerCommitmentPoint:   testCommitPoint(2),
		ValueToHolder:        600_000_000,
		HTLCs:                htlcs,
		FeePerKw:             feePerKw,
		BroadcasterDustLimit: 546,
	})
	require.NoError(t, err)

	// Zero-fee HTLC transactions leave the dust limit as the only
	// threshold.
	require.Equal(t, 2, stats.NonDustHtlcCount)
	require.Len(t, commitTx.HTLCs, 2)
	require.True(t, htlcs[0].OutputIndex.IsSome())
	require.True(t, htlcs[1].OutputIndex.IsNone())
	require.True(t, htlcs[2].OutputIndex.IsSome())
	require.True(t, htlcs[3].OutputIndex.IsNone())

	require.Equal(t, CommitFee(feePerKw, 2, funder.ChannelType),
		stats.TotalFee)

	// Both balances, both HTLCs and two anchors.
	tx := commitTx.Tx()
	require.Len(t, tx.TxOut, 6)
	require.EqualValues(t, 2, tx.Version)

	for _, htlc := range commitTx.HTLCs {
		vout := htlc.OutputIndex.UnsafeFromSome()
		require.EqualValues(t, htlc.Amount.ToSatoshis(),
			tx.TxOut[vout].Value)
	}

	// The state number survives the obfuscation.
	directed, err := funder.AsHolderBroadcastable()
	require.NoError(t, err)
	require.EqualValues(t, 42, GetStateNumHint(
		tx, directed.StateHintObfuscator(),
	))

	// Both sides derive the same obfuscator.
	fundeeDirected, err := fundee.AsCounterpartyBroadcastable()
	require.NoError(t, err)
	require.Equal(t, directed.StateHintObfuscator(),
		fundeeDirected.StateHintObfuscator())

	// Anchors and the fee come out of the funder's balance.
	holderSats := lnwire.MilliSatoshi(600_000_000 - 50_000_000 -
		400_000).ToSatoshis() - 2*AnchorOutputValue - stats.TotalFee
	require.Equal(t, holderSats, commitTx.ToBroadcasterValue)
}

// TestCommitmentBothSidesAgree checks that the two parties of a channel build
// the exact same transaction for each of the two commitments.
func TestCommitmentBothSidesAgree(t *testing.T) {
	t.Parallel()

	for _, chanType := range []lnwire.ChannelType{
		lnwire.StaticRemoteKeyChannelType(),
		lnwire.AnchorsChannelType(),
		lnwire.ZeroFeeCommitmentsChannelType(),
	} {
		funder, fundee := testChannelParams(chanType, 2_000_000)
		funderBuilder := testBuilder(funder)
		fundeeBuilder := testBuilder(fundee)

		// Offered is relative to the funder, the broadcaster.
		htlcs := func() []*HTLC {
			return []*HTLC{
				{
					Offered:       true,
					Amount:        70_000_000,
					RefundTimeout: 600,
					RHash:         lntypes.Hash{1},
				},
				{
					Offered:       false,
					Amount:        80_000_000,
					RefundTimeout: 500,
					RHash:         lntypes.Hash{2},
				},
			}
		}

		local, _, err := funderBuilder.BuildCommitment(
			&CommitmentRequest{
				Local:                true,
				CommitmentNumber:     7,
				PerCommitmentPoint:   testCommitPoint(3),
				ValueToHolder:        1_200_000_000,
				HTLCs:                htlcs(),
				FeePerKw:             2_500,
				BroadcasterDustLimit: 354,
			},
		)
		require.NoError(t, err)

		remote, _, err := fundeeBuilder.BuildCommitment(
			&CommitmentRequest{
				Local:                false,
				CommitmentNumber:     7,
				PerCommitmentPoint:   testCommitPoint(3),
				ValueToHolder:        800_000_000,
				HTLCs:                htlcs(),
				FeePerKw:             2_500,
				BroadcasterDustLimit: 354,
			},
		)
		require.NoError(t, err)

		require.Equal(t, local.TxHash(), remote.TxHash(), chanType)
		require.True(t, local.Keys.Equal(remote.Keys))
		require.Equal(t, CommitTxVersion(chanType), local.Tx().Version)

		// Both sides accept the other's commitment.
		require.NoError(t, funderBuilder.VerifyCommitment(local))
		require.NoError(t, fundeeBuilder.VerifyCommitment(remote))
	}
}

// TestVerifyCommitmentMismatch checks that a commitment differing from the
// one the parameters describe is refused.
func TestVerifyCommitmentMismatch(t *testing.T) {
	t.Parallel()

	funder, _ := testChannelParams(lnwire.AnchorsChannelType(), 1_000_000)
	builder := testBuilder(funder)

	build := func() *CommitmentTransaction {
		commitTx, _, err := builder.BuildCommitment(&CommitmentRequest{
			Local:              true,
			PerCommitmentPoint: testCommitPoint(4),
			ValueToHolder:      500_000_000,
			HTLCs: []*HTLC{{
				Offered:       true,
				Amount:        20_000_000,
				RefundTimeout: 300,
			}},
			FeePerKw:             253,
			BroadcasterDustLimit: 354,
		})
		require.NoError(t, err)

		return commitTx
	}

	require.NoError(t, builder.VerifyCommitment(build()))

	tampered := build()
	tampered.ToCountersignatoryValue++
	err := builder.VerifyCommitment(tampered)
	require.ErrorIs(t, err, ErrCommitmentMismatch)

	// The same commitment from a channel with other keys.
	other, _ := testChannelParams(
		lnwire.AnchorsChannelType(), 1_000_000,
	)
	other.HolderPubKeys = testPubKeys(0x09)
	err = testBuilder(other).VerifyCommitment(build())
	require.ErrorIs(t, err, ErrCommitmentMismatch)
}

// TestBuildCommitmentDeterministic checks that building the same state twice
// gives the same transaction.
func TestBuildCommitmentDeterministic(t *testing.T) {
	t.Parallel()

	funder, _ := testChannelParams(
		lnwire.ZeroFeeCommitmentsChannelType(), 3_000_000,
	)
	builder := testBuilder(funder)

	build := func() *CommitmentTransaction {
		htlcs := make([]*HTLC, 0, 10)
		for i := 0; i < 10; i++ {
			// Same hash and amount, only the timeouts differ.
			htlcs = append(htlcs, &HTLC{
				Offered:       i%2 == 0,
				Amount:        10_000_000,
				RefundTimeout: uint32(1_000 - i),
				RHash:         lntypes.Hash{0xab},
			})
		}

		commitTx, _, err := builder.BuildCommitment(&CommitmentRequest{
			Local:                true,
			CommitmentNumber:     3,
			PerCommitmentPoint:   testCommitPoint(5),
			ValueToHolder:        1_500_000_000,
			HTLCs:                htlcs,
			FeePerKw:             253,
			BroadcasterDustLimit: 354,
		})
		require.NoError(t, err)

		return commitTx
	}

	first := build()
	require.Equal(t, first.TxHash(), build().TxHash())

	// Offered HTLC scripts don't commit to the timeout, identical ones
	// are ordered by it.
	var offered []uint32
	for _, htlc := range first.HTLCs {
		if htlc.Offered {
			offered = append(offered, htlc.RefundTimeout)
		}
	}
	require.Len(t, offered, 5)
	require.IsIncreasing(t, offered)
}

// TestBuilderProvisioning checks the ways parameters can be handed to a
// builder.
func TestBuilderProvisioning(t *testing.T) {
	t.Parallel()

	funder, _ := testChannelParams(lnwire.AnchorsChannelType(), 1_000_000)

	builder := NewSpecTxBuilder()
	_, err := builder.Parameters()
	require.ErrorIs(t, err, ErrParamsNotPopulated)
	require.Panics(t, func() {
		builder.PopulatedParameters()
	})
	require.Panics(t, func() {
		builder.ProvideFundingOutpoint(testFundingOutpoint)
	})

	// Parameters without an outpoint are completed later.
	pending := funder.Copy()
	pending.FundingOutpoint = fn.None[wire.OutPoint]()
	require.Panics(t, func() {
		NewSpecTxBuilder().ProvidePopulatedParameters(pending)
	})

	builder.ProvideChannelParameters(pending)
	builder.ProvideChannelParameters(pending)
	_, err = builder.Parameters()
	require.ErrorIs(t, err, ErrParamsNotPopulated)

	builder.ProvideFundingOutpoint(testFundingOutpoint)
	builder.ProvideFundingOutpoint(testFundingOutpoint)
	require.True(t, builder.PopulatedParameters().Equal(funder))

	// Callers get their own copy, the builder's parameters are set once.
	params, err := builder.Parameters()
	require.NoError(t, err)
	params.ChannelValue++
	params.HolderSelectedContestDelay++
	builder.PopulatedParameters().ChannelValue++
	require.True(t, builder.PopulatedParameters().Equal(funder))

	otherOutpoint := testFundingOutpoint
	otherOutpoint.Index++
	require.PanicsWithValue(t, ErrFundingOutpointMismatch, func() {
		builder.ProvideFundingOutpoint(otherOutpoint)
	})

	// Complete parameters may be provided again but not changed.
	full := testBuilder(funder)
	full.ProvidePopulatedParameters(funder)

	changed := funder.Copy()
	changed.ChannelValue++
	require.PanicsWithValue(t, ErrParamsMismatch, func() {
		full.ProvidePopulatedParameters(changed)
	})

	// Parameters lacking the counterparty are not accepted at all.
	noCounterparty := pending.Copy()
	noCounterparty.CounterpartyParameters = fn.None[
		CounterpartyChannelTransactionParameters,
	]()
	require.Panics(t, func() {
		NewSpecTxBuilder().ProvideChannelParameters(noCounterparty)
	})
}

// TestBuildCommitmentUnderflowPanics checks that HTLCs exceeding the balance
// of their offerer are a broken invariant.
func TestBuildCommitmentUnderflowPanics(t *testing.T) {
	t.Parallel()

	funder, _ := testChannelParams(lnwire.AnchorsChannelType(), 1_000_000)
	builder := testBuilder(funder)

	require.Panics(t, func() {
		_, _, _ = builder.BuildCommitment(&CommitmentRequest{
			Local:              true,
			PerCommitmentPoint: testCommitPoint(6),
			ValueToHolder:      10_000_000,
			HTLCs: []*HTLC{{
				Offered: true,
				Amount:  20_000_000,
			}},
			FeePerKw:             253,
			BroadcasterDustLimit: 354,
		})
	})
}
