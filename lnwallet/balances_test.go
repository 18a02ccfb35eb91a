package lnwallet

import (
	"testing"

	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

func testConstraints() ChannelConstraints {
	return ChannelConstraints{
		DustLimit:        354,
		ChanReserve:      10_000,
		MaxPendingAmount: 1_000_000_000,
		MinHTLC:          1_000,
		MaxAcceptedHtlcs: 483,
	}
}

func TestAvailableBalances(t *testing.T) {
	t.Parallel()

	anchors := lnwire.AnchorsChannelType()

	// fundedByPeer is a legacy channel the counterparty opened, where
	// every fee above zero counts towards our exposure on their
	// commitment. Their commitment carries 183 sat of such fees.
	fundedByPeer := func(req *BalanceRequest) {
		req.ChannelType = lnwire.StaticRemoteKeyChannelType()
		req.IsOutboundFromHolder = false
		req.ValueToHolder = 10_000_000
		req.DustExposureLimitingFeeRate = fn.Some(
			chainfee.SatPerKWeight(0),
		)
		req.Holder.ChanReserve = 0
		req.Holder.DustLimit = 20_000
	}

	testCases := []struct {
		name        string
		modify      func(req *BalanceRequest, cfg *EstimatorConfig)
		expected    AvailableBalances
		expectedErr error
	}{
		{
			// The fee for two extra HTLCs is kept aside.
			name:   "anchors funder",
			modify: func(*BalanceRequest, *EstimatorConfig) {},
			expected: AvailableBalances{
				InboundCapacity:         390_000_000,
				OutboundCapacity:        589_340_000,
				NextOutboundHTLCLimit:   588_969_000,
				NextOutboundHTLCMinimum: 1_000,
			},
		},
		{
			// Without anchors the reserved fee is doubled.
			name: "legacy funder",
			modify: func(req *BalanceRequest, _ *EstimatorConfig) {
				req.ChannelType = lnwire.StaticRemoteKeyChannelType()
				req.FeePerKw = 1_000
			},
			expected: AvailableBalances{
				InboundCapacity:         390_000_000,
				OutboundCapacity:        590_000_000,
				NextOutboundHTLCLimit:   587_864_000,
				NextOutboundHTLCMinimum: 1_000,
			},
		},
		{
			// A funder that can't pay for another HTLC output only
			// lets us send dust.
			name: "broke funder",
			modify: func(req *BalanceRequest, _ *EstimatorConfig) {
				req.IsOutboundFromHolder = false
				req.ValueToHolder = 990_000_000
			},
			expected: AvailableBalances{
				InboundCapacity:         0,
				OutboundCapacity:        980_000_000,
				NextOutboundHTLCLimit:   353_999,
				NextOutboundHTLCMinimum: 1_000,
			},
		},
		{
			name: "in-flight limit",
			modify: func(req *BalanceRequest, _ *EstimatorConfig) {
				req.Counterparty.MaxPendingAmount = 100_000_000
				req.PendingHTLCs = []HTLCAmountDirection{{
					OutboundFromHolder: true,
					Amount:             30_000_000,
				}}
			},
			expected: AvailableBalances{
				InboundCapacity:         390_000_000,
				OutboundCapacity:        559_340_000,
				NextOutboundHTLCLimit:   70_000_000,
				NextOutboundHTLCMinimum: 1_000,
			},
		},
		{
			name: "htlc count limit",
			modify: func(req *BalanceRequest, _ *EstimatorConfig) {
				req.Counterparty.MaxAcceptedHtlcs = 1
				req.PendingHTLCs = []HTLCAmountDirection{{
					OutboundFromHolder: true,
					Amount:             30_000_000,
				}}
			},
			expected: AvailableBalances{
				InboundCapacity:         390_000_000,
				OutboundCapacity:        559_340_000,
				NextOutboundHTLCLimit:   0,
				NextOutboundHTLCMinimum: 1_000,
			},
		},
		{
			// Once another dust HTLC would exceed the exposure
			// ceiling, the next HTLC must not be dust.
			name: "dust exposure ceiling",
			modify: func(req *BalanceRequest, cfg *EstimatorConfig) {
				cfg.MaxDustHTLCExposure = 1_000_000
				for i := 0; i < 3; i++ {
					req.PendingHTLCs = append(
						req.PendingHTLCs,
						HTLCAmountDirection{
							OutboundFromHolder: true,
							Amount:             300_000,
						},
					)
				}
			},
			expected: AvailableBalances{
				InboundCapacity:         390_000_000,
				OutboundCapacity:        588_440_000,
				NextOutboundHTLCLimit:   588_069_000,
				NextOutboundHTLCMinimum: 354_000,
			},
		},
		{
			// Only our own commitment hits the ceiling, so the
			// whole ceiling is left for dust HTLCs.
			name: "dust exposure on holder commitment",
			modify: func(req *BalanceRequest, cfg *EstimatorConfig) {
				fundedByPeer(req)
				cfg.MaxDustHTLCExposure = 5_000_000
			},
			expected: AvailableBalances{
				InboundCapacity:         980_000_000,
				OutboundCapacity:        10_000_000,
				NextOutboundHTLCLimit:   5_000_000,
				NextOutboundHTLCMinimum: 1_000,
			},
		},
		{
			// Both commitments hit the ceiling, the one with the
			// least headroom wins.
			name: "dust exposure on both commitments",
			modify: func(req *BalanceRequest, cfg *EstimatorConfig) {
				fundedByPeer(req)
				cfg.MaxDustHTLCExposure = 2_000_000
				req.PendingHTLCs = []HTLCAmountDirection{{
					OutboundFromHolder: true,
					Amount:             500_000,
				}}
			},
			expected: AvailableBalances{
				InboundCapacity:         980_000_000,
				OutboundCapacity:        9_500_000,
				NextOutboundHTLCLimit:   1_317_000,
				NextOutboundHTLCMinimum: 1_000,
			},
		},
		{
			// The fees of one more HTLC output on their commitment
			// exceed the ceiling, so the HTLC must be dust there.
			name: "excess fees of an extra htlc",
			modify: func(req *BalanceRequest, cfg *EstimatorConfig) {
				fundedByPeer(req)
				cfg.MaxDustHTLCExposure = 400_000
				req.Holder.DustLimit = 354
			},
			expected: AvailableBalances{
				InboundCapacity:         980_000_000,
				OutboundCapacity:        10_000_000,
				NextOutboundHTLCLimit:   2_310_000,
				NextOutboundHTLCMinimum: 2_310_000,
			},
		},
		{
			// Below the limiting fee rate their fees are not ours
			// to worry about.
			name: "fee rate below limiting fee rate",
			modify: func(req *BalanceRequest, cfg *EstimatorConfig) {
				fundedByPeer(req)
				cfg.MaxDustHTLCExposure = 400_000
				req.Holder.DustLimit = 354
				req.DustExposureLimitingFeeRate = fn.Some(
					chainfee.SatPerKWeight(300),
				)
			},
			expected: AvailableBalances{
				InboundCapacity:         980_000_000,
				OutboundCapacity:        10_000_000,
				NextOutboundHTLCLimit:   10_000_000,
				NextOutboundHTLCMinimum: 2_310_000,
			},
		},
		{
			name: "pending htlcs exceed balance",
			modify: func(req *BalanceRequest, _ *EstimatorConfig) {
				req.PendingHTLCs = []HTLCAmountDirection{{
					OutboundFromHolder: true,
					Amount:             700_000_000,
				}}
			},
			expectedErr: ErrBalanceUnderflow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultEstimatorConfig()
			req := &BalanceRequest{
				IsOutboundFromHolder: true,
				ChannelType:          anchors,
				ChannelValue:         1_000_000,
				ValueToHolder:        600_000_000,
				FeePerKw:             253,
				DustExposureLimitingFeeRate: fn.None[
					chainfee.SatPerKWeight,
				](),
				Holder:       testConstraints(),
				Counterparty: testConstraints(),
			}
			tc.modify(req, cfg)
			require.NoError(t, cfg.Validate())

			balances, err := NewBalanceEstimator(cfg).AvailableBalances(
				req,
			)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, *balances)
		})
	}
}

// TestAvailableBalancesZeroFeeCommitment checks that a zero-fee commitment
// keeps no fee aside.
func TestAvailableBalancesZeroFeeCommitment(t *testing.T) {
	t.Parallel()

	balances, err := NewBalanceEstimator(DefaultEstimatorConfig()).
		AvailableBalances(&BalanceRequest{
			IsOutboundFromHolder: true,
			ChannelType:          lnwire.ZeroFeeCommitmentsChannelType(),
			ChannelValue:         1_000_000,
			ValueToHolder:        600_000_000,
			FeePerKw:             5_000,
			Holder:               testConstraints(),
			Counterparty:         testConstraints(),
		})
	require.NoError(t, err)

	require.EqualValues(t, 590_000_000, balances.OutboundCapacity)
	require.EqualValues(t, 590_000_000, balances.NextOutboundHTLCLimit)
}

func TestEstimatorConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultEstimatorConfig().Validate())

	cfg := DefaultEstimatorConfig()
	cfg.FeeSpikeBufferMultiple = 0
	require.Error(t, cfg.Validate())
}
