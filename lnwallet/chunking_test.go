package lnwallet

import (
	"testing"

	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/stretchr/testify/require"
)

func claimDescriptors(n int, offered bool) []*HTLCDescriptor {
	descs := make([]*HTLCDescriptor, 0, n)
	for i := 0; i < n; i++ {
		descs = append(descs, &HTLCDescriptor{
			HTLC: HTLC{
				Offered:       offered,
				Amount:        10_000_000,
				RefundTimeout: uint32(i),
			},
		})
	}

	return descs
}

// batchWeight returns the weight of a batch claiming the given HTLCs.
func batchWeight(chanType lnwire.ChannelType,
	descs []*HTLCDescriptor) lntypes.WeightUnit {

	estimator := batchBaseWeight()
	for _, desc := range descs {
		addClaimWeight(&estimator, chanType, desc)
	}

	return estimator.Weight()
}

func TestChunkHtlcClaims(t *testing.T) {
	t.Parallel()

	chanType := lnwire.ZeroFeeCommitmentsChannelType()
	descs := claimDescriptors(7, false)
	twoClaims := batchWeight(chanType, descs[:2])

	chunks := ChunkHtlcClaims(chanType, descs, twoClaims)
	require.Len(t, chunks, 4)
	for i, chunk := range chunks[:3] {
		require.Len(t, chunk, 2)
		require.Same(t, descs[2*i], chunk[0])
	}
	require.Len(t, chunks[3], 1)

	// A claim heavier than the limit still gets a batch of its own.
	chunks = ChunkHtlcClaims(chanType, descs[:3], 1)
	require.Len(t, chunks, 3)

	require.Empty(t, ChunkHtlcClaims(chanType, nil, twoClaims))
}

// TestChunkHtlcClaimsForChannel checks the weight limit of each channel
// type.
func TestChunkHtlcClaimsForChannel(t *testing.T) {
	t.Parallel()

	zeroFee := lnwire.ZeroFeeCommitmentsChannelType()
	chunks := ChunkHtlcClaimsForChannel(zeroFee, claimDescriptors(75, false))
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], 59)
	require.Len(t, chunks[1], 16)

	for _, chunk := range chunks {
		require.LessOrEqual(t, batchWeight(zeroFee, chunk),
			maxClaimWeight(zeroFee))
	}

	// Anchor channels are only bound by the standard weight limit.
	anchors := lnwire.AnchorsChannelType()
	chunks = ChunkHtlcClaimsForChannel(anchors, claimDescriptors(75, true))
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 75)
}
