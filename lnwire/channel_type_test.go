package lnwire

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

// TestChannelTypeEncodeDecode tests that we're able to properly encode and
// decode channel types within TLV streams.
func TestChannelTypeEncodeDecode(t *testing.T) {
	t.Parallel()

	chanTypes := []ChannelType{
		StaticRemoteKeyChannelType(),
		AnchorsChannelType(),
		ZeroFeeCommitmentsChannelType(),
		NewChannelType(),
	}

	for _, chanType := range chanTypes {
		chanType := chanType

		var b bytes.Buffer
		stream, err := tlv.NewStream(chanType.Record())
		require.NoError(t, err)
		require.NoError(t, stream.Encode(&b))

		var decoded ChannelType
		stream, err = tlv.NewStream(decoded.Record())
		require.NoError(t, err)
		require.NoError(t, stream.Decode(&b))

		require.True(
			t, chanType.Equal(decoded), "%v != %v", chanType,
			decoded,
		)
	}
}

// TestChannelTypePredicates checks the feature predicates of the well known
// channel types, including the optional bit variants.
func TestChannelTypePredicates(t *testing.T) {
	t.Parallel()

	plain := StaticRemoteKeyChannelType()
	require.True(t, plain.HasStaticRemoteKey())
	require.False(t, plain.HasAnchorsZeroFeeHtlcTx())
	require.False(t, plain.HasZeroFeeCommitments())
	require.False(t, plain.HasZeroFeeHtlcTx())

	anchors := AnchorsChannelType()
	require.True(t, anchors.HasAnchorsZeroFeeHtlcTx())
	require.False(t, anchors.HasZeroFeeCommitments())
	require.True(t, anchors.HasZeroFeeHtlcTx())

	zeroFee := ZeroFeeCommitmentsChannelType()
	require.False(t, zeroFee.HasAnchorsZeroFeeHtlcTx())
	require.True(t, zeroFee.HasZeroFeeCommitments())
	require.True(t, zeroFee.HasZeroFeeHtlcTx())

	optional := NewChannelType(
		StaticRemoteKeyOptional, AnchorsZeroFeeHtlcTxOptional,
	)
	require.True(t, optional.HasStaticRemoteKey())
	require.True(t, optional.HasAnchorsZeroFeeHtlcTx())

	require.False(t, anchors.Equal(zeroFee))
	require.True(t, anchors.Equal(AnchorsChannelType()))
}

// TestRawFeatureVectorEncode checks the length prefixed encoding of a raw
// feature vector against a hand computed bit field.
func TestRawFeatureVectorEncode(t *testing.T) {
	t.Parallel()

	fv := NewRawFeatureVector(
		StaticRemoteKeyRequired, AnchorsZeroFeeHtlcTxRequired,
	)

	var b bytes.Buffer
	require.NoError(t, fv.Encode(&b))

	// Bit 22 lives in the third byte from the end, bit 12 in the second.
	require.Equal(t, []byte{0x00, 0x03, 0x40, 0x10, 0x00}, b.Bytes())

	decoded := NewRawFeatureVector()
	require.NoError(t, decoded.Decode(&b))
	require.True(t, fv.Equals(decoded))
	require.Equal(
		t, []FeatureBit{
			StaticRemoteKeyRequired, AnchorsZeroFeeHtlcTxRequired,
		}, decoded.Features(),
	)
	require.True(t, StaticRemoteKeyRequired.IsRequired())
	require.False(t, StaticRemoteKeyOptional.IsRequired())
}

// TestMilliSatoshiConversion checks the floor conversion to satoshis.
func TestMilliSatoshiConversion(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		mSatAmount MilliSatoshi
		satAmount  btcutil.Amount
	}{
		{mSatAmount: 0, satAmount: 0},
		{mSatAmount: 999, satAmount: 0},
		{mSatAmount: 1000, satAmount: 1},
		{mSatAmount: 354_001, satAmount: 354},
	}

	for _, test := range testCases {
		require.Equal(t, test.satAmount, test.mSatAmount.ToSatoshis())
	}

	require.Equal(t, MilliSatoshi(5000), NewMSatFromSatoshis(5))
}
