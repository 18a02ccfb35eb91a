package lnwire

import (
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// ChannelTypeRecordType is the type of the record used to denote which
	// channel type is being negotiated.
	ChannelTypeRecordType tlv.Type = 1
)

// ChannelType represents a specific channel type as a set of feature bits that
// comprise it. The channel type is fixed once the channel is negotiated and
// selects the fee, dust and script rules used to build its commitments.
type ChannelType RawFeatureVector

// NewChannelType returns a channel type with the given bits set.
func NewChannelType(bits ...FeatureBit) ChannelType {
	return ChannelType(*NewRawFeatureVector(bits...))
}

// StaticRemoteKeyChannelType is the plain channel type: untweaked to_remote
// key, fee-bearing commitments and second-level transactions.
func StaticRemoteKeyChannelType() ChannelType {
	return NewChannelType(StaticRemoteKeyRequired)
}

// AnchorsChannelType is the channel type with two keyed anchor outputs and
// zero-fee second-level HTLC transactions.
func AnchorsChannelType() ChannelType {
	return NewChannelType(
		StaticRemoteKeyRequired, AnchorsZeroFeeHtlcTxRequired,
	)
}

// ZeroFeeCommitmentsChannelType is the channel type whose commitments pay no
// fee and carry a single shared pay-to-anchor output.
func ZeroFeeCommitmentsChannelType() ChannelType {
	return NewChannelType(
		StaticRemoteKeyRequired, ZeroFeeCommitmentsRequired,
	)
}

// hasPair returns true if either the required or optional variant of the
// feature is set.
func (c ChannelType) hasPair(required FeatureBit) bool {
	fv := RawFeatureVector(c)
	return fv.IsSet(required) || fv.IsSet(required+1)
}

// HasStaticRemoteKey returns true if the to_remote output pays to the
// untweaked payment basepoint of the countersignatory.
func (c ChannelType) HasStaticRemoteKey() bool {
	return c.hasPair(StaticRemoteKeyRequired)
}

// HasAnchorsZeroFeeHtlcTx returns true if the channel carries keyed anchors
// and second-level HTLC transactions are signed at zero fee.
func (c ChannelType) HasAnchorsZeroFeeHtlcTx() bool {
	return c.hasPair(AnchorsZeroFeeHtlcTxRequired)
}

// HasZeroFeeCommitments returns true if the commitment transaction itself
// pays no fee.
func (c ChannelType) HasZeroFeeCommitments() bool {
	return c.hasPair(ZeroFeeCommitmentsRequired)
}

// HasZeroFeeHtlcTx returns true if second-level HTLC transactions carry no
// pre-funded fee, which is the case for both anchor variants.
func (c ChannelType) HasZeroFeeHtlcTx() bool {
	return c.HasAnchorsZeroFeeHtlcTx() || c.HasZeroFeeCommitments()
}

// Equal returns true if both channel types have the same bits set.
func (c ChannelType) Equal(other ChannelType) bool {
	fv, otherFv := RawFeatureVector(c), RawFeatureVector(other)
	return fv.Equals(&otherFv)
}

// String returns the set bits of the channel type.
func (c ChannelType) String() string {
	fv := RawFeatureVector(c)
	return fv.String()
}

// featureBitLen returns the length in bytes of the encoded feature bits.
func (c ChannelType) featureBitLen() uint64 {
	fv := RawFeatureVector(c)
	return fv.sizeFunc()
}

// Record returns a TLV record that can be used to encode/decode the channel
// type from a given TLV stream.
func (c *ChannelType) Record() tlv.Record {
	return tlv.MakeDynamicRecord(
		ChannelTypeRecordType, c, c.featureBitLen, channelTypeEncoder,
		channelTypeDecoder,
	)
}

// channelTypeEncoder is a custom TLV encoder for the ChannelType record.
func channelTypeEncoder(w io.Writer, val interface{}, _ *[8]byte) error {
	if v, ok := val.(*ChannelType); ok {
		fv := RawFeatureVector(*v)
		return fv.encode(w, fv.SerializeSize())
	}

	return tlv.NewTypeForEncodingErr(val, "*lnwire.ChannelType")
}

// channelTypeDecoder is a custom TLV decoder for the ChannelType record.
func channelTypeDecoder(r io.Reader, val interface{}, _ *[8]byte,
	l uint64) error {

	if v, ok := val.(*ChannelType); ok {
		fv := NewRawFeatureVector()
		if err := fv.decode(r, int(l)); err != nil {
			return err
		}

		*v = ChannelType(*fv)
		return nil
	}

	return tlv.NewTypeForDecodingErr(val, "*lnwire.ChannelType", l, l)
}
