package lnwire

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
)

// FeatureBit represents a feature that can be enabled in a feature vector at a
// specific bit position. Feature bits follow the "it's OK to be odd" rule,
// where features at even bit positions must be known to a node receiving them
// while odd bits do not. Feature bits are assigned in pairs.
type FeatureBit uint16

const (
	// StaticRemoteKeyRequired is a required feature bit that signals that
	// within one's commitment transaction, the key used for the remote
	// party's non-delay output should not be tweaked.
	StaticRemoteKeyRequired FeatureBit = 12

	// StaticRemoteKeyOptional is the optional variant of
	// StaticRemoteKeyRequired.
	StaticRemoteKeyOptional FeatureBit = 13

	// AnchorsZeroFeeHtlcTxRequired is a required feature bit that signals
	// that the node requires channels having two anchor outputs on the
	// commitment transaction and zero-fee second-level HTLC transactions.
	// The fee for the second-level transactions is brought in by the
	// spender.
	AnchorsZeroFeeHtlcTxRequired FeatureBit = 22

	// AnchorsZeroFeeHtlcTxOptional is the optional variant of
	// AnchorsZeroFeeHtlcTxRequired.
	AnchorsZeroFeeHtlcTxOptional FeatureBit = 23

	// ZeroFeeCommitmentsRequired is a required feature bit that signals
	// that the node requires channels whose commitment transaction pays no
	// fee at all. Such commitments are version 3 (TRUC) transactions
	// carrying a single shared pay-to-anchor output that absorbs trimmed
	// value up to a fixed cap.
	ZeroFeeCommitmentsRequired FeatureBit = 40

	// ZeroFeeCommitmentsOptional is the optional variant of
	// ZeroFeeCommitmentsRequired.
	ZeroFeeCommitmentsOptional FeatureBit = 41

	// maxAllowedSize is the maximum allowed size of a feature vector in
	// bytes.
	maxAllowedSize = 32764
)

// Features is a mapping of known feature bits to a descriptive name.
var Features = map[FeatureBit]string{
	StaticRemoteKeyRequired:      "static-remote-key",
	StaticRemoteKeyOptional:      "static-remote-key",
	AnchorsZeroFeeHtlcTxRequired: "anchors-zero-fee-htlc-tx",
	AnchorsZeroFeeHtlcTxOptional: "anchors-zero-fee-htlc-tx",
	ZeroFeeCommitmentsRequired:   "zero-fee-commitments",
	ZeroFeeCommitmentsOptional:   "zero-fee-commitments",
}

// IsRequired returns true if the feature bit is even, and false otherwise.
func (b FeatureBit) IsRequired() bool {
	return b&0x01 == 0x00
}

// String returns the name of the feature bit if known, falling back to its
// position otherwise.
func (b FeatureBit) String() string {
	if name, ok := Features[b]; ok {
		return fmt.Sprintf("%s(%d)", name, uint16(b))
	}

	return fmt.Sprintf("unknown(%d)", uint16(b))
}

// RawFeatureVector represents a set of feature bits as defined in BOLT-09. A
// RawFeatureVector itself just stores a set of bit flags. Feature vectors can
// be serialized and deserialized to/from a byte representation that is
// transmitted in Lightning network messages.
type RawFeatureVector struct {
	features map[FeatureBit]struct{}
}

// NewRawFeatureVector creates a feature vector with all of the feature bits
// given as arguments enabled.
func NewRawFeatureVector(bits ...FeatureBit) *RawFeatureVector {
	fv := &RawFeatureVector{features: make(map[FeatureBit]struct{})}
	for _, bit := range bits {
		fv.Set(bit)
	}

	return fv
}

// IsSet returns whether a particular feature bit is enabled in the vector.
func (fv *RawFeatureVector) IsSet(feature FeatureBit) bool {
	_, ok := fv.features[feature]
	return ok
}

// Set marks a feature as enabled in the vector.
func (fv *RawFeatureVector) Set(feature FeatureBit) {
	if fv.features == nil {
		fv.features = make(map[FeatureBit]struct{})
	}
	fv.features[feature] = struct{}{}
}

// Unset marks a feature as disabled in the vector.
func (fv *RawFeatureVector) Unset(feature FeatureBit) {
	delete(fv.features, feature)
}

// IsEmpty returns whether the feature vector contains any feature bits.
func (fv *RawFeatureVector) IsEmpty() bool {
	return len(fv.features) == 0
}

// Features returns the set bits in ascending order.
func (fv *RawFeatureVector) Features() []FeatureBit {
	bits := make([]FeatureBit, 0, len(fv.features))
	for bit := range fv.features {
		bits = append(bits, bit)
	}
	sort.Slice(bits, func(i, j int) bool {
		return bits[i] < bits[j]
	})

	return bits
}

// Equals determines if two feature vectors contain exactly the same
// features.
func (fv *RawFeatureVector) Equals(other *RawFeatureVector) bool {
	if len(fv.features) != len(other.features) {
		return false
	}

	for bit := range fv.features {
		if _, ok := other.features[bit]; !ok {
			return false
		}
	}

	return true
}

// Clone makes a copy of a feature vector.
func (fv *RawFeatureVector) Clone() *RawFeatureVector {
	return NewRawFeatureVector(fv.Features()...)
}

// String returns a comma separated list of the set feature bits.
func (fv *RawFeatureVector) String() string {
	names := make([]string, 0, len(fv.features))
	for _, bit := range fv.Features() {
		names = append(names, bit.String())
	}

	return strings.Join(names, ",")
}

// SerializeSize returns the number of bytes needed to represent feature vector
// in byte format.
func (fv *RawFeatureVector) SerializeSize() int {
	// We calculate byte-length via the largest bit index.
	maxBit := -1
	for feature := range fv.features {
		if int(feature) > maxBit {
			maxBit = int(feature)
		}
	}
	if maxBit == -1 {
		return 0
	}

	return maxBit/8 + 1
}

// sizeFunc returns the length required to encode the feature vector, as a
// uint64 suitable for the TLV layer.
func (fv *RawFeatureVector) sizeFunc() uint64 {
	return uint64(fv.SerializeSize())
}

// Encode writes the feature vector in byte representation, prefixed by its
// two byte length.
func (fv *RawFeatureVector) Encode(w io.Writer) error {
	var l [2]byte
	length := fv.SerializeSize()
	binary.BigEndian.PutUint16(l[:], uint16(length))
	if _, err := w.Write(l[:]); err != nil {
		return err
	}

	return fv.encode(w, length)
}

// encode writes the bit field of the feature vector without a length prefix.
// The most significant bits come first.
func (fv *RawFeatureVector) encode(w io.Writer, length int) error {
	data := make([]byte, length)
	for feature := range fv.features {
		byteIndex := int(feature) / 8
		bitIndex := int(feature) % 8
		data[length-byteIndex-1] |= 1 << uint(bitIndex)
	}

	_, err := w.Write(data)
	return err
}

// Decode reads a length prefixed feature vector from its byte representation.
func (fv *RawFeatureVector) Decode(r io.Reader) error {
	var l [2]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint16(l[:])

	return fv.decode(r, int(length))
}

// decode reads a feature vector from the next length bytes of the reader.
func (fv *RawFeatureVector) decode(r io.Reader, length int) error {
	if length > maxAllowedSize {
		return fmt.Errorf("feature vector length %d exceeds maximum "+
			"of %d", length, maxAllowedSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}

	for i := 0; i < length*8; i++ {
		byteIndex := i / 8
		bitIndex := uint(i % 8)
		if (data[length-byteIndex-1]>>bitIndex)&1 == 1 {
			fv.Set(FeatureBit(i))
		}
	}

	return nil
}
