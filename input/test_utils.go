package input

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

// MockSigner is a simple implementation of the Signer interface. Each one has
// a set of private keys in a slice and can sign messages using the
// appropriate one.
type MockSigner struct {
	Privkeys []*btcec.PrivateKey
}

// A compile time check to ensure MockSigner implements the Signer interface.
var _ Signer = (*MockSigner)(nil)

// NewMockSigner returns a new instance of the MockSigner given a set of
// backing private keys.
func NewMockSigner(privKeys ...*btcec.PrivateKey) *MockSigner {
	return &MockSigner{
		Privkeys: privKeys,
	}
}

// SignOutputRaw generates a signature for the passed transaction according to
// the data within the passed SignDescriptor.
func (m *MockSigner) SignOutputRaw(tx *wire.MsgTx,
	signDesc *SignDescriptor) (Signature, error) {

	pubKey, err := signDesc.tweakedPubKey()
	if err != nil {
		return nil, err
	}

	privKey := m.findKey(
		pubKey, signDesc.SingleTweak, signDesc.DoubleTweak,
	)
	if privKey == nil {
		return nil, fmt.Errorf("mock signer does not have key")
	}

	return signWithKey(tx, signDesc, privKey)
}

// findKey searches through all stored private keys and returns one
// corresponding to the public key, after tweaking it with the given tweaks.
// Returns nil if none of the keys match.
func (m *MockSigner) findKey(needle *btcec.PublicKey, singleTweak []byte,
	doubleTweak *btcec.PrivateKey) *btcec.PrivateKey {

	for _, privkey := range m.Privkeys {
		// First check whether public key is directly derived from
		// private key.
		if privkey.PubKey().IsEqual(needle) {
			return privkey
		}

		// Otherwise check if public key is derived from tweaked
		// private key.
		switch {
		case singleTweak != nil:
			privkey = TweakPrivKey(privkey, singleTweak)
		case doubleTweak != nil:
			privkey = DeriveRevocationPrivKey(privkey, doubleTweak)
		default:
			continue
		}

		if privkey.PubKey().IsEqual(needle) {
			return privkey
		}
	}

	return nil
}
