package input

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/keychain"
)

// Signature is an interface for objects that can populate signatures during
// witness construction.
type Signature interface {
	// Serialize returns a DER-encoded ECDSA signature.
	Serialize() []byte

	// Verify return true if the ECDSA signature is valid for the passed
	// message digest under the provided public key.
	Verify([]byte, *btcec.PublicKey) bool
}

// Signer represents an abstract object capable of generating raw signatures
// given a valid SignDescriptor and transaction. This interface fully
// abstracts away signing paving the way for Signer implementations such as
// hardware wallets, hardware tokens, HSM's, or simply a regular wallet.
type Signer interface {
	// SignOutputRaw generates a signature for the passed transaction
	// according to the data within the passed SignDescriptor.
	//
	// NOTE: The resulting signature should be void of a sighash byte.
	SignOutputRaw(tx *wire.MsgTx, signDesc *SignDescriptor) (Signature,
		error)
}

// KeyRingSigner is a Signer backed by a SecretKeyRing. Keys are resolved from
// the descriptor's locator (or scanned for by public key), then tweaked
// according to the descriptor.
type KeyRingSigner struct {
	keyRing keychain.SecretKeyRing
}

// A compile time check to ensure KeyRingSigner implements the Signer
// interface.
var _ Signer = (*KeyRingSigner)(nil)

// NewKeyRingSigner creates a signer that derives its keys from the given key
// ring.
func NewKeyRingSigner(keyRing keychain.SecretKeyRing) *KeyRingSigner {
	return &KeyRingSigner{
		keyRing: keyRing,
	}
}

// SignOutputRaw generates a signature for the passed transaction according to
// the data within the passed SignDescriptor.
//
// NOTE: This is part of the input.Signer interface.
func (k *KeyRingSigner) SignOutputRaw(tx *wire.MsgTx,
	signDesc *SignDescriptor) (Signature, error) {

	privKey, err := k.keyRing.DerivePrivKey(signDesc.KeyDesc)
	if err != nil {
		return nil, fmt.Errorf("unable to derive key %v: %w",
			signDesc.KeyDesc.KeyLocator, err)
	}

	privKey, err = tweakPrivKey(privKey, signDesc)
	if err != nil {
		return nil, err
	}

	return signWithKey(tx, signDesc, privKey)
}

// tweakPrivKey applies the single or double tweak of the descriptor to the
// base private key.
func tweakPrivKey(privKey *btcec.PrivateKey,
	signDesc *SignDescriptor) (*btcec.PrivateKey, error) {

	switch {
	case signDesc.SingleTweak != nil && signDesc.DoubleTweak != nil:
		return nil, ErrTweakOverdose

	case signDesc.SingleTweak != nil:
		return TweakPrivKey(privKey, signDesc.SingleTweak), nil

	case signDesc.DoubleTweak != nil:
		return DeriveRevocationPrivKey(privKey, signDesc.DoubleTweak), nil
	}

	return privKey, nil
}

// signWithKey produces the segwit v0 signature of the descriptor's input
// using an already tweaked private key.
func signWithKey(tx *wire.MsgTx, signDesc *SignDescriptor,
	privKey *btcec.PrivateKey) (Signature, error) {

	sigHashes := signDesc.SigHashes
	if sigHashes == nil {
		fetcher := signDesc.PrevOutputFetcher
		if fetcher == nil {
			fetcher = txscript.NewCannedPrevOutputFetcher(
				signDesc.Output.PkScript, signDesc.Output.Value,
			)
		}
		sigHashes = txscript.NewTxSigHashes(tx, fetcher)
	}

	sig, err := txscript.RawTxInWitnessSignature(
		tx, sigHashes, signDesc.InputIndex, signDesc.Output.Value,
		signDesc.WitnessScript, signDesc.HashType, privKey,
	)
	if err != nil {
		return nil, err
	}

	// Chop off the sighash flag at the end of the signature.
	return ecdsa.ParseDERSignature(sig[:len(sig)-1])
}
