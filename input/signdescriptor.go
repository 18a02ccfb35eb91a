package input

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/keychain"
)

var (
	// ErrTweakOverdose signals a SignDescriptor is invalid because both of
	// its SingleTweak and DoubleTweak are non-nil.
	ErrTweakOverdose = errors.New("sign descriptor should only have one tweak")
)

// SignDescriptor houses the necessary information required to successfully
// sign a given segwit output. This struct is used by the Signer interface in
// order to gain access to critical data needed to generate a valid signature.
type SignDescriptor struct {
	// KeyDesc is a descriptor that precisely describes *which* key to use
	// for signing. This may provide the raw public key directly, or
	// require the Signer to re-derive the key according to the populated
	// derivation path.
	KeyDesc keychain.KeyDescriptor

	// SingleTweak is a scalar value that will be added to the private key
	// corresponding to the above public key to obtain the private key to
	// be used to sign this input. This value is typically derived via the
	// following computation:
	//
	//  * derivedKey = privkey + sha256(perCommitmentPoint || pubKey) mod N
	//
	// NOTE: If this value is nil, then the input can be signed using only
	// the above public key. Either a SingleTweak should be set or a
	// DoubleTweak, not both.
	SingleTweak []byte

	// DoubleTweak is a private key that will be used in combination with
	// its corresponding private key to derive the private key that is to
	// be used to sign the target input. Within the Lightning protocol,
	// this value is typically the commitment secret from a previously
	// revoked commitment transaction.
	//
	//  * k = (privKey*sha256(pubKey || tweakPub) +
	//        tweakPriv*sha256(tweakPub || pubKey)) mod N
	//
	// NOTE: If this value is nil, then the input can be signed using only
	// the above public key. Either a SingleTweak should be set or a
	// DoubleTweak, not both.
	DoubleTweak *btcec.PrivateKey

	// WitnessScript is the full script required to properly redeem the
	// output. This field should be set to the full script if a p2wsh
	// output is being signed. For p2wkh it should be set to the hashed
	// script (PkScript).
	WitnessScript []byte

	// Output is the target output which should be signed. The PkScript and
	// Value fields within the output should be properly populated,
	// otherwise an invalid signature may be generated.
	Output *wire.TxOut

	// HashType is the target sighash type that should be used when
	// generating the final sighash, and signature.
	HashType txscript.SigHashType

	// SigHashes is the pre-computed sighash midstate to be used when
	// generating the final sighash for signing.
	SigHashes *txscript.TxSigHashes

	// PrevOutputFetcher is an interface that can return the output
	// information on all UTXOs that are being spent in this transaction.
	PrevOutputFetcher txscript.PrevOutputFetcher

	// InputIndex is the target input within the transaction that should be
	// signed.
	InputIndex int
}

// NewSignDescriptor builds a descriptor for signing the single input spending
// the given P2WSH output, computing the sighash midstate for the spending
// transaction.
func NewSignDescriptor(keyDesc keychain.KeyDescriptor, witnessScript []byte,
	output *wire.TxOut, hashType txscript.SigHashType, spendTx *wire.MsgTx,
	inputIndex int) *SignDescriptor {

	fetcher := txscript.NewCannedPrevOutputFetcher(
		output.PkScript, output.Value,
	)

	return &SignDescriptor{
		KeyDesc:           keyDesc,
		WitnessScript:     witnessScript,
		Output:            output,
		HashType:          hashType,
		SigHashes:         txscript.NewTxSigHashes(spendTx, fetcher),
		PrevOutputFetcher: fetcher,
		InputIndex:        inputIndex,
	}
}

// tweakedPubKey returns the public key the descriptor actually signs for,
// applying whichever tweak is set.
func (s *SignDescriptor) tweakedPubKey() (*btcec.PublicKey, error) {
	pubKey := s.KeyDesc.PubKey
	switch {
	case s.SingleTweak != nil && s.DoubleTweak != nil:
		return nil, ErrTweakOverdose

	case s.SingleTweak != nil:
		return TweakPubKeyWithTweak(pubKey, s.SingleTweak), nil

	case s.DoubleTweak != nil:
		return DeriveRevocationPubkey(pubKey, s.DoubleTweak.PubKey()), nil
	}

	return pubKey, nil
}
