package keychain

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// HDKeyRing is an implementation of the SecretKeyRing interface backed by a
// BIP32 master key created from a seed. Every key lives at
// m/1017'/coinType'/keyFamily'/0/index.
type HDKeyRing struct {
	coinType uint32

	// familyRoots caches the external branch of every family we touched.
	mu          sync.Mutex
	master      *hdkeychain.ExtendedKey
	familyRoots map[KeyFamily]*hdkeychain.ExtendedKey
	nextIndex   map[KeyFamily]uint32
}

// A compile time check to ensure HDKeyRing implements the SecretKeyRing
// interface.
var _ SecretKeyRing = (*HDKeyRing)(nil)

// NewHDKeyRing creates a key ring for the given chain from a seed of between
// 16 and 64 bytes.
func NewHDKeyRing(seed []byte, net *chaincfg.Params) (*HDKeyRing, error) {
	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("unable to create master key: %w", err)
	}

	return &HDKeyRing{
		coinType:    net.HDCoinType,
		master:      master,
		familyRoots: make(map[KeyFamily]*hdkeychain.ExtendedKey),
		nextIndex:   make(map[KeyFamily]uint32),
	}, nil
}

// familyRoot returns the extended key at m/1017'/coinType'/keyFamily'/0.
//
// NOTE: The mutex MUST be held when calling this method.
func (r *HDKeyRing) familyRoot(family KeyFamily) (*hdkeychain.ExtendedKey,
	error) {

	if root, ok := r.familyRoots[family]; ok {
		return root, nil
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + BIP0043Purpose,
		hdkeychain.HardenedKeyStart + r.coinType,
		hdkeychain.HardenedKeyStart + uint32(family),
		0,
	}

	key := r.master
	for _, child := range path {
		var err error
		key, err = key.Derive(child)
		if err != nil {
			return nil, err
		}
	}

	r.familyRoots[family] = key

	return key, nil
}

// derive returns the extended key for the locator.
//
// NOTE: The mutex MUST be held when calling this method.
func (r *HDKeyRing) derive(keyLoc KeyLocator) (*hdkeychain.ExtendedKey,
	error) {

	root, err := r.familyRoot(keyLoc.Family)
	if err != nil {
		return nil, err
	}

	return root.Derive(keyLoc.Index)
}

// DeriveNextKey attempts to derive the *next* key within the key family
// specified.
//
// NOTE: This is part of the keychain.KeyRing interface.
func (r *HDKeyRing) DeriveNextKey(keyFam KeyFamily) (KeyDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keyLoc := KeyLocator{
		Family: keyFam,
		Index:  r.nextIndex[keyFam],
	}

	desc, err := r.deriveKey(keyLoc)
	if err != nil {
		return KeyDescriptor{}, err
	}
	r.nextIndex[keyFam]++

	return desc, nil
}

// DeriveKey attempts to derive an arbitrary key specified by the passed
// KeyLocator.
//
// NOTE: This is part of the keychain.KeyRing interface.
func (r *HDKeyRing) DeriveKey(keyLoc KeyLocator) (KeyDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.deriveKey(keyLoc)
}

// deriveKey derives the public key of the locator.
//
// NOTE: The mutex MUST be held when calling this method.
func (r *HDKeyRing) deriveKey(keyLoc KeyLocator) (KeyDescriptor, error) {
	key, err := r.derive(keyLoc)
	if err != nil {
		return KeyDescriptor{}, err
	}

	pubKey, err := key.ECPubKey()
	if err != nil {
		return KeyDescriptor{}, err
	}

	return KeyDescriptor{
		KeyLocator: keyLoc,
		PubKey:     pubKey,
	}, nil
}

// DerivePrivKey attempts to derive the private key that corresponds to the
// passed key descriptor.
//
// NOTE: This is part of the keychain.SecretKeyRing interface.
func (r *HDKeyRing) DerivePrivKey(keyDesc KeyDescriptor) (*btcec.PrivateKey,
	error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	// With only a public key at hand we scan the family for a match.
	if keyDesc.PubKey != nil && keyDesc.KeyLocator.Index == 0 {
		for i := 0; i < MaxKeyRangeScan; i++ {
			key, err := r.derive(KeyLocator{
				Family: keyDesc.Family,
				Index:  uint32(i),
			})
			if err != nil {
				return nil, err
			}

			privKey, err := key.ECPrivKey()
			if err != nil {
				return nil, err
			}

			if privKey.PubKey().IsEqual(keyDesc.PubKey) {
				return privKey, nil
			}
		}

		return nil, ErrCannotDerivePrivKey
	}

	key, err := r.derive(keyDesc.KeyLocator)
	if err != nil {
		return nil, err
	}

	return key.ECPrivKey()
}
