package shachain

import (
	"crypto/sha256"
	"errors"
	"math/bits"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// maxHeight is the number of bits of an index.
	maxHeight uint8 = 48

	// rootIndex is the index of the seed itself.
	rootIndex index = 0
)

// startIndex is the index of the first secret handed out. Indexes count
// down from here as commitments advance.
var startIndex index = (1 << maxHeight) - 1

// ErrNotDerivable is returned when one index does not share the prefix of
// another, so its secret cannot be computed from the other's.
var ErrNotDerivable = errors.New("indexes aren't derivable")

// index identifies a secret within the chain. A secret at index i can produce
// the secret of every index that equals i in all bits above i's lowest set
// bit.
type index uint64

// newIndex maps a commitment height, counted upwards from zero, to the index
// of its secret.
func newIndex(height uint64) index {
	return startIndex - index(height)
}

// trailingZeros returns the number of low zero bits of the index, capped at
// maxHeight.
func (i index) trailingZeros() uint8 {
	zeros := bits.TrailingZeros64(uint64(i))
	if zeros > int(maxHeight) {
		return maxHeight
	}

	return uint8(zeros)
}

// flipPositions returns, from high to low, the bit positions that have to be
// flipped to walk from index 'from' to index 'to'. An error is returned if
// 'to' does not lie below 'from' in the tree.
func (from index) flipPositions(to index) ([]uint8, error) {
	if from == to {
		return nil, nil
	}

	// Every bit above the trailing zeros of 'from' is the shared prefix,
	// which 'to' must repeat exactly.
	zeros := from.trailingZeros()
	prefixMask := ^uint64(0) << zeros
	if uint64(from) != uint64(to)&prefixMask {
		return nil, ErrNotDerivable
	}

	var positions []uint8
	for position := int(zeros) - 1; position >= 0; position-- {
		if (uint64(to)>>position)&1 == 1 {
			positions = append(positions, uint8(position))
		}
	}

	return positions, nil
}

// element is a secret together with its index.
type element struct {
	index index
	hash  chainhash.Hash
}

// derive walks from this element down to the element at toIndex: for every
// set bit of the remaining suffix, the bit is flipped within the hash and the
// result is hashed again.
func (e *element) derive(toIndex index) (*element, error) {
	positions, err := e.index.flipPositions(toIndex)
	if err != nil {
		return nil, err
	}

	hash := e.hash
	for _, position := range positions {
		hash[position/8] ^= 1 << (position % 8)
		hash = sha256.Sum256(hash[:])
	}

	return &element{
		index: toIndex,
		hash:  hash,
	}, nil
}
