package shachain

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Producer is an interface which serves as an abstraction over the data
// structure responsible for the generation of per commitment secrets.
type Producer interface {
	// AtIndex produces the secret of the given commitment height.
	AtIndex(uint64) (*chainhash.Hash, error)

	// Encode writes a binary serialization of the producer to the passed
	// io.Writer.
	Encode(io.Writer) error
}

// RevocationProducer produces the per commitment secrets of one channel from
// a single 32 byte seed, as the BOLT 3 generate_from_seed function does.
// Secrets of later commitments can't be computed from earlier ones.
type RevocationProducer struct {
	root element
}

// A compile time check to ensure RevocationProducer implements the Producer
// interface.
var _ Producer = (*RevocationProducer)(nil)

// NewRevocationProducer creates a producer rooted at the given seed.
func NewRevocationProducer(seed chainhash.Hash) *RevocationProducer {
	return &RevocationProducer{
		root: element{
			index: rootIndex,
			hash:  seed,
		},
	}
}

// NewRevocationProducerFromBytes restores a producer from its serialized
// seed.
func NewRevocationProducerFromBytes(r io.Reader) (*RevocationProducer,
	error) {

	var seed chainhash.Hash
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return nil, err
	}

	return NewRevocationProducer(seed), nil
}

// AtIndex produces the secret of the commitment at the given height, the
// first commitment having height zero.
//
// NOTE: This is part of the Producer interface.
func (p *RevocationProducer) AtIndex(height uint64) (*chainhash.Hash, error) {
	e, err := p.root.derive(newIndex(height))
	if err != nil {
		return nil, err
	}

	return &e.hash, nil
}

// AtShaChainIndex produces the secret for a raw shachain index, which counts
// down from 2^48-1. Commitment numbers of this form are used by callers that
// track states from the top of the range.
func (p *RevocationProducer) AtShaChainIndex(i uint64) (*chainhash.Hash,
	error) {

	e, err := p.root.derive(index(i))
	if err != nil {
		return nil, err
	}

	return &e.hash, nil
}

// Encode writes the seed of the producer.
//
// NOTE: This is part of the Producer interface.
func (p *RevocationProducer) Encode(w io.Writer) error {
	_, err := w.Write(p.root.hash[:])
	return err
}
