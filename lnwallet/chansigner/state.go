package chansigner

import (
	"fmt"
	"io"
	"sync"

	"github.com/lightningnetwork/lnd/tlv"
)

// InitialRevokedCommitmentNumber is the value every counter of a new channel
// starts at. It lies one above the signer index of the first commitment, so
// that commitment is the next one in every sequence.
const InitialRevokedCommitmentNumber uint64 = 1 << 48

const (
	lastCounterpartyCommitmentType        tlv.Type = 0
	lastCounterpartyRevokedCommitmentType tlv.Type = 2
	lastHolderRevokedCommitmentType       tlv.Type = 4
	lastHolderCommitmentType              tlv.Type = 6
)

// Counters are the positions of a channel in its four commitment sequences.
// Like the signer indexes they count down, each moves by at most one step at
// a time.
type Counters struct {
	// LastCounterpartyCommitment is the last counterparty commitment we
	// signed.
	LastCounterpartyCommitment uint64

	// LastCounterpartyRevokedCommitment is the last counterparty
	// commitment the counterparty revoked.
	LastCounterpartyRevokedCommitment uint64

	// LastHolderRevokedCommitment is the last of our commitments we
	// revoked.
	LastHolderRevokedCommitment uint64

	// LastHolderCommitment is the last of our commitments we validated.
	LastHolderCommitment uint64
}

// NewCounters returns the counters of a new channel.
func NewCounters() Counters {
	return Counters{
		LastCounterpartyCommitment:        InitialRevokedCommitmentNumber,
		LastCounterpartyRevokedCommitment: InitialRevokedCommitmentNumber,
		LastHolderRevokedCommitment:       InitialRevokedCommitmentNumber,
		LastHolderCommitment:              InitialRevokedCommitmentNumber,
	}
}

// currentOrNext returns true if idx is the last index of a sequence or the
// one following it.
func currentOrNext(idx, last uint64) bool {
	return idx == last || idx+1 == last
}

// releaseSecret checks and records the revocation of our commitment idx. We
// may only revoke in order, and never the last commitment we validated.
func (c *Counters) releaseSecret(idx uint64) error {
	if !currentOrNext(idx, c.LastHolderRevokedCommitment) {
		return fmt.Errorf("can only revoke the current or next "+
			"unrevoked commitment: trying %v, last revoked %v", idx,
			c.LastHolderRevokedCommitment)
	}
	if idx <= c.LastHolderCommitment {
		return fmt.Errorf("cannot revoke the last holder commitment: "+
			"trying %v, last validated %v", idx,
			c.LastHolderCommitment)
	}

	c.LastHolderRevokedCommitment = idx

	return nil
}

// validateHolderCommitment checks and records the validation of our
// commitment idx.
func (c *Counters) validateHolderCommitment(idx uint64) error {
	if !currentOrNext(idx, c.LastHolderCommitment) {
		return fmt.Errorf("expected to validate the current or next "+
			"holder commitment: trying %v, current %v", idx,
			c.LastHolderCommitment)
	}

	c.LastHolderCommitment = idx

	return nil
}

// signHolder checks that our commitment idx is one of the two that are not
// revoked yet.
func (c *Counters) signHolder(idx uint64) error {
	revoked := c.LastHolderRevokedCommitment
	if idx+1 != revoked && idx+2 != revoked {
		return fmt.Errorf("can only sign the next two unrevoked "+
			"commitments: revoked %v, requested %v", revoked, idx)
	}

	return nil
}

// signCounterpartyCommitment checks and records the signature of the
// counterparty commitment idx. The counterparty may hold at most two
// unrevoked commitments: the previous one and this one.
func (c *Counters) signCounterpartyCommitment(idx uint64) error {
	last := c.LastCounterpartyCommitment
	if !currentOrNext(idx, last) {
		return fmt.Errorf("counterparty commitment %v does not "+
			"follow %v", idx, last)
	}
	if idx+2 < c.LastCounterpartyRevokedCommitment {
		return fmt.Errorf("cannot sign a commitment if second to "+
			"last wasn't revoked: signing %v, revoked %v", idx,
			c.LastCounterpartyRevokedCommitment)
	}

	c.LastCounterpartyCommitment = min(last, idx)

	return nil
}

// validateCounterpartyRevocation checks and records the revocation of the
// counterparty commitment idx.
func (c *Counters) validateCounterpartyRevocation(idx uint64) error {
	if !currentOrNext(idx, c.LastCounterpartyRevokedCommitment) {
		return fmt.Errorf("expected to validate the current or next "+
			"counterparty revocation: trying %v, current %v", idx,
			c.LastCounterpartyRevokedCommitment)
	}

	c.LastCounterpartyRevokedCommitment = idx

	return nil
}

func (c *Counters) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(
			lastCounterpartyCommitmentType,
			&c.LastCounterpartyCommitment,
		),
		tlv.MakePrimitiveRecord(
			lastCounterpartyRevokedCommitmentType,
			&c.LastCounterpartyRevokedCommitment,
		),
		tlv.MakePrimitiveRecord(
			lastHolderRevokedCommitmentType,
			&c.LastHolderRevokedCommitment,
		),
		tlv.MakePrimitiveRecord(
			lastHolderCommitmentType, &c.LastHolderCommitment,
		),
	}
}

// Encode writes the counters as a TLV stream.
func (c *Counters) Encode(w io.Writer) error {
	stream, err := tlv.NewStream(c.records()...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// Decode reads counters written by Encode.
func (c *Counters) Decode(r io.Reader) error {
	stream, err := tlv.NewStream(c.records()...)
	if err != nil {
		return err
	}

	return stream.Decode(r)
}

// EnforcementState is the policy state of one channel. Every signer handle of
// the channel shares the same state, all reads and updates of the counters
// happen under its mutex.
type EnforcementState struct {
	mu          sync.Mutex
	counters    Counters
	disabledOps map[SignerOp]struct{}
}

// NewEnforcementState returns the state of a new channel.
func NewEnforcementState() *EnforcementState {
	return NewEnforcementStateFromCounters(NewCounters())
}

// NewEnforcementStateFromCounters restores the state of a channel from its
// counters. No operation is disabled.
func NewEnforcementStateFromCounters(counters Counters) *EnforcementState {
	return &EnforcementState{
		counters:    counters,
		disabledOps: make(map[SignerOp]struct{}),
	}
}

// Counters returns a snapshot of the counters.
func (s *EnforcementState) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counters
}

// update applies f to a copy of the counters and stores the result if f
// succeeds.
func (s *EnforcementState) update(f func(c *Counters) error) (Counters,
	error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.counters
	if err := f(&next); err != nil {
		return s.counters, err
	}
	s.counters = next

	return next, nil
}

// DisableOp makes the operation fail with ErrSignerOpDisabled.
func (s *EnforcementState) DisableOp(op SignerOp) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disabledOps[op] = struct{}{}
}

// EnableOp reverts DisableOp.
func (s *EnforcementState) EnableOp(op SignerOp) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.disabledOps, op)
}

// IsDisabled returns true if the operation was disabled.
func (s *EnforcementState) IsDisabled(op SignerOp) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.disabledOps[op]

	return ok
}
