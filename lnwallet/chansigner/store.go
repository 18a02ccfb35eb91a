package chansigner

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/kvdb"

	// The bolt driver registers itself with walletdb.
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

var (
	// enforcementStateBucket holds the counters of every channel, keyed
	// by funding outpoint.
	enforcementStateBucket = []byte("enforcement-state")

	// ErrStateNotFound is returned when no counters are stored for a
	// channel.
	ErrStateNotFound = errors.New("no enforcement state for channel")
)

// KVStateStore persists the enforcement counters of channels, so signer
// handles opened after a restart keep refusing what was refused before.
// Disabled operations are a runtime switch and are not stored.
type KVStateStore struct {
	db kvdb.Backend
}

// NewKVStateStore creates the state bucket if needed and returns a store on
// top of the database.
func NewKVStateStore(db kvdb.Backend) (*KVStateStore, error) {
	err := kvdb.Update(db, func(tx kvdb.RwTx) error {
		_, err := tx.CreateTopLevelBucket(enforcementStateBucket)
		return err
	}, func() {})
	if err != nil {
		return nil, fmt.Errorf("unable to create state bucket: %w", err)
	}

	return &KVStateStore{db: db}, nil
}

// OpenKVStateStore opens, or creates, a bolt database at dbPath and returns
// a store on top of it. Close releases the database.
func OpenKVStateStore(dbPath string) (*KVStateStore, error) {
	db, err := kvdb.Create(
		kvdb.BoltBackendName, dbPath, true, kvdb.DefaultDBTimeout,
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open state db: %w", err)
	}

	store, err := NewKVStateStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database.
func (s *KVStateStore) Close() error {
	return s.db.Close()
}

// channelKey serializes the funding outpoint: txid followed by the big
// endian output index.
func channelKey(chanPoint wire.OutPoint) []byte {
	var key [36]byte
	copy(key[:32], chanPoint.Hash[:])
	binary.BigEndian.PutUint32(key[32:], chanPoint.Index)

	return key[:]
}

// PutState stores the current counters of the channel.
func (s *KVStateStore) PutState(chanPoint wire.OutPoint,
	state *EnforcementState) error {

	counters := state.Counters()

	var b bytes.Buffer
	if err := counters.Encode(&b); err != nil {
		return err
	}

	return kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(enforcementStateBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		return bucket.Put(channelKey(chanPoint), b.Bytes())
	}, func() {})
}

// FetchState restores the state of the channel, or returns ErrStateNotFound.
func (s *KVStateStore) FetchState(chanPoint wire.OutPoint) (
	*EnforcementState, error) {

	var counters Counters
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(enforcementStateBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		value := bucket.Get(channelKey(chanPoint))
		if value == nil {
			return ErrStateNotFound
		}

		return counters.Decode(bytes.NewReader(value))
	}, func() {
		counters = Counters{}
	})
	if err != nil {
		return nil, err
	}

	return NewEnforcementStateFromCounters(counters), nil
}

// LoadOrCreateState restores the state of the channel, or stores and
// returns the state of a new channel if none is known.
func (s *KVStateStore) LoadOrCreateState(chanPoint wire.OutPoint) (
	*EnforcementState, error) {

	state, err := s.FetchState(chanPoint)
	switch {
	case err == nil:
		return state, nil

	case !errors.Is(err, ErrStateNotFound):
		return nil, err
	}

	log.Debugf("Creating enforcement state for channel %v", chanPoint)

	state = NewEnforcementState()
	if err := s.PutState(chanPoint, state); err != nil {
		return nil, err
	}

	return state, nil
}

// DeleteState removes the state of a closed channel.
func (s *KVStateStore) DeleteState(chanPoint wire.OutPoint) error {
	return kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(enforcementStateBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		return bucket.Delete(channelKey(chanPoint))
	}, func() {})
}
