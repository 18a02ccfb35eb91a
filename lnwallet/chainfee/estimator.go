package chainfee

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const (
	// minBlockTarget is the lowest number of blocks confirmations that a
	// SparseConfEstimator will answer for. Requesting an estimate for less
	// than this will result in an error.
	minBlockTarget uint32 = 2
)

// Estimator provides the ability to estimate on-chain transaction fees for
// various desired confirmation times (measured by number of blocks).
type Estimator interface {
	// EstimateFeePerKW takes in a target for the number of blocks until an
	// initial confirmation and returns the estimated fee expressed in
	// sat/kw.
	EstimateFeePerKW(numBlocks uint32) (SatPerKWeight, error)

	// RelayFeePerKW returns the minimum fee rate required for transactions
	// to be relayed.
	RelayFeePerKW() SatPerKWeight
}

// StaticEstimator will return a static value for all fee calculation requests.
type StaticEstimator struct {
	// feePerKW is the static fee rate in satoshis-per-kw that will be
	// returned by this fee estimator.
	feePerKW SatPerKWeight

	// relayFee is the minimum fee rate required for transactions to be
	// relayed.
	relayFee SatPerKWeight
}

// NewStaticEstimator returns a new static fee estimator instance.
func NewStaticEstimator(feePerKW, relayFee SatPerKWeight) *StaticEstimator {
	return &StaticEstimator{
		feePerKW: feePerKW,
		relayFee: relayFee,
	}
}

// EstimateFeePerKW will return a static value for fee calculations.
//
// NOTE: This method is part of the Estimator interface.
func (e StaticEstimator) EstimateFeePerKW(uint32) (SatPerKWeight, error) {
	return e.feePerKW, nil
}

// RelayFeePerKW returns the minimum fee rate required for transactions to be
// relayed.
//
// NOTE: This method is part of the Estimator interface.
func (e StaticEstimator) RelayFeePerKW() SatPerKWeight {
	return e.relayFee
}

// A compile-time assertion to ensure that StaticEstimator implements the
// Estimator interface.
var _ Estimator = (*StaticEstimator)(nil)

// SparseConfEstimator answers fee requests from a sparse table of block
// targets, such as the one served by fee estimation APIs. Targets missing from
// the table are extrapolated from the next lowest target that is present.
type SparseConfEstimator struct {
	relayFee SatPerKWeight

	feesMtx          sync.Mutex
	feeByBlockTarget map[uint32]SatPerKWeight
}

// ParseSparseConfFees reads a JSON document of the format
// `{"fee_by_block_target": {...}}` where the values map block targets to fee
// estimates in sat per kilovbyte.
func ParseSparseConfFees(r io.Reader,
	relayFee SatPerKWeight) (*SparseConfEstimator, error) {

	type jsonResp struct {
		FeeByBlockTarget map[uint32]uint32 `json:"fee_by_block_target"`
	}

	resp := jsonResp{
		FeeByBlockTarget: make(map[uint32]uint32),
	}
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("unable to decode fee table: %w", err)
	}

	fees := make(map[uint32]SatPerKWeight, len(resp.FeeByBlockTarget))
	for target, feePerKVB := range resp.FeeByBlockTarget {
		feePerKW := SatPerKVByte(feePerKVB).FeePerKWeight()
		if feePerKW < FeePerKwFloor {
			feePerKW = FeePerKwFloor
		}
		fees[target] = feePerKW
	}

	return &SparseConfEstimator{
		relayFee:         relayFee,
		feeByBlockTarget: fees,
	}, nil
}

// EstimateFeePerKW returns the fee of the requested target, or of the closest
// lower target that is known.
//
// NOTE: This method is part of the Estimator interface.
func (s *SparseConfEstimator) EstimateFeePerKW(
	numBlocks uint32) (SatPerKWeight, error) {

	s.feesMtx.Lock()
	defer s.feesMtx.Unlock()

	for target := numBlocks; target >= minBlockTarget; target-- {
		fee, ok := s.feeByBlockTarget[target]
		if !ok {
			continue
		}

		if _, ok := s.feeByBlockTarget[numBlocks]; !ok {
			s.feeByBlockTarget[numBlocks] = fee
		}

		return fee, nil
	}

	return 0, fmt.Errorf("fee table does not include a fee estimation "+
		"for block target of %v", numBlocks)
}

// RelayFeePerKW returns the minimum fee rate required for transactions to be
// relayed.
//
// NOTE: This method is part of the Estimator interface.
func (s *SparseConfEstimator) RelayFeePerKW() SatPerKWeight {
	return s.relayFee
}

// A compile-time assertion to ensure that SparseConfEstimator implements the
// Estimator interface.
var _ Estimator = (*SparseConfEstimator)(nil)
