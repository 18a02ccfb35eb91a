package chainfee

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lncommit/lntypes"
)

const (
	// FeePerKwFloor is the lowest fee rate in sat/kw that we should use for
	// estimating transaction fees before signing.
	FeePerKwFloor SatPerKWeight = 253

	// AbsoluteFeePerKwFloor is the lowest fee rate in sat/kw of a
	// transaction that we should ever _create_. This is the equivalent
	// of 1 sat/byte in sat/kw.
	AbsoluteFeePerKwFloor SatPerKWeight = 250

	// DustBufferFeeRateIncrease is the absolute amount, in sat/kw, by which
	// the dust buffer fee rate exceeds the current fee rate at minimum.
	// It corresponds to 10 sat/vbyte.
	DustBufferFeeRateIncrease SatPerKWeight = 2530

	// dustBufferMultiplierNum and dustBufferMultiplierDen express the
	// relative 25% increase of the dust buffer fee rate.
	dustBufferMultiplierNum = 1250
	dustBufferMultiplierDen = 1000
)

// SatPerKVByte represents a fee rate in sat/kb.
type SatPerKVByte btcutil.Amount

// FeeForVSize calculates the fee resulting from this fee rate and the given
// vsize in vbytes.
func (s SatPerKVByte) FeeForVSize(vbytes lntypes.VByte) btcutil.Amount {
	return btcutil.Amount(s) * btcutil.Amount(vbytes) / 1000
}

// FeePerKWeight converts the current fee rate from sat/kb to sat/kw.
func (s SatPerKVByte) FeePerKWeight() SatPerKWeight {
	return SatPerKWeight(s / 4)
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return fmt.Sprintf("%v sat/kvb", int64(s))
}

// SatPerKWeight represents a fee rate in sat/kw. This is the fee rate unit of
// the commitment protocol: fee per 1000 weight units.
type SatPerKWeight btcutil.Amount

// FeeForWeight calculates the fee resulting from this fee rate and the given
// weight in weight units (wu). The result is rounded down, as the commitment
// protocol mandates.
func (s SatPerKWeight) FeeForWeight(wu lntypes.WeightUnit) btcutil.Amount {
	// The resulting fee is rounded down, as specified in BOLT#03.
	return btcutil.Amount(s) * btcutil.Amount(wu) / 1000
}

// FeeForVByte calculates the fee resulting from this fee rate and the given
// size in vbytes (vb).
func (s SatPerKWeight) FeeForVByte(vb lntypes.VByte) btcutil.Amount {
	return s.FeePerKVByte().FeeForVSize(vb)
}

// FeePerKVByte converts the current fee rate from sat/kw to sat/kb.
func (s SatPerKWeight) FeePerKVByte() SatPerKVByte {
	return SatPerKVByte(s * 4)
}

// String returns a human-readable string of the fee rate.
func (s SatPerKWeight) String() string {
	return fmt.Sprintf("%v sat/kw", int64(s))
}

// DustBufferFeeRate returns the inflated fee rate used to judge dust exposure:
// the larger of the fee rate raised by DustBufferFeeRateIncrease and the fee
// rate raised by 25%. The computation saturates instead of wrapping.
func DustBufferFeeRate(feeRate SatPerKWeight) SatPerKWeight {
	plusFloor := SatPerKWeight(math.MaxInt64)
	if feeRate <= math.MaxInt64-DustBufferFeeRateIncrease {
		plusFloor = feeRate + DustBufferFeeRateIncrease
	}

	plusQuarter := SatPerKWeight(math.MaxInt64)
	if feeRate <= math.MaxInt64/dustBufferMultiplierNum {
		plusQuarter = feeRate * dustBufferMultiplierNum /
			dustBufferMultiplierDen
	}

	if plusFloor > plusQuarter {
		return plusFloor
	}

	return plusQuarter
}
