package lnwallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

var (
	// ErrBalanceUnderflow is returned when the pending HTLCs of a party add
	// up to more than its balance. The channel state machine should have
	// refused the update that led there.
	ErrBalanceUnderflow = errors.New("pending htlcs exceed balance")

	// ErrSignerUnavailable is returned when a witness cannot be built
	// because the signer refused to sign.
	ErrSignerUnavailable = errors.New("signer unavailable")

	// ErrUnknownClaimType is returned when a claim of an unsupported kind
	// is handed to the sweeper.
	ErrUnknownClaimType = errors.New("unknown claim type")

	// ErrCommitmentExceedsCapacity is returned when the outputs of a built
	// commitment add up to more than the channel value.
	ErrCommitmentExceedsCapacity = errors.New("commitment outputs exceed " +
		"channel capacity")
)

// ErrBelowChanReserve is returned when a balance would fall below the channel
// reserve its owner must keep.
func ErrBelowChanReserve(balance, reserve btcutil.Amount) error {
	return fmt.Errorf("balance %v below channel reserve %v", balance,
		reserve)
}
