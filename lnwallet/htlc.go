package lnwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// HTLC is a conditional payment committed to in a commitment transaction.
type HTLC struct {
	// Offered is true if the broadcaster of the commitment the HTLC sits
	// in offered it to the countersignatory.
	Offered bool

	// Amount is the value of the HTLC.
	Amount lnwire.MilliSatoshi

	// RefundTimeout is the absolute block height after which the offerer
	// may reclaim the HTLC.
	RefundTimeout uint32

	// RHash is the payment hash the HTLC is locked to.
	RHash lntypes.Hash

	// OutputIndex is the index of the HTLC output within the commitment
	// transaction. It is None for HTLCs that were trimmed as dust.
	OutputIndex fn.Option[uint32]
}

// String returns a short human readable description of the HTLC.
func (h *HTLC) String() string {
	dir := "received"
	if h.Offered {
		dir = "offered"
	}

	return fmt.Sprintf("%v htlc amt=%v cltv=%v hash=%v", dir, h.Amount,
		h.RefundTimeout, h.RHash)
}

// IsDust returns true if the HTLC would be trimmed from the commitment it is
// part of at the given fee rate and broadcaster dust limit.
func (h *HTLC) IsDust(chanType lnwire.ChannelType,
	feePerKw chainfee.SatPerKWeight, dustLimit btcutil.Amount) bool {

	return HtlcIsDust(chanType, h.Offered, feePerKw, h.Amount, dustLimit)
}

// HTLCAmountDirection is the part of a pending HTLC the fee and balance
// accounting needs: its value and who offered it.
type HTLCAmountDirection struct {
	// OutboundFromHolder is true if we offered the HTLC.
	OutboundFromHolder bool

	// Amount is the value of the HTLC.
	Amount lnwire.MilliSatoshi
}

// offered returns true if the broadcaster of the commitment offered the HTLC.
// The local flag is true for our own commitment.
func (h HTLCAmountDirection) offered(local bool) bool {
	return h.OutboundFromHolder == local
}

// IsDust returns true if the HTLC would be trimmed from the commitment that
// the local flag designates.
func (h HTLCAmountDirection) IsDust(local bool, feePerKw chainfee.SatPerKWeight,
	broadcasterDustLimit btcutil.Amount, chanType lnwire.ChannelType) bool {

	return HtlcIsDust(
		chanType, h.offered(local), feePerKw, h.Amount,
		broadcasterDustLimit,
	)
}
