package lnwallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
)

const (
	// AnchorOutputValue is the value of each of the two keyed anchor
	// outputs of an anchor channel.
	AnchorOutputValue btcutil.Amount = 330

	// P2AMaxValue is the largest value of the shared pay-to-anchor output
	// of a zero-fee commitment, the dust threshold of that output type.
	P2AMaxValue btcutil.Amount = 240
)

// CommitWeight returns the weight of a commitment of the channel type without
// any HTLC outputs.
func CommitWeight(chanType lnwire.ChannelType) lntypes.WeightUnit {
	if chanType.HasAnchorsZeroFeeHtlcTx() {
		return input.AnchorCommitWeight
	}

	return input.CommitWeight
}

// CommitFee returns the fee the funder pays for a commitment carrying the
// given number of non-dust HTLC outputs. Zero-fee commitments pay nothing,
// the fee is brought by a child spending the shared anchor.
func CommitFee(feePerKw chainfee.SatPerKWeight, numHTLCs int,
	chanType lnwire.ChannelType) btcutil.Amount {

	if chanType.HasZeroFeeCommitments() {
		return 0
	}

	weight := CommitWeight(chanType) +
		input.HTLCWeight*lntypes.WeightUnit(numHTLCs)

	return feePerKw.FeeForWeight(weight)
}

// HtlcTxFees returns the combined fee of the second-level transactions of
// the non-dust HTLCs of a commitment. Accepted HTLCs are resolved with a
// success transaction, offered ones with a timeout transaction, both from the
// broadcaster's point of view.
func HtlcTxFees(feePerKw chainfee.SatPerKWeight, numAccepted, numOffered int,
	chanType lnwire.ChannelType) btcutil.Amount {

	successFee := HtlcSuccessFee(chanType, feePerKw)
	timeoutFee := HtlcTimeoutFee(chanType, feePerKw)

	return btcutil.Amount(numAccepted)*successFee +
		btcutil.Amount(numOffered)*timeoutFee
}

// commitAndHtlcTxFees is the fee of a commitment plus the fees of the
// second-level transactions of all its HTLCs.
func commitAndHtlcTxFees(feePerKw chainfee.SatPerKWeight, numAccepted,
	numOffered int, chanType lnwire.ChannelType) btcutil.Amount {

	return CommitFee(feePerKw, numAccepted+numOffered, chanType) +
		HtlcTxFees(feePerKw, numAccepted, numOffered, chanType)
}

// anchorsValue returns the value the funder sets aside for keyed anchor
// outputs.
func anchorsValue(chanType lnwire.ChannelType) btcutil.Amount {
	if chanType.HasAnchorsZeroFeeHtlcTx() {
		return 2 * AnchorOutputValue
	}

	return 0
}
