package lnwallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
)

// HtlcTimeoutWeight returns the weight of the second-level timeout
// transaction of the channel type.
func HtlcTimeoutWeight(chanType lnwire.ChannelType) lntypes.WeightUnit {
	if chanType.HasAnchorsZeroFeeHtlcTx() {
		return input.HtlcTimeoutWeightConfirmed
	}

	return input.HtlcTimeoutWeight
}

// HtlcSuccessWeight returns the weight of the second-level success
// transaction of the channel type.
func HtlcSuccessWeight(chanType lnwire.ChannelType) lntypes.WeightUnit {
	if chanType.HasAnchorsZeroFeeHtlcTx() {
		return input.HtlcSuccessWeightConfirmed
	}

	return input.HtlcSuccessWeight
}

// HtlcTimeoutFee returns the fee in satoshis required for an HTLC timeout
// transaction based on the current fee rate. Channels without pre-funded
// second-level fees pay nothing here.
func HtlcTimeoutFee(chanType lnwire.ChannelType,
	feePerKw chainfee.SatPerKWeight) btcutil.Amount {

	if chanType.HasZeroFeeHtlcTx() {
		return 0
	}

	return feePerKw.FeeForWeight(HtlcTimeoutWeight(chanType))
}

// HtlcSuccessFee returns the fee in satoshis required for an HTLC success
// transaction based on the current fee rate.
func HtlcSuccessFee(chanType lnwire.ChannelType,
	feePerKw chainfee.SatPerKWeight) btcutil.Amount {

	if chanType.HasZeroFeeHtlcTx() {
		return 0
	}

	return feePerKw.FeeForWeight(HtlcSuccessWeight(chanType))
}

// htlcSecondStageFee returns the fee of the transaction the broadcaster uses
// to resolve an HTLC output: a timeout transaction for HTLCs it offered, a
// success transaction for HTLCs it received.
func htlcSecondStageFee(chanType lnwire.ChannelType, offered bool,
	feePerKw chainfee.SatPerKWeight) btcutil.Amount {

	if offered {
		return HtlcTimeoutFee(chanType, feePerKw)
	}

	return HtlcSuccessFee(chanType, feePerKw)
}

// HtlcIsDust determines if an HTLC output is dust or not depending on whether
// the broadcaster of the commitment offered it. An HTLC is dust if its value,
// minus the fee of the second-level transaction that resolves it, would be
// below the broadcaster's dust limit. The amount is floored to full satoshis
// before the comparison.
func HtlcIsDust(chanType lnwire.ChannelType, offered bool,
	feePerKw chainfee.SatPerKWeight, htlcAmt lnwire.MilliSatoshi,
	dustLimit btcutil.Amount) bool {

	htlcFee := htlcSecondStageFee(chanType, offered, feePerKw)

	return htlcAmt.ToSatoshis() < dustLimit+htlcFee
}
