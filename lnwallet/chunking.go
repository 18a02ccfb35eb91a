package lnwallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
)

var (
	// ErrBatchRequiresZeroFeeHtlcTx is returned when HTLC claims of a
	// channel whose second-level transactions carry their own fee are
	// batched.
	ErrBatchRequiresZeroFeeHtlcTx = errors.New("only zero-fee htlc " +
		"transactions can be batched")

	// ErrInsufficientWalletInput is returned when the wallet input of a
	// batch does not cover its fee and a non-dust change output.
	ErrInsufficientWalletInput = errors.New("wallet input too small to " +
		"pay for htlc claim batch")

	// ErrBatchTooHeavy is returned when a claim batch exceeds the weight
	// limit of its transaction version.
	ErrBatchTooHeavy = errors.New("htlc claim batch exceeds weight limit")
)

// WalletInput is a confirmed wallet output paying to a P2WKH script, used to
// bring the fee of a batch of zero-fee HTLC claims.
type WalletInput struct {
	// OutPoint is the wallet output.
	OutPoint wire.OutPoint

	// Value is the value of the wallet output.
	Value btcutil.Amount

	// PkScript is the P2WKH script of the wallet output.
	PkScript []byte
}

// batchBaseWeight returns the estimator of a claim batch holding only the
// wallet input and the change output.
func batchBaseWeight() input.TxWeightEstimator {
	var estimator input.TxWeightEstimator
	estimator.AddP2WKHInput()
	estimator.AddP2WKHOutput()

	return estimator
}

// addClaimWeight adds one second-level HTLC input and its output.
func addClaimWeight(estimator *input.TxWeightEstimator,
	chanType lnwire.ChannelType, desc *HTLCDescriptor) {

	estimator.AddWitnessInput(int(HolderHtlcTransactionWitnessWeight(
		chanType, desc.HTLC.Offered,
	)))
	estimator.AddP2WSHOutput()
}

// ChunkHtlcClaims splits the second-level claims of our commitment's HTLCs
// into batches that each fit in a transaction of at most maxWeight, counting
// the wallet input and change output every batch carries. The claims keep
// their order.
func ChunkHtlcClaims(chanType lnwire.ChannelType, descs []*HTLCDescriptor,
	maxWeight lntypes.WeightUnit) [][]*HTLCDescriptor {

	var (
		chunks    [][]*HTLCDescriptor
		current   []*HTLCDescriptor
		estimator = batchBaseWeight()
	)
	for _, desc := range descs {
		next := estimator
		addClaimWeight(&next, chanType, desc)

		if next.Weight() > maxWeight && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil

			next = batchBaseWeight()
			addClaimWeight(&next, chanType, desc)
		}

		current = append(current, desc)
		estimator = next
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	walletLog.Debugf("Split %v htlc claims into %v batches", len(descs),
		len(chunks))

	return chunks
}

// maxClaimWeight returns the weight limit of a claim batch of the channel
// type. Version 3 transactions are limited by the TRUC policy.
func maxClaimWeight(chanType lnwire.ChannelType) lntypes.WeightUnit {
	if CommitTxVersion(chanType) == 3 {
		return input.TrucMaxWeight
	}

	return lntypes.WeightUnit(400_000)
}

// ChunkHtlcClaimsForChannel splits the claims using the weight limit of the
// channel type.
func ChunkHtlcClaimsForChannel(chanType lnwire.ChannelType,
	descs []*HTLCDescriptor) [][]*HTLCDescriptor {

	return ChunkHtlcClaims(chanType, descs, maxClaimWeight(chanType))
}

// BuildHtlcClaimBatch aggregates the second-level transactions of several
// HTLCs of our commitment into one transaction. Input i spends the HTLC of
// descs[i] and output i is its second-level output, as the counterparty's
// SINGLE|ANYONECANPAY signatures require. A wallet input and a change output
// are appended to pay the fee at the given rate.
func BuildHtlcClaimBatch(params *DirectedChannelTransactionParameters,
	descs []*HTLCDescriptor, wallet *WalletInput, changeScript []byte,
	feeRate chainfee.SatPerKWeight) (*wire.MsgTx, error) {

	chanType := params.ChannelType()
	if !chanType.HasZeroFeeHtlcTx() {
		return nil, ErrBatchRequiresZeroFeeHtlcTx
	}

	batchTx := wire.NewMsgTx(CommitTxVersion(chanType))
	estimator := batchBaseWeight()
	for _, desc := range descs {
		htlcTx, err := desc.UnsignedTx(params)
		if err != nil {
			return nil, err
		}

		batchTx.AddTxIn(htlcTx.TxIn[0])
		batchTx.AddTxOut(htlcTx.TxOut[0])
		batchTx.LockTime = max(batchTx.LockTime, htlcTx.LockTime)

		addClaimWeight(&estimator, chanType, desc)
	}

	weight := estimator.Weight()
	if weight > maxClaimWeight(chanType) {
		return nil, fmt.Errorf("%w: %v", ErrBatchTooHeavy, weight)
	}

	fee := feeRate.FeeForWeight(weight)
	change := wallet.Value - fee
	if change < DustLimitForSize(input.P2WKHSize) {
		return nil, fmt.Errorf("%w: value %v, fee %v",
			ErrInsufficientWalletInput, wallet.Value, fee)
	}

	batchTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wallet.OutPoint,
		Sequence:         wire.MaxTxInSequenceNum - 1,
	})
	batchTx.AddTxOut(&wire.TxOut{
		Value:    int64(change),
		PkScript: changeScript,
	})

	return batchTx, nil
}

// SignHtlcClaimBatch signs every HTLC input of a batch built by
// BuildHtlcClaimBatch. The wallet input is left to the wallet.
func SignHtlcClaimBatch(signer ChannelSigner, batchTx *wire.MsgTx,
	descs []*HTLCDescriptor) (*wire.MsgTx, error) {

	signed := batchTx
	for i, desc := range descs {
		var err error
		signed, err = signer.SignHolderHtlcTransaction(signed, i, desc)
		if err != nil {
			return nil, fmt.Errorf("unable to sign htlc claim %v: %w",
				i, err)
		}
	}

	return signed, nil
}
