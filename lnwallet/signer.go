package lnwallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
)

// InitialCommitmentIndex is the signer index of the first commitment of a
// channel. Signer indexes count down from here, one per commitment, as the
// per-commitment secrets are derived from a shachain.
const InitialCommitmentIndex = maxStateHint

// CommitmentIndex maps a commitment number, counting up from zero, to the
// signer index of the commitment.
func CommitmentIndex(commitNum uint64) uint64 {
	return InitialCommitmentIndex - commitNum
}

// CommitmentNumber maps a signer index back to the commitment number.
func CommitmentNumber(index uint64) uint64 {
	return InitialCommitmentIndex - index
}

// ChannelSigner is the signing capability of one side of a channel. It holds
// the channel's private keys and per-commitment secrets. Commitment indexes
// passed to and from the signer count down from InitialCommitmentIndex.
type ChannelSigner interface {
	// GetPerCommitmentPoint returns the per-commitment point of our
	// commitment at the given index.
	GetPerCommitmentPoint(index uint64) (*btcec.PublicKey, error)

	// ReleaseCommitmentSecret revokes our commitment at the given index
	// by returning its per-commitment secret.
	ReleaseCommitmentSecret(index uint64) ([32]byte, error)

	// ValidateHolderCommitment is called once the counterparty signed our
	// next commitment.
	ValidateHolderCommitment(commitTx *HolderCommitmentTransaction) error

	// ValidateCounterpartyRevocation is called once the counterparty
	// revoked its commitment at the given index.
	ValidateCounterpartyRevocation(index uint64,
		secret *btcec.PrivateKey) error

	// PubKeys returns our channel basepoints.
	PubKeys() *ChannelPublicKeys

	// ProvideChannelParameters hands the complete channel parameters to
	// the signer.
	ProvideChannelParameters(params *ChannelTransactionParameters)

	// ChannelParameters returns the channel parameters, or
	// ErrParamsNotPopulated if they are not known yet.
	ChannelParameters() (*ChannelTransactionParameters, error)

	// SignCounterpartyCommitment signs a commitment of the counterparty
	// and the second-level transactions of its HTLCs.
	SignCounterpartyCommitment(commitTx *CommitmentTransaction) (
		input.Signature, []input.Signature, error)

	// SignHolderCommitment returns our commitment with the funding input
	// fully signed.
	SignHolderCommitment(
		commitTx *HolderCommitmentTransaction) (*wire.MsgTx, error)

	// SignJusticeRevokedOutput signs the input of a justice transaction
	// sweeping the to_local output of a revoked counterparty commitment.
	SignJusticeRevokedOutput(justiceTx *wire.MsgTx, inputIndex int,
		amount btcutil.Amount,
		perCommitmentKey *btcec.PrivateKey) (input.Signature, error)

	// SignJusticeRevokedHtlc signs the input of a justice transaction
	// sweeping an HTLC output of a revoked counterparty commitment.
	SignJusticeRevokedHtlc(justiceTx *wire.MsgTx, inputIndex int,
		amount btcutil.Amount, perCommitmentKey *btcec.PrivateKey,
		htlc *HTLC) (input.Signature, error)

	// SignCounterpartyHtlcTransaction signs an input spending an HTLC
	// output of a counterparty commitment with our HTLC key.
	SignCounterpartyHtlcTransaction(htlcTx *wire.MsgTx, inputIndex int,
		amount btcutil.Amount, commitPoint *btcec.PublicKey,
		htlc *HTLC) (input.Signature, error)

	// SignHolderHtlcTransaction returns the second-level transaction of
	// an HTLC of our commitment with the given input fully signed.
	SignHolderHtlcTransaction(htlcTx *wire.MsgTx, inputIndex int,
		desc *HTLCDescriptor) (*wire.MsgTx, error)

	// SignClosingTransaction signs a cooperative close transaction.
	SignClosingTransaction(
		closingTx *ClosingTransaction) (input.Signature, error)

	// SignHolderAnchorInput signs an input spending the keyed anchor of
	// our commitment.
	SignHolderAnchorInput(anchorTx *wire.MsgTx,
		inputIndex int) (input.Signature, error)

	// SignChannelAnnouncementWithFundingKey signs the double SHA256 of an
	// unsigned channel announcement with our funding key.
	SignChannelAnnouncementWithFundingKey(
		announcement []byte) (input.Signature, error)
}
