package chansigner

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/lnwallet"
)

// EnforcingSigner wraps a channel signer with the policy checks that keep a
// channel safe: commitments are signed, validated and revoked strictly in
// order, we never sign one of our commitments once it is revoked, the
// counterparty never holds more than two unrevoked commitments, and every
// transaction handed in for signing is rebuilt from the channel parameters
// first. Handles of the same channel share one EnforcementState.
type EnforcingSigner struct {
	inner lnwallet.ChannelSigner
	state *EnforcementState
	cfg   *Config
}

// A compile time check to ensure EnforcingSigner implements the
// lnwallet.ChannelSigner interface.
var _ lnwallet.ChannelSigner = (*EnforcingSigner)(nil)

// NewEnforcingSigner wraps the signer with the state of a new channel.
func NewEnforcingSigner(inner lnwallet.ChannelSigner,
	cfg *Config) *EnforcingSigner {

	return NewEnforcingSignerWithState(inner, NewEnforcementState(), cfg)
}

// NewEnforcingSignerWithState wraps the signer with an existing channel
// state, shared with the other handles of the channel.
func NewEnforcingSignerWithState(inner lnwallet.ChannelSigner,
	state *EnforcementState, cfg *Config) *EnforcingSigner {

	return &EnforcingSigner{
		inner: inner,
		state: state,
		cfg:   cfg,
	}
}

// State returns the shared enforcement state.
func (s *EnforcingSigner) State() *EnforcementState {
	return s.state
}

// Equal returns true if both handles belong to the same channel, that is if
// they share the same state.
func (s *EnforcingSigner) Equal(other *EnforcingSigner) bool {
	return s.state == other.state
}

// EnableOp re-enables a disabled operation.
func (s *EnforcingSigner) EnableOp(op SignerOp) {
	s.state.EnableOp(op)
}

// DisableOp makes the operation fail with ErrSignerOpDisabled on every
// handle of the channel.
func (s *EnforcingSigner) DisableOp(op SignerOp) {
	s.state.DisableOp(op)
}

// IsSignerAvailable returns true unless the operation was disabled.
func (s *EnforcingSigner) IsSignerAvailable(op SignerOp) bool {
	return !s.state.IsDisabled(op)
}

// checkAvailable fails if the operation was disabled.
func (s *EnforcingSigner) checkAvailable(op SignerOp) error {
	if s.IsSignerAvailable(op) {
		return nil
	}

	disabledOpCalls.WithLabelValues(op.String()).Inc()
	log.Debugf("Refusing disabled signer operation %v", op)

	return fmt.Errorf("%w: %v", ErrSignerOpDisabled, op)
}

// violation handles a broken policy according to the configured mode.
func (s *EnforcingSigner) violation(op SignerOp, err error) error {
	policyViolations.WithLabelValues(op.String()).Inc()

	err = fmt.Errorf("%w: %v: %w", ErrPolicyViolation, op, err)
	if s.cfg.Mode == ModeRefuse {
		log.Warnf("Refusing signer request: %v", err)

		return err
	}

	log.Criticalf("Signer policy violated: %v", err)
	panic(err)
}

// verifyCommitment rebuilds the commitment from the channel parameters and
// fails if it differs.
func (s *EnforcingSigner) verifyCommitment(local bool,
	commitTx *lnwallet.CommitmentTransaction) error {

	if commitTx.HolderIsBroadcaster != local {
		return fmt.Errorf("expected commitment broadcast by holder=%v",
			local)
	}

	params, err := s.inner.ChannelParameters()
	if err != nil {
		return err
	}

	builder := lnwallet.NewSpecTxBuilder()
	builder.ProvidePopulatedParameters(params)

	return builder.VerifyCommitment(commitTx)
}

// verifySig checks a signature over input inputIndex of the transaction.
func verifySig(tx *wire.MsgTx, inputIndex int, witnessScript []byte,
	prevOut *wire.TxOut, hashType txscript.SigHashType,
	sig input.Signature, pubKey *btcec.PublicKey) error {

	if sig == nil {
		return errors.New("missing signature")
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(
		prevOut.PkScript, prevOut.Value,
	)
	sigHash, err := txscript.CalcWitnessSigHash(
		witnessScript, txscript.NewTxSigHashes(tx, fetcher), hashType,
		tx, inputIndex, prevOut.Value,
	)
	if err != nil {
		return err
	}

	if !sig.Verify(sigHash, pubKey) {
		return fmt.Errorf("invalid signature on input %v of %v",
			inputIndex, tx.TxHash())
	}

	return nil
}

// verifyCounterpartySigs checks the counterparty's signatures on our
// commitment and on the second-level transactions of its HTLCs.
func (s *EnforcingSigner) verifyCounterpartySigs(
	commitTx *lnwallet.HolderCommitmentTransaction) error {

	params, err := s.inner.ChannelParameters()
	if err != nil {
		return err
	}
	directed, err := params.AsHolderBroadcastable()
	if err != nil {
		return err
	}

	witnessScript, fundingOutput, err := directed.FundingScript()
	if err != nil {
		return err
	}
	err = verifySig(
		commitTx.Tx(), 0, witnessScript, fundingOutput,
		txscript.SigHashAll, commitTx.CounterpartySig,
		directed.CountersignatoryPubKeys().FundingKey.PubKey,
	)
	if err != nil {
		return fmt.Errorf("commitment signature: %w", err)
	}

	if len(commitTx.CounterpartyHtlcSigs) != len(commitTx.HTLCs) {
		return fmt.Errorf("got %v htlc signatures for %v htlcs",
			len(commitTx.CounterpartyHtlcSigs), len(commitTx.HTLCs))
	}

	for i := range commitTx.HTLCs {
		htlc := &commitTx.HTLCs[i]

		htlcTx, err := commitTx.HtlcTx(htlc)
		if err != nil {
			return err
		}
		witnessScript, prevOut, err := htlcOutput(
			commitTx.ChannelType, htlc, commitTx.Keys,
		)
		if err != nil {
			return err
		}

		err = verifySig(
			htlcTx, 0, witnessScript, prevOut,
			lnwallet.HtlcSigHashType(commitTx.ChannelType),
			commitTx.CounterpartyHtlcSigs[i],
			commitTx.Keys.CountersignatoryHtlcKey,
		)
		if err != nil {
			return fmt.Errorf("htlc signature %v: %w", i, err)
		}
	}

	return nil
}

// GetPerCommitmentPoint returns the per-commitment point of our commitment
// at the given index.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) GetPerCommitmentPoint(
	index uint64) (*btcec.PublicKey, error) {

	if err := s.checkAvailable(OpGetPerCommitmentPoint); err != nil {
		return nil, err
	}

	return s.inner.GetPerCommitmentPoint(index)
}

// ReleaseCommitmentSecret revokes our commitment at the given index. Only the
// current or next commitment may be revoked, and never the last one we
// validated.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) ReleaseCommitmentSecret(index uint64) ([32]byte,
	error) {

	op := OpReleaseCommitmentSecret
	if err := s.checkAvailable(op); err != nil {
		return [32]byte{}, err
	}

	_, err := s.state.update(func(c *Counters) error {
		return c.releaseSecret(index)
	})
	if err != nil {
		return [32]byte{}, s.violation(op, err)
	}

	return s.inner.ReleaseCommitmentSecret(index)
}

// ValidateHolderCommitment accepts our next commitment once the
// counterparty's signatures on it check out. Validation needs no secret, so
// disabling the operation does not refuse it.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) ValidateHolderCommitment(
	commitTx *lnwallet.HolderCommitmentTransaction) error {

	op := OpValidateHolderCommitment
	if err := s.verifyCommitment(true, commitTx.CommitmentTransaction); err != nil {
		return s.violation(op, err)
	}
	if err := s.verifyCounterpartySigs(commitTx); err != nil {
		return s.violation(op, err)
	}

	index := lnwallet.CommitmentIndex(commitTx.CommitmentNumber)
	_, err := s.state.update(func(c *Counters) error {
		return c.validateHolderCommitment(index)
	})
	if err != nil {
		return s.violation(op, err)
	}

	return s.inner.ValidateHolderCommitment(commitTx)
}

// ValidateCounterpartyRevocation records the revocation of the counterparty
// commitment at the given index.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) ValidateCounterpartyRevocation(index uint64,
	secret *btcec.PrivateKey) error {

	op := OpValidateCounterpartyRevocation
	if err := s.checkAvailable(op); err != nil {
		return err
	}

	_, err := s.state.update(func(c *Counters) error {
		return c.validateCounterpartyRevocation(index)
	})
	if err != nil {
		return s.violation(op, err)
	}

	return s.inner.ValidateCounterpartyRevocation(index, secret)
}

// PubKeys returns our channel basepoints.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) PubKeys() *lnwallet.ChannelPublicKeys {
	return s.inner.PubKeys()
}

// ProvideChannelParameters hands the channel parameters to the inner signer.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) ProvideChannelParameters(
	params *lnwallet.ChannelTransactionParameters) {

	s.inner.ProvideChannelParameters(params)
}

// ChannelParameters returns the channel parameters of the inner signer.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) ChannelParameters() (
	*lnwallet.ChannelTransactionParameters, error) {

	return s.inner.ChannelParameters()
}

// SignCounterpartyCommitment signs the counterparty's next commitment. The
// counterparty must have revoked all but its previous commitment.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) SignCounterpartyCommitment(
	commitTx *lnwallet.CommitmentTransaction) (input.Signature,
	[]input.Signature, error) {

	op := OpSignCounterpartyCommitment
	if err := s.verifyCommitment(false, commitTx); err != nil {
		return nil, nil, s.violation(op, err)
	}

	if err := s.checkAvailable(op); err != nil {
		return nil, nil, err
	}

	index := lnwallet.CommitmentIndex(commitTx.CommitmentNumber)
	_, err := s.state.update(func(c *Counters) error {
		return c.signCounterpartyCommitment(index)
	})
	if err != nil {
		return nil, nil, s.violation(op, err)
	}

	return s.inner.SignCounterpartyCommitment(commitTx)
}

// checkHolderIndex fails unless our commitment at the index is one of the
// two that are not revoked yet.
func (s *EnforcingSigner) checkHolderIndex(op SignerOp, index uint64) error {
	counters := s.state.Counters()
	err := counters.signHolder(index)
	if err == nil {
		return nil
	}

	if s.cfg.DisableRevocationPolicyCheck {
		log.Debugf("Ignoring revocation policy for %v: %v", op, err)

		return nil
	}

	return s.violation(op, err)
}

// SignHolderCommitment signs our commitment for broadcast, as long as it
// was not revoked.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) SignHolderCommitment(
	commitTx *lnwallet.HolderCommitmentTransaction) (*wire.MsgTx, error) {

	op := OpSignHolderCommitment
	if err := s.checkAvailable(op); err != nil {
		return nil, err
	}

	if err := s.verifyCommitment(true, commitTx.CommitmentTransaction); err != nil {
		return nil, s.violation(op, err)
	}

	index := lnwallet.CommitmentIndex(commitTx.CommitmentNumber)
	if err := s.checkHolderIndex(op, index); err != nil {
		return nil, err
	}

	return s.inner.SignHolderCommitment(commitTx)
}

// SignJusticeRevokedOutput signs the penalty of a revoked to_local output.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) SignJusticeRevokedOutput(justiceTx *wire.MsgTx,
	inputIndex int, amount btcutil.Amount,
	perCommitmentKey *btcec.PrivateKey) (input.Signature, error) {

	if err := s.checkAvailable(OpSignJusticeRevokedOutput); err != nil {
		return nil, err
	}

	return s.inner.SignJusticeRevokedOutput(
		justiceTx, inputIndex, amount, perCommitmentKey,
	)
}

// SignJusticeRevokedHtlc signs the penalty of a revoked HTLC output.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) SignJusticeRevokedHtlc(justiceTx *wire.MsgTx,
	inputIndex int, amount btcutil.Amount,
	perCommitmentKey *btcec.PrivateKey,
	htlc *lnwallet.HTLC) (input.Signature, error) {

	if err := s.checkAvailable(OpSignJusticeRevokedHtlc); err != nil {
		return nil, err
	}

	return s.inner.SignJusticeRevokedHtlc(
		justiceTx, inputIndex, amount, perCommitmentKey, htlc,
	)
}

// SignCounterpartyHtlcTransaction signs a direct spend of an HTLC output of
// a counterparty commitment.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) SignCounterpartyHtlcTransaction(htlcTx *wire.MsgTx,
	inputIndex int, amount btcutil.Amount, commitPoint *btcec.PublicKey,
	htlc *lnwallet.HTLC) (input.Signature, error) {

	err := s.checkAvailable(OpSignCounterpartyHtlcTransaction)
	if err != nil {
		return nil, err
	}

	return s.inner.SignCounterpartyHtlcTransaction(
		htlcTx, inputIndex, amount, commitPoint, htlc,
	)
}

// checkHtlcDescriptor makes sure input and output inputIndex of the
// transaction are the ones of the described second-level transaction and
// that the counterparty's signature covers them.
func (s *EnforcingSigner) checkHtlcDescriptor(htlcTx *wire.MsgTx,
	inputIndex int, desc *lnwallet.HTLCDescriptor) error {

	if inputIndex >= len(htlcTx.TxIn) || inputIndex >= len(htlcTx.TxOut) {
		return fmt.Errorf("input %v out of range", inputIndex)
	}

	params, err := s.inner.ChannelParameters()
	if err != nil {
		return err
	}
	directed, err := params.AsHolderBroadcastable()
	if err != nil {
		return err
	}

	unsigned, err := desc.UnsignedTx(directed)
	if err != nil {
		return err
	}

	txIn, expectedIn := htlcTx.TxIn[inputIndex], unsigned.TxIn[0]
	if txIn.PreviousOutPoint != expectedIn.PreviousOutPoint ||
		txIn.Sequence != expectedIn.Sequence {

		return fmt.Errorf("input %v does not spend %v",
			inputIndex, expectedIn.PreviousOutPoint)
	}

	txOut, expectedOut := htlcTx.TxOut[inputIndex], unsigned.TxOut[0]
	if txOut.Value != expectedOut.Value ||
		!bytes.Equal(txOut.PkScript, expectedOut.PkScript) {

		return fmt.Errorf("output %v is not the second-level output",
			inputIndex)
	}

	witnessScript, err := desc.WitnessScript(directed)
	if err != nil {
		return err
	}
	prevOut, err := desc.PreviousOutput(directed)
	if err != nil {
		return err
	}

	return verifySig(
		htlcTx, inputIndex, witnessScript, prevOut,
		lnwallet.HtlcSigHashType(directed.ChannelType()),
		desc.CounterpartySig, desc.Keys(directed).CountersignatoryHtlcKey,
	)
}

// SignHolderHtlcTransaction signs a second-level transaction of one of our
// two unrevoked commitments.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) SignHolderHtlcTransaction(htlcTx *wire.MsgTx,
	inputIndex int, desc *lnwallet.HTLCDescriptor) (*wire.MsgTx, error) {

	op := OpSignHolderHtlcTransaction
	if err := s.checkAvailable(op); err != nil {
		return nil, err
	}

	if err := s.checkHolderIndex(op, desc.PerCommitmentNumber); err != nil {
		return nil, err
	}

	if err := s.checkHtlcDescriptor(htlcTx, inputIndex, desc); err != nil {
		return nil, s.violation(op, err)
	}

	return s.inner.SignHolderHtlcTransaction(htlcTx, inputIndex, desc)
}

// SignClosingTransaction signs a cooperative close spending our funding
// outpoint.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) SignClosingTransaction(
	closingTx *lnwallet.ClosingTransaction) (input.Signature, error) {

	op := OpSignClosingTransaction
	if err := s.checkAvailable(op); err != nil {
		return nil, err
	}

	params, err := s.inner.ChannelParameters()
	if err != nil {
		return nil, err
	}
	directed, err := params.AsHolderBroadcastable()
	if err != nil {
		return nil, err
	}

	if err := closingTx.Verify(directed.FundingOutpoint()); err != nil {
		return nil, s.violation(op, err)
	}

	return s.inner.SignClosingTransaction(closingTx)
}

// SignHolderAnchorInput signs the spend of our keyed anchor. Channel dust
// limits exceed the anchor value, so an anchor can only be one of the first
// two outputs of a commitment.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) SignHolderAnchorInput(anchorTx *wire.MsgTx,
	inputIndex int) (input.Signature, error) {

	op := OpSignHolderAnchorInput
	vout := anchorTx.TxIn[inputIndex].PreviousOutPoint.Index
	if vout > 1 {
		return nil, s.violation(op, fmt.Errorf("anchor input spends "+
			"output %v", vout))
	}

	if err := s.checkAvailable(op); err != nil {
		return nil, err
	}

	return s.inner.SignHolderAnchorInput(anchorTx, inputIndex)
}

// SignChannelAnnouncementWithFundingKey signs a channel announcement.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *EnforcingSigner) SignChannelAnnouncementWithFundingKey(
	announcement []byte) (input.Signature, error) {

	op := OpSignChannelAnnouncementWithFundingKey
	if err := s.checkAvailable(op); err != nil {
		return nil, err
	}

	return s.inner.SignChannelAnnouncementWithFundingKey(announcement)
}
