package chansigner

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/keychain"
	"github.com/lightningnetwork/lncommit/lnwallet"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lncommit/shachain"
)

// InMemorySigner is a channel signer holding its keys in memory. The channel
// basepoints are drawn from a key ring, one key per channel key family, and
// the per-commitment secrets from a shachain rooted at the revocation root
// key. It signs whatever it is asked to, policy checks are left to
// EnforcingSigner.
type InMemorySigner struct {
	keyRing     keychain.SecretKeyRing
	signer      input.Signer
	pubKeys     lnwallet.ChannelPublicKeys
	revocations *shachain.RevocationProducer
	builder     *lnwallet.SpecTxBuilder
}

// A compile time check to ensure InMemorySigner implements the
// lnwallet.ChannelSigner interface.
var _ lnwallet.ChannelSigner = (*InMemorySigner)(nil)

// NewInMemorySigner derives the keys of a new channel from the key ring.
func NewInMemorySigner(keyRing keychain.SecretKeyRing) (*InMemorySigner,
	error) {

	keys := make(map[keychain.KeyFamily]keychain.KeyDescriptor)
	for _, family := range keychain.ChannelKeyFamilies {
		desc, err := keyRing.DeriveNextKey(family)
		if err != nil {
			return nil, fmt.Errorf("unable to derive key of "+
				"family %v: %w", family, err)
		}
		keys[family] = desc
	}

	revocationRoot, err := keyRing.DerivePrivKey(
		keys[keychain.KeyFamilyRevocationRoot],
	)
	if err != nil {
		return nil, err
	}
	seed := chainhash.DoubleHashH(revocationRoot.Serialize())

	return &InMemorySigner{
		keyRing: keyRing,
		signer:  input.NewKeyRingSigner(keyRing),
		pubKeys: lnwallet.ChannelPublicKeys{
			FundingKey:          keys[keychain.KeyFamilyMultiSig],
			RevocationBasePoint: keys[keychain.KeyFamilyRevocationBase],
			PaymentBasePoint:    keys[keychain.KeyFamilyPaymentBase],
			DelayedPaymentBasePoint: keys[
				keychain.KeyFamilyDelayBase,
			],
			HtlcBasePoint: keys[keychain.KeyFamilyHtlcBase],
		},
		revocations: shachain.NewRevocationProducer(seed),
		builder:     lnwallet.NewSpecTxBuilder(),
	}, nil
}

// GetPerCommitmentPoint returns the per-commitment point of our commitment
// at the given index.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) GetPerCommitmentPoint(
	index uint64) (*btcec.PublicKey, error) {

	secret, err := s.revocations.AtShaChainIndex(index)
	if err != nil {
		return nil, err
	}

	return input.ComputeCommitmentPoint(secret[:]), nil
}

// ReleaseCommitmentSecret returns the per-commitment secret of our
// commitment at the given index.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) ReleaseCommitmentSecret(index uint64) ([32]byte,
	error) {

	secret, err := s.revocations.AtShaChainIndex(index)
	if err != nil {
		return [32]byte{}, err
	}

	return *secret, nil
}

// ValidateHolderCommitment accepts every commitment.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) ValidateHolderCommitment(
	_ *lnwallet.HolderCommitmentTransaction) error {

	return nil
}

// ValidateCounterpartyRevocation accepts every revocation.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) ValidateCounterpartyRevocation(_ uint64,
	_ *btcec.PrivateKey) error {

	return nil
}

// PubKeys returns our channel basepoints.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) PubKeys() *lnwallet.ChannelPublicKeys {
	return &s.pubKeys
}

// ProvideChannelParameters hands the complete channel parameters to the
// signer. Our keys in the parameters must be the signer's keys.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) ProvideChannelParameters(
	params *lnwallet.ChannelTransactionParameters) {

	if !params.HolderPubKeys.Equal(&s.pubKeys) {
		panic(fmt.Errorf("%w: holder keys differ from signer keys",
			lnwallet.ErrParamsMismatch))
	}

	s.builder.ProvidePopulatedParameters(params)
}

// ChannelParameters returns the channel parameters.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) ChannelParameters() (
	*lnwallet.ChannelTransactionParameters, error) {

	return s.builder.Parameters()
}

// counterpartyBroadcastable returns the parameters as seen from the
// counterparty's commitments.
func (s *InMemorySigner) counterpartyBroadcastable() (
	*lnwallet.DirectedChannelTransactionParameters, error) {

	params, err := s.ChannelParameters()
	if err != nil {
		return nil, err
	}

	return params.AsCounterpartyBroadcastable()
}

// holderBroadcastable returns the parameters as seen from our commitments.
func (s *InMemorySigner) holderBroadcastable() (
	*lnwallet.DirectedChannelTransactionParameters, error) {

	params, err := s.ChannelParameters()
	if err != nil {
		return nil, err
	}

	return params.AsHolderBroadcastable()
}

// signFunding signs the funding input of a commitment or closing
// transaction, which is always its first input.
func (s *InMemorySigner) signFunding(
	directed *lnwallet.DirectedChannelTransactionParameters,
	tx *wire.MsgTx) (input.Signature, []byte, error) {

	witnessScript, fundingOutput, err := directed.FundingScript()
	if err != nil {
		return nil, nil, err
	}

	signDesc := input.NewSignDescriptor(
		s.pubKeys.FundingKey, witnessScript, fundingOutput,
		txscript.SigHashAll, tx, 0,
	)
	sig, err := s.signer.SignOutputRaw(tx, signDesc)
	if err != nil {
		return nil, nil, err
	}

	return sig, witnessScript, nil
}

// htlcOutput returns the witness script and output of an HTLC on the
// commitment the keys belong to.
func htlcOutput(chanType lnwire.ChannelType, htlc *lnwallet.HTLC,
	keys *lnwallet.TxCreationKeys) ([]byte, *wire.TxOut, error) {

	witnessScript, err := lnwallet.HtlcWitnessScript(chanType, htlc, keys)
	if err != nil {
		return nil, nil, err
	}
	pkScript, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, nil, err
	}

	return witnessScript, &wire.TxOut{
		Value:    int64(htlc.Amount.ToSatoshis()),
		PkScript: pkScript,
	}, nil
}

// SignCounterpartyCommitment signs a commitment of the counterparty and the
// second-level transactions of its HTLCs, in output order.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) SignCounterpartyCommitment(
	commitTx *lnwallet.CommitmentTransaction) (input.Signature,
	[]input.Signature, error) {

	directed, err := s.counterpartyBroadcastable()
	if err != nil {
		return nil, nil, err
	}

	commitSig, _, err := s.signFunding(directed, commitTx.Tx())
	if err != nil {
		return nil, nil, err
	}

	htlcSigs := make([]input.Signature, 0, len(commitTx.HTLCs))
	for i := range commitTx.HTLCs {
		htlc := &commitTx.HTLCs[i]

		htlcTx, err := commitTx.HtlcTx(htlc)
		if err != nil {
			return nil, nil, err
		}
		witnessScript, prevOut, err := htlcOutput(
			commitTx.ChannelType, htlc, commitTx.Keys,
		)
		if err != nil {
			return nil, nil, err
		}

		signDesc := input.NewSignDescriptor(
			s.pubKeys.HtlcBasePoint, witnessScript, prevOut,
			lnwallet.HtlcSigHashType(commitTx.ChannelType), htlcTx,
			0,
		)
		signDesc.SingleTweak = input.SingleTweakBytes(
			commitTx.Keys.PerCommitmentPoint,
			s.pubKeys.HtlcBasePoint.PubKey,
		)

		sig, err := s.signer.SignOutputRaw(htlcTx, signDesc)
		if err != nil {
			return nil, nil, err
		}
		htlcSigs = append(htlcSigs, sig)
	}

	return commitSig, htlcSigs, nil
}

// SignHolderCommitment returns our commitment with the funding input signed
// by both parties.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) SignHolderCommitment(
	commitTx *lnwallet.HolderCommitmentTransaction) (*wire.MsgTx, error) {

	directed, err := s.holderBroadcastable()
	if err != nil {
		return nil, err
	}

	signedTx := commitTx.Tx()
	ourSig, witnessScript, err := s.signFunding(directed, signedTx)
	if err != nil {
		return nil, err
	}

	counterpartyKey := directed.CountersignatoryPubKeys().FundingKey.PubKey
	signedTx.TxIn[0].Witness = input.SpendMultiSig(
		witnessScript,
		s.pubKeys.FundingKey.PubKey.SerializeCompressed(),
		append(ourSig.Serialize(), byte(txscript.SigHashAll)),
		counterpartyKey.SerializeCompressed(),
		append(
			commitTx.CounterpartySig.Serialize(),
			byte(txscript.SigHashAll),
		),
	)

	return signedTx, nil
}

// revokedCommitment returns the parameters and keys of the revoked
// counterparty commitment the per-commitment secret belongs to.
func (s *InMemorySigner) revokedCommitment(
	perCommitmentKey *btcec.PrivateKey) (
	*lnwallet.DirectedChannelTransactionParameters,
	*lnwallet.TxCreationKeys, error) {

	directed, err := s.counterpartyBroadcastable()
	if err != nil {
		return nil, nil, err
	}

	keys := lnwallet.DeriveTxCreationKeys(
		perCommitmentKey.PubKey(), directed.BroadcasterPubKeys(),
		directed.CountersignatoryPubKeys(),
	)

	return directed, keys, nil
}

// SignJusticeRevokedOutput signs the input of a justice transaction sweeping
// the to_local output of a revoked counterparty commitment.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) SignJusticeRevokedOutput(justiceTx *wire.MsgTx,
	inputIndex int, amount btcutil.Amount,
	perCommitmentKey *btcec.PrivateKey) (input.Signature, error) {

	directed, keys, err := s.revokedCommitment(perCommitmentKey)
	if err != nil {
		return nil, err
	}

	witnessScript, err := input.CommitScriptToSelf(
		uint32(directed.ContestDelay()),
		keys.BroadcasterDelayedPaymentKey, keys.RevocationKey,
	)
	if err != nil {
		return nil, err
	}
	pkScript, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}

	signDesc := input.NewSignDescriptor(
		s.pubKeys.RevocationBasePoint, witnessScript, &wire.TxOut{
			Value:    int64(amount),
			PkScript: pkScript,
		}, txscript.SigHashAll, justiceTx, inputIndex,
	)
	signDesc.DoubleTweak = perCommitmentKey

	return s.signer.SignOutputRaw(justiceTx, signDesc)
}

// SignJusticeRevokedHtlc signs the input of a justice transaction sweeping an
// HTLC output of a revoked counterparty commitment.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) SignJusticeRevokedHtlc(justiceTx *wire.MsgTx,
	inputIndex int, amount btcutil.Amount,
	perCommitmentKey *btcec.PrivateKey,
	htlc *lnwallet.HTLC) (input.Signature, error) {

	directed, keys, err := s.revokedCommitment(perCommitmentKey)
	if err != nil {
		return nil, err
	}

	witnessScript, prevOut, err := htlcOutput(
		directed.ChannelType(), htlc, keys,
	)
	if err != nil {
		return nil, err
	}
	prevOut.Value = int64(amount)

	signDesc := input.NewSignDescriptor(
		s.pubKeys.RevocationBasePoint, witnessScript, prevOut,
		txscript.SigHashAll, justiceTx, inputIndex,
	)
	signDesc.DoubleTweak = perCommitmentKey

	return s.signer.SignOutputRaw(justiceTx, signDesc)
}

// SignCounterpartyHtlcTransaction signs an input spending an HTLC output of
// a counterparty commitment with our HTLC key.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) SignCounterpartyHtlcTransaction(htlcTx *wire.MsgTx,
	inputIndex int, amount btcutil.Amount, commitPoint *btcec.PublicKey,
	htlc *lnwallet.HTLC) (input.Signature, error) {

	directed, err := s.counterpartyBroadcastable()
	if err != nil {
		return nil, err
	}

	keys := lnwallet.DeriveTxCreationKeys(
		commitPoint, directed.BroadcasterPubKeys(),
		directed.CountersignatoryPubKeys(),
	)
	witnessScript, prevOut, err := htlcOutput(
		directed.ChannelType(), htlc, keys,
	)
	if err != nil {
		return nil, err
	}
	prevOut.Value = int64(amount)

	signDesc := input.NewSignDescriptor(
		s.pubKeys.HtlcBasePoint, witnessScript, prevOut,
		txscript.SigHashAll, htlcTx, inputIndex,
	)
	signDesc.SingleTweak = input.SingleTweakBytes(
		commitPoint, s.pubKeys.HtlcBasePoint.PubKey,
	)

	return s.signer.SignOutputRaw(htlcTx, signDesc)
}

// SignHolderHtlcTransaction returns the second-level transaction with the
// input spending the described HTLC fully signed. The transaction may batch
// several HTLC claims, all its inputs and outputs must be in place.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) SignHolderHtlcTransaction(htlcTx *wire.MsgTx,
	inputIndex int, desc *lnwallet.HTLCDescriptor) (*wire.MsgTx, error) {

	directed, err := s.holderBroadcastable()
	if err != nil {
		return nil, err
	}

	witnessScript, err := desc.WitnessScript(directed)
	if err != nil {
		return nil, err
	}
	prevOut, err := desc.PreviousOutput(directed)
	if err != nil {
		return nil, err
	}

	signDesc := input.NewSignDescriptor(
		s.pubKeys.HtlcBasePoint, witnessScript, prevOut,
		txscript.SigHashAll, htlcTx, inputIndex,
	)
	signDesc.SingleTweak = input.SingleTweakBytes(
		desc.PerCommitmentPoint, s.pubKeys.HtlcBasePoint.PubKey,
	)

	sig, err := s.signer.SignOutputRaw(htlcTx, signDesc)
	if err != nil {
		return nil, err
	}

	witness, err := desc.TxInputWitness(directed, sig)
	if err != nil {
		return nil, err
	}

	signedTx := htlcTx.Copy()
	signedTx.TxIn[inputIndex].Witness = witness

	return signedTx, nil
}

// SignClosingTransaction signs a cooperative close transaction.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) SignClosingTransaction(
	closingTx *lnwallet.ClosingTransaction) (input.Signature, error) {

	directed, err := s.holderBroadcastable()
	if err != nil {
		return nil, err
	}

	sig, _, err := s.signFunding(directed, closingTx.Tx())

	return sig, err
}

// SignHolderAnchorInput signs an input spending the keyed anchor of our
// commitment.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) SignHolderAnchorInput(anchorTx *wire.MsgTx,
	inputIndex int) (input.Signature, error) {

	witnessScript, err := input.CommitScriptAnchor(
		s.pubKeys.FundingKey.PubKey,
	)
	if err != nil {
		return nil, err
	}
	pkScript, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}

	signDesc := input.NewSignDescriptor(
		s.pubKeys.FundingKey, witnessScript, &wire.TxOut{
			Value:    int64(lnwallet.AnchorOutputValue),
			PkScript: pkScript,
		}, txscript.SigHashAll, anchorTx, inputIndex,
	)

	return s.signer.SignOutputRaw(anchorTx, signDesc)
}

// SignChannelAnnouncementWithFundingKey signs the double SHA256 of an
// unsigned channel announcement with our funding key.
//
// NOTE: This is part of the lnwallet.ChannelSigner interface.
func (s *InMemorySigner) SignChannelAnnouncementWithFundingKey(
	announcement []byte) (input.Signature, error) {

	privKey, err := s.keyRing.DerivePrivKey(s.pubKeys.FundingKey)
	if err != nil {
		return nil, err
	}

	return ecdsa.Sign(privKey, chainhash.DoubleHashB(announcement)), nil
}
