package chansigner

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/keychain"
	"github.com/lightningnetwork/lncommit/lntypes"
	"github.com/lightningnetwork/lncommit/lnwallet"
	"github.com/lightningnetwork/lncommit/lnwallet/chainfee"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

const (
	testChannelValue btcutil.Amount = 1_000_000
	testAliceBalance btcutil.Amount = 600_000
	testDustLimit    btcutil.Amount = 354
	testCsvDelay     uint16         = 144
	testFeePerKw                    = chainfee.SatPerKWeight(253)
)

var (
	testFundingOutpoint = wire.OutPoint{
		Hash:  chainhash.Hash{0x01, 0x02, 0x03},
		Index: 1,
	}

	testPreimage = lntypes.Preimage{0x11, 0x22, 0x33}
)

// newTestSigner creates an in-memory signer from a deterministic seed.
func newTestSigner(t *testing.T, seedByte byte) *InMemorySigner {
	t.Helper()

	seed := bytes.Repeat([]byte{seedByte}, 32)
	keyRing, err := keychain.NewHDKeyRing(seed, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	signer, err := NewInMemorySigner(keyRing)
	require.NoError(t, err)

	return signer
}

// testChannel is a channel between alice, the funder, and bob, each with an
// in-memory signer holding the fully populated parameters of its side.
type testChannel struct {
	chanType lnwire.ChannelType

	alice *InMemorySigner
	bob   *InMemorySigner

	aliceParams *lnwallet.ChannelTransactionParameters
	bobParams   *lnwallet.ChannelTransactionParameters
}

func newTestChannel(t *testing.T, chanType lnwire.ChannelType) *testChannel {
	t.Helper()

	alice := newTestSigner(t, 0x01)
	bob := newTestSigner(t, 0x02)

	sideParams := func(holder, counterparty *InMemorySigner,
		funder bool) *lnwallet.ChannelTransactionParameters {

		return &lnwallet.ChannelTransactionParameters{
			HolderPubKeys:              *holder.PubKeys(),
			HolderSelectedContestDelay: testCsvDelay,
			IsOutboundFromHolder:       funder,
			CounterpartyParameters: fn.Some(
				lnwallet.CounterpartyChannelTransactionParameters{
					PubKeys:              *counterparty.PubKeys(),
					SelectedContestDelay: testCsvDelay,
				},
			),
			FundingOutpoint: fn.Some(testFundingOutpoint),
			ChannelType:     chanType,
			ChannelValue:    testChannelValue,
		}
	}

	c := &testChannel{
		chanType:    chanType,
		alice:       alice,
		bob:         bob,
		aliceParams: sideParams(alice, bob, true),
		bobParams:   sideParams(bob, alice, false),
	}
	alice.ProvideChannelParameters(c.aliceParams)
	bob.ProvideChannelParameters(c.bobParams)

	return c
}

// testHTLCs returns one HTLC in each direction, Offered relative to alice.
// The HTLC alice receives is locked to testPreimage.
func testHTLCs() []*lnwallet.HTLC {
	return []*lnwallet.HTLC{
		{
			Offered:       true,
			Amount:        lnwire.NewMSatFromSatoshis(50_000),
			RefundTimeout: 500_100,
			RHash:         lntypes.Hash{0xaa},
		},
		{
			Offered:       false,
			Amount:        lnwire.NewMSatFromSatoshis(70_000),
			RefundTimeout: 500_200,
			RHash:         testPreimage.Hash(),
		},
	}
}

func cloneHTLCs(htlcs []*lnwallet.HTLC) []*lnwallet.HTLC {
	clones := make([]*lnwallet.HTLC, 0, len(htlcs))
	for _, htlc := range htlcs {
		clone := *htlc
		clones = append(clones, &clone)
	}

	return clones
}

// buildCommitment builds one side's view of a commitment.
func buildCommitment(t *testing.T,
	params *lnwallet.ChannelTransactionParameters, local bool,
	height uint64, point *btcec.PublicKey, holderBalance btcutil.Amount,
	htlcs []*lnwallet.HTLC) *lnwallet.CommitmentTransaction {

	t.Helper()

	builder := lnwallet.NewSpecTxBuilder()
	builder.ProvidePopulatedParameters(params)

	commitTx, _, err := builder.BuildCommitment(&lnwallet.CommitmentRequest{
		Local:                local,
		CommitmentNumber:     height,
		PerCommitmentPoint:   point,
		ValueToHolder:        lnwire.NewMSatFromSatoshis(holderBalance),
		HTLCs:                htlcs,
		FeePerKw:             testFeePerKw,
		BroadcasterDustLimit: testDustLimit,
	})
	require.NoError(t, err)

	return commitTx
}

// aliceHolderCommitment builds alice's commitment at the given height with
// bob's signatures on it, HTLCs Offered relative to alice.
func (c *testChannel) aliceHolderCommitment(t *testing.T, height uint64,
	htlcs []*lnwallet.HTLC) *lnwallet.HolderCommitmentTransaction {

	t.Helper()

	point, err := c.alice.GetPerCommitmentPoint(
		lnwallet.CommitmentIndex(height),
	)
	require.NoError(t, err)

	aliceView := buildCommitment(
		t, c.aliceParams, true, height, point, testAliceBalance,
		cloneHTLCs(htlcs),
	)
	bobView := buildCommitment(
		t, c.bobParams, false, height, point,
		testChannelValue-testAliceBalance, cloneHTLCs(htlcs),
	)
	require.Equal(t, aliceView.TxHash(), bobView.TxHash())

	sig, htlcSigs, err := c.bob.SignCounterpartyCommitment(bobView)
	require.NoError(t, err)

	return &lnwallet.HolderCommitmentTransaction{
		CommitmentTransaction: aliceView,
		CounterpartySig:       sig,
		CounterpartyHtlcSigs:  htlcSigs,
	}
}

// bobCommitment builds bob's commitment at the given height as alice sees
// it, HTLCs Offered relative to bob.
func (c *testChannel) bobCommitment(t *testing.T, height uint64,
	htlcs []*lnwallet.HTLC) *lnwallet.CommitmentTransaction {

	t.Helper()

	point, err := c.bob.GetPerCommitmentPoint(
		lnwallet.CommitmentIndex(height),
	)
	require.NoError(t, err)

	return buildCommitment(
		t, c.aliceParams, false, height, point, testAliceBalance,
		cloneHTLCs(htlcs),
	)
}

// htlcDescriptors describes the HTLCs of alice's commitment.
func htlcDescriptors(commitTx *lnwallet.HolderCommitmentTransaction,
	preimage lntypes.Preimage) []*lnwallet.HTLCDescriptor {

	descs := make([]*lnwallet.HTLCDescriptor, 0, len(commitTx.HTLCs))
	for i, htlc := range commitTx.HTLCs {
		desc := &lnwallet.HTLCDescriptor{
			CommitmentTxID: commitTx.TxHash(),
			PerCommitmentNumber: lnwallet.CommitmentIndex(
				commitTx.CommitmentNumber,
			),
			PerCommitmentPoint: commitTx.Keys.PerCommitmentPoint,
			FeePerKw:           commitTx.FeePerKw,
			HTLC:               htlc,
			CounterpartySig:    commitTx.CounterpartyHtlcSigs[i],
		}
		if !htlc.Offered {
			desc.Preimage = fn.Some(preimage)
		}
		descs = append(descs, desc)
	}

	return descs
}

// assertSpends runs the script engine over input inputIndex of the
// transaction.
func assertSpends(t *testing.T, tx *wire.MsgTx, inputIndex int,
	prevOut *wire.TxOut) {

	t.Helper()

	fetcher := txscript.NewCannedPrevOutputFetcher(
		prevOut.PkScript, prevOut.Value,
	)
	vm, err := txscript.NewEngine(
		prevOut.PkScript, tx, inputIndex, txscript.StandardVerifyFlags,
		nil, txscript.NewTxSigHashes(tx, fetcher), prevOut.Value,
		fetcher,
	)
	require.NoError(t, err)
	require.NoError(t, vm.Execute())
}
