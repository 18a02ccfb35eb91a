package lnwallet

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/input"
	"github.com/lightningnetwork/lncommit/lnwire"
)

const (
	// StateHintSize is the total number of bytes used between the sequence
	// number and locktime of the commitment transaction use to encode a hint
	// to the state number of a particular commitment transaction.
	StateHintSize = 6

	// maxStateHint is the maximum state number we're able to encode using
	// StateHintSize bytes amongst the sequence number and locktime fields
	// of the commitment transaction.
	maxStateHint uint64 = (1 << 48) - 1
)

var (
	// TimelockShift is used to make sure the commitment transaction is
	// spendable by setting the locktime with it so that it is larger than
	// 500,000,000, thus interpreting it as Unix epoch timestamp and not
	// a block height. It is also smaller than the current timestamp which
	// has bit (1 << 30) set, so there is no risk of having the commitment
	// transaction be rejected. This way we can safely use the lower 24 bits
	// of the locktime field for part of the obscured commitment transaction
	// number.
	TimelockShift = uint32(1 << 29)
)

// DeriveStateHintObfuscator derives the bytes to be used for obfuscating the
// state hints from the payment basepoints of the opener (key1) and the
// accepter (key2): the lower 48 bits of their hash.
func DeriveStateHintObfuscator(key1, key2 *btcec.PublicKey) [StateHintSize]byte {
	h := sha256.New()
	h.Write(key1.SerializeCompressed())
	h.Write(key2.SerializeCompressed())

	sha := h.Sum(nil)

	var obfuscator [StateHintSize]byte
	copy(obfuscator[:], sha[26:])

	return obfuscator
}

// obfuscatorInt widens the obfuscator to an integer.
func obfuscatorInt(obfuscator [StateHintSize]byte) uint64 {
	var obfs [8]byte
	copy(obfs[2:], obfuscator[:])

	return binary.BigEndian.Uint64(obfs[:])
}

// SetStateNumHint encodes the current state number within the passed
// commitment transaction by re-purposing the locktime and sequence fields in
// the commitment transaction to encode the obfuscated state number.  The state
// number is encoded using 48 bits. The lower 24 bits of the lock time are the
// lower 24 bits of the obfuscated state number and the lower 24 bits of the
// sequence field are the higher 24 bits. Finally before encoding, the
// obfuscator is XOR'd against the state number in order to hide the exact
// state number from the PoV of outside parties.
func SetStateNumHint(commitTx *wire.MsgTx, stateNum uint64,
	obfuscator [StateHintSize]byte) error {

	// With the current schema we are only able to encode state num
	// hints up to 2^48. Therefore if the passed height is greater than our
	// state hint ceiling, then exit early.
	if stateNum > maxStateHint {
		return fmt.Errorf("unable to encode state, %v is greater "+
			"state num that max of %v", stateNum, maxStateHint)
	}

	if len(commitTx.TxIn) != 1 {
		return fmt.Errorf("commitment tx must have exactly 1 input, "+
			"instead has %v", len(commitTx.TxIn))
	}

	stateNum ^= obfuscatorInt(obfuscator)

	// Set the height bit of the sequence number in order to disable any
	// sequence locks semantics.
	commitTx.TxIn[0].Sequence = uint32(stateNum>>24) |
		wire.SequenceLockTimeDisabled
	commitTx.LockTime = uint32(stateNum&0xFFFFFF) | TimelockShift

	return nil
}

// GetStateNumHint recovers the current state number given a commitment
// transaction which has previously had the state number encoded within it via
// SetStateNumHint and a shared obfuscator.
func GetStateNumHint(commitTx *wire.MsgTx,
	obfuscator [StateHintSize]byte) uint64 {

	// Retrieve the state hint from the sequence number and locktime
	// of the transaction.
	stateNumXor := uint64(commitTx.TxIn[0].Sequence&0xFFFFFF) << 24
	stateNumXor |= uint64(commitTx.LockTime & 0xFFFFFF)

	// Finally, to obtain the final state number, we XOR by the obfuscator
	// value to de-obfuscate the state number.
	return stateNumXor ^ obfuscatorInt(obfuscator)
}

// CommitTxVersion returns the version of the commitment and second-level
// transactions of the channel type. Zero-fee commitments rely on the
// topologically restricted (TRUC) relay policy of version 3.
func CommitTxVersion(chanType lnwire.ChannelType) int32 {
	if chanType.HasZeroFeeCommitments() {
		return 3
	}

	return 2
}

// HtlcSecondLevelInputSequence dictates the sequence number we must use on
// the input to a second level HTLC transaction. Anchor channels lock HTLC
// outputs behind a one block CSV.
func HtlcSecondLevelInputSequence(chanType lnwire.ChannelType) uint32 {
	if chanType.HasAnchorsZeroFeeHtlcTx() {
		return 1
	}

	return 0
}

// HtlcSigHashType returns the sighash type the countersignatory uses for its
// signatures on second-level HTLC transactions. Without pre-funded fees the
// broadcaster has to be able to attach inputs and outputs.
func HtlcSigHashType(chanType lnwire.ChannelType) txscript.SigHashType {
	if chanType.HasZeroFeeHtlcTx() {
		return txscript.SigHashSingle | txscript.SigHashAnyOneCanPay
	}

	return txscript.SigHashAll
}

// secondLevelOutput builds the output every second-level HTLC transaction
// pays to.
func secondLevelOutput(amt btcutil.Amount, csvDelay uint32,
	revocationKey, delayKey *btcec.PublicKey) (*wire.TxOut, error) {

	witnessScript, err := input.SecondLevelHtlcScript(
		revocationKey, delayKey, csvDelay,
	)
	if err != nil {
		return nil, err
	}
	pkScript, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}

	return &wire.TxOut{
		Value:    int64(amt),
		PkScript: pkScript,
	}, nil
}

// CreateHtlcSuccessTx creates a transaction that spends the output on the
// commitment transaction of the peer that receives an HTLC. This transaction
// essentially acts as an off-chain covenant as it's only permitted to spend
// the designated HTLC output, and also that spend can _only_ be used as a
// state transition to create another output which actually allows redemption
// or revocation of an HTLC.
//
// In order to spend the HTLC output, the witness for the passed transaction
// should be:
//   - <0> <sender sig> <recvr sig> <preimage>
func CreateHtlcSuccessTx(chanType lnwire.ChannelType,
	htlcOutput wire.OutPoint, htlcAmt btcutil.Amount, csvDelay uint32,
	revocationKey, delayKey *btcec.PublicKey) (*wire.MsgTx, error) {

	successTx := wire.NewMsgTx(CommitTxVersion(chanType))

	// The input to the transaction is the outpoint that creates the
	// original HTLC on the sender's commitment transaction. Set the
	// sequence number based on the channel type.
	successTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: htlcOutput,
		Sequence:         HtlcSecondLevelInputSequence(chanType),
	})

	output, err := secondLevelOutput(
		htlcAmt, csvDelay, revocationKey, delayKey,
	)
	if err != nil {
		return nil, err
	}
	successTx.AddTxOut(output)

	return successTx, nil
}

// CreateHtlcTimeoutTx creates a transaction that spends the HTLC output on the
// commitment transaction of the peer that created an HTLC (the sender). This
// transaction essentially acts as an off-chain covenant as it spends a 2-of-2
// multi-sig output. This output requires a signature from both the sender and
// receiver of the HTLC. By using a distinct transaction, we're able to
// uncouple the timeout and delay clauses of the HTLC contract. This
// transaction is locked with an absolute lock-time so the sender can only
// attempt to claim the output using it after the lock time has passed.
//
// In order to spend the HTLC output, the witness for the passed transaction
// should be:
//   - <0> <sender sig> <receiver sig> <0>
//
// NOTE: The passed amount for the HTLC should take into account the required
// fee rate at the time the HTLC was created. The fee should be able to
// entirely pay for this (tiny: 1-in 1-out) transaction.
func CreateHtlcTimeoutTx(chanType lnwire.ChannelType,
	htlcOutput wire.OutPoint, htlcAmt btcutil.Amount,
	cltvExpiry, csvDelay uint32,
	revocationKey, delayKey *btcec.PublicKey) (*wire.MsgTx, error) {

	timeoutTx := wire.NewMsgTx(CommitTxVersion(chanType))
	timeoutTx.LockTime = cltvExpiry

	timeoutTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: htlcOutput,
		Sequence:         HtlcSecondLevelInputSequence(chanType),
	})

	output, err := secondLevelOutput(
		htlcAmt, csvDelay, revocationKey, delayKey,
	)
	if err != nil {
		return nil, err
	}
	timeoutTx.AddTxOut(output)

	return timeoutTx, nil
}

// sortableOutputs sorts commitment outputs together with the CLTV of the HTLC
// each of them pays to, and the position the output had before sorting.
type sortableOutputs struct {
	outputs   []*wire.TxOut
	cltvs     []uint32
	positions []int
}

// Len returns the number of outputs.
//
// NOTE: Part of the sort.Interface interface.
func (s *sortableOutputs) Len() int { return len(s.outputs) }

// Swap exchanges the outputs at i and j.
//
// NOTE: Part of the sort.Interface interface.
func (s *sortableOutputs) Swap(i, j int) {
	s.outputs[i], s.outputs[j] = s.outputs[j], s.outputs[i]
	s.cltvs[i], s.cltvs[j] = s.cltvs[j], s.cltvs[i]
	s.positions[i], s.positions[j] = s.positions[j], s.positions[i]
}

// Less orders by value, then by lexicographic script, then by CLTV, which
// breaks the tie between HTLCs that differ only in expiry.
//
// NOTE: Part of the sort.Interface interface.
func (s *sortableOutputs) Less(i, j int) bool {
	if s.outputs[i].Value != s.outputs[j].Value {
		return s.outputs[i].Value < s.outputs[j].Value
	}

	cmp := bytes.Compare(s.outputs[i].PkScript, s.outputs[j].PkScript)
	if cmp != 0 {
		return cmp < 0
	}

	return s.cltvs[i] < s.cltvs[j]
}

// InPlaceCommitSort performs an in-place sort of the outputs of a commitment
// transaction, following BIP 69 with the CLTV as final tie breaker. The cltvs
// slice holds the expiry of every HTLC output and zero for the others, it is
// reordered along with the outputs. The returned slice maps every new output
// index to the index the output had before.
func InPlaceCommitSort(tx *wire.MsgTx, cltvs []uint32) []int {
	positions := make([]int, len(tx.TxOut))
	for i := range positions {
		positions[i] = i
	}

	sort.Stable(&sortableOutputs{
		outputs:   tx.TxOut,
		cltvs:     cltvs,
		positions: positions,
	})

	return positions
}
