package input

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/lntypes"
)

const (
	// witnessScaleFactor determines the level of "discount" witness data
	// receives compared to "base" data. A scale factor of 4, denotes that
	// witness data is 1/4 as cheap as regular non-witness data.
	witnessScaleFactor = blockchain.WitnessScaleFactor

	// The weight(weight), which is different from the !size! (see BIP-141),
	// is calculated as:
	// Weight = 4 * BaseSize + WitnessSize (weight).
	// BaseSize - size of the transaction without witness data (bytes).
	// WitnessSize - witness size (bytes).
	// Weight - the metric for determining the weight of the transaction.

	// P2WKHSize 22 bytes
	//	- OP_0: 1 byte
	//	- OP_DATA: 1 byte (PublicKeyHASH160 length)
	//	- PublicKeyHASH160: 20 bytes
	P2WKHSize = 1 + 1 + 20

	// P2WSHSize 34 bytes
	//	- OP_0: 1 byte
	//	- OP_DATA: 1 byte (WitnessScriptSHA256 length)
	//	- WitnessScriptSHA256: 32 bytes
	P2WSHSize = 1 + 1 + 32

	// P2ASize 4 bytes
	//	- OP_1: 1 byte
	//	- OP_DATA: 1 byte
	//	- 0x4e73: 2 bytes
	P2ASize = 1 + 1 + 2

	// P2WKHOutputSize 31 bytes
	//	- value: 8 bytes
	//	- var_int: 1 byte (pkscript_length)
	//	- pkscript (p2wpkh): 22 bytes
	P2WKHOutputSize = 8 + 1 + P2WKHSize

	// P2WSHOutputSize 43 bytes
	//	- value: 8 bytes
	//	- var_int: 1 byte (pkscript_length)
	//	- pkscript (p2wsh): 34 bytes
	P2WSHOutputSize = 8 + 1 + P2WSHSize

	// P2AOutputSize 13 bytes
	//	- value: 8 bytes
	//	- var_int: 1 byte (pkscript_length)
	//	- pkscript (p2a): 4 bytes
	P2AOutputSize = 8 + 1 + P2ASize

	// InputSize 41 bytes
	//	- PreviousOutPoint:
	//		- Hash: 32 bytes
	//		- Index: 4 bytes
	//	- OP_DATA: 1 byte (ScriptSigLength)
	//	- ScriptSig: 0 bytes
	//	- Witness <----	we use "Witness" instead of "ScriptSig" for
	// 			transaction validation, but "Witness" is stored
	// 			separately and weight for it size is smaller. So
	// 			we separate the calculation of ordinary data
	// 			from witness data.
	//	- Sequence: 4 bytes
	InputSize = 32 + 4 + 1 + 4

	// BaseTxSize 8 bytes
	//	- Version: 4 bytes
	//	- LockTime: 4 bytes
	BaseTxSize = 4 + 4

	// P2WKHWitnessSize 109 bytes
	//	- number_of_witness_elements: 1 byte
	//	- signature_length: 1 byte
	//	- signature: 73 bytes
	//	- pubkey_length: 1 byte
	//	- pubkey: 33 bytes
	P2WKHWitnessSize = 1 + 1 + 73 + 1 + 33

	// WitnessHeaderSize 2 bytes
	//	- Flag: 1 byte
	//	- Marker: 1 byte
	WitnessHeaderSize = 1 + 1

	// ToLocalScriptSize 79 bytes
	//	- OP_IF: 1 byte
	//	- OP_DATA: 1 byte
	//	- revoke_key: 33 bytes
	//	- OP_ELSE: 1 byte
	//	- OP_DATA: 1 byte
	//	- csv_delay: 4 bytes
	//	- OP_CHECKSEQUENCEVERIFY: 1 byte
	//	- OP_DROP: 1 byte
	//	- OP_DATA: 1 byte
	//	- delay_key: 33 bytes
	//	- OP_ENDIF: 1 byte
	//	- OP_CHECKSIG: 1 byte
	ToLocalScriptSize = 1 + 1 + 33 + 1 + 1 + 4 + 1 + 1 + 1 + 33 + 1 + 1

	// ToLocalPenaltyWitnessSize 157 bytes
	//	- number_of_witness_elements: 1 byte
	//	- revocation_sig_length: 1 byte
	//	- revocation_sig: 73 bytes
	//	- OP_TRUE_length: 1 byte
	//	- OP_TRUE: 1 byte
	//	- witness_script_length: 1 byte
	//	- witness_script (to_local_script)
	ToLocalPenaltyWitnessSize = 1 + 1 + 73 + 1 + 1 + 1 + ToLocalScriptSize

	// HtlcConfirmedScriptOverhead is the extra length of an HTLC script
	// that requires confirmation before it can be spent. These extra bytes
	// is a result of the extra CSV check.
	HtlcConfirmedScriptOverhead = 3

	// OfferedHtlcScriptSize 133 bytes
	//	- OP_DUP: 1 byte
	//	- OP_HASH160: 1 byte
	//	- OP_DATA: 1 byte (RIPEMD160(SHA256(revocationkey)) length)
	//	- RIPEMD160(SHA256(revocationkey)): 20 bytes
	//	- OP_EQUAL: 1 byte
	//	- OP_IF: 1 byte
	//		- OP_CHECKSIG: 1 byte
	//	- OP_ELSE: 1 byte
	//		- OP_DATA: 1 byte (remotekey length)
	//		- remotekey: 33 bytes
	//		- OP_SWAP: 1 byte
	//		- OP_SIZE: 1 byte
	//		- OP_DATA: 1 byte (32 length)
	//		- 32: 1 byte
	//		- OP_EQUAL: 1 byte
	//		- OP_NOTIF: 1 byte
	//			- OP_DROP: 1 byte
	//			- 2: 1 byte
	//			- OP_SWAP: 1 byte
	//			- OP_DATA: 1 byte (localkey length)
	//			- localkey: 33 bytes
	//			- 2: 1 byte
	//			- OP_CHECKMULTISIG: 1 byte
	//		- OP_ELSE: 1 byte
	//			- OP_HASH160: 1 byte
	//			- OP_DATA: 1 byte (RIPEMD160(payment_hash) length)
	//			- RIPEMD160(payment_hash): 20 bytes
	//			- OP_EQUALVERIFY: 1 byte
	//			- OP_CHECKSIG: 1 byte
	//		- OP_ENDIF: 1 byte
	//	- OP_ENDIF: 1 byte
	OfferedHtlcScriptSize = 3*1 + 20 + 5*1 + 33 + 10*1 + 33 + 5*1 + 20 + 4*1

	// OfferedHtlcScriptSizeConfirmed 136 bytes.
	OfferedHtlcScriptSizeConfirmed = OfferedHtlcScriptSize +
		HtlcConfirmedScriptOverhead

	// AcceptedHtlcScriptSize 140 bytes, sized for the largest four byte
	// cltv expiry.
	//	- OP_DUP: 1 byte
	//	- OP_HASH160: 1 byte
	//	- OP_DATA: 1 byte (RIPEMD160(SHA256(revocationkey)) length)
	//	- RIPEMD160(SHA256(revocationkey)): 20 bytes
	//	- OP_EQUAL: 1 byte
	//	- OP_IF: 1 byte
	//		- OP_CHECKSIG: 1 byte
	//	- OP_ELSE: 1 byte
	//		- OP_DATA: 1 byte (remotekey length)
	//		- remotekey: 33 bytes
	//		- OP_SWAP: 1 byte
	//		- OP_SIZE: 1 byte
	//		- OP_DATA: 1 byte (32 length)
	//		- 32: 1 byte
	//		- OP_EQUAL: 1 byte
	//		- OP_IF: 1 byte
	//			- OP_HASH160: 1 byte
	//			- OP_DATA: 1 byte (RIPEMD160(payment_hash) length)
	//			- RIPEMD160(payment_hash): 20 bytes
	//			- OP_EQUALVERIFY: 1 byte
	//			- 2: 1 byte
	//			- OP_SWAP: 1 byte
	//			- OP_DATA: 1 byte (localkey length)
	//			- localkey: 33 bytes
	//			- 2: 1 byte
	//			- OP_CHECKMULTISIG: 1 byte
	//		- OP_ELSE: 1 byte
	//			- OP_DROP: 1 byte
	//			- OP_DATA: 1 byte (cltv_expiry length)
	//			- cltv_expiry: 4 bytes
	//			- OP_CHECKLOCKTIMEVERIFY: 1 byte
	//			- OP_DROP: 1 byte
	//			- OP_CHECKSIG: 1 byte
	//		- OP_ENDIF: 1 byte
	//	- OP_ENDIF: 1 byte
	AcceptedHtlcScriptSize = 3*1 + 20 + 5*1 + 33 + 8*1 + 20 + 4*1 +
		33 + 5*1 + 4 + 5*1

	// AcceptedHtlcScriptSizeConfirmed 143 bytes.
	AcceptedHtlcScriptSizeConfirmed = AcceptedHtlcScriptSize +
		HtlcConfirmedScriptOverhead

	// AcceptedHtlcSuccessWitnessSize 324 bytes
	//	- number_of_witness_elements: 1 byte
	//	- nil_length: 1 byte
	//	- sig_alice_length: 1 byte
	//	- sig_alice: 73 bytes
	//	- sig_bob_length: 1 byte
	//	- sig_bob: 73 bytes
	//	- preimage_length: 1 byte
	//	- preimage: 32 bytes
	//	- witness_script_length: 1 byte
	//	- witness_script (accepted_htlc_script)
	AcceptedHtlcSuccessWitnessSize = 1 + 1 + 1 + 73 + 1 + 73 + 1 + 32 + 1 +
		AcceptedHtlcScriptSize

	// AcceptedHtlcSuccessWitnessSizeConfirmed 327 bytes.
	AcceptedHtlcSuccessWitnessSizeConfirmed = 1 + 1 + 1 + 73 + 1 + 73 + 1 +
		32 + 1 + AcceptedHtlcScriptSizeConfirmed

	// OfferedHtlcTimeoutWitnessSize 285 bytes
	//	- number_of_witness_elements: 1 byte
	//	- nil_length: 1 byte
	//	- sig_alice_length: 1 byte
	//	- sig_alice: 73 bytes
	//	- sig_bob_length: 1 byte
	//	- sig_bob: 73 bytes
	//	- nil_length: 1 byte
	//	- witness_script_length: 1 byte
	//	- witness_script (offered_htlc_script)
	OfferedHtlcTimeoutWitnessSize = 1 + 1 + 1 + 73 + 1 + 73 + 1 + 1 +
		OfferedHtlcScriptSize

	// OfferedHtlcTimeoutWitnessSizeConfirmed 288 bytes.
	OfferedHtlcTimeoutWitnessSizeConfirmed = 1 + 1 + 1 + 73 + 1 + 73 + 1 +
		1 + OfferedHtlcScriptSizeConfirmed

	// OfferedHtlcPenaltyWitnessSize 243 bytes
	//	- number_of_witness_elements: 1 byte
	//	- revocation_sig_length: 1 byte
	//	- revocation_sig: 73 bytes
	//	- revocation_key_length: 1 byte
	//	- revocation_key: 33 bytes
	//	- witness_script_length: 1 byte
	//	- witness_script (offered_htlc_script)
	OfferedHtlcPenaltyWitnessSize = 1 + 1 + 73 + 1 + 33 + 1 +
		OfferedHtlcScriptSize

	// OfferedHtlcPenaltyWitnessSizeConfirmed 246 bytes.
	OfferedHtlcPenaltyWitnessSizeConfirmed = 1 + 1 + 73 + 1 + 33 + 1 +
		OfferedHtlcScriptSizeConfirmed

	// AcceptedHtlcPenaltyWitnessSize 250 bytes
	//	- number_of_witness_elements: 1 byte
	//	- revocation_sig_length: 1 byte
	//	- revocation_sig: 73 bytes
	//	- revocation_key_length: 1 byte
	//	- revocation_key: 33 bytes
	//	- witness_script_length: 1 byte
	//	- witness_script (accepted_htlc_script)
	AcceptedHtlcPenaltyWitnessSize = 1 + 1 + 73 + 1 + 33 + 1 +
		AcceptedHtlcScriptSize

	// AcceptedHtlcPenaltyWitnessSizeConfirmed 253 bytes.
	AcceptedHtlcPenaltyWitnessSizeConfirmed = 1 + 1 + 73 + 1 + 33 + 1 +
		AcceptedHtlcScriptSizeConfirmed

	// OfferedHtlcSuccessWitnessSize 242 bytes, the counterparty claiming
	// an offered HTLC directly with the preimage.
	//	- number_of_witness_elements: 1 byte
	//	- receiver_sig_length: 1 byte
	//	- receiver_sig: 73 bytes
	//	- payment_preimage_length: 1 byte
	//	- payment_preimage: 32 bytes
	//	- witness_script_length: 1 byte
	//	- witness_script (offered_htlc_script)
	OfferedHtlcSuccessWitnessSize = 1 + 1 + 73 + 1 + 32 + 1 +
		OfferedHtlcScriptSize

	// OfferedHtlcSuccessWitnessSizeConfirmed 245 bytes.
	OfferedHtlcSuccessWitnessSizeConfirmed = 1 + 1 + 73 + 1 + 32 + 1 +
		OfferedHtlcScriptSizeConfirmed

	// AcceptedHtlcTimeoutWitnessSize 217 bytes, the counterparty timing
	// out an accepted HTLC directly.
	//	- number_of_witness_elements: 1 byte
	//	- sender_sig_length: 1 byte
	//	- sender_sig: 73 bytes
	//	- nil_length: 1 byte
	//	- witness_script_length: 1 byte
	//	- witness_script (accepted_htlc_script)
	AcceptedHtlcTimeoutWitnessSize = 1 + 1 + 73 + 1 + 1 +
		AcceptedHtlcScriptSize

	// AcceptedHtlcTimeoutWitnessSizeConfirmed 220 bytes.
	AcceptedHtlcTimeoutWitnessSizeConfirmed = 1 + 1 + 73 + 1 + 1 +
		AcceptedHtlcScriptSizeConfirmed
)

const (
	// CommitWeight 724 weight is the base weight of a commitment
	// transaction without anchors and without any HTLC outputs.
	CommitWeight lntypes.WeightUnit = 724

	// AnchorCommitWeight 1124 weight is the base weight of a commitment
	// transaction with the two keyed anchor outputs.
	AnchorCommitWeight lntypes.WeightUnit = 1124

	// HTLCWeight 172 weight is the weight every non-dust HTLC output adds
	// to a commitment transaction.
	HTLCWeight lntypes.WeightUnit = 172

	// HtlcTimeoutWeight 663 weight is the weight of the second-level HTLC
	// timeout transaction which will transition an outgoing HTLC to the
	// delay-and-claim state.
	HtlcTimeoutWeight lntypes.WeightUnit = 663

	// HtlcTimeoutWeightConfirmed 666 weight is the weight of the timeout
	// transaction spending an HTLC script with the extra CSV check.
	HtlcTimeoutWeightConfirmed lntypes.WeightUnit = HtlcTimeoutWeight +
		HtlcConfirmedScriptOverhead

	// HtlcSuccessWeight 703 weight is the weight of the second-level HTLC
	// success transaction which will transition an incoming HTLC to the
	// delay-and-claim state.
	HtlcSuccessWeight lntypes.WeightUnit = 703

	// HtlcSuccessWeightConfirmed 706 weight is the weight of the success
	// transaction spending an HTLC script with the extra CSV check.
	HtlcSuccessWeightConfirmed lntypes.WeightUnit = HtlcSuccessWeight +
		HtlcConfirmedScriptOverhead

	// TrucMaxWeight is the largest weight a version 3 transaction may have
	// to be relayed, 10,000 vbytes.
	TrucMaxWeight lntypes.WeightUnit = 10_000 * witnessScaleFactor
)

// TxWeightEstimator is able to calculate weight estimates for transactions
// based on the input and output types. For purposes of estimation, all
// signatures are assumed to be of the maximum possible size, 73 bytes. Each
// method of the estimator returns an instance with the estimate applied. This
// allows callers to chain each of the methods.
type TxWeightEstimator struct {
	hasWitness       bool
	inputCount       uint32
	outputCount      uint32
	inputSize        int
	inputWitnessSize int
	outputSize       int
}

// AddWitnessInput updates the weight estimate to account for an additional
// input spending a native P2PWKH output with the given witness size.
func (twe *TxWeightEstimator) AddWitnessInput(
	witnessSize int) *TxWeightEstimator {

	twe.inputSize += InputSize
	twe.inputWitnessSize += witnessSize
	twe.inputCount++
	twe.hasWitness = true

	return twe
}

// AddP2WKHInput updates the weight estimate to account for an additional
// input spending a native P2PWKH output.
func (twe *TxWeightEstimator) AddP2WKHInput() *TxWeightEstimator {
	return twe.AddWitnessInput(P2WKHWitnessSize)
}

// AddTxOutput adds a known TxOut to the weight estimator.
func (twe *TxWeightEstimator) AddTxOutput(txOut *wire.TxOut) *TxWeightEstimator {
	twe.outputSize += txOut.SerializeSize()
	twe.outputCount++

	return twe
}

// AddP2WKHOutput updates the weight estimate to account for an additional
// native P2WKH output.
func (twe *TxWeightEstimator) AddP2WKHOutput() *TxWeightEstimator {
	twe.outputSize += P2WKHOutputSize
	twe.outputCount++

	return twe
}

// AddP2WSHOutput updates the weight estimate to account for an additional
// native P2WSH output.
func (twe *TxWeightEstimator) AddP2WSHOutput() *TxWeightEstimator {
	twe.outputSize += P2WSHOutputSize
	twe.outputCount++

	return twe
}

// AddP2AOutput updates the weight estimate to account for an additional
// pay-to-anchor output.
func (twe *TxWeightEstimator) AddP2AOutput() *TxWeightEstimator {
	twe.outputSize += P2AOutputSize
	twe.outputCount++

	return twe
}

// Weight gets the estimated weight of the transaction.
func (twe *TxWeightEstimator) Weight() lntypes.WeightUnit {
	inputCount := wire.VarIntSerializeSize(uint64(twe.inputCount))
	outputCount := wire.VarIntSerializeSize(uint64(twe.outputCount))
	txSizeStripped := BaseTxSize + inputCount + twe.inputSize +
		outputCount + twe.outputSize

	weight := txSizeStripped * witnessScaleFactor
	if twe.hasWitness {
		weight += WitnessHeaderSize + twe.inputWitnessSize
	}

	return lntypes.WeightUnit(weight)
}

// VSize gets the estimated virtual size of the transactions, in vbytes.
func (twe *TxWeightEstimator) VSize() lntypes.VByte {
	return twe.Weight().ToVB()
}
