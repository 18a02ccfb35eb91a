package chansigner

import "fmt"

// SignerOp names one operation of a channel signer. Every operation can be
// disabled individually to simulate an unavailable signer.
type SignerOp uint8

const (
	// OpGetPerCommitmentPoint derives a per-commitment point.
	OpGetPerCommitmentPoint SignerOp = iota

	// OpReleaseCommitmentSecret revokes one of our commitments.
	OpReleaseCommitmentSecret

	// OpValidateHolderCommitment accepts a newly signed commitment of
	// ours.
	OpValidateHolderCommitment

	// OpSignCounterpartyCommitment signs a counterparty commitment.
	OpSignCounterpartyCommitment

	// OpValidateCounterpartyRevocation accepts a counterparty revocation.
	OpValidateCounterpartyRevocation

	// OpSignHolderCommitment signs our commitment for broadcast.
	OpSignHolderCommitment

	// OpSignJusticeRevokedOutput signs the penalty of a revoked to_local
	// output.
	OpSignJusticeRevokedOutput

	// OpSignJusticeRevokedHtlc signs the penalty of a revoked HTLC
	// output.
	OpSignJusticeRevokedHtlc

	// OpSignHolderHtlcTransaction signs a second-level transaction of our
	// commitment.
	OpSignHolderHtlcTransaction

	// OpSignCounterpartyHtlcTransaction signs a direct spend of an HTLC
	// output of a counterparty commitment.
	OpSignCounterpartyHtlcTransaction

	// OpSignClosingTransaction signs a cooperative close.
	OpSignClosingTransaction

	// OpSignHolderAnchorInput signs the spend of our keyed anchor.
	OpSignHolderAnchorInput

	// OpSignChannelAnnouncementWithFundingKey signs a channel
	// announcement.
	OpSignChannelAnnouncementWithFundingKey

	numSignerOps
)

// AllSignerOps returns every signer operation.
func AllSignerOps() []SignerOp {
	ops := make([]SignerOp, 0, numSignerOps)
	for op := SignerOp(0); op < numSignerOps; op++ {
		ops = append(ops, op)
	}

	return ops
}

// String returns the name of the operation.
func (o SignerOp) String() string {
	switch o {
	case OpGetPerCommitmentPoint:
		return "GetPerCommitmentPoint"
	case OpReleaseCommitmentSecret:
		return "ReleaseCommitmentSecret"
	case OpValidateHolderCommitment:
		return "ValidateHolderCommitment"
	case OpSignCounterpartyCommitment:
		return "SignCounterpartyCommitment"
	case OpValidateCounterpartyRevocation:
		return "ValidateCounterpartyRevocation"
	case OpSignHolderCommitment:
		return "SignHolderCommitment"
	case OpSignJusticeRevokedOutput:
		return "SignJusticeRevokedOutput"
	case OpSignJusticeRevokedHtlc:
		return "SignJusticeRevokedHtlc"
	case OpSignHolderHtlcTransaction:
		return "SignHolderHtlcTransaction"
	case OpSignCounterpartyHtlcTransaction:
		return "SignCounterpartyHtlcTransaction"
	case OpSignClosingTransaction:
		return "SignClosingTransaction"
	case OpSignHolderAnchorInput:
		return "SignHolderAnchorInput"
	case OpSignChannelAnnouncementWithFundingKey:
		return "SignChannelAnnouncementWithFundingKey"
	default:
		return fmt.Sprintf("SignerOp(%d)", uint8(o))
	}
}
