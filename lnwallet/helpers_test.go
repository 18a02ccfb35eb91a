package lnwallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lncommit/keychain"
	"github.com/lightningnetwork/lncommit/lnwire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var testFundingOutpoint = wire.OutPoint{
	Hash:  chainhash.Hash{0xfa, 0xce},
	Index: 0,
}

// testPubKeys derives a set of basepoints from private keys starting with the
// given byte.
func testPubKeys(first byte) ChannelPublicKeys {
	descs := make([]keychain.KeyDescriptor, 0, 5)
	for i := byte(0); i < 5; i++ {
		var secret [32]byte
		secret[0] = first
		secret[31] = i + 1

		_, pub := btcec.PrivKeyFromBytes(secret[:])
		descs = append(descs, keychain.KeyDescriptor{
			KeyLocator: keychain.KeyLocator{
				Family: keychain.ChannelKeyFamilies[i],
			},
			PubKey: pub,
		})
	}

	return ChannelPublicKeys{
		FundingKey:              descs[0],
		RevocationBasePoint:     descs[1],
		HtlcBasePoint:           descs[2],
		PaymentBasePoint:        descs[3],
		DelayedPaymentBasePoint: descs[4],
	}
}

// testChannelParams returns the parameters of both sides of a channel
// funded by the first one.
func testChannelParams(chanType lnwire.ChannelType,
	value btcutil.Amount) (*ChannelTransactionParameters,
	*ChannelTransactionParameters) {

	funderKeys := testPubKeys(0x01)
	fundeeKeys := testPubKeys(0x02)

	side := func(holder, counterparty ChannelPublicKeys, holderDelay,
		counterpartyDelay uint16,
		funder bool) *ChannelTransactionParameters {

		return &ChannelTransactionParameters{
			HolderPubKeys:              holder,
			HolderSelectedContestDelay: holderDelay,
			IsOutboundFromHolder:       funder,
			CounterpartyParameters: fn.Some(
				CounterpartyChannelTransactionParameters{
					PubKeys:              counterparty,
					SelectedContestDelay: counterpartyDelay,
				},
			),
			FundingOutpoint: fn.Some(testFundingOutpoint),
			ChannelType:     chanType,
			ChannelValue:    value,
		}
	}

	return side(funderKeys, fundeeKeys, 144, 720, true),
		side(fundeeKeys, funderKeys, 720, 144, false)
}

// testBuilder returns a builder holding the given parameters.
func testBuilder(params *ChannelTransactionParameters) *SpecTxBuilder {
	builder := NewSpecTxBuilder()
	builder.ProvidePopulatedParameters(params)

	return builder
}

// testCommitPoint returns a per-commitment point.
func testCommitPoint(n byte) *btcec.PublicKey {
	var secret [32]byte
	secret[0] = 0x33
	secret[31] = n

	_, pub := btcec.PrivKeyFromBytes(secret[:])

	return pub
}
