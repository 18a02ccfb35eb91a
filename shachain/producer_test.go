package shachain

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func hashFromHex(t *testing.T, s string) chainhash.Hash {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	var h chainhash.Hash
	copy(h[:], b)

	return h
}

// TestGenerateFromSeed checks the producer against the generation vectors
// of BOLT 3, Appendix D.
func TestGenerateFromSeed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		seed   string
		index  uint64
		secret string
	}{
		{
			name: "generate_from_seed 0 final node",
			seed: "0000000000000000000000000000000000000000000000" +
				"000000000000000000",
			index: 281474976710655,
			secret: "02a40c85b6f28da08dfdbe0926c53fab2de6d28c10301f" +
				"8f7c4073d5e42e3148",
		},
		{
			name: "generate_from_seed FF final node",
			seed: "ffffffffffffffffffffffffffffffffffffffffffffff" +
				"ffffffffffffffffff",
			index: 281474976710655,
			secret: "7cc854b54e3e0dcdb010d7a3fee464a9687be6e8db3be6" +
				"854c475621e007a5dc",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			producer := NewRevocationProducer(hashFromHex(t, tc.seed))

			secret, err := producer.AtShaChainIndex(tc.index)
			require.NoError(t, err)
			require.Equal(t, hashFromHex(t, tc.secret), *secret)

			// Height zero is the top of the index range.
			first, err := producer.AtIndex(0)
			require.NoError(t, err)
			require.Equal(t, secret, first)
		})
	}

	// Indexes beyond 48 bits aren't part of the chain.
	producer := NewRevocationProducer(chainhash.Hash{})
	_, err := producer.AtShaChainIndex(1 << 48)
	require.ErrorIs(t, err, ErrNotDerivable)
}

// TestProducerEncoding checks that a producer survives a round trip through
// its seed.
func TestProducerEncoding(t *testing.T) {
	t.Parallel()

	sender := NewRevocationProducer(
		chainhash.DoubleHashH([]byte("shachaintest")),
	)

	var b bytes.Buffer
	require.NoError(t, sender.Encode(&b))
	restored, err := NewRevocationProducerFromBytes(&b)
	require.NoError(t, err)

	for _, n := range []uint64{0, 1, 42, 10_000} {
		sha, err := restored.AtIndex(n)
		require.NoError(t, err)

		expected, err := sender.AtIndex(n)
		require.NoError(t, err)
		require.Equal(t, expected, sha)
	}
}
