package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "0xB66a603f4cFe17e3D27B87a8BfCaD319856518B8"
	testOwner    = "0x9B1e3A4F2c3A5d1E8b6e59F21fF8cD7a4f3E0a11"
)

func TestIDs(t *testing.T) {
	t.Run("item ids", func(t *testing.T) {
		t.Run("parses and normalizes a full item id", func(t *testing.T) {
			id, err := ParseItemID("ethereum:" + testContract + ":0042")
			require.NoError(t, err)
			assert.Equal(t, ChainEthereum, id.Chain)
			assert.Equal(t, Address("0xb66a603f4cfe17e3d27b87a8bfcad319856518b8"), id.Contract)
			assert.Equal(t, "42", id.TokenID)
			assert.Equal(t, "ETHEREUM:0xb66a603f4cfe17e3d27b87a8bfcad319856518b8:42", id.String())
		})

		t.Run("round trips through its string form", func(t *testing.T) {
			id, err := NewItemID(ChainPolygon, testContract, "7")
			require.NoError(t, err)
			parsed, err := ParseItemID(id.String())
			require.NoError(t, err)
			assert.Equal(t, id, parsed)
		})

		t.Run("rejects malformed ids", func(t *testing.T) {
			for _, s := range []string{
				"",
				"ETHEREUM",
				"ETHEREUM:" + testContract,
				"ETHEREUM:" + testContract + ":",
				"ETHEREUM:" + testContract + ":-1",
				"ETHEREUM:" + testContract + ":abc",
				"ETHEREUM:0x123:1",
				"BITCOIN:" + testContract + ":1",
			} {
				_, err := ParseItemID(s)
				var invalid ErrInvalidInput
				assert.ErrorAs(t, err, &invalid, "expected %q to be rejected", s)
			}
		})
	})

	t.Run("ownership ids", func(t *testing.T) {
		id, err := ParseOwnershipID("POLYGON:" + testContract + ":1:" + testOwner)
		require.NoError(t, err)
		assert.Equal(t, Address("0x9b1e3a4f2c3a5d1e8b6e59f21ff8cd7a4f3e0a11"), id.Owner)
		assert.Equal(t, ItemID{Chain: ChainPolygon, Contract: id.Contract, TokenID: "1"}, id.ItemID())

		parsed, err := ParseOwnershipID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)

		_, err = ParseOwnershipID("POLYGON:" + testContract + ":1")
		assert.Error(t, err)
	})

	t.Run("collection ids", func(t *testing.T) {
		id, err := ParseCollectionID("ETHEREUM:" + testContract)
		require.NoError(t, err)
		assert.Equal(t, "ETHEREUM:0xb66a603f4cfe17e3d27b87a8bfcad319856518b8", id.String())

		_, err = ParseCollectionID("TEZOS:not-an-address")
		assert.Error(t, err)
	})

	t.Run("order ids are case insensitive", func(t *testing.T) {
		id, err := ParseOrderID("Ethereum:0xABCDEF")
		require.NoError(t, err)
		assert.Equal(t, OrderID{Chain: ChainEthereum, Hash: "0xabcdef"}, id)
	})

	t.Run("ids work as text map keys", func(t *testing.T) {
		id, err := ParseOrderID("FLOW:123")
		require.NoError(t, err)
		b, err := id.MarshalText()
		require.NoError(t, err)

		var out OrderID
		require.NoError(t, out.UnmarshalText(b))
		assert.Equal(t, id, out)
	})
}

func TestParseChains(t *testing.T) {
	chains, err := ParseChains([]string{"tezos", "ETHEREUM", "Tezos"})
	require.NoError(t, err)
	assert.Equal(t, []Chain{ChainTezos, ChainEthereum}, chains)

	_, err = ParseChains([]string{"ethereum", "dogecoin"})
	assert.Error(t, err)
}

func TestNormalizeAddress(t *testing.T) {
	t.Run("flow addresses get a lowercase 0x prefix", func(t *testing.T) {
		addr, err := NormalizeAddress(ChainFlow, "01CF0E2F2F715450")
		require.NoError(t, err)
		assert.Equal(t, Address("0x01cf0e2f2f715450"), addr)
	})

	t.Run("invalid tezos addresses are rejected", func(t *testing.T) {
		_, err := NormalizeAddress(ChainTezos, "tz1notreal")
		assert.Error(t, err)
	})

	t.Run("solana addresses keep their case", func(t *testing.T) {
		addr, err := NormalizeAddress(ChainSolana, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
		require.NoError(t, err)
		assert.Equal(t, Address("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"), addr)
	})
}
