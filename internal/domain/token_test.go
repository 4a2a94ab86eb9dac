package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() MarketMetadata {
	return MarketMetadata{
		MarketID: "0xproposal",
		Company: TokenGroup{
			Base: TokenInfo{Address: "0xC000000000000000000000000000000000000000", Symbol: "GNO"},
			Yes:  TokenInfo{Address: "0xc100000000000000000000000000000000000000", Symbol: "YES_GNO"},
			No:   TokenInfo{Address: "0xc200000000000000000000000000000000000000", Symbol: "NO_GNO"},
		},
		Currency: TokenGroup{
			Base: TokenInfo{Address: "0xd000000000000000000000000000000000000000", Symbol: "sDAI"},
			Yes:  TokenInfo{Address: "0xd100000000000000000000000000000000000000", Symbol: "YES_sDAI"},
			No:   TokenInfo{Address: "0xd200000000000000000000000000000000000000", Symbol: "NO_sDAI"},
		},
		Base: TokenGroup{
			Base: TokenInfo{Address: "0xb000000000000000000000000000000000000000", Symbol: "USDS"},
		},
	}
}

func TestTokenTable_Classify(t *testing.T) {
	table := NewTokenTable(testMeta())
	assert.Equal(t, 7, table.Len())

	r, ok := table.Classify("0xC100000000000000000000000000000000000000")
	require.True(t, ok)
	assert.Equal(t, CategoryCompany, r.Category)
	assert.Equal(t, SideYes, r.Side)
	assert.True(t, r.IsConditional())
	assert.Equal(t, int32(TokenDecimals), r.Decimals)
	assert.Equal(t, "0xc100000000000000000000000000000000000000", r.Address)

	r, ok = table.Classify("0xb000000000000000000000000000000000000000")
	require.True(t, ok)
	assert.Equal(t, CategoryBase, r.Category)
	assert.Equal(t, SideNone, r.Side)
	assert.False(t, r.IsConditional())

	_, ok = table.Classify("0x0000000000000000000000000000000000000001")
	assert.False(t, ok)
}

func TestTokenTable_FirstRegistrationWins(t *testing.T) {
	meta := testMeta()
	// la misma dirección como NO_sDAI y como base
	meta.Base.Base.Address = meta.Currency.No.Address

	table := NewTokenTable(meta)
	r, ok := table.Classify(meta.Currency.No.Address)
	require.True(t, ok)
	assert.Equal(t, CategoryCurrency, r.Category)
	assert.Equal(t, SideNo, r.Side)
	assert.Equal(t, 6, table.Len())
}

func TestTokenTable_Collateral(t *testing.T) {
	table := NewTokenTable(testMeta())

	r, ok := table.Collateral(CategoryCompany)
	require.True(t, ok)
	assert.Equal(t, "GNO", r.Symbol)

	r, ok = table.Collateral(CategoryCurrency)
	require.True(t, ok)
	assert.Equal(t, "sDAI", r.Symbol)
}

func TestTokenTable_NilSafe(t *testing.T) {
	var table *TokenTable
	_, ok := table.Classify("0xabc")
	assert.False(t, ok)
	_, ok = table.Collateral(CategoryCompany)
	assert.False(t, ok)
	assert.Zero(t, table.Len())
	assert.Equal(t, MarketMetadata{}, table.Metadata())
}

func TestMarketMetadata_Addresses(t *testing.T) {
	meta := testMeta()
	addrs := meta.Addresses()
	require.Len(t, addrs, 7)
	assert.Equal(t, meta.Company.Base.Address, addrs[0])
	assert.Equal(t, meta.Base.Base.Address, addrs[6])
}
