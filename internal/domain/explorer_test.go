package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripLogIndex(t *testing.T) {
	assert.Equal(t, "0xabc", StripLogIndex("0xabc_12"))
	assert.Equal(t, "0xabc", StripLogIndex("0xabc"))
	assert.Equal(t, "0xa_b", StripLogIndex("0xa_b"))
}

func TestExplorerBase(t *testing.T) {
	assert.Equal(t, "https://gnosisscan.io/tx/", ExplorerBase("gnosis"))
	assert.Equal(t, "https://gnosisscan.io/tx/", ExplorerBase("100"))
	assert.Equal(t, "https://gnosisscan.io/tx/", ExplorerBase("xDai"))
	assert.Equal(t, "https://etherscan.io/tx/", ExplorerBase("ethereum"))
	assert.Equal(t, "https://etherscan.io/tx/", ExplorerBase(" 1 "))
	assert.Equal(t, "https://polygonscan.com/tx/", ExplorerBase("137"))

	// desconocida → gnosis
	assert.Equal(t, "https://gnosisscan.io/tx/", ExplorerBase("base-sepolia"))
	assert.Equal(t, "https://gnosisscan.io/tx/", ExplorerBase(""))
}

func TestTransactionLink(t *testing.T) {
	assert.Equal(t, "https://gnosisscan.io/tx/0xdead", TransactionLink("0xdead_3", "gnosis"))
	assert.Equal(t, "https://arbiscan.io/tx/0xdead", TransactionLink("0xdead", "42161"))
	assert.Empty(t, TransactionLink("", "gnosis"))
	assert.Empty(t, TransactionLink("  ", "gnosis"))
}
