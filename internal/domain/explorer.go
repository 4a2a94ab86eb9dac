package domain

import (
	"regexp"
	"strings"
)

const defaultExplorerChain = "gnosis"

// explorerTxBase mapea el nombre de la chain al prefijo de URL de tx de su explorer.
var explorerTxBase = map[string]string{
	"mainnet":  "https://etherscan.io/tx/",
	"gnosis":   "https://gnosisscan.io/tx/",
	"polygon":  "https://polygonscan.com/tx/",
	"arbitrum": "https://arbiscan.io/tx/",
	"optimism": "https://optimistic.etherscan.io/tx/",
}

// chainAliases resuelve chain IDs numéricos y alias comunes a claves del explorer.
var chainAliases = map[string]string{
	"1":        "mainnet",
	"ethereum": "mainnet",
	"100":      "gnosis",
	"xdai":     "gnosis",
	"137":      "polygon",
	"42161":    "arbitrum",
	"10":       "optimism",
}

var logIndexSuffix = regexp.MustCompile(`_\d+$`)

// StripLogIndex quita el sufijo "_<index>" que distingue varios logs
// de la misma transacción.
func StripLogIndex(txHash string) string {
	return logIndexSuffix.ReplaceAllString(txHash, "")
}

// ExplorerBase devuelve el prefijo de URL de tx para un nombre o ID de chain.
// Las chains desconocidas caen en el explorer de gnosis.
func ExplorerBase(chain string) string {
	key := strings.ToLower(strings.TrimSpace(chain))
	if alias, ok := chainAliases[key]; ok {
		key = alias
	}
	if base, ok := explorerTxBase[key]; ok {
		return base
	}
	return explorerTxBase[defaultExplorerChain]
}

// TransactionLink arma la URL del explorer de una transacción.
// Devuelve "" si el hash está vacío.
func TransactionLink(txHash, chain string) string {
	hash := StripLogIndex(strings.TrimSpace(txHash))
	if hash == "" {
		return ""
	}
	return ExplorerBase(chain) + hash
}
