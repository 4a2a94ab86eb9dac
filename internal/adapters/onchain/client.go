package onchain

// client.go — conexión RPC compartida por todos los adaptadores on-chain.
//
// Centraliza:
//   - firma EIP155 y envío de transacciones
//   - estimación de gas con buffer y fallback
//   - caché del gas price
//   - espera de receipts por polling

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

const (
	gasPriceUpdateInterval = 5 * time.Minute
	receiptPollInterval    = 3 * time.Second
	receiptTimeout         = 90 * time.Second
	fallbackGasPriceWei    = 2_000_000_000 // 2 gwei, Gnosis suele estar por debajo
)

// ErrReadOnly is returned by writes when the client has no signing key.
var ErrReadOnly = errors.New("onchain: client has no private key")

// Backend is the subset of ethclient.Client used by the adapters.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client signs and sends transactions for one wallet on one chain.
type Client struct {
	backend Backend
	closer  func()
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	chain   string

	// txMu serializa los envíos: el nonce pendiente no es fiable con writes concurrentes.
	txMu sync.Mutex

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time

	pollInterval time.Duration
}

// Dial connects to rpcURL. privateKeyHex may be empty for a read-only
// client; user is then the address balances are read for.
func Dial(rpcURL, privateKeyHex, user string, chainID int64, chain string) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc %s: %w", rpcURL, err)
	}
	c, err := NewClient(ec, privateKeyHex, user, chainID, chain)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, privateKeyHex, user string, chainID int64, chain string) (*Client, error) {
	c := &Client{
		backend:      backend,
		chainID:      big.NewInt(chainID),
		chain:        chain,
		pollInterval: receiptPollInterval,
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("onchain: invalid private key: %w", err)
		}
		c.key = key
		c.address = crypto.PubkeyToAddress(key.PublicKey)
	} else if user != "" {
		if !common.IsHexAddress(user) {
			return nil, fmt.Errorf("onchain: invalid user address %q", user)
		}
		c.address = common.HexToAddress(user)
	}
	return c, nil
}

// Address returns the wallet address, lowercase.
func (c *Client) Address() string {
	return strings.ToLower(c.address.Hex())
}

// Chain returns the chain name used for explorer links.
func (c *Client) Chain() string { return c.chain }

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// call runs a read-only contract call and unpacks its outputs.
func (c *Client) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.address, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return vals, nil
}

// send packs, signs and sends a transaction, then waits for a successful receipt.
func (c *Client) send(ctx context.Context, to common.Address, contract abi.ABI, fallbackGas uint64, method string, args ...any) (domain.TxResult, error) {
	if c.key == nil {
		return domain.TxResult{}, ErrReadOnly
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("pack %s: %w", method, err)
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("%s: nonce: %w", method, err)
	}

	gasPrice := c.gasPrice(ctx)

	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		// Fall back to conservative limit
		gasLimit = fallbackGas
		slog.Warn("onchain: gas estimate failed, using default", "method", method, "err", err, "limit", fallbackGas)
	}
	// +20% buffer
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("%s: sign tx: %w", method, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return domain.TxResult{}, fmt.Errorf("%s: send tx: %w", method, err)
	}

	hash := signed.Hash().Hex()
	slog.Info("onchain: transaction sent", "method", method, "to", to.Hex(), "tx", hash)

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := c.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return domain.TxResult{TxHash: hash}, fmt.Errorf("%s: wait receipt %s: %w", method, hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.TxResult{TxHash: hash}, fmt.Errorf("%s: tx reverted: %s", method, hash)
	}

	slog.Info("onchain: confirmed", "method", method, "tx", hash, "gas_used", receipt.GasUsed)
	return domain.TxResult{
		TxHash:      hash,
		ExplorerURL: domain.TransactionLink(hash, c.chain),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// gasPrice returns the current gas price, with caching to avoid excessive RPC calls.
func (c *Client) gasPrice(ctx context.Context) *big.Int {
	c.mu.RLock()
	cached := c.cachedGasWei
	updatedAt := c.gasUpdatedAt
	c.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached
	}

	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached
		}
		return big.NewInt(fallbackGasPriceWei)
	}

	// +10% para entrar antes; copia para no mutar el valor devuelto
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	c.mu.Lock()
	c.cachedGasWei = buffered
	c.gasUpdatedAt = time.Now()
	c.mu.Unlock()

	return buffered
}

// waitForReceipt polls for a transaction receipt until confirmed or timeout.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// toWei converts a token amount to its 18-decimal integer form.
func toWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(domain.TokenDecimals).BigInt()
}

// fromWei converts an 18-decimal integer to a token amount.
func fromWei(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -domain.TokenDecimals)
}

// maxUint256 is the conventional "infinite" ERC20 allowance.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func mustABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}

func hexAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
