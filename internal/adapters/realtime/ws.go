package realtime

// ws.go — feed de swaps en tiempo real vía eth_subscribe("logs").
//
// Se suscribe al evento Swap de los pools configurados (Algebra y Uniswap V3
// comparten firma) y reconecta con delay fijo si el socket se cae.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	feedBuffer     = 256
)

var poolABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[
		{"name":"Swap","type":"event","anonymous":false,"inputs":[
			{"name":"sender","type":"address","indexed":true},
			{"name":"recipient","type":"address","indexed":true},
			{"name":"amount0","type":"int256","indexed":false},
			{"name":"amount1","type":"int256","indexed":false},
			{"name":"price","type":"uint160","indexed":false},
			{"name":"liquidity","type":"uint128","indexed":false},
			{"name":"tick","type":"int24","indexed":false}]}
	]`))
	if err != nil {
		panic("pool abi parse: " + err.Error())
	}
	return parsed
}()

// SwapTopic is the topic0 of the pool Swap event.
var SwapTopic = poolABI.Events["Swap"].ID

// Pool identifies a watched pool and its token pair.
type Pool struct {
	Address string
	Token0  string
	Token1  string
}

// Feed implements ports.TradeFeed over a JSON-RPC websocket endpoint.
type Feed struct {
	url       string
	pools     map[string]Pool
	dialer    *websocket.Dialer
	reconnect time.Duration
	now       func() time.Time
}

// NewFeed creates a feed for the given pools.
func NewFeed(url string, pools []Pool) *Feed {
	m := make(map[string]Pool, len(pools))
	for _, p := range pools {
		m[domain.NormalizeAddress(p.Address)] = p
	}
	return &Feed{
		url:       url,
		pools:     m,
		dialer:    websocket.DefaultDialer,
		reconnect: reconnectDelay,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe starts the connection loop. The channel is closed when ctx is done.
func (f *Feed) Subscribe(ctx context.Context) (<-chan domain.RawTrade, error) {
	if f.url == "" {
		return nil, fmt.Errorf("realtime: no websocket url configured")
	}
	if len(f.pools) == 0 {
		return nil, fmt.Errorf("realtime: no pools to watch")
	}

	out := make(chan domain.RawTrade, feedBuffer)
	go func() {
		defer close(out)
		f.connectionLoop(ctx, out)
	}()
	return out, nil
}

// connectionLoop maintains the websocket connection until ctx is cancelled.
func (f *Feed) connectionLoop(ctx context.Context, out chan<- domain.RawTrade) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.session(ctx, out); err != nil && ctx.Err() == nil {
			slog.Warn("realtime: connection lost, retrying", "err", err, "in", f.reconnect)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.reconnect):
		}
	}
}

type rpcMessage struct {
	ID     int             `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

// session runs one connection: subscribe, then forward decoded swaps.
func (f *Feed) session(ctx context.Context, out chan<- domain.RawTrade) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	var writeMu sync.Mutex
	write := func(kind int, payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(kind, payload)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	addresses := make([]string, 0, len(f.pools))
	for addr := range f.pools {
		addresses = append(addresses, addr)
	}
	sub, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params": []any{"logs", map[string]any{
			"address": addresses,
			"topics":  [][]string{{SwapTopic.Hex()}},
		}},
	})
	if err != nil {
		return err
	}
	if err := write(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	slog.Info("realtime: websocket connected", "pools", len(addresses))

	go f.pingLoop(done, write)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("realtime: undecodable message", "err", err)
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("subscription rejected: %s", msg.Error.Message)
		}
		if msg.Method != "eth_subscription" || msg.Params == nil {
			continue
		}

		var lg types.Log
		if err := json.Unmarshal(msg.Params.Result, &lg); err != nil {
			slog.Debug("realtime: bad log payload", "err", err)
			continue
		}
		trade, ok := f.decode(lg)
		if !ok {
			continue
		}

		select {
		case out <- trade:
		case <-ctx.Done():
			return nil
		}
	}
}

// pingLoop sends periodic pings to keep connection alive.
func (f *Feed) pingLoop(done <-chan struct{}, write func(int, []byte) error) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// decode turns a Swap log into a RawTrade. Removed (reorged) logs and logs
// of unknown pools are dropped.
func (f *Feed) decode(lg types.Log) (domain.RawTrade, bool) {
	if lg.Removed || len(lg.Topics) == 0 || lg.Topics[0] != SwapTopic {
		return domain.RawTrade{}, false
	}
	pool, ok := f.pools[domain.NormalizeAddress(lg.Address.Hex())]
	if !ok {
		return domain.RawTrade{}, false
	}

	vals, err := poolABI.Events["Swap"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil || len(vals) < 2 {
		slog.Debug("realtime: cannot unpack swap", "tx", lg.TxHash.Hex(), "err", err)
		return domain.RawTrade{}, false
	}
	amount0, _ := vals[0].(*big.Int)
	amount1, _ := vals[1].(*big.Int)
	if amount0 == nil || amount1 == nil {
		return domain.RawTrade{}, false
	}

	var recipient string
	if len(lg.Topics) > 2 {
		recipient = strings.ToLower(common.BytesToAddress(lg.Topics[2].Bytes()).Hex())
	}

	return domain.RawTrade{
		Token0:      pool.Token0,
		Token1:      pool.Token1,
		Amount0:     amount0.String(),
		Amount1:     amount1.String(),
		Timestamp:   f.now(),
		PoolAddress: pool.Address,
		BlockNumber: lg.BlockNumber,
		TxHash:      fmt.Sprintf("%s_%d", lg.TxHash.Hex(), lg.Index),
		UserAddress: recipient,
	}, true
}
