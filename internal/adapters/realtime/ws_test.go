package realtime

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	poolAddr  = "0x00000000000000000000000000000000000000aa"
	token0    = "0x00000000000000000000000000000000000000d1"
	token1    = "0x00000000000000000000000000000000000000c1"
	recipient = "0x00000000000000000000000000000000000000ee"
)

func swapLog(t *testing.T, amount0, amount1 int64) types.Log {
	t.Helper()
	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(amount0), big.NewInt(amount1), big.NewInt(1), big.NewInt(1), big.NewInt(-5),
	)
	require.NoError(t, err)
	return types.Log{
		Address:     common.HexToAddress(poolAddr),
		Topics:      []common.Hash{SwapTopic, common.HexToHash("0x01"), common.BytesToHash(common.HexToAddress(recipient).Bytes())},
		Data:        data,
		BlockNumber: 77,
		TxHash:      common.HexToHash("0xabc"),
		Index:       3,
	}
}

func testFeed(url string) *Feed {
	f := NewFeed(url, []Pool{{Address: strings.ToUpper(poolAddr[:2]) + poolAddr[2:], Token0: token0, Token1: token1}})
	f.reconnect = 10 * time.Millisecond
	f.now = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return f
}

func TestDecode_SwapLog(t *testing.T) {
	f := testFeed("ws://unused")

	trade, ok := f.decode(swapLog(t, -1000, 250))
	require.True(t, ok)
	assert.Equal(t, token0, trade.Token0)
	assert.Equal(t, token1, trade.Token1)
	assert.Equal(t, "-1000", trade.Amount0)
	assert.Equal(t, "250", trade.Amount1)
	assert.Equal(t, uint64(77), trade.BlockNumber)
	assert.Equal(t, recipient, trade.UserAddress)
	assert.True(t, strings.HasSuffix(trade.TxHash, "_3"))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), trade.Timestamp)
}

func TestDecode_DropsRemovedAndForeign(t *testing.T) {
	f := testFeed("ws://unused")

	removed := swapLog(t, 1, -1)
	removed.Removed = true
	_, ok := f.decode(removed)
	assert.False(t, ok)

	foreign := swapLog(t, 1, -1)
	foreign.Address = common.HexToAddress("0x1234")
	_, ok = f.decode(foreign)
	assert.False(t, ok)

	wrongTopic := swapLog(t, 1, -1)
	wrongTopic.Topics[0] = common.HexToHash("0xdead")
	_, ok = f.decode(wrongTopic)
	assert.False(t, ok)
}

func TestSubscribe_RequiresConfig(t *testing.T) {
	_, err := NewFeed("", nil).Subscribe(context.Background())
	assert.Error(t, err)

	_, err = NewFeed("ws://x", nil).Subscribe(context.Background())
	assert.Error(t, err)
}

func TestSubscribe_StreamsTrades(t *testing.T) {
	lg := swapLog(t, -500, 125)
	logJSON, err := json.Marshal(&lg)
	require.NoError(t, err)

	subscribed := make(chan map[string]any, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed <- req

		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "result": "0xsub"})
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params":  map[string]any{"subscription": "0xsub", "result": json.RawMessage(logJSON)},
		})

		// mantener abierto hasta que el cliente cierre
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := testFeed("ws" + strings.TrimPrefix(srv.URL, "http")).Subscribe(ctx)
	require.NoError(t, err)

	select {
	case req := <-subscribed:
		assert.Equal(t, "eth_subscribe", req["method"])
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request received")
	}

	select {
	case trade := <-ch:
		assert.Equal(t, "-500", trade.Amount0)
		assert.Equal(t, "125", trade.Amount1)
		assert.Equal(t, token0, trade.Token0)
	case <-time.After(2 * time.Second):
		t.Fatal("no trade received")
	}

	cancel()
	select {
	case _, open := <-ch:
		for open {
			_, open = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
