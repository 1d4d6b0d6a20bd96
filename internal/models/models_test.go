package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnderlying(t *testing.T) {
	tests := []struct {
		in      string
		want    Underlying
		wantErr bool
	}{
		{"NIFTY", NIFTY, false},
		{"nifty", NIFTY, false},
		{" BANKNIFTY ", BANKNIFTY, false},
		{"NIFTYBANK", BANKNIFTY, false},
		{"SENSEX", SENSEX, false},
		{"FINNIFTY", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseUnderlying(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestUnderlyingContract(t *testing.T) {
	assert.Equal(t, 50, NIFTY.Contract().StrikeStep)
	assert.Equal(t, 100, BANKNIFTY.Contract().StrikeStep)
	assert.Equal(t, 2000, SENSEX.Contract().RangeOffset)
	assert.Equal(t, BFO, SENSEX.Contract().Exchange)
	assert.Zero(t, Underlying("X").Contract().StrikeStep)
}

func TestIntrinsic(t *testing.T) {
	call := ContractTerms{Underlying: NIFTY, Strike: 22000, Type: Call}
	put := ContractTerms{Underlying: NIFTY, Strike: 22000, Type: Put}

	assert.Equal(t, 0.0, call.Intrinsic(22000))
	assert.Equal(t, 1000.0, call.Intrinsic(23000))
	assert.Equal(t, 0.0, call.Intrinsic(21000))
	assert.Equal(t, 0.0, put.Intrinsic(22000))
	assert.Equal(t, 1000.0, put.Intrinsic(21000))
	assert.Equal(t, 0.0, put.Intrinsic(23000))
}

func TestTradeIDDecodesNumbersAndStrings(t *testing.T) {
	var body struct {
		A TradeID `json:"a"`
		B TradeID `json:"b"`
		C TradeID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 42, "b": "abc-1", "c": null}`), &body))
	assert.Equal(t, TradeID("42"), body.A)
	assert.Equal(t, TradeID("abc-1"), body.B)
	assert.Equal(t, TradeID(""), body.C)

	out, err := json.Marshal(ExitSelectedRequest{TradeIDs: []TradeID{"7", "x"}, UserID: "1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"trade_ids":[7,"x"],"user_id":"1"}`, string(out))
}

func TestPositionsResponseDecode(t *testing.T) {
	raw := `{"status":"success","data":{"net":[{"tradingsymbol":"NIFTY24DEC22000CE","quantity":-25,
		"average_price":120.5,"pnl":-30,"trade_id":3,"current_price":121.7,"order_type":"SELL"}],"total_pnl":-30}}`

	var resp PositionsResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	require.Len(t, resp.Data.Net, 1)

	p := resp.Data.Net[0]
	assert.Equal(t, "NIFTY24DEC22000CE", p.TradingSymbol)
	assert.Equal(t, -25, p.Quantity)
	assert.Equal(t, TradeID("3"), p.TradeID)
	assert.Equal(t, OrderSideSell, p.OrderType)
	assert.Equal(t, -30.0, resp.Data.TotalPnL)
}

func TestTradeRecordMarkToMarket(t *testing.T) {
	long := &TradeRecord{Side: OrderSideBuy, Quantity: 25, EntryPrice: 100}
	short := &TradeRecord{Side: OrderSideSell, Quantity: 25, EntryPrice: 100}

	assert.Equal(t, 250.0, long.MarkToMarket(110))
	assert.Equal(t, -250.0, short.MarkToMarket(110))
	assert.Equal(t, OrderSideBuy, OrderSideSell.Opposite())
}

func TestOptionChainATMRow(t *testing.T) {
	c := &OptionChain{SpotPrice: 22030, Data: []ChainRow{{Strike: 21950}, {Strike: 22000}, {Strike: 22050}}}
	assert.Equal(t, 2, c.ATMRow())
	assert.Equal(t, -1, (&OptionChain{}).ATMRow())
}
