package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// TradeID identifies an open trade. The backend emits it as a JSON number,
// other sources as a string; both decode to the same value.
type TradeID string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TradeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TradeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("trade id: %w", err)
	}
	*t = TradeID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as JSON numbers.
func (t TradeID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(t), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(t) {
		return []byte(t), nil
	}
	return json.Marshal(string(t))
}

// Int returns the numeric form used by the bundled backend.
func (t TradeID) Int() (int64, error) {
	return strconv.ParseInt(string(t), 10, 64)
}

// Position is one open leg as reported by /db-positions.
// Quantity is signed: positive for long, negative for short.
type Position struct {
	TradingSymbol string    `json:"tradingsymbol"`
	Quantity      int       `json:"quantity"`
	AveragePrice  float64   `json:"average_price"`
	CurrentPrice  float64   `json:"current_price"`
	PnL           float64   `json:"pnl"`
	TradeID       TradeID   `json:"trade_id"`
	OrderType     OrderSide `json:"order_type"`
}

// PositionsData is the data object of a /db-positions response.
type PositionsData struct {
	Net      []Position `json:"net"`
	TotalPnL float64    `json:"total_pnl"`
}

// PositionsResponse is the /db-positions response body.
type PositionsResponse struct {
	Status  string        `json:"status"`
	Data    PositionsData `json:"data"`
	Message string        `json:"message,omitempty"`
}

// OrderRequest is the /place-order request body. Quantity is in lots.
type OrderRequest struct {
	UserID       string    `json:"user_id"`
	Symbol       string    `json:"symbol"`
	Strike       int       `json:"strike"`
	OptionType   string    `json:"optionType"`
	Action       OrderSide `json:"action"`
	Quantity     int       `json:"quantity"`
	LotSize      int       `json:"lotSize"`
	Price        float64   `json:"price"`
	StrategyName string    `json:"strategy_name,omitempty"`
}

// OrderResponse is the /place-order response body.
type OrderResponse struct {
	Status        string  `json:"status"`
	OrderID       string  `json:"order_id,omitempty"`
	TradingSymbol string  `json:"trading_symbol,omitempty"`
	PositionID    int64   `json:"position_id,omitempty"`
	TradeID       TradeID `json:"trade_id,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// SquareOffResponse is the /square-off-trade response body.
type SquareOffResponse struct {
	Status    string  `json:"status"`
	TradeID   TradeID `json:"trade_id,omitempty"`
	OrderID   string  `json:"order_id,omitempty"`
	ExitPrice float64 `json:"exit_price"`
	PnL       float64 `json:"pnl"`
	Message   string  `json:"message,omitempty"`
}

// ExitSelectedRequest is the /exit-selected-positions request body.
type ExitSelectedRequest struct {
	TradeIDs []TradeID `json:"trade_ids"`
	UserID   string    `json:"user_id"`
}

// StatusResponse is the generic {status, message} reply.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Closed  int    `json:"closed,omitempty"`
	Failed  int    `json:"failed,omitempty"`
}

// StatusSuccess is the status value of an accepted request.
const StatusSuccess = "success"
