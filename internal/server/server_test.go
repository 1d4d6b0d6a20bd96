package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-dashboard/internal/backend"
	"options-dashboard/internal/broker"
	"options-dashboard/internal/config"
	"options-dashboard/internal/errors"
	"options-dashboard/internal/models"
	"options-dashboard/internal/store"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

type harness struct {
	t      *testing.T
	paper  *broker.PaperBroker
	store  *store.SQLiteStore
	server *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Date(2024, time.December, 16, 10, 0, 0, 0, ist)
	paper := broker.NewPaperBroker(broker.PaperBrokerConfig{
		Spots:        map[models.Underlying]float64{models.NIFTY: 22010},
		RiskFreeRate: 0.065,
		Now:          func() time.Time { return now },
	})
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv, err := NewServer(config.Default(), paper, st, zerolog.Nop())
	require.NoError(t, err)
	return &harness{t: t, paper: paper, store: st, server: srv}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) place(side models.OrderSide, strike int, typ string) models.OrderResponse {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/place-order", models.OrderRequest{
		UserID: "1", Symbol: "NIFTY", Strike: strike, OptionType: typ, Action: side, Quantity: 1, LotSize: 25,
	})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.OrderResponse
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "paper")

	rec = h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestOptionChainWindow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/option-chain/NIFTY", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chain := decode[models.OptionChain](t, rec)

	assert.Equal(t, 22010.0, chain.SpotPrice)
	assert.Equal(t, 22000.0, chain.ATMStrike)
	assert.Equal(t, "2024-12-19", chain.Expiry)
	require.Len(t, chain.Data, 41)
	assert.Equal(t, 21000.0, chain.Data[0].Strike)
	assert.Equal(t, 23000.0, chain.Data[40].Strike)
	for i := 1; i < len(chain.Data); i++ {
		assert.Less(t, chain.Data[i-1].Strike, chain.Data[i].Strike)
	}
	assert.Empty(t, chain.Error)

	rec = h.do(http.MethodGet, "/option-chain/FINNIFTY", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "detail")
}

func TestPlaceOrderRecordsTrade(t *testing.T) {
	h := newHarness(t)

	resp := h.place(models.OrderSideSell, 22000, "CE")
	assert.Equal(t, models.StatusSuccess, resp.Status)
	assert.Equal(t, "NIFTY24D1922000CE", resp.TradingSymbol)
	assert.Equal(t, models.TradeID("1"), resp.TradeID)
	assert.NotEmpty(t, resp.OrderID)

	// A second leg on the same expiry shares the position.
	second := h.place(models.OrderSideBuy, 22200, "CE")
	assert.Equal(t, resp.PositionID, second.PositionID)

	trade, err := h.store.GetTrade(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 25, trade.Quantity)
	assert.Equal(t, models.OrderSideSell, trade.Side)
	assert.Greater(t, trade.EntryPrice, 0.0)

	pos, err := h.store.GetPosition(context.Background(), resp.PositionID)
	require.NoError(t, err)
	assert.Equal(t, "NIFTY24D19", pos.Instrument)
}

func TestPlaceOrderValidation(t *testing.T) {
	h := newHarness(t)

	bad := []models.OrderRequest{
		{UserID: "1", Symbol: "NIFTY", Strike: 22025, OptionType: "CE", Action: models.OrderSideBuy, Quantity: 1},
		{UserID: "1", Symbol: "NIFTY", Strike: 22000, OptionType: "XX", Action: models.OrderSideBuy, Quantity: 1},
		{UserID: "1", Symbol: "NIFTY", Strike: 22000, OptionType: "CE", Action: "HOLD", Quantity: 1},
		{UserID: "1", Symbol: "NIFTY", Strike: 22000, OptionType: "CE", Action: models.OrderSideBuy, Quantity: 0},
		{UserID: "", Symbol: "NIFTY", Strike: 22000, OptionType: "CE", Action: models.OrderSideBuy, Quantity: 1},
		{UserID: "1", Symbol: "MIDCAP", Strike: 22000, OptionType: "CE", Action: models.OrderSideBuy, Quantity: 1},
	}
	for _, req := range bad {
		rec := h.do(http.MethodPost, "/place-order", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}
	assert.Empty(t, h.paper.Orders(), "nothing reaches the broker")

	rec := h.do(http.MethodPost, "/place-order", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderDefaultsLotSize(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/place-order", models.OrderRequest{
		UserID: "1", Symbol: "SENSEX", Strike: 80000, OptionType: "PE", Action: models.OrderSideBuy, Quantity: 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	orders := h.paper.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, 20, orders[0].Quantity)
	assert.True(t, strings.HasPrefix(orders[0].TradingSymbol, "SENSEX"))
}

func TestPositionsMarkToMarket(t *testing.T) {
	h := newHarness(t)
	h.place(models.OrderSideSell, 22000, "CE")
	h.place(models.OrderSideBuy, 22200, "CE")

	rec := h.do(http.MethodGet, "/db-positions/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.PositionsResponse](t, rec)
	require.Len(t, resp.Data.Net, 2)
	assert.Equal(t, -25, resp.Data.Net[0].Quantity)
	assert.Equal(t, models.OrderSideSell, resp.Data.Net[0].OrderType)
	assert.Equal(t, 25, resp.Data.Net[1].Quantity)
	assert.InDelta(t, 0, resp.Data.TotalPnL, 1e-9, "unchanged market")

	// Spot falls: the short call gains more than the long call loses.
	h.paper.SetSpot(models.NIFTY, 21800)
	resp = decode[models.PositionsResponse](t, h.do(http.MethodGet, "/db-positions/1", nil))
	short, long := resp.Data.Net[0], resp.Data.Net[1]
	assert.Greater(t, short.PnL, 0.0)
	assert.Less(t, long.PnL, 0.0)
	assert.InDelta(t, short.PnL+long.PnL, resp.Data.TotalPnL, 0.01)
	assert.InDelta(t, (short.AveragePrice-short.CurrentPrice)*25, short.PnL, 0.01)

	empty := decode[models.PositionsResponse](t, h.do(http.MethodGet, "/db-positions/2", nil))
	assert.Empty(t, empty.Data.Net)
	assert.Zero(t, empty.Data.TotalPnL)
}

func TestSquareOff(t *testing.T) {
	h := newHarness(t)
	h.place(models.OrderSideSell, 22000, "CE")
	h.place(models.OrderSideBuy, 22200, "CE")
	h.paper.SetSpot(models.NIFTY, 21800)

	rec := h.do(http.MethodPost, "/square-off-trade/1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.SquareOffResponse](t, rec)
	assert.Greater(t, resp.PnL, 0.0)
	assert.Greater(t, resp.ExitPrice, 0.0)
	assert.NotEmpty(t, resp.OrderID)

	orders := h.paper.Orders()
	assert.Equal(t, models.OrderSideBuy, orders[len(orders)-1].Side, "a short is bought back")

	// The realized leg stays in the total while its position is open.
	pos := decode[models.PositionsResponse](t, h.do(http.MethodGet, "/db-positions/1", nil))
	require.Len(t, pos.Data.Net, 1)
	assert.InDelta(t, resp.PnL+pos.Data.Net[0].PnL, pos.Data.TotalPnL, 0.01)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/square-off-trade/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/square-off-trade/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/square-off-trade/abc", nil).Code)

	// Closing the last leg settles the position.
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/square-off-trade/2", nil).Code)
	settled, err := h.store.GetPosition(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, settled.Status)
}

func TestExitAllClosesShortsFirst(t *testing.T) {
	h := newHarness(t)
	h.place(models.OrderSideBuy, 21800, "PE")
	h.place(models.OrderSideSell, 22000, "PE")
	h.place(models.OrderSideBuy, 22200, "CE")
	h.place(models.OrderSideSell, 22000, "CE")

	rec := h.do(http.MethodPost, "/exit-all-positions/1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.StatusResponse](t, rec)
	assert.Equal(t, 4, resp.Closed)

	orders := h.paper.Orders()[4:]
	require.Len(t, orders, 4)
	assert.Equal(t, "NIFTY24D1922000PE", orders[0].TradingSymbol)
	assert.Equal(t, "NIFTY24D1922000CE", orders[1].TradingSymbol)
	assert.Equal(t, models.OrderSideBuy, orders[0].Side)
	assert.Equal(t, models.OrderSideBuy, orders[1].Side)
	assert.Equal(t, models.OrderSideSell, orders[2].Side)
	assert.Equal(t, models.OrderSideSell, orders[3].Side)

	open, err := h.store.GetTrades(context.Background(), store.TradeFilter{UserID: "1", Status: models.StatusOpen})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestExitSkipsTradeSquaredOffMeanwhile(t *testing.T) {
	h := newHarness(t)
	h.place(models.OrderSideBuy, 22000, "CE")
	h.place(models.OrderSideSell, 22000, "PE")
	ctx := context.Background()

	snapshot, err := h.store.GetTrades(ctx, store.TradeFilter{UserID: "1", Status: models.StatusOpen})
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	desk := h.server.Desk()
	_, err = desk.SquareOff(ctx, 1)
	require.NoError(t, err)
	require.Len(t, h.paper.Orders(), 3)

	report := desk.exit(ctx, snapshot)
	assert.NoError(t, report.Err)
	assert.Equal(t, 1, report.Closed)
	assert.Equal(t, 0, report.Failed)

	orders := h.paper.Orders()
	require.Len(t, orders, 4, "no second exit order for the squared-off trade")
	assert.Equal(t, "NIFTY24D1922000PE", orders[3].TradingSymbol)

	closed, err := h.store.GetTrade(ctx, 1)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())
}

func TestExitSelected(t *testing.T) {
	h := newHarness(t)
	h.place(models.OrderSideBuy, 21800, "PE")
	h.place(models.OrderSideSell, 22000, "PE")
	h.place(models.OrderSideSell, 22000, "CE")

	rec := h.do(http.MethodPost, "/exit-selected-positions", map[string]any{"user_id": "1", "trade_ids": []any{1, "2", 42}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[models.StatusResponse](t, rec).Closed)

	orders := h.paper.Orders()[3:]
	require.Len(t, orders, 2)
	assert.Equal(t, "NIFTY24D1922000PE", orders[0].TradingSymbol, "short leg first")

	open, err := h.store.GetTrades(context.Background(), store.TradeFilter{Status: models.StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(3), open[0].ID)

	rec = h.do(http.MethodPost, "/exit-selected-positions", map[string]any{"user_id": "1", "trade_ids": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/exit-selected-positions", map[string]any{"user_id": "1", "trade_ids": []any{"x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/place-order", nil)
	req.Header.Set("Origin", "http://localhost:3005")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3005", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(errors.ErrTradeNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.ErrTradeClosed))
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.NewValidationError("x", 1, "bad")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.ErrDatabaseError))
}

// The dashboard client and the server agree on the wire format.
func TestClientRoundTrip(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.server.Handler())
	defer ts.Close()

	client, err := backend.NewClient(config.BackendConfig{BaseURL: ts.URL, UserID: "1", Timeout: 5 * time.Second, MaxRetries: 1}, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	chain, err := client.OptionChain(ctx, models.BANKNIFTY)
	require.NoError(t, err)
	assert.Equal(t, 51000.0, chain.ATMStrike)
	assert.Len(t, chain.Data, 41)

	placed, err := client.PlaceOrder(ctx, models.OrderRequest{Symbol: "NIFTY", Strike: 22000, OptionType: "PE", Action: models.OrderSideSell, Quantity: 1, LotSize: 25})
	require.NoError(t, err)
	assert.Equal(t, models.TradeID("1"), placed.TradeID)

	positions, err := client.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions.Net, 1)
	assert.Equal(t, "NIFTY24D1922000PE", positions.Net[0].TradingSymbol)

	sq, err := client.SquareOff(ctx, placed.TradeID)
	require.NoError(t, err)
	assert.Equal(t, placed.TradeID, sq.TradeID)

	_, err = client.SquareOff(ctx, "77")
	assert.True(t, errors.Is(err, errors.ErrTradeNotFound))

	_, err = client.PlaceOrder(ctx, models.OrderRequest{Symbol: "NIFTY", Strike: 22000, OptionType: "CE", Action: models.OrderSideBuy, Quantity: 1, LotSize: 25})
	require.NoError(t, err)
	exit, err := client.ExitAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, exit.Closed)
}
