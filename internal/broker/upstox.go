package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/funtechnologywith-source/skew-hunter/internal/errors"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

const (
	upstoxBaseURL  = "https://api.upstox.com/v2"
	niftySpotKey   = "NSE_INDEX|Nifty 50"
	indiaVIXKey    = "NSE_INDEX|India VIX"
	defaultTimeout = 15 * time.Second
)

// Upstox is the primary broker. It serves both market data and order
// routing off the same authenticated session.
type Upstox struct {
	baseURL string
	token   string
	client  *http.Client
	product string
	log     zerolog.Logger
}

// NewUpstox creates an Upstox client.
func NewUpstox(accessToken, productType string, log zerolog.Logger) *Upstox {
	if productType == "" {
		productType = "I"
	}
	return &Upstox{
		baseURL: upstoxBaseURL,
		token:   accessToken,
		client:  &http.Client{Timeout: defaultTimeout},
		product: productType,
		log:     log.With().Str("broker", "upstox").Logger(),
	}
}

// NewUpstoxWithBase creates an Upstox client against a custom base URL.
// Used by tests.
func NewUpstoxWithBase(baseURL, accessToken string, log zerolog.Logger) *Upstox {
	u := NewUpstox(accessToken, "I", log)
	u.baseURL = strings.TrimRight(baseURL, "/")
	return u
}

func (u *Upstox) Name() string { return "upstox" }

// envelope is the common Upstox response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (u *Upstox) do(ctx context.Context, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(raw)
	}

	endpoint := u.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		u.log.Debug().Str("endpoint", path).Err(err).Msg("API call failed")
		return nil, apperrors.NewBrokerError("upstox", "http", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewBrokerError("upstox", "read", path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.NewBrokerError("upstox", "decode", path, err)
	}

	u.log.Debug().
		Str("endpoint", path).
		Int("http_status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API call completed")

	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, apperrors.NewBrokerError("upstox", fmt.Sprintf("%d", resp.StatusCode), msg, nil)
	}

	return env.Data, nil
}

// ValidateToken checks the access token by fetching the user profile.
func (u *Upstox) ValidateToken(ctx context.Context) (string, error) {
	data, err := u.do(ctx, http.MethodGet, "/user/profile", nil, nil)
	if err != nil {
		return "", err
	}
	var profile struct {
		UserName string `json:"user_name"`
	}
	if err := json.Unmarshal(data, &profile); err != nil {
		return "", err
	}
	return profile.UserName, nil
}

type ltpEntry struct {
	LastPrice     float64 `json:"last_price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

func (u *Upstox) ltp(ctx context.Context, instrumentKey string) (*ltpEntry, error) {
	q := url.Values{"instrument_key": {instrumentKey}}
	data, err := u.do(ctx, http.MethodGet, "/market-quote/ltp", q, nil)
	if err != nil {
		return nil, err
	}

	var entries map[string]ltpEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	// The response keys the quote by "SEGMENT:Name", not the pipe form
	// used in the request.
	colonKey := strings.Replace(instrumentKey, "|", ":", 1)
	if e, ok := entries[colonKey]; ok {
		return &e, nil
	}
	if e, ok := entries[instrumentKey]; ok {
		return &e, nil
	}
	for _, e := range entries {
		return &e, nil
	}
	return nil, apperrors.NewDataError("ltp", instrumentKey, "empty quote response", apperrors.ErrDataNotFound)
}

// SpotPrice fetches the NIFTY 50 spot quote.
func (u *Upstox) SpotPrice(ctx context.Context) (*models.Spot, error) {
	e, err := u.ltp(ctx, niftySpotKey)
	if err != nil {
		return nil, err
	}
	if e.LastPrice <= 0 {
		return nil, apperrors.NewDataError("spot", niftySpotKey, "zero last price", apperrors.ErrDataNotFound)
	}
	return &models.Spot{
		Price:     e.LastPrice,
		Change:    e.Change,
		ChangePct: e.ChangePercent,
		FetchedAt: time.Now(),
	}, nil
}

// IndiaVIX fetches the India VIX reading.
func (u *Upstox) IndiaVIX(ctx context.Context) (float64, error) {
	e, err := u.ltp(ctx, indiaVIXKey)
	if err != nil {
		return 0, err
	}
	if e.LastPrice <= 0 {
		return 0, apperrors.NewDataError("vix", indiaVIXKey, "zero last price", apperrors.ErrDataNotFound)
	}
	return e.LastPrice, nil
}

// IntradayCandles fetches today's NIFTY candles at the given interval
// (1minute, 5minute, 15minute, 30minute).
func (u *Upstox) IntradayCandles(ctx context.Context, interval string) ([]models.Candle, error) {
	path := "/historical-candle/intraday/" + url.PathEscape(niftySpotKey) + "/" + interval
	data, err := u.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	// Candle rows mix a timestamp string with numbers:
	// [timestamp, open, high, low, close, volume, oi]
	var payload struct {
		Candles [][]interface{} `json:"candles"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperrors.NewDataError("candles", interval, "malformed candle payload", err)
	}
	return parseCandleRows(payload.Candles), nil
}

func parseCandleRows(rows [][]interface{}) []models.Candle {
	candles := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		c := models.Candle{
			Open:  toFloat(r[1]),
			High:  toFloat(r[2]),
			Low:   toFloat(r[3]),
			Close: toFloat(r[4]),
		}
		if ts, ok := r[0].(string); ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				c.Timestamp = t
			}
		}
		if len(r) > 5 {
			c.Volume = int64(toFloat(r[5]))
		}
		candles = append(candles, c)
	}
	return candles
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// NearestExpiry auto-detects the nearest NIFTY contract expiry.
// Returns fallback when the API gives nothing usable.
func (u *Upstox) NearestExpiry(ctx context.Context, fallback string) string {
	q := url.Values{"instrument_key": {niftySpotKey}}
	data, err := u.do(ctx, http.MethodGet, "/option/contract", q, nil)
	if err != nil {
		u.log.Warn().Err(err).Str("fallback", fallback).Msg("Expiry detection failed")
		return fallback
	}
	var payload struct {
		Expiry []string `json:"expiry"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Expiry) == 0 {
		return fallback
	}
	sort.Strings(payload.Expiry)
	return payload.Expiry[0]
}

type chainLeg struct {
	MarketData struct {
		LTP      float64 `json:"ltp"`
		Volume   int64   `json:"volume"`
		OI       float64 `json:"oi"`
		PrevOI   float64 `json:"prev_oi"`
		BidPrice float64 `json:"bid_price"`
		AskPrice float64 `json:"ask_price"`
	} `json:"market_data"`
	Greeks struct {
		IV    float64 `json:"iv"`
		Delta float64 `json:"delta"`
	} `json:"option_greeks"`
}

func (l *chainLeg) toQuote() *models.OptionQuote {
	return &models.OptionQuote{
		LTP:      l.MarketData.LTP,
		Volume:   l.MarketData.Volume,
		OI:       int64(l.MarketData.OI),
		OIChange: int64(l.MarketData.OI - l.MarketData.PrevOI),
		IV:       l.Greeks.IV,
		Delta:    l.Greeks.Delta,
		Bid:      l.MarketData.BidPrice,
		Ask:      l.MarketData.AskPrice,
	}
}

// OptionChain fetches the NIFTY chain for an expiry (YYYY-MM-DD).
func (u *Upstox) OptionChain(ctx context.Context, expiry string) (models.OptionChain, error) {
	q := url.Values{
		"instrument_key": {niftySpotKey},
		"expiry_date":    {expiry},
	}
	data, err := u.do(ctx, http.MethodGet, "/option/chain", q, nil)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		StrikePrice float64   `json:"strike_price"`
		CallOptions *chainLeg `json:"call_options"`
		PutOptions  *chainLeg `json:"put_options"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, apperrors.NewDataError("chain", expiry, "malformed chain payload", err)
	}

	chain := make(models.OptionChain, len(rows))
	for _, row := range rows {
		strike := int(row.StrikePrice)
		sq := chain[strike]
		if row.CallOptions != nil {
			sq.CE = row.CallOptions.toQuote()
		}
		if row.PutOptions != nil {
			sq.PE = row.PutOptions.toQuote()
		}
		chain[strike] = sq
	}
	return chain, nil
}

// ResolveInstrument builds the Upstox option instrument key, e.g.
// NSE_FO|NIFTY26JAN24850CE.
func (u *Upstox) ResolveInstrument(_ context.Context, strike int, side models.OptionSide, expiry string) (string, error) {
	dt, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrNoInstrument, "bad expiry %q", expiry)
	}
	exp := strings.ToUpper(dt.Format("06Jan"))
	return fmt.Sprintf("NSE_FO|NIFTY%s%d%s", exp, strike, side.OptionType()), nil
}

// PlaceOrder submits an order and returns the Upstox order ID.
func (u *Upstox) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	price := 0.0
	if req.Type == models.OrderLimit {
		price = req.Price
	}
	payload := map[string]interface{}{
		"quantity":           req.Qty,
		"product":            u.product,
		"validity":           "DAY",
		"price":              price,
		"instrument_token":   req.InstrumentKey,
		"order_type":         string(req.Type),
		"transaction_type":   string(req.Side),
		"disclosed_quantity": 0,
		"trigger_price":      0,
		"is_amo":             false,
	}

	data, err := u.do(ctx, http.MethodPost, "/order/place", nil, payload)
	if err != nil {
		return "", apperrors.NewOrderError("", req.InstrumentKey, string(req.Side), "place failed", err)
	}

	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || resp.OrderID == "" {
		return "", apperrors.NewOrderError("", req.InstrumentKey, string(req.Side), "no order id in response", err)
	}
	return resp.OrderID, nil
}

// normalizeUpstoxStatus folds Upstox order states into the canonical
// four.
func normalizeUpstoxStatus(s string) models.OrderState {
	switch strings.ToLower(s) {
	case "complete":
		return models.OrderComplete
	case "rejected":
		return models.OrderRejected
	case "cancelled", "cancelled after market order":
		return models.OrderCancelled
	default:
		return models.OrderPending
	}
}

// OrderStatus looks up one order in the day's order book.
func (u *Upstox) OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	data, err := u.do(ctx, http.MethodGet, "/order/retrieve-all", nil, nil)
	if err != nil {
		return nil, err
	}

	var orders []struct {
		OrderID         string  `json:"order_id"`
		Status          string  `json:"status"`
		FilledQuantity  int     `json:"filled_quantity"`
		AveragePrice    float64 `json:"average_price"`
		PendingQuantity int     `json:"pending_quantity"`
		StatusMessage   string  `json:"status_message"`
	}
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, apperrors.NewBrokerError("upstox", "decode", "order book", err)
	}

	for _, o := range orders {
		if o.OrderID != orderID {
			continue
		}
		return &OrderStatus{
			State:           normalizeUpstoxStatus(o.Status),
			FilledQty:       o.FilledQuantity,
			AveragePrice:    o.AveragePrice,
			PendingQty:      o.PendingQuantity,
			RejectionReason: o.StatusMessage,
		}, nil
	}
	return nil, apperrors.NewOrderError(orderID, "", "status", "not in order book", apperrors.ErrDataNotFound)
}

// CancelOrder cancels a pending order.
func (u *Upstox) CancelOrder(ctx context.Context, orderID string) error {
	q := url.Values{"order_id": {orderID}}
	_, err := u.do(ctx, http.MethodDelete, "/order/cancel", q, nil)
	if err != nil {
		return apperrors.NewOrderError(orderID, "", "cancel", "cancel failed", err)
	}
	return nil
}

// Positions fetches the day's positions.
func (u *Upstox) Positions(ctx context.Context) ([]Position, error) {
	data, err := u.do(ctx, http.MethodGet, "/portfolio/short-term-positions", nil, nil)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		TradingSymbol string  `json:"trading_symbol"`
		InstrumentKey string  `json:"instrument_token"`
		Quantity      int     `json:"quantity"`
		AveragePrice  float64 `json:"average_price"`
		PnL           float64 `json:"pnl"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, apperrors.NewBrokerError("upstox", "decode", "positions", err)
	}

	positions := make([]Position, 0, len(rows))
	for _, r := range rows {
		positions = append(positions, Position{
			Instrument:    r.TradingSymbol,
			InstrumentKey: r.InstrumentKey,
			Qty:           r.Quantity,
			AveragePrice:  r.AveragePrice,
			PnL:           r.PnL,
		})
	}
	return positions, nil
}
