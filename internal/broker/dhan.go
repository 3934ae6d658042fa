package broker

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/funtechnologywith-source/skew-hunter/internal/errors"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
	"github.com/funtechnologywith-source/skew-hunter/pkg/utils"
)

const (
	dhanBaseURL   = "https://api.dhan.co/v2"
	dhanMasterURL = "https://images.dhan.co/api-data/api-scrip-master.csv"
)

// Dhan routes orders only; market data always comes from Upstox.
// Order placement requires the caller's static IP to be whitelisted in
// the Dhan dashboard.
type Dhan struct {
	baseURL   string
	masterURL string
	token     string
	clientID  string
	client    *http.Client
	log       zerolog.Logger

	mu           sync.Mutex
	securityIDs  map[string]string // "24850_CE" -> security id
	loadedExpiry string
}

// NewDhan creates a Dhan order-routing client.
func NewDhan(accessToken, clientID string, log zerolog.Logger) *Dhan {
	return &Dhan{
		baseURL:   dhanBaseURL,
		masterURL: dhanMasterURL,
		token:     accessToken,
		clientID:  clientID,
		client:    &http.Client{Timeout: defaultTimeout},
		log:       log.With().Str("broker", "dhan").Logger(),
	}
}

// NewDhanWithBase creates a Dhan client against custom URLs. Used by
// tests.
func NewDhanWithBase(baseURL, masterURL, accessToken, clientID string, log zerolog.Logger) *Dhan {
	d := NewDhan(accessToken, clientID, log)
	d.baseURL = strings.TrimRight(baseURL, "/")
	d.masterURL = masterURL
	return d
}

func (d *Dhan) Name() string { return "dhan" }

func (d *Dhan) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, apperrors.NewBrokerError("dhan", "http", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, apperrors.NewBrokerError("dhan", "read", path, err)
	}
	return resp.StatusCode, raw, nil
}

// loadSecurityIDs downloads the Dhan instrument master and caches the
// NIFTY option security IDs for one expiry.
func (d *Dhan) loadSecurityIDs(ctx context.Context, expiry string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loadedExpiry == expiry && len(d.securityIDs) > 0 {
		return nil
	}

	d.log.Info().Str("expiry", expiry).Msg("Downloading instrument master")

	// The master is a large idempotent GET; transient network failures
	// retry before giving up.
	raw, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.masterURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := (&http.Client{Timeout: 60 * time.Second}).Do(req)
		if err != nil {
			return nil, apperrors.NewBrokerError("dhan", "master", "instrument master download failed", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, apperrors.NewBrokerError("dhan", fmt.Sprintf("%d", resp.StatusCode), "instrument master download failed", nil)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return err
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return apperrors.NewBrokerError("dhan", "master", "empty instrument master", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ids := make(map[string]string)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		if field(row, "SEM_SEGMENT") != "D" || field(row, "SEM_EXM_EXCH_ID") != "NSE" {
			continue
		}
		symbol := field(row, "SEM_TRADING_SYMBOL")
		if !strings.HasPrefix(symbol, "NIFTY") {
			continue
		}
		if strings.Contains(field(row, "SEM_INSTRUMENT_NAME"), "FUT") {
			continue
		}
		securityID := field(row, "SEM_SMST_SECURITY_ID")
		if securityID == "" {
			continue
		}

		rowExpiry := field(row, "SEM_EXPIRY_DATE")
		if rowExpiry == "" || rowExpiry == "N/A" {
			continue
		}
		if strings.SplitN(rowExpiry, " ", 2)[0] != expiry {
			continue
		}

		strikeStr := field(row, "SEM_STRIKE_PRICE")
		strikeF, err := strconv.ParseFloat(strikeStr, 64)
		if err != nil {
			continue
		}
		strike := int(strikeF)

		optType := field(row, "SEM_OPTION_TYPE")
		if optType != "CE" && optType != "PE" {
			switch {
			case strings.HasSuffix(symbol, "CE"):
				optType = "CE"
			case strings.HasSuffix(symbol, "PE"):
				optType = "PE"
			default:
				continue
			}
		}

		ids[fmt.Sprintf("%d_%s", strike, optType)] = securityID
	}

	if len(ids) == 0 {
		return apperrors.NewBrokerError("dhan", "master", "no NIFTY contracts for expiry "+expiry, apperrors.ErrNoInstrument)
	}

	d.securityIDs = ids
	d.loadedExpiry = expiry
	d.log.Info().Int("contracts", len(ids)).Str("expiry", expiry).Msg("Security IDs loaded")
	return nil
}

// ResolveInstrument returns the Dhan security ID for a NIFTY option,
// loading the instrument master on first use per expiry.
func (d *Dhan) ResolveInstrument(ctx context.Context, strike int, side models.OptionSide, expiry string) (string, error) {
	if err := d.loadSecurityIDs(ctx, expiry); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.securityIDs[fmt.Sprintf("%d_%s", strike, side.OptionType())]
	if !ok {
		return "", apperrors.Wrapf(apperrors.ErrNoInstrument, "no security id for %d %s %s", strike, side.OptionType(), expiry)
	}
	return id, nil
}

// PlaceOrder submits an order and returns the Dhan order ID.
func (d *Dhan) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if req.InstrumentKey == "" {
		return "", apperrors.NewOrderError("", "", string(req.Side), "missing security id", apperrors.ErrNoInstrument)
	}

	price := 0.0
	if req.Type == models.OrderLimit {
		price = req.Price
	}
	payload := map[string]interface{}{
		"dhanClientId":      d.clientID,
		"transactionType":   string(req.Side),
		"exchangeSegment":   "NSE_FNO",
		"productType":       "INTRADAY",
		"orderType":         string(req.Type),
		"validity":          "DAY",
		"securityId":        req.InstrumentKey,
		"quantity":          req.Qty,
		"price":             price,
		"disclosedQuantity": 0,
		"triggerPrice":      0,
	}

	status, raw, err := d.do(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		OrderID json.Number `json:"orderId"`
		Message string      `json:"message"`
	}
	_ = json.Unmarshal(raw, &resp)

	if status != http.StatusOK || resp.OrderID.String() == "" {
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return "", apperrors.NewOrderError("", req.InstrumentKey, string(req.Side), msg, nil)
	}
	return resp.OrderID.String(), nil
}

// normalizeDhanStatus folds Dhan order states into the canonical four.
func normalizeDhanStatus(s string) models.OrderState {
	switch strings.ToUpper(s) {
	case "TRADED":
		return models.OrderComplete
	case "REJECTED":
		return models.OrderRejected
	case "CANCELLED", "EXPIRED":
		return models.OrderCancelled
	default:
		// PENDING, TRANSIT and anything unknown stay pending.
		return models.OrderPending
	}
}

// OrderStatus fetches one order's normalized state.
func (d *Dhan) OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	status, raw, err := d.do(ctx, http.MethodGet, "/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apperrors.NewOrderError(orderID, "", "status", fmt.Sprintf("HTTP %d", status), nil)
	}

	var resp struct {
		OrderStatus         string  `json:"orderStatus"`
		FilledQty           int     `json:"filledQty"`
		Price               float64 `json:"price"`
		PendingQty          int     `json:"pendingQty"`
		OMSErrorDescription string  `json:"omsErrorDescription"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.NewBrokerError("dhan", "decode", "order status", err)
	}

	return &OrderStatus{
		State:           normalizeDhanStatus(resp.OrderStatus),
		FilledQty:       resp.FilledQty,
		AveragePrice:    resp.Price,
		PendingQty:      resp.PendingQty,
		RejectionReason: resp.OMSErrorDescription,
	}, nil
}

// CancelOrder cancels a pending order.
func (d *Dhan) CancelOrder(ctx context.Context, orderID string) error {
	status, raw, err := d.do(ctx, http.MethodDelete, "/orders/"+orderID, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		var resp struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &resp)
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return apperrors.NewOrderError(orderID, "", "cancel", msg, nil)
	}
	return nil
}

// Positions fetches the day's positions.
func (d *Dhan) Positions(ctx context.Context) ([]Position, error) {
	status, raw, err := d.do(ctx, http.MethodGet, "/positions", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apperrors.NewBrokerError("dhan", fmt.Sprintf("%d", status), "positions fetch failed", nil)
	}

	var resp struct {
		Data []struct {
			TradingSymbol string  `json:"tradingSymbol"`
			SecurityID    string  `json:"securityId"`
			NetQty        int     `json:"netQty"`
			BuyAvg        float64 `json:"buyAvg"`
			RealizedPL    float64 `json:"realizedProfit"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.NewBrokerError("dhan", "decode", "positions", err)
	}

	positions := make([]Position, 0, len(resp.Data))
	for _, r := range resp.Data {
		positions = append(positions, Position{
			Instrument:    r.TradingSymbol,
			InstrumentKey: r.SecurityID,
			Qty:           r.NetQty,
			AveragePrice:  r.BuyAvg,
			PnL:           r.RealizedPL,
		})
	}
	return positions, nil
}
