// Package rabbitx adapts the RabbitX DEX to the source contracts. There is
// no Go SDK for RabbitX, so requests go straight to the REST API with the
// JWT-based private headers.
package rabbitx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

const (
	defaultBaseURL  = "https://api.prod.rabbitx.io"
	pathPositions   = "/positions"
	pathFundingRate = "/fundingrate"
	pathTrades      = "/trades"
	perpSuffix      = "-PERP"
	tradesPageSize  = "100"
)

// Source reads positions, funding history and trade fees from RabbitX.
// Funding settles hourly.
type Source struct {
	baseURL       string
	apiKey        string
	secret        string
	jwtToken      string
	intervalHours float64
	httpClient    *http.Client
	limiter       *rate.Limiter
	log           *logger.Log
}

// New builds a RabbitX source from the exchange configuration.
func New(cfg *appconfig.Config) *Source {
	exCfg := cfg.Exchanges.Rabbitx

	baseURL := exCfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Reader.Pool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Reader.Pool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Reader.Pool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Reader.Pool.IdleConnTimeout,
	}

	return &Source{
		baseURL:       baseURL,
		apiKey:        exCfg.APIKey,
		secret:        exCfg.Secret,
		jwtToken:      exCfg.JWTToken,
		intervalHours: exCfg.IntervalHours,
		httpClient:    &http.Client{Transport: transport, Timeout: cfg.Reader.Timeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.Reader.RateLimit.RequestsPerSecond), cfg.Reader.RateLimit.BurstSize),
		log:           logger.GetLogger(),
	}
}

func (s *Source) Name() string { return model.ExchangeRabbitX }

func (s *Source) FundingIntervalHours() float64 { return s.intervalHours }

type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// get issues a GET request against path with the given query values and
// decodes the result array into out. Private endpoints are authenticated
// with the JWT plus an HMAC signature over timestamp, method and path.
func (s *Source) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+requestPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(timestamp + http.MethodGet + path))

	req.Header.Set("RBT-API-KEY", s.apiKey)
	req.Header.Set("RBT-TS", timestamp)
	req.Header.Set("RBT-SIGNATURE", hex.EncodeToString(mac.Sum(nil)))
	if s.jwtToken != "" {
		req.Header.Set("RBT-JWT", s.jwtToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("request failed: %s", envelope.Error)
	}
	return json.Unmarshal(envelope.Result, out)
}

type positionData struct {
	MarketID      string `json:"market_id"`
	Size          string `json:"size"`
	Side          string `json:"side"`
	EntryPrice    string `json:"entry_price"`
	FairPrice     string `json:"fair_price"`
	UnrealizedPnL string `json:"unrealized_pnl"`
}

// FetchPositions returns all open RabbitX positions. Sizes arrive
// unsigned with a separate side field; shorts are negated here.
func (s *Source) FetchPositions(ctx context.Context) ([]model.RawPosition, error) {
	var data []positionData
	if err := s.get(ctx, pathPositions, nil, &data); err != nil {
		return nil, fmt.Errorf("rabbitx positions: %w", err)
	}

	positions := make([]model.RawPosition, 0, len(data))
	for _, p := range data {
		size, err := strconv.ParseFloat(p.Size, 64)
		if err != nil || size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		fair, _ := strconv.ParseFloat(p.FairPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnrealizedPnL, 64)

		side := model.SideLong
		if !strings.EqualFold(p.Side, "buy") && !strings.EqualFold(p.Side, "long") {
			side = model.SideShort
			if size > 0 {
				size = -size
			}
		}

		positions = append(positions, model.RawPosition{
			Exchange:      model.ExchangeRabbitX,
			Symbol:        p.MarketID,
			Size:          size,
			Side:          side,
			EntryPrice:    entry,
			CurrentPrice:  fair,
			UnrealizedPnL: pnl,
			Leverage:      1,
			MarginMode:    "cross",
		})
	}
	return positions, nil
}

type fundingData struct {
	MarketID  string  `json:"market_id"`
	Rate      float64 `json:"rate,string"`
	Timestamp int64   `json:"timestamp"`
}

// FetchFundingHistory returns hourly funding settlements for rawSymbol
// over the past days, oldest first. The funding endpoint wants the
// market id with a -PERP suffix.
func (s *Source) FetchFundingHistory(ctx context.Context, rawSymbol string, days int) ([]model.FundingRatePoint, error) {
	marketID := rawSymbol
	if !strings.HasSuffix(marketID, perpSuffix) {
		marketID += perpSuffix
	}

	end := time.Now().UnixMilli()
	start := time.Now().AddDate(0, 0, -days).UnixMilli()

	query := url.Values{}
	query.Set("market_id", marketID)
	query.Set("start_time", strconv.FormatInt(start, 10))
	query.Set("end_time", strconv.FormatInt(end, 10))

	var data []fundingData
	if err := s.get(ctx, pathFundingRate, query, &data); err != nil {
		return nil, fmt.Errorf("rabbitx funding history %s: %w", rawSymbol, err)
	}

	points := make([]model.FundingRatePoint, 0, len(data))
	for _, item := range data {
		points = append(points, model.FundingRatePoint{
			TimestampMs: item.Timestamp,
			Rate:        item.Rate,
			Symbol:      rawSymbol,
		})
	}
	// The API does not document an ordering, normalize to oldest first.
	sort.Slice(points, func(i, j int) bool {
		return points[i].TimestampMs < points[j].TimestampMs
	})
	return points, nil
}

type tradeData struct {
	Fee string `json:"fee"`
}

// FetchFees sums the fees of the most recent trades. RabbitX exposes no
// time-bounded fee endpoint, so this approximates the window with the
// last page of trades, matching how the account screen reports fees.
func (s *Source) FetchFees(ctx context.Context, days int) (float64, error) {
	query := url.Values{}
	query.Set("p_limit", tradesPageSize)

	var data []tradeData
	if err := s.get(ctx, pathTrades, query, &data); err != nil {
		return 0, fmt.Errorf("rabbitx trades: %w", err)
	}

	total := 0.0
	for _, trade := range data {
		fee, err := strconv.ParseFloat(trade.Fee, 64)
		if err != nil {
			continue
		}
		if fee < 0 {
			fee = -fee
		}
		total += fee
	}
	return total, nil
}
