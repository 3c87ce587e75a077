package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"orchestrator/internal/models"
	"orchestrator/pkg/crypto"
	"orchestrator/pkg/ratelimit"
	"orchestrator/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки клиента движка
var (
	ErrUnauthorized = errors.New("engine rejected credentials")
	ErrEngineError  = errors.New("engine returned error status")
)

// Client - клиент REST API одного инстанса движка
//
// Все методы best-effort: любой сбой (сеть, таймаут, кривой JSON)
// возвращается ошибкой и интерпретируется вызывающим как "данных нет".
// Bearer-токен кэшируется и прозрачно перезапрашивается по истечении
// TTL или при 401.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	limiter  *ratelimit.RateLimiter
	tokenTTL time.Duration
	logger   *utils.Logger

	mu           sync.Mutex
	token        string
	tokenExpires time.Time
}

// NewClient создает клиент движка
// httpClient разделяется между инстансами; limiter - персональный
func NewClient(baseURL, username, password string, httpClient *http.Client, limiter *ratelimit.RateLimiter, tokenTTL time.Duration, logger *utils.Logger) *Client {
	if tokenTTL <= 0 {
		tokenTTL = 60 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     httpClient,
		limiter:  limiter,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// Status возвращает открытые позиции инстанса
func (c *Client) Status(ctx context.Context) ([]models.OpenPosition, error) {
	var trades []tradeStatus
	if err := c.get(ctx, "/api/v1/status", nil, &trades); err != nil {
		return nil, err
	}

	positions := make([]models.OpenPosition, 0, len(trades))
	for _, t := range trades {
		positions = append(positions, models.OpenPosition{
			Pair:          t.Pair,
			TradeID:       t.TradeID,
			EntryPrice:    t.OpenRate,
			Amount:        t.Amount,
			OpenedAt:      parseEngineTime(t.OpenDate),
			CurrentPrice:  t.CurrentRate,
			ProfitPercent: t.ProfitRatio * 100,
		})
	}
	return positions, nil
}

// Balance возвращает суммарную стоимость портфеля в stake-валюте
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/api/v1/balance", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// Profit возвращает сводку прибыли инстанса
func (c *Client) Profit(ctx context.Context) (*ProfitSummary, error) {
	var resp profitResponse
	if err := c.get(ctx, "/api/v1/profit", nil, &resp); err != nil {
		return nil, err
	}
	return &ProfitSummary{
		ClosedCoin:    resp.ProfitClosedCoin,
		ClosedPercent: resp.ProfitClosedPercent,
		AllCoin:       resp.ProfitAllCoin,
		TradeCount:    resp.TradeCount,
	}, nil
}

// Ticker возвращает последнюю цену пары
func (c *Client) Ticker(ctx context.Context, pair string) (float64, error) {
	var resp tickerResponse
	query := url.Values{"pair": {pair}}
	if err := c.get(ctx, "/api/v1/ticker", query, &resp); err != nil {
		return 0, err
	}
	if resp.Last <= 0 {
		return 0, fmt.Errorf("%w: ticker for %s has no last price", ErrEngineError, pair)
	}
	return resp.Last, nil
}

// ForceExit закрывает позицию полностью рыночным ордером
func (c *Client) ForceExit(ctx context.Context, tradeID int64) error {
	req := forceExitRequest{
		TradeID:   strconv.FormatInt(tradeID, 10),
		OrderType: "market",
	}
	var resp forceExitResponse
	return c.post(ctx, "/api/v1/forceexit", req, &resp)
}

// get выполняет авторизованный GET с одной повторной попыткой при 401
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// post выполняет авторизованный POST с одной повторной попыткой при 401
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, data, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	status, err := c.request(ctx, method, path, query, body, token, out)
	if err != nil {
		return err
	}

	// Токен протух раньше TTL (рестарт движка): перелогиниваемся один раз
	if status == http.StatusUnauthorized {
		c.invalidateToken()
		token, err = c.ensureToken(ctx)
		if err != nil {
			return err
		}
		status, err = c.request(ctx, method, path, query, body, token, out)
		if err != nil {
			return err
		}
	}

	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: %s %s -> %d", ErrEngineError, method, path, status)
	}
	return nil
}

// request выполняет один HTTP запрос; тело декодируется только при 200
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body []byte, token string, out interface{}) (int, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("engine request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode engine response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// ensureToken возвращает валидный bearer-токен, перелогиниваясь по TTL
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpires) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/token/login", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("engine login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login -> %d", ErrEngineError, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrEngineError)
	}

	c.token = tok.AccessToken
	c.tokenExpires = time.Now().Add(c.tokenTTL)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// parseEngineTime разбирает дату открытия позиции
// Движок отдаёт либо RFC3339, либо "2006-01-02 15:04:05"
func parseEngineTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

// Factory создает клиентов движков для инстансов реестра
//
// Пароль API хранится в реестре зашифрованным (AES-256-GCM) и
// расшифровывается только в момент создания клиента.
type Factory struct {
	httpClient    *http.Client
	encryptionKey string
	tokenTTL      time.Duration
	rate          float64
	burst         float64
	logger        *utils.Logger
}

// NewFactory создает фабрику клиентов
func NewFactory(httpClient *http.Client, encryptionKey string, tokenTTL time.Duration, rate, burst float64, logger *utils.Logger) *Factory {
	return &Factory{
		httpClient:    httpClient,
		encryptionKey: encryptionKey,
		tokenTTL:      tokenTTL,
		rate:          rate,
		burst:         burst,
		logger:        logger.WithComponent("engine"),
	}
}

// ClientFor создает клиент для инстанса из реестра
func (f *Factory) ClientFor(inst *models.BotInstance) (*Client, error) {
	password, err := crypto.DecryptWithKeyString(inst.APIPasswordEnc, f.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt api password for %s: %w", inst.InstanceID, err)
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", inst.Port)
	limiter := ratelimit.NewRateLimiter(f.rate, f.burst)

	return NewClient(baseURL, inst.APIUsername, password, f.httpClient, limiter, f.tokenTTL,
		f.logger.WithInstance(inst.InstanceID)), nil
}
