package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"tpsl-trader/internal/model"
	"tpsl-trader/internal/service"
)

const (
	HeaderAPIKey = "X-MEXC-APIKEY"

	PathAccount = "/api/v3/account"
	PathTicker  = "/api/v3/ticker/price"
	PathOrder   = "/api/v3/order"
)

// ClientConfig 定义 REST 客户端所需的全部配置
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	RecvWindow int64
	Timeout    time.Duration
}

// Balance 是账户中单个资产的余额，只有 Free 部分可用于下单
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Account 是 /api/v3/account 的精简视图
type Account struct {
	HasMakerCommission bool
	CanTrade           bool
	Balances           []Balance
}

// FreeBalance 返回 asset 的可用余额，不存在时返回 0
func (a *Account) FreeBalance(asset string) decimal.Decimal {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b.Free
		}
	}
	return decimal.Zero
}

// OrderResponse 保留下单接口的原始响应
type OrderResponse struct {
	OrderID       string
	Symbol        string
	ClientOrderID string
	Raw           string
}

// Client 是交易所 REST 客户端，本层不做任何重试
type Client struct {
	baseURL    string
	apiKey     string
	signer     *Signer
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient 初始化 REST 客户端
func NewClient(cfg ClientConfig, now func() time.Time, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		signer:     NewSigner(cfg.SecretKey, cfg.RecvWindow, now),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "api")),
	}
}

// GetAccount 查询账户信息 (需要签名)
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	body, err := c.doSigned(ctx, http.MethodGet, PathAccount, nil)
	if err != nil {
		return nil, err
	}
	return parseAccount(body)
}

// GetFreeBalance 返回 asset 的可用余额，资产不存在时返回 0
func (c *Client) GetFreeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	acct, err := c.GetAccount(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.FreeBalance(asset), nil
}

// GetPrice 查询最新成交价 (公共接口，每次调用都会发起请求)
func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	query := Params{}.Add("symbol", symbol).Encode()
	body, err := c.do(ctx, http.MethodGet, PathTicker, query, false)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := fastjson.ParseBytes(body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker: %w", err)
	}
	return decimalField(v, "price")
}

// PlaceOrder 提交市价单 (需要签名)，非 2xx 返回 *TransportError
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (*OrderResponse, error) {
	params := Params{}.
		Add("symbol", req.Symbol).
		Add("side", string(req.Side)).
		Add("type", string(req.Type))
	if req.Quantity != "" {
		params = params.Add("quantity", req.Quantity)
	}
	if req.QuoteOrderQty != "" {
		params = params.Add("quoteOrderQty", req.QuoteOrderQty)
	}
	if req.ClientOrderID != "" {
		params = params.Add("newClientOrderId", req.ClientOrderID)
	}

	body, err := c.doSigned(ctx, http.MethodPost, PathOrder, params)
	if err != nil {
		return nil, err
	}

	resp := &OrderResponse{Raw: string(body)}
	if v, err := fastjson.ParseBytes(body); err == nil {
		resp.OrderID = stringOrNumber(v.Get("orderId"))
		resp.Symbol = string(v.GetStringBytes("symbol"))
		resp.ClientOrderID = string(v.GetStringBytes("clientOrderId"))
	}
	return resp, nil
}

func (c *Client) doSigned(ctx context.Context, method, path string, params Params) ([]byte, error) {
	return c.do(ctx, method, path, c.signer.Sign(params).Encode(), true)
}

// do 发送请求；POST 的参数同样放在 query string 中，body 为空
func (c *Client) do(ctx context.Context, method, path, query string, signed bool) ([]byte, error) {
	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if signed {
		req.Header.Set(HeaderAPIKey, c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := NewTransportError(method, path, resp.StatusCode, body)
		c.logger.Debug("Exchange returned error",
			zap.String("Path", path),
			zap.Int("Status", resp.StatusCode),
			zap.String("Reason", te.Reason.String()))
		return nil, te
	}
	return body, nil
}

func parseAccount(body []byte) (*Account, error) {
	v, err := fastjson.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	acct := &Account{
		HasMakerCommission: v.Exists("makerCommission"),
		CanTrade:           v.GetBool("canTrade"),
	}
	for _, item := range v.GetArray("balances") {
		free, err := decimalField(item, "free")
		if err != nil {
			return nil, err
		}
		locked, err := decimalField(item, "locked")
		if err != nil {
			locked = decimal.Zero
		}
		acct.Balances = append(acct.Balances, Balance{
			Asset:  string(item.GetStringBytes("asset")),
			Free:   free,
			Locked: locked,
		})
	}
	return acct, nil
}

// decimalField 读取字符串或数字形式的数值字段
func decimalField(v *fastjson.Value, key string) (decimal.Decimal, error) {
	field := v.Get(key)
	if field == nil {
		return decimal.Zero, fmt.Errorf("field %q missing", key)
	}
	d, err := service.StringToDecimal(stringOrNumber(field))
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %q: %w", key, err)
	}
	return d, nil
}

func stringOrNumber(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return v.String()
}
