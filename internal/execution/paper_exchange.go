package executor

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tpsl-trader/internal/api"
	"tpsl-trader/internal/model"
)

// PriceSource 提供最新成交价，模拟盘用真实行情撮合
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PaperConfig 模拟盘配置
type PaperConfig struct {
	Symbol       string
	BaseAsset    string          // 例如 WBTC
	QuoteAsset   string          // 例如 USDT
	FeeRate      decimal.Decimal // 交易手续费率 (例如 0.001)
	QuoteBalance decimal.Decimal // 初始计价货币余额
	BaseBalance  decimal.Decimal // 初始基础货币余额
}

var (
	_ Exchange = (*PaperExchange)(nil)
	_ Exchange = (*api.Client)(nil)
)

// PaperExchange 用真实价格和内存余额模拟现货市价单
// 卖出数量超过可用余额时返回与交易所相同的 Oversold 拒单
type PaperExchange struct {
	cfg    *PaperConfig
	prices PriceSource
	logger *zap.Logger

	mu       sync.Mutex // 保护账户状态
	balances map[string]decimal.Decimal
	orderSeq int64
}

// NewPaperExchange 构造函数
func NewPaperExchange(cfg *PaperConfig, prices PriceSource, logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		cfg:    cfg,
		prices: prices,
		logger: logger.With(zap.String("component", "paper")),
		balances: map[string]decimal.Decimal{
			cfg.BaseAsset:  cfg.BaseBalance,
			cfg.QuoteAsset: cfg.QuoteBalance,
		},
	}
}

func (p *PaperExchange) GetAccount(ctx context.Context) (*api.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct := &api.Account{HasMakerCommission: true, CanTrade: true}
	for asset, free := range p.balances {
		acct.Balances = append(acct.Balances, api.Balance{Asset: asset, Free: free, Locked: decimal.Zero})
	}
	return acct, nil
}

func (p *PaperExchange) GetFreeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[asset], nil
}

func (p *PaperExchange) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return p.prices.GetPrice(ctx, symbol)
}

// PlaceOrder 以当前价格立即成交，手续费从到账资产中扣除
func (p *PaperExchange) PlaceOrder(ctx context.Context, req model.OrderRequest) (*api.OrderResponse, error) {
	if req.Symbol != p.cfg.Symbol {
		return nil, reject(http.StatusBadRequest, -1121, "Invalid symbol.")
	}

	price, err := p.prices.GetPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("paper: invalid price %s", price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	keep := decimal.NewFromInt(1).Sub(p.cfg.FeeRate)
	base, quote := p.cfg.BaseAsset, p.cfg.QuoteAsset

	switch req.Side {
	case model.SideBuy:
		spend, err := decimal.NewFromString(req.QuoteOrderQty)
		if err != nil {
			return nil, reject(http.StatusBadRequest, 700004, "Invalid quoteOrderQty.")
		}
		if spend.GreaterThan(p.balances[quote]) {
			return nil, reject(http.StatusBadRequest, 10101, "Insufficient balance.")
		}
		filled := spend.Div(price).Mul(keep)
		p.balances[quote] = p.balances[quote].Sub(spend)
		p.balances[base] = p.balances[base].Add(filled)
		p.logger.Info("Paper BUY filled",
			zap.String("Spend", spend.String()),
			zap.String("Filled", filled.String()),
			zap.String("Price", price.String()))

	case model.SideSell:
		qty, err := decimal.NewFromString(req.Quantity)
		if err != nil {
			return nil, reject(http.StatusBadRequest, 700004, "Invalid quantity.")
		}
		if qty.GreaterThan(p.balances[base]) {
			return nil, reject(http.StatusBadRequest, 30005, "Oversold")
		}
		proceeds := qty.Mul(price).Mul(keep)
		p.balances[base] = p.balances[base].Sub(qty)
		p.balances[quote] = p.balances[quote].Add(proceeds)
		p.logger.Info("Paper SELL filled",
			zap.String("Quantity", qty.String()),
			zap.String("Proceeds", proceeds.String()),
			zap.String("Price", price.String()))

	default:
		return nil, reject(http.StatusBadRequest, 700004, "Invalid side.")
	}

	p.orderSeq++
	orderID := "paper-" + strconv.FormatInt(p.orderSeq, 10)
	raw := fmt.Sprintf(`{"symbol":%q,"orderId":%q,"clientOrderId":%q,"side":%q,"type":%q}`,
		req.Symbol, orderID, req.ClientOrderID, req.Side, req.Type)
	return &api.OrderResponse{
		OrderID:       orderID,
		Symbol:        req.Symbol,
		ClientOrderID: req.ClientOrderID,
		Raw:           raw,
	}, nil
}

func reject(status, code int, msg string) error {
	body := fmt.Sprintf(`{"code":%d,"msg":%q}`, code, msg)
	return api.NewTransportError(http.MethodPost, api.PathOrder, status, []byte(body))
}

// QuoteAssetOf 从交易对中推断计价货币，例如 WBTCUSDT + WBTC -> USDT
// 交易对不以 baseAsset 开头时无法推断，返回错误
func QuoteAssetOf(symbol, baseAsset string) (string, error) {
	if baseAsset == "" {
		return "", fmt.Errorf("paper: empty base asset for symbol %s", symbol)
	}
	q := strings.TrimPrefix(symbol, baseAsset)
	if q == symbol || q == "" {
		return "", fmt.Errorf("paper: symbol %s does not start with base asset %s", symbol, baseAsset)
	}
	return q, nil
}
