package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tpsl-trader/internal/api"
	"tpsl-trader/internal/model"
	"tpsl-trader/internal/service"
)

var (
	// ErrCredentialCheck 表示下单前的凭证校验失败，此时不会提交订单
	ErrCredentialCheck = errors.New("API key validation failed")
	// ErrZeroQuantity 表示截断后的下单数量为 0
	ErrZeroQuantity = errors.New("order quantity truncates to zero")
)

// SpotConfig 定义现货执行器所需的全部配置
type SpotConfig struct {
	Symbol            string
	QuoteBudget       decimal.Decimal
	PricePrecision    int32
	QuantityPrecision int32
	FeeBuffer         decimal.Decimal
	OversoldReduction decimal.Decimal
}

// SellReport 是一次卖出 (含重试) 的结果
// 失败时 StatusCode/Body 用于日志诊断
type SellReport struct {
	Success    bool
	Attempts   int
	Quantity   string // 最后一次提交的数量
	Reason     api.RejectReason
	StatusCode int
	Body       string
	Response   *api.OrderResponse
	Err        error
}

// Retries 返回降量重试的次数
func (r SellReport) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}

var _ Executor = (*SpotExecutor)(nil)

// SpotExecutor 实现了 Executor 接口
type SpotExecutor struct {
	cfg      *SpotConfig
	exchange Exchange
	logger   *zap.Logger
}

// NewSpotExecutor 初始化现货执行器
func NewSpotExecutor(cfg *SpotConfig, exchange Exchange, logger *zap.Logger) *SpotExecutor {
	return &SpotExecutor{
		cfg:      cfg,
		exchange: exchange,
		logger:   logger.With(zap.String("component", "executor"), zap.String("Symbol", cfg.Symbol)),
	}
}

// ValidateCredentials 通过一次签名的账户查询确认凭证可用
func (e *SpotExecutor) ValidateCredentials(ctx context.Context) error {
	acct, err := e.exchange.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialCheck, err)
	}
	if !acct.HasMakerCommission {
		return fmt.Errorf("%w: account response missing makerCommission", ErrCredentialCheck)
	}
	return nil
}

// MarketBuy 用 QuoteBudget 发起市价买入，凭证校验失败时直接返回
func (e *SpotExecutor) MarketBuy(ctx context.Context) (*api.OrderResponse, error) {
	if err := e.ValidateCredentials(ctx); err != nil {
		return nil, err
	}

	qty := service.TruncateDecimal(e.cfg.QuoteBudget, e.cfg.PricePrecision)
	if !qty.IsPositive() {
		return nil, ErrZeroQuantity
	}

	req := model.OrderRequest{
		Symbol:        e.cfg.Symbol,
		Side:          model.SideBuy,
		Type:          model.OrderTypeMarket,
		QuoteOrderQty: qty.StringFixed(e.cfg.PricePrecision),
		Precision:     e.cfg.PricePrecision,
		ClientOrderID: newClientOrderID(),
	}
	e.logger.Info("Sending market BUY", zap.String("Order", req.String()))

	resp, err := e.exchange.PlaceOrder(ctx, req)
	if err != nil {
		e.logger.Error("Market BUY failed", zap.Error(err))
		return nil, err
	}
	e.logger.Info("Market BUY accepted", zap.String("OrderID", resp.OrderID), zap.String("Response", resp.Raw))
	return resp, nil
}

// MarketSell 卖出 available × FeeBuffer (截断)
// 若交易所返回 Oversold，再以 × OversoldReduction 的数量重试一次；其他拒单不重试
func (e *SpotExecutor) MarketSell(ctx context.Context, available decimal.Decimal) SellReport {
	qty := service.TruncateDecimal(available.Mul(e.cfg.FeeBuffer), e.cfg.QuantityPrecision)

	report := e.sellOnce(ctx, qty)
	if report.Success || report.Reason != api.ReasonOversold {
		return report
	}

	reduced := service.TruncateDecimal(qty.Mul(e.cfg.OversoldReduction), e.cfg.QuantityPrecision)
	e.logger.Warn("Sell rejected as oversold, retrying with reduced quantity",
		zap.String("Previous", report.Quantity),
		zap.String("Reduced", reduced.StringFixed(e.cfg.QuantityPrecision)))

	retry := e.sellOnce(ctx, reduced)
	retry.Attempts += report.Attempts
	return retry
}

func (e *SpotExecutor) sellOnce(ctx context.Context, qty decimal.Decimal) SellReport {
	qtyStr := qty.StringFixed(e.cfg.QuantityPrecision)
	if !qty.IsPositive() {
		return SellReport{Quantity: qtyStr, Err: ErrZeroQuantity}
	}

	req := model.OrderRequest{
		Symbol:        e.cfg.Symbol,
		Side:          model.SideSell,
		Type:          model.OrderTypeMarket,
		Quantity:      qtyStr,
		Precision:     e.cfg.QuantityPrecision,
		ClientOrderID: newClientOrderID(),
	}
	e.logger.Info("Sending market SELL", zap.String("Order", req.String()))

	report := SellReport{Attempts: 1, Quantity: qtyStr}
	resp, err := e.exchange.PlaceOrder(ctx, req)
	if err != nil {
		report.Err = err
		var te *api.TransportError
		if errors.As(err, &te) {
			report.Reason = te.Reason
			report.StatusCode = te.StatusCode
			report.Body = te.Body
		}
		e.logger.Error("Market SELL failed",
			zap.String("Quantity", qtyStr),
			zap.String("Reason", report.Reason.String()),
			zap.Int("Status", report.StatusCode),
			zap.String("Body", report.Body),
			zap.Error(err))
		return report
	}

	report.Success = true
	report.Response = resp
	e.logger.Info("Market SELL accepted", zap.String("OrderID", resp.OrderID), zap.String("Response", resp.Raw))
	return report
}

// newClientOrderID 生成 32 位的客户端订单号
func newClientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
