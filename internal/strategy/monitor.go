package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tpsl-trader/internal/model"
	"tpsl-trader/internal/service"
)

// MonitorConfig 定义了监控循环的参数
type MonitorConfig struct {
	Symbol            string
	BaseAsset         string
	MinBalance        decimal.Decimal
	QuantityPrecision int32
	PollInterval      time.Duration
	FetchRetries      int
}

// Monitor 是单线程的持仓监控循环
// 没有最大轮数限制，直到卖出成功或 ctx 被取消才返回
type Monitor struct {
	cfg    *MonitorConfig
	market MarketReader
	seller Seller
	params ParamsLoader
	clock  service.Clock
	logger *zap.Logger

	state MonitorState
}

// NewMonitor 初始化监控器，clock 为 nil 时使用真实时间
func NewMonitor(cfg *MonitorConfig, market MarketReader, seller Seller, params ParamsLoader, clock service.Clock, logger *zap.Logger) *Monitor {
	if clock == nil {
		clock = service.RealClock{}
	}
	return &Monitor{
		cfg:    cfg,
		market: market,
		seller: seller,
		params: params,
		clock:  clock,
		logger: logger.With(zap.String("component", "monitor"), zap.String("Symbol", cfg.Symbol)),
		state:  StateStart,
	}
}

// State 返回当前状态
func (m *Monitor) State() MonitorState {
	return m.state
}

func (m *Monitor) transition(to MonitorState) {
	if to == m.state {
		return
	}
	m.logger.Debug("State transition", zap.String("From", string(m.state)), zap.String("To", string(to)))
	m.state = to
}

// Run 驱动状态机：START -> GUARD_BALANCE -> POLL -> SELL_ATTEMPT -> DONE
// 返回 error 表示致命错误 (参数文件缺失/损坏、行情或余额读取在重试后仍失败、ctx 取消)
func (m *Monitor) Run(ctx context.Context) (Result, error) {
	var session model.MonitorSession

	m.transition(StateStart)
	balance, err := m.fetch(ctx, "balance", func() (decimal.Decimal, error) {
		return m.market.GetFreeBalance(ctx, m.cfg.BaseAsset)
	})
	if err != nil {
		return Result{Session: session}, fmt.Errorf("read %s balance: %w", m.cfg.BaseAsset, err)
	}

	m.transition(StateGuardBalance)
	if !balance.IsPositive() {
		m.logger.Info("No balance detected. Exiting.", zap.String("Asset", m.cfg.BaseAsset))
		m.transition(StateDone)
		return Result{Outcome: OutcomeNoBalance, Session: session}, nil
	}
	if balance.LessThan(m.cfg.MinBalance) {
		m.logger.Info("Balance is too small, won't execute any market sell",
			zap.String("Balance", balance.String()),
			zap.String("Minimum", m.cfg.MinBalance.String()))
		m.transition(StateDone)
		return Result{Outcome: OutcomeDust, Session: session}, nil
	}

	// 只在启动时取一次快照，目标是退出启动时的整个仓位
	session.QuantityToSell = service.TruncateDecimal(balance, m.cfg.QuantityPrecision)
	m.logger.Info("Position snapshot taken",
		zap.String("Balance", balance.String()),
		zap.String("QtyToSell", session.QuantityToSell.StringFixed(m.cfg.QuantityPrecision)))

	for {
		m.transition(StatePoll)
		if err := ctx.Err(); err != nil {
			return Result{Session: session}, err
		}

		// 每轮重新读取，允许外部在运行期间调整止盈止损
		params, err := m.params.Load()
		if err != nil {
			return Result{Session: session}, fmt.Errorf("load trade parameters: %w", err)
		}

		price, err := m.fetch(ctx, "price", func() (decimal.Decimal, error) {
			return m.market.GetPrice(ctx, m.cfg.Symbol)
		})
		if err != nil {
			return Result{Session: session}, fmt.Errorf("read %s price: %w", m.cfg.Symbol, err)
		}
		session.LastPrice = price
		session.ElapsedCycles++

		m.logger.Info("Poll",
			zap.Int("Cycle", session.ElapsedCycles),
			zap.String("Price", price.String()),
			zap.String("TakeProfit", params.TakeProfit.String()),
			zap.String("StopLoss", params.StopLoss.String()))

		for _, trigger := range EvaluateTriggers(price, params) {
			m.transition(StateSellAttempt)
			m.logger.Info("Exit condition met, selling at market",
				zap.String("Trigger", string(trigger)),
				zap.String("Price", price.String()),
				zap.String("Quantity", session.QuantityToSell.String()))

			report := m.seller.MarketSell(ctx, session.QuantityToSell)
			if report.Success {
				m.transition(StateDone)
				m.logger.Info("Position closed",
					zap.String("Trigger", string(trigger)),
					zap.String("Quantity", report.Quantity),
					zap.Int("Retries", report.Retries()))
				return Result{Outcome: OutcomeSold, Trigger: trigger, Session: session, Report: report}, nil
			}
			m.logger.Warn("Order failed. Will continue monitoring...",
				zap.String("Trigger", string(trigger)),
				zap.Int("Status", report.StatusCode),
				zap.String("Body", report.Body),
				zap.Error(report.Err))
		}

		m.logger.Info("No exit. Sleeping", zap.String("Interval", service.FormatInterval(m.cfg.PollInterval)))
		if err := service.Sleep(ctx, m.clock, m.cfg.PollInterval); err != nil {
			return Result{Session: session}, err
		}
	}
}

// fetch 对行情/余额读取做有限次数的指数退避重试
func (m *Monitor) fetch(ctx context.Context, what string, fn func() (decimal.Decimal, error)) (decimal.Decimal, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if attempt >= m.cfg.FetchRetries {
			return decimal.Zero, err
		}

		wait := service.CalculateBackoff(attempt)
		m.logger.Warn("Fetch failed, retrying",
			zap.String("What", what),
			zap.Int("Attempt", attempt+1),
			zap.Duration("Backoff", wait),
			zap.Error(err))
		if err := service.Sleep(ctx, m.clock, wait); err != nil {
			return decimal.Zero, err
		}
	}
}
