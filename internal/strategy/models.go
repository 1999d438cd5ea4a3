package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	executor "tpsl-trader/internal/execution"
	"tpsl-trader/internal/model"
)

// MonitorState 监控状态机的状态
type MonitorState string

const (
	StateStart        MonitorState = "START"
	StateGuardBalance MonitorState = "GUARD_BALANCE"
	StatePoll         MonitorState = "POLL"
	StateSellAttempt  MonitorState = "SELL_ATTEMPT"
	StateDone         MonitorState = "DONE"
)

// Outcome 描述监控为何结束
type Outcome string

const (
	OutcomeSold      Outcome = "SOLD"       // 止盈或止损卖出成功
	OutcomeNoBalance Outcome = "NO_BALANCE" // 没有可监控的持仓
	OutcomeDust      Outcome = "DUST"       // 余额低于最小可交易数量
)

// Result 是一次监控运行的结果
type Result struct {
	Outcome Outcome
	Trigger model.TriggerKind
	Session model.MonitorSession
	Report  executor.SellReport
}

// MarketReader 监控所需的行情和余额查询
type MarketReader interface {
	GetFreeBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Seller 执行退出卖单
type Seller interface {
	MarketSell(ctx context.Context, available decimal.Decimal) executor.SellReport
}

// ParamsLoader 读取最新的止盈止损参数
type ParamsLoader interface {
	Load() (model.TradeParameters, error)
}

// EvaluateTriggers 按固定顺序返回当前价格满足的退出条件：先止盈，后止损
func EvaluateTriggers(price decimal.Decimal, params model.TradeParameters) []model.TriggerKind {
	var triggers []model.TriggerKind
	if price.GreaterThanOrEqual(params.TakeProfit) {
		triggers = append(triggers, model.TriggerTakeProfit)
	}
	if price.LessThanOrEqual(params.StopLoss) {
		triggers = append(triggers, model.TriggerStopLoss)
	}
	return triggers
}
