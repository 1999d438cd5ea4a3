package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side 定义了订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType 目前只支持市价单
type OrderType string

const OrderTypeMarket OrderType = "MARKET"

// BuyDecision 是上游信号给出的买入建议
type BuyDecision string

const (
	BuyYes BuyDecision = "YES"
	BuyNo  BuyDecision = "NO"
)

// ParseBuyDecision 不区分大小写，无法识别的值一律视为 NO
func ParseBuyDecision(s string) BuyDecision {
	if strings.EqualFold(strings.TrimSpace(s), "yes") {
		return BuyYes
	}
	return BuyNo
}

func (b BuyDecision) String() string {
	return strings.ToLower(string(b))
}

// TradeParameters 由信号解析步骤写入，监控循环每轮重新读取
// TakeProfit 与 StopLoss 之间不做大小校验，交叉的配置也是合法的
type TradeParameters struct {
	TakeProfit  decimal.Decimal
	StopLoss    decimal.Decimal
	BuyDecision BuyDecision
}

func (p TradeParameters) String() string {
	return fmt.Sprintf("TP: %s | SL: %s | Buy: %s", p.TakeProfit, p.StopLoss, p.BuyDecision)
}

// OrderRequest 描述一笔市价单
// Quantity 为基础货币数量，QuoteOrderQty 为计价货币金额，二者只填其一
// 两者都是已经按 Precision 截断的定点字符串
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      string
	QuoteOrderQty string
	Precision     int32
	ClientOrderID string
}

func (o OrderRequest) String() string {
	amount := o.Quantity
	if amount == "" {
		amount = o.QuoteOrderQty + " (quote)"
	}
	return fmt.Sprintf("ORDER [%s %s %s] %s", o.Side, o.Type, o.Symbol, amount)
}

// TriggerKind 表示触发卖出的条件
type TriggerKind string

const (
	TriggerTakeProfit TriggerKind = "TAKE_PROFIT"
	TriggerStopLoss   TriggerKind = "STOP_LOSS"
)

// MonitorSession 只存在于一次监控运行的内存中
type MonitorSession struct {
	QuantityToSell decimal.Decimal
	LastPrice      decimal.Decimal
	ElapsedCycles  int
}
