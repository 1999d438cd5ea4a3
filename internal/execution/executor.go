package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"tpsl-trader/internal/api"
	"tpsl-trader/internal/model"
)

// Exchange 是执行器依赖的交易所接口，真实客户端和模拟盘都实现它
type Exchange interface {
	// GetAccount 查询账户信息 (需要签名)
	GetAccount(ctx context.Context) (*api.Account, error)

	// GetFreeBalance 查询资产可用余额，资产不存在时返回 0
	GetFreeBalance(ctx context.Context, asset string) (decimal.Decimal, error)

	// GetPrice 查询最新成交价
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// PlaceOrder 提交订单，拒单时返回 *api.TransportError
	PlaceOrder(ctx context.Context, req model.OrderRequest) (*api.OrderResponse, error)
}

// Executor 是交易执行器的通用接口
type Executor interface {
	// MarketBuy 校验凭证后用固定的计价货币预算市价买入
	MarketBuy(ctx context.Context) (*api.OrderResponse, error)

	// MarketSell 按可用数量市价卖出，失败不会返回致命错误
	MarketSell(ctx context.Context, available decimal.Decimal) SellReport
}
