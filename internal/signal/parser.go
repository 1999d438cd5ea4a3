package signal

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"tpsl-trader/internal/model"
)

// ErrNoThresholds 文本中找不到止盈或止损价格
var ErrNoThresholds = errors.New("couldn't parse take profit / stop loss from signal")

const numberPattern = `([0-9]+(?:\.[0-9]+)?)`

// 按优先级依次尝试
var (
	takeProfitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Take Profit\s*:?\s*` + numberPattern),
		regexp.MustCompile(`Take Profits\s*:?\s*` + numberPattern),
		regexp.MustCompile(`Take Profit Level\s*:?\s*` + numberPattern),
	}
	stopLossPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Stop Loss\s*:?\s*` + numberPattern),
		regexp.MustCompile(`Stop Losses\s*:?\s*` + numberPattern),
		regexp.MustCompile(`Stop Loss Level\s*:?\s*` + numberPattern),
	}
	buyPattern = regexp.MustCompile(`(?i)Buy\s*:?\s*yes`)
)

// ParseSignal 从分析师的自由文本中提取止盈、止损和买入建议
// 没有明确的 "Buy: yes" 时买入建议为 NO
func ParseSignal(text string) (model.TradeParameters, error) {
	tp, okTP := firstMatch(takeProfitPatterns, text)
	sl, okSL := firstMatch(stopLossPatterns, text)
	if !okTP || !okSL {
		return model.TradeParameters{}, ErrNoThresholds
	}

	tpVal, err := decimal.NewFromString(tp)
	if err != nil {
		return model.TradeParameters{}, fmt.Errorf("take profit %q: %w", tp, err)
	}
	slVal, err := decimal.NewFromString(sl)
	if err != nil {
		return model.TradeParameters{}, fmt.Errorf("stop loss %q: %w", sl, err)
	}

	decision := model.BuyNo
	if buyPattern.MatchString(text) {
		decision = model.BuyYes
	}
	return model.TradeParameters{TakeProfit: tpVal, StopLoss: slVal, BuyDecision: decision}, nil
}

func firstMatch(patterns []*regexp.Regexp, text string) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}
