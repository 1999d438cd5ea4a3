package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// StringToDecimal 解析交易所返回的数字字符串
func StringToDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// TruncateDecimal 向零截断到 precision 位小数，永不进位
func TruncateDecimal(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Truncate(precision)
}

// FormatDecimal 把数值格式化为固定精度字符串 (截断而非四舍五入)
// 例如 FormatDecimal(0.000199, 5) -> "0.00019"
func FormatDecimal(d decimal.Decimal, precision int32) string {
	return d.Truncate(precision).StringFixed(precision)
}

// CalculateBackoff 返回第 retry 次重试前的等待时间: base * 2^retry，上限 backoffMax
func CalculateBackoff(retry int) time.Duration {
	if retry < 0 {
		return backoffBase
	}
	if retry > 30 {
		return backoffMax
	}
	d := backoffBase * time.Duration(1<<retry)
	if d > backoffMax {
		return backoffMax
	}
	return d
}

// Clock 抽象了时间，测试中可以替换为不等待的实现
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Sleep 等待 d 或者 ctx 被取消
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

// FormatInterval 将 time.Duration 格式化为简短字符串，如 "2m", "30s"
func FormatInterval(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	if d >= time.Second && d%time.Second == 0 {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	return d.String()
}
