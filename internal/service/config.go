// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ErrMissingCredentials 表示 API Key 或 Secret 未配置
var ErrMissingCredentials = errors.New("MEXC_API_KEY or MEXC_API_SECRET not found")

const (
	EnvAPIKey    = "MEXC_API_KEY"
	EnvAPISecret = "MEXC_API_SECRET"
	envPrefix    = "TRADER"
)

type Config struct {
	Exchange ExchangeConfig `mapstructure:"Exchange"`
	Trading  TradingConfig  `mapstructure:"Trading"`
	Monitor  MonitorConfig  `mapstructure:"Monitor"`
	Log      LogConfig      `mapstructure:"Log"`
	DryRun   bool           `mapstructure:"DryRun"`
}

// ExchangeConfig 定义了交易所的连接信息
type ExchangeConfig struct {
	Name       string
	RESTURL    string
	RecvWindow int64         // 毫秒
	Timeout    time.Duration // 单次 HTTP 请求超时
}

// TradingConfig 定义了交易对、精度和下单参数
type TradingConfig struct {
	Symbol            string
	BaseAsset         string          // 卖出时查询余额的资产，例如 WBTC
	QuoteBudget       decimal.Decimal // 买入花费的计价货币数量
	PricePrecision    int32
	QuantityPrecision int32
	MinBalance        decimal.Decimal // 低于此余额视为粉尘，不下单
	FeeBuffer         decimal.Decimal // 卖出数量 = 可用余额 × FeeBuffer
	OversoldReduction decimal.Decimal // Oversold 重试时再乘以此系数
	PaperFeeRate      decimal.Decimal // 模拟盘手续费率
	PaperQuoteBalance decimal.Decimal // 模拟盘初始计价货币余额
	PaperBaseBalance  decimal.Decimal // 模拟盘初始基础货币余额
}

// MonitorConfig 定义了轮询监控参数
type MonitorConfig struct {
	PollInterval time.Duration
	ParamsFile   string
	FetchRetries int // 价格/余额读取失败后的重试次数，0 表示立即失败
}

type LogConfig struct {
	Level string
	File  string
}

// Credentials 在启动时加载一次，之后只读
type Credentials struct {
	APIKey    string
	APISecret string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Exchange.Name", "mexc")
	v.SetDefault("Exchange.RESTURL", "https://api.mexc.com")
	v.SetDefault("Exchange.RecvWindow", 5000)
	v.SetDefault("Exchange.Timeout", "10s")

	v.SetDefault("Trading.Symbol", "WBTCUSDT")
	v.SetDefault("Trading.BaseAsset", "WBTC")
	v.SetDefault("Trading.QuoteBudget", "20")
	v.SetDefault("Trading.PricePrecision", 2)
	v.SetDefault("Trading.QuantityPrecision", 5)
	v.SetDefault("Trading.MinBalance", "0.00015")
	v.SetDefault("Trading.FeeBuffer", "0.995")
	v.SetDefault("Trading.OversoldReduction", "0.99")
	v.SetDefault("Trading.PaperFeeRate", "0.001")
	v.SetDefault("Trading.PaperQuoteBalance", "100")
	v.SetDefault("Trading.PaperBaseBalance", "0")

	v.SetDefault("Monitor.PollInterval", "120s")
	v.SetDefault("Monitor.ParamsFile", "ai_agent_param.json")
	v.SetDefault("Monitor.FetchRetries", 3)

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.File", "")
	v.SetDefault("DryRun", false)
}

// NewViper 创建带默认值和环境变量覆盖的 viper 实例
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig 读取并解析配置文件，配置文件不存在时使用默认值
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	// 设置配置文件的名称、类型和路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查会导致下单错误的配置
func (c *Config) Validate() error {
	switch {
	case c.Trading.Symbol == "":
		return errors.New("config: Trading.Symbol is empty")
	case c.Trading.BaseAsset == "":
		return errors.New("config: Trading.BaseAsset is empty")
	case c.Trading.PricePrecision < 0 || c.Trading.QuantityPrecision < 0:
		return errors.New("config: precision must be >= 0")
	case !c.Trading.QuoteBudget.IsPositive():
		return errors.New("config: Trading.QuoteBudget must be positive")
	case !c.Trading.FeeBuffer.IsPositive() || c.Trading.FeeBuffer.GreaterThan(decimal.NewFromInt(1)):
		return errors.New("config: Trading.FeeBuffer must be in (0, 1]")
	case !c.Trading.OversoldReduction.IsPositive() || c.Trading.OversoldReduction.GreaterThan(decimal.NewFromInt(1)):
		return errors.New("config: Trading.OversoldReduction must be in (0, 1]")
	case !c.Trading.MinBalance.Mul(c.Trading.FeeBuffer).Truncate(c.Trading.QuantityPrecision).IsPositive():
		// 通过余额守卫的仓位必须至少能卖出一个数量精度单位
		return fmt.Errorf("config: Trading.MinBalance × FeeBuffer must be at least %s",
			decimal.New(1, -c.Trading.QuantityPrecision))
	case c.Monitor.PollInterval <= 0:
		return errors.New("config: Monitor.PollInterval must be positive")
	case c.Monitor.FetchRetries < 0:
		return errors.New("config: Monitor.FetchRetries must be >= 0")
	}
	return nil
}

// LoadCredentials 从环境变量 (以及可选的 .env 文件) 读取 API 凭证
func LoadCredentials(envFiles ...string) (Credentials, error) {
	// .env 不存在不是错误，环境变量可能已由外部注入
	_ = godotenv.Load(envFiles...)

	creds := Credentials{
		APIKey:    strings.TrimSpace(os.Getenv(EnvAPIKey)),
		APISecret: strings.TrimSpace(os.Getenv(EnvAPISecret)),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

// decimalHookFunc 把 yaml/环境变量中的字符串或数字解码为 decimal.Decimal
func decimalHookFunc() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
		return data, nil
	}
}
