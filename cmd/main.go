package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tpsl-trader/internal/api"
	executor "tpsl-trader/internal/execution"
	"tpsl-trader/internal/model"
	"tpsl-trader/internal/service"
	"tpsl-trader/internal/signal"
	"tpsl-trader/internal/strategy"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2

	confirmToken = "yes"
)

const usage = `Usage:
  trader buy yes|no [flags]        market buy with the configured quote budget ("yes" confirms)
  trader monitor [flags]           watch take-profit / stop-loss and sell the position on exit
  trader cycle yes|no [flags]      buy (when the signal says yes and confirmed), then monitor
  trader parse-signal TEXT [flags] extract take profit / stop loss / buy from analyst text

Flags:
`

type options struct {
	configDir    string
	envFile      string
	ignoreSignal bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, usage)
		return exitUsage
	}
	command, rest := args[0], args[1:]
	switch command {
	case "buy", "monitor", "cycle", "parse-signal":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return exitUsage
	}

	v := service.NewViper()
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.configDir, "config", "config", "directory containing config.yaml")
	fs.StringVar(&opts.envFile, "env-file", ".env", "file with MEXC_API_KEY / MEXC_API_SECRET")
	fs.BoolVar(&opts.ignoreSignal, "ignore-signal", false, "buy even if the stored signal says no")
	fs.Bool("dry-run", false, "trade against the paper exchange using live prices")
	fs.String("params-file", "", "path of the signal parameter file")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	bindFlags(v, fs)

	cfg, err := service.LoadConfig(v, opts.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitFatal
	}

	logger, err := service.InitLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return exitFatal
	}
	defer logger.Sync()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := signal.NewFileStore(cfg.Monitor.ParamsFile)
	positional := fs.Args()

	if command == "parse-signal" {
		return parseSignal(store, positional, logger)
	}

	logger.Info("Starting",
		zap.String("Command", command),
		zap.String("Exchange", cfg.Exchange.Name),
		zap.String("Symbol", cfg.Trading.Symbol),
		zap.Bool("DryRun", cfg.DryRun))

	exchange, err := newExchange(cfg, opts, logger)
	if err != nil {
		logger.Error("Startup failed", zap.Error(err))
		return exitFatal
	}

	switch command {
	case "buy":
		return buy(ctx, cfg, opts, store, exchange, positional, logger)
	case "monitor":
		return monitor(ctx, cfg, store, exchange, logger)
	case "cycle":
		if code := buy(ctx, cfg, opts, store, exchange, positional, logger); code != exitOK {
			return code
		}
		return monitor(ctx, cfg, store, exchange, logger)
	}
	return exitUsage
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	_ = v.BindPFlag("DryRun", fs.Lookup("dry-run"))
	if f := fs.Lookup("params-file"); f.Changed {
		_ = v.BindPFlag("Monitor.ParamsFile", f)
	}
	if f := fs.Lookup("log-level"); f.Changed {
		_ = v.BindPFlag("Log.Level", f)
	}
}

func parseSignal(store *signal.FileStore, positional []string, logger *zap.Logger) int {
	if len(positional) == 0 {
		logger.Error("No agent output provided")
		return exitUsage
	}
	params, err := signal.ParseSignal(strings.Join(positional, " "))
	if err != nil {
		logger.Error("Signal parse failed", zap.Error(err))
		return exitFatal
	}
	if err := store.Save(params); err != nil {
		logger.Error("Saving trade parameters failed", zap.Error(err))
		return exitFatal
	}
	logger.Info("Trade parameters saved", zap.String("Path", store.Path()), zap.String("Params", params.String()))
	return exitOK
}

// buy 只有在调用方显式给出 "yes" 时才会下单
func buy(ctx context.Context, cfg *service.Config, opts options, store signal.Store, exchange executor.Exchange, positional []string, logger *zap.Logger) int {
	if len(positional) == 0 {
		logger.Error("You must specify 'yes' to execute the buy operation")
		return exitUsage
	}
	if !strings.EqualFold(positional[0], confirmToken) {
		logger.Info("Buy operation cancelled. Use 'yes' to confirm the buy.")
		return exitOK
	}

	if !opts.ignoreSignal {
		params, err := store.Load()
		if err != nil {
			logger.Error("Reading trade parameters failed", zap.Error(err))
			return exitFatal
		}
		if params.BuyDecision != model.BuyYes {
			logger.Info("Signal does not recommend buying, skipping order", zap.String("Params", params.String()))
			return exitOK
		}
	}

	exec := executor.NewSpotExecutor(spotConfig(cfg), exchange, logger)
	logger.Info("Buy", zap.String("Symbol", cfg.Trading.Symbol), zap.Bool("DryRun", cfg.DryRun))
	if _, err := exec.MarketBuy(ctx); err != nil {
		logger.Error("Market BUY aborted", zap.Error(err))
		return exitFatal
	}
	return exitOK
}

func monitor(ctx context.Context, cfg *service.Config, store signal.Store, exchange executor.Exchange, logger *zap.Logger) int {
	// 在进入循环前确认参数文件可用
	if _, err := store.Load(); err != nil {
		logger.Error("Reading trade parameters failed", zap.Error(err))
		return exitFatal
	}

	exec := executor.NewSpotExecutor(spotConfig(cfg), exchange, logger)
	mon := strategy.NewMonitor(&strategy.MonitorConfig{
		Symbol:            cfg.Trading.Symbol,
		BaseAsset:         cfg.Trading.BaseAsset,
		MinBalance:        cfg.Trading.MinBalance,
		QuantityPrecision: cfg.Trading.QuantityPrecision,
		PollInterval:      cfg.Monitor.PollInterval,
		FetchRetries:      cfg.Monitor.FetchRetries,
	}, exchange, exec, store, service.RealClock{}, logger)

	logger.Info("Monitor & market sell", zap.String("Symbol", cfg.Trading.Symbol), zap.Bool("DryRun", cfg.DryRun))
	result, err := mon.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Monitor stopped", zap.Int("Cycles", result.Session.ElapsedCycles))
			return exitOK
		}
		logger.Error("Monitor aborted", zap.Error(err))
		return exitFatal
	}
	logger.Info("Monitor finished",
		zap.String("Outcome", string(result.Outcome)),
		zap.String("Trigger", string(result.Trigger)),
		zap.Int("Cycles", result.Session.ElapsedCycles))
	return exitOK
}

// newExchange 构造真实客户端，或者在 dry-run 下包一层模拟盘
// 实盘缺少凭证时在任何网络请求之前返回错误
func newExchange(cfg *service.Config, opts options, logger *zap.Logger) (executor.Exchange, error) {
	creds, err := service.LoadCredentials(opts.envFile)
	if err != nil && !cfg.DryRun {
		return nil, err
	}

	client := api.NewClient(api.ClientConfig{
		BaseURL:    cfg.Exchange.RESTURL,
		APIKey:     creds.APIKey,
		SecretKey:  creds.APISecret,
		RecvWindow: cfg.Exchange.RecvWindow,
		Timeout:    cfg.Exchange.Timeout,
	}, time.Now, logger)
	if !cfg.DryRun {
		return client, nil
	}

	quote, err := executor.QuoteAssetOf(cfg.Trading.Symbol, cfg.Trading.BaseAsset)
	if err != nil {
		return nil, err
	}
	return executor.NewPaperExchange(&executor.PaperConfig{
		Symbol:       cfg.Trading.Symbol,
		BaseAsset:    cfg.Trading.BaseAsset,
		QuoteAsset:   quote,
		FeeRate:      cfg.Trading.PaperFeeRate,
		QuoteBalance: cfg.Trading.PaperQuoteBalance,
		BaseBalance:  cfg.Trading.PaperBaseBalance,
	}, client, logger), nil
}

func spotConfig(cfg *service.Config) *executor.SpotConfig {
	return &executor.SpotConfig{
		Symbol:            cfg.Trading.Symbol,
		QuoteBudget:       cfg.Trading.QuoteBudget,
		PricePrecision:    cfg.Trading.PricePrecision,
		QuantityPrecision: cfg.Trading.QuantityPrecision,
		FeeBuffer:         cfg.Trading.FeeBuffer,
		OversoldReduction: cfg.Trading.OversoldReduction,
	}
}
