package signal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"

	"tpsl-trader/internal/model"
)

var (
	// ErrParamsNotFound 参数文件不存在
	ErrParamsNotFound = errors.New("trade parameters not found")
	// ErrMalformedParams 参数文件无法解析或缺少字段
	ErrMalformedParams = errors.New("malformed trade parameters")
)

const (
	fieldTakeProfit  = "take_profit"
	fieldStopLoss    = "stop_loss"
	fieldBuy         = "buy"
	fieldBuyDecision = "buy_decision"
)

// Store 是信号参数的读写接口
type Store interface {
	Load() (model.TradeParameters, error)
	Save(params model.TradeParameters) error
}

// FileStore 把参数保存为 JSON 文件，监控进程每轮重新读取
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load 每次都完整读取文件；缺失或格式错误返回错误而不是默认值
func (s *FileStore) Load() (model.TradeParameters, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.TradeParameters{}, fmt.Errorf("%w: %s", ErrParamsNotFound, s.path)
		}
		return model.TradeParameters{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	return DecodeParams(raw)
}

// DecodeParams 解析参数 JSON；buy 与 buy_decision 两个字段名都接受
func DecodeParams(raw []byte) (model.TradeParameters, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(raw)
	if err != nil {
		return model.TradeParameters{}, fmt.Errorf("%w: %v", ErrMalformedParams, err)
	}
	if v.Type() != fastjson.TypeObject {
		return model.TradeParameters{}, fmt.Errorf("%w: expected object", ErrMalformedParams)
	}

	tp, err := numberField(v, fieldTakeProfit)
	if err != nil {
		return model.TradeParameters{}, err
	}
	sl, err := numberField(v, fieldStopLoss)
	if err != nil {
		return model.TradeParameters{}, err
	}

	decision := model.BuyNo
	for _, key := range []string{fieldBuyDecision, fieldBuy} {
		if field := v.Get(key); field != nil && field.Type() == fastjson.TypeString {
			decision = model.ParseBuyDecision(string(field.GetStringBytes()))
			break
		}
	}

	return model.TradeParameters{TakeProfit: tp, StopLoss: sl, BuyDecision: decision}, nil
}

func numberField(v *fastjson.Value, key string) (decimal.Decimal, error) {
	field := v.Get(key)
	if field == nil {
		return decimal.Zero, fmt.Errorf("%w: %s missing", ErrMalformedParams, key)
	}

	var raw string
	switch field.Type() {
	case fastjson.TypeNumber:
		raw = field.String()
	case fastjson.TypeString:
		raw = string(field.GetStringBytes())
	default:
		return decimal.Zero, fmt.Errorf("%w: %s is %s", ErrMalformedParams, key, field.Type())
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrMalformedParams, key, err)
	}
	return d, nil
}

// EncodeParams 序列化为 {"take_profit":..,"stop_loss":..,"buy":".."}
func EncodeParams(params model.TradeParameters) []byte {
	var a fastjson.Arena
	o := a.NewObject()
	o.Set(fieldTakeProfit, a.NewNumberString(params.TakeProfit.String()))
	o.Set(fieldStopLoss, a.NewNumberString(params.StopLoss.String()))
	o.Set(fieldBuy, a.NewString(params.BuyDecision.String()))
	return o.MarshalTo(nil)
}

// Save 先写临时文件再 rename，读者不会看到写了一半的文件
func (s *FileStore) Save(params model.TradeParameters) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".params-*.json")
	if err != nil {
		return fmt.Errorf("create temp params file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(EncodeParams(params)); err != nil {
		tmp.Close()
		return fmt.Errorf("write params: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close params: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
