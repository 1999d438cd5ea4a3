package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valyala/fastjson"
)

// RejectReason 是在传输层解析一次的交易所拒单原因
type RejectReason int

const (
	ReasonUnknown RejectReason = iota
	ReasonOversold
	ReasonInsufficientBalance
	ReasonInvalidSignature
	ReasonTimestampExpired
)

func (r RejectReason) String() string {
	switch r {
	case ReasonOversold:
		return "OVERSOLD"
	case ReasonInsufficientBalance:
		return "INSUFFICIENT_BALANCE"
	case ReasonInvalidSignature:
		return "INVALID_SIGNATURE"
	case ReasonTimestampExpired:
		return "TIMESTAMP_EXPIRED"
	}
	return "UNKNOWN"
}

// MEXC 错误码
const (
	codeInsufficientBalance = 10101
	codeInsufficientPos     = 30004
	codeOversold            = 30005
	codeInvalidSignature    = 700002
	codeTimestampOutside    = 700003
)

// TransportError 表示非 2xx 的 HTTP 响应，保留原始响应体供日志使用
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Code       int // 交易所业务错误码，响应体不是 JSON 时为 0
	Message    string
	Body       string
	Reason     RejectReason
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: http %d (%s): %s", e.Method, e.Path, e.StatusCode, e.Reason, e.Body)
}

// NewTransportError 解析响应体并对拒单原因分类
func NewTransportError(method, path string, status int, body []byte) *TransportError {
	te := &TransportError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Body:       string(body),
	}
	te.Code, te.Message = parseErrorBody(body)
	te.Reason = ClassifyRejection(te.Code, te.Message)
	return te
}

func parseErrorBody(body []byte) (int, string) {
	v, err := fastjson.ParseBytes(body)
	if err != nil {
		return 0, strings.TrimSpace(string(body))
	}
	return v.GetInt("code"), string(v.GetStringBytes("msg"))
}

// ClassifyRejection 把错误码/消息映射为 RejectReason
func ClassifyRejection(code int, msg string) RejectReason {
	switch code {
	case codeOversold:
		return ReasonOversold
	case codeInsufficientBalance, codeInsufficientPos:
		return ReasonInsufficientBalance
	case codeInvalidSignature:
		return ReasonInvalidSignature
	case codeTimestampOutside:
		return ReasonTimestampExpired
	}
	// 部分网关只返回 msg
	if strings.Contains(strings.ToLower(msg), "oversold") {
		return ReasonOversold
	}
	return ReasonUnknown
}

// RejectReasonOf 返回 err 链中 TransportError 的拒单原因
func RejectReasonOf(err error) (RejectReason, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Reason, true
	}
	return ReasonUnknown, false
}

// IsOversold 判断错误是否为 Oversold 拒单
func IsOversold(err error) bool {
	r, ok := RejectReasonOf(err)
	return ok && r == ReasonOversold
}
