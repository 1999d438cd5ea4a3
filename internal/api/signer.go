package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	ParamTimestamp  = "timestamp"
	ParamRecvWindow = "recvWindow"
	ParamSignature  = "signature"

	// DefaultRecvWindow 请求在服务端的有效窗口 (毫秒)
	DefaultRecvWindow int64 = 5000
)

// Param 是一个有序的请求参数
type Param struct {
	Key   string
	Value string
}

// Params 保持插入顺序，签名串与实际发送的查询串必须完全一致
type Params []Param

// Add 追加参数并返回新的切片
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Get 返回第一个匹配 key 的值
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Encode 按插入顺序编码为 query string (空格编码为 '+')
func (p Params) Encode() string {
	var sb strings.Builder
	for i, kv := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.Value))
	}
	return sb.String()
}

// Signer 负责 HMAC-SHA256 请求签名
type Signer struct {
	secretKey  []byte
	recvWindow int64
	now        func() time.Time
}

// NewSigner 创建签名器，recvWindow <= 0 时使用 DefaultRecvWindow
func NewSigner(secretKey string, recvWindow int64, now func() time.Time) *Signer {
	if recvWindow <= 0 {
		recvWindow = DefaultRecvWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{
		secretKey:  []byte(secretKey),
		recvWindow: recvWindow,
		now:        now,
	}
}

// Sign 注入 timestamp 和 recvWindow，并在末尾追加 signature
// 原 params 不会被修改
func (s *Signer) Sign(params Params) Params {
	return s.SignAt(params, s.now())
}

// SignAt 与 Sign 相同，但使用给定的时间戳
func (s *Signer) SignAt(params Params, ts time.Time) Params {
	signed := make(Params, 0, len(params)+3)
	for _, kv := range params {
		// 调用方传入的时间和签名字段以签名器为准
		if kv.Key == ParamTimestamp || kv.Key == ParamRecvWindow || kv.Key == ParamSignature {
			continue
		}
		signed = append(signed, kv)
	}
	signed = signed.
		Add(ParamTimestamp, strconv.FormatInt(ts.UnixMilli(), 10)).
		Add(ParamRecvWindow, strconv.FormatInt(s.recvWindow, 10))

	return signed.Add(ParamSignature, s.computeHmacSha256(signed.Encode()))
}

func (s *Signer) computeHmacSha256(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
