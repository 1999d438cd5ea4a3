package api

import (
	"testing"
	"time"
)

func TestComputeHmacSha256(t *testing.T) {
	// 标准 HMAC-SHA256 测试向量 (hex)
	signer := NewSigner("key", 0, nil)
	expected := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"

	if got := signer.computeHmacSha256("The quick brown fox jumps over the lazy dog"); got != expected {
		t.Errorf("HMAC mismatch. Expected %s, got %s", expected, got)
	}
}

func TestSignAt(t *testing.T) {
	signer := NewSigner("secret", 5000, nil)
	params := Params{}.
		Add("symbol", "WBTCUSDT").
		Add("side", "SELL").
		Add("type", "MARKET").
		Add("quantity", "0.00019")
	ts := time.UnixMilli(1700000000000)

	signed := signer.SignAt(params, ts)

	wantQuery := "symbol=WBTCUSDT&side=SELL&type=MARKET&quantity=0.00019&timestamp=1700000000000&recvWindow=5000" +
		"&signature=14ef2a99f2749528672ceded1b6bc685db0ecdf96901019475b461c56454efda"
	if got := signed.Encode(); got != wantQuery {
		t.Errorf("Encode mismatch.\nwant %s\ngot  %s", wantQuery, got)
	}

	if len(params) != 4 {
		t.Errorf("input params mutated: %v", params)
	}

	again := signer.SignAt(params, ts)
	s1, _ := signed.Get(ParamSignature)
	s2, _ := again.Get(ParamSignature)
	if s1 != s2 {
		t.Errorf("re-signing identical input gave %s and %s", s1, s2)
	}
}

func TestSignReplacesCallerTimestamp(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	signer := NewSigner("secret", 0, func() time.Time { return now })

	signed := signer.Sign(Params{}.Add(ParamTimestamp, "1").Add(ParamSignature, "forged"))

	if got, _ := signed.Get(ParamTimestamp); got != "1700000000123" {
		t.Errorf("timestamp = %s", got)
	}
	if got, _ := signed.Get(ParamRecvWindow); got != "5000" {
		t.Errorf("recvWindow = %s, want default 5000", got)
	}
	if got, _ := signed.Get(ParamSignature); got == "forged" || len(got) != 64 {
		t.Errorf("signature = %s", got)
	}
	if len(signed) != 3 {
		t.Errorf("expected 3 params, got %d: %v", len(signed), signed)
	}
}

func TestSignatureDependsOnSecret(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	params := Params{}.Add("symbol", "WBTCUSDT")

	a, _ := NewSigner("secret-a", 0, nil).SignAt(params, ts).Get(ParamSignature)
	b, _ := NewSigner("secret-b", 0, nil).SignAt(params, ts).Get(ParamSignature)
	if a == b {
		t.Error("different secrets produced the same signature")
	}
}

func TestParamsEncodeEscapes(t *testing.T) {
	p := Params{}.Add("note", "a b&c").Add("symbol", "WBTCUSDT")
	if got, want := p.Encode(), "note=a+b%26c&symbol=WBTCUSDT"; got != want {
		t.Errorf("Encode = %s, want %s", got, want)
	}
}
