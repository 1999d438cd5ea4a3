package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
}

// fakeMEXC 记录收到的请求，并对账户、行情、下单返回固定响应
type fakeMEXC struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeMEXC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()})
	f.mu.Unlock()

	switch r.URL.Path {
	case "/api/v3/account":
		w.Write([]byte(`{"makerCommission":0,"canTrade":true,"balances":[
			{"asset":"USDT","free":"100","locked":"0"},
			{"asset":"WBTC","free":"0.0002","locked":"0"}]}`))
	case "/api/v3/ticker/price":
		w.Write([]byte(`{"symbol":"WBTCUSDT","price":"71000"}`))
	case "/api/v3/order":
		w.Write([]byte(`{"symbol":"WBTCUSDT","orderId":"42"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeMEXC) all() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeMEXC) orders() []recordedRequest {
	var out []recordedRequest
	for _, r := range f.all() {
		if r.Method == http.MethodPost && r.Path == "/api/v3/order" {
			out = append(out, r)
		}
	}
	return out
}

// newHarness 启动假交易所，写入配置和参数文件，返回公共命令行参数
func newHarness(t *testing.T, extraConfig, params string) (*fakeMEXC, []string) {
	t.Helper()
	fake := &fakeMEXC{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	config := "Exchange:\n  RESTURL: " + srv.URL + "\n" +
		"Monitor:\n  PollInterval: 1s\n  FetchRetries: 0\n" +
		"Log:\n  Level: error\n" + extraConfig
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	paramsFile := filepath.Join(dir, "ai_agent_param.json")
	if err := os.WriteFile(paramsFile, []byte(params), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEXC_API_KEY", "test-key")
	t.Setenv("MEXC_API_SECRET", "test-secret")

	return fake, []string{
		"--config", dir,
		"--env-file", filepath.Join(dir, "missing.env"),
		"--params-file", paramsFile,
	}
}

const (
	paramsBuyYes = `{"take_profit":70000,"stop_loss":60000,"buy":"yes"}`
	paramsBuyNo  = `{"take_profit":70000,"stop_loss":60000,"buy":"no"}`
)

func withFlags(cmd, common []string) []string {
	return append(append([]string(nil), cmd...), common...)
}

func TestBuyRequiresYes(t *testing.T) {
	fake, common := newHarness(t, "", paramsBuyYes)

	if code := run(withFlags([]string{"buy", "no"}, common)); code != exitOK {
		t.Errorf("buy no exit = %d, want %d", code, exitOK)
	}
	if code := run(withFlags([]string{"buy"}, common)); code != exitUsage {
		t.Errorf("buy without token exit = %d, want %d", code, exitUsage)
	}
	if n := len(fake.all()); n != 0 {
		t.Errorf("cancelled buy sent %d requests", n)
	}
}

func TestBuyYesPlacesOrder(t *testing.T) {
	fake, common := newHarness(t, "", paramsBuyYes)

	if code := run(withFlags([]string{"buy", "yes"}, common)); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	reqs := fake.all()
	if len(reqs) != 2 || reqs[0].Path != "/api/v3/account" {
		t.Fatalf("credential check must precede the order: %+v", reqs)
	}
	orders := fake.orders()
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	q := orders[0].Query
	if q.Get("side") != "BUY" || q.Get("type") != "MARKET" || q.Get("quoteOrderQty") != "20.00" {
		t.Errorf("unexpected buy order: %v", q)
	}
	if q.Get("signature") == "" {
		t.Errorf("order not signed: %v", q)
	}
}

func TestBuySkippedWhenSignalSaysNo(t *testing.T) {
	fake, common := newHarness(t, "", paramsBuyNo)

	if code := run(withFlags([]string{"buy", "yes"}, common)); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	if n := len(fake.orders()); n != 0 {
		t.Errorf("signal NO must not buy, orders = %d", n)
	}

	if code := run(withFlags([]string{"buy", "yes", "--ignore-signal"}, common)); code != exitOK {
		t.Fatalf("ignore-signal exit = %d", code)
	}
	if n := len(fake.orders()); n != 1 {
		t.Errorf("--ignore-signal must buy, orders = %d", n)
	}
}

func TestMissingCredentialsAbortBeforeRequests(t *testing.T) {
	fake, common := newHarness(t, "", paramsBuyYes)
	t.Setenv("MEXC_API_KEY", "")
	t.Setenv("MEXC_API_SECRET", "")

	for _, cmd := range [][]string{{"buy", "yes"}, {"monitor"}, {"cycle", "yes"}} {
		if code := run(withFlags(cmd, common)); code != exitFatal {
			t.Errorf("%v exit = %d, want %d", cmd, code, exitFatal)
		}
	}
	if n := len(fake.all()); n != 0 {
		t.Errorf("missing credentials still sent %d requests", n)
	}
}

func TestCycleBuysThenSells(t *testing.T) {
	fake, common := newHarness(t, "", paramsBuyYes)

	if code := run(withFlags([]string{"cycle", "yes"}, common)); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	orders := fake.orders()
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want buy then sell", len(orders))
	}
	if orders[0].Query.Get("side") != "BUY" {
		t.Errorf("first order = %v", orders[0].Query)
	}
	// 0.0002 × 0.995 截断到 5 位
	if orders[1].Query.Get("side") != "SELL" || orders[1].Query.Get("quantity") != "0.00019" {
		t.Errorf("second order = %v", orders[1].Query)
	}
}

func TestCycleWithoutBuySignalStillMonitors(t *testing.T) {
	fake, common := newHarness(t, "", paramsBuyNo)

	if code := run(withFlags([]string{"cycle", "yes"}, common)); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	orders := fake.orders()
	if len(orders) != 1 || orders[0].Query.Get("side") != "SELL" {
		t.Errorf("want only the take-profit sell, got %+v", orders)
	}
}

func TestDryRunKeepsOrdersOffExchange(t *testing.T) {
	fake, common := newHarness(t, "DryRun: true\n", paramsBuyYes)
	t.Setenv("MEXC_API_KEY", "")
	t.Setenv("MEXC_API_SECRET", "")

	if code := run(withFlags([]string{"buy", "yes"}, common)); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	for _, r := range fake.all() {
		if r.Path != "/api/v3/ticker/price" {
			t.Errorf("dry-run reached %s %s", r.Method, r.Path)
		}
	}
}

func TestDryRunRejectsUnknownQuoteAsset(t *testing.T) {
	fake, common := newHarness(t, "DryRun: true\nTrading:\n  Symbol: ETHUSDT\n  BaseAsset: WBTC\n", paramsBuyYes)

	if code := run(withFlags([]string{"buy", "yes"}, common)); code != exitFatal {
		t.Errorf("exit = %d, want %d", code, exitFatal)
	}
	if n := len(fake.all()); n != 0 {
		t.Errorf("sent %d requests", n)
	}
}

func TestUnknownCommand(t *testing.T) {
	if code := run([]string{"sell"}); code != exitUsage {
		t.Errorf("exit = %d", code)
	}
	if code := run(nil); code != exitUsage {
		t.Errorf("empty args exit = %d", code)
	}
}
