package market

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", APIBase: srv.URL, Logger: testLogger()}), &calls
}

func TestQuoteFirstElementOfArray(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("apikey"); got != "test-key" {
			t.Errorf("apikey = %q", got)
		}
		if r.URL.Path != "/quote/BBCA.JK" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`[{"symbol":"BBCA.JK","name":"Bank Central Asia","price":9850.0,"changesPercentage":1.29},{"symbol":"OTHER"}]`))
	})

	q := client.Quote(context.Background(), " bbca.jk ")
	if q == nil {
		t.Fatal("expected a quote")
	}
	if q.Symbol != "BBCA.JK" || q.Price != 9850.0 {
		t.Fatalf("quote = %+v", q)
	}
}

func TestQuoteEmptyArray(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	if q := client.Quote(context.Background(), "NOPE"); q != nil {
		t.Fatalf("expected nil, got %+v", q)
	}
}

func TestErrorPayloadTreatedAsNoData(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API KEY."}`))
	})
	if q := client.Quote(context.Background(), "BBCA.JK"); q != nil {
		t.Fatalf("expected nil on error payload, got %+v", q)
	}
}

func TestServerErrorTreatedAsNoData(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	if got := client.IncomeStatements(context.Background(), "BBCA.JK", PeriodAnnual, 5); len(got) != 0 {
		t.Fatalf("expected empty, got %d rows", len(got))
	}
}

func TestMissingKeyMakesNoNetworkCalls(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	for _, key := range []string{"", "  ", "${FMP_API_KEY}", "YOUR_API_KEY_HERE"} {
		client := NewClient(Config{APIKey: key, APIBase: srv.URL, Logger: testLogger()})
		if client.Enabled() {
			t.Errorf("key %q should disable the client", key)
		}
		if q := client.Quote(context.Background(), "BBCA.JK"); q != nil {
			t.Errorf("key %q returned data", key)
		}
		if p := client.Profile(context.Background(), "BBCA.JK"); p != nil {
			t.Errorf("key %q returned profile", key)
		}
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("expected zero network calls, got %d", n)
	}
}

func TestStatementParams(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("period") != "quarter" {
			t.Errorf("period = %q", q.Get("period"))
		}
		if q.Get("limit") != "4" {
			t.Errorf("limit = %q", q.Get("limit"))
		}
		w.Write([]byte(`[{"date":"2025-03-31","symbol":"BBCA.JK","revenue":25000000000000}]`))
	})

	rows := client.IncomeStatements(context.Background(), "BBCA.JK", PeriodQuarter, 4)
	if len(rows) != 1 || rows[0].Revenue != 25000000000000 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestStatementPeriodDefaultsToAnnual(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("period"); got != "annual" {
			t.Errorf("period = %q", got)
		}
		w.Write([]byte(`[]`))
	})
	client.BalanceSheets(context.Background(), "BBCA.JK", "", 0)
}

func TestMoversPaths(t *testing.T) {
	var lastPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		lastPath = r.URL.Path
		w.Write([]byte(`[{"symbol":"GOTO.JK","changesPercentage":12.5}]`))
	})

	cases := map[MoverKind]string{
		MoversGainers: "/stock_market/gainers",
		MoversLosers:  "/stock_market/losers",
		MoversActives: "/stock_market/actives",
	}
	for kind, wantPath := range cases {
		rows := client.Movers(context.Background(), kind)
		if lastPath != wantPath {
			t.Errorf("kind %s hit %q, want %q", kind, lastPath, wantPath)
		}
		if len(rows) != 1 {
			t.Errorf("kind %s rows = %d", kind, len(rows))
		}
	}
}

func TestSearchSymbolClampsLimit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q", got)
		}
		w.Write([]byte(`[{"symbol":"BBCA.JK","name":"Bank Central Asia Tbk"}]`))
	})
	matches := client.SearchSymbol(context.Background(), "central asia", 500)
	if len(matches) != 1 || matches[0].Symbol != "BBCA.JK" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestEmbeddedError(t *testing.T) {
	if msg := embeddedError([]byte(`{"Error Message": "limit reached"}`)); msg != "limit reached" {
		t.Fatalf("msg = %q", msg)
	}
	if msg := embeddedError([]byte(`[{"symbol":"X"}]`)); msg != "" {
		t.Fatalf("array flagged as error: %q", msg)
	}
	if msg := embeddedError([]byte(`{"symbol":"X"}`)); msg != "" {
		t.Fatalf("plain object flagged as error: %q", msg)
	}
}
