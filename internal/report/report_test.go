package report

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"cross_arb/internal/infra"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleStatus() Status {
	return Status{
		Time: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Pairs: []PairStatus{
			{
				Pair: "binance:BTCUSDT/upbit:KRW-BTC",
				First: LegQuote{
					Market: "binance", Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT",
					Bid: d("100"), Ask: d("101"), BidAdjusted: d("100"), AskAdjusted: d("101"),
					BaseBalance: d("1"), QuoteBalance: d("0"),
				},
				Second: LegQuote{
					Market: "upbit", Symbol: "KRW-BTC", Base: "BTC", Quote: "KRW",
					Bid: d("103000"), Ask: d("104000"), BidAdjusted: d("103"), AskAdjusted: d("104"),
					BaseBalance: d("2"), QuoteBalance: d("500000"),
				},
				BuyFirstRatio:  d("1.0198"),
				BuySecondRatio: d("0.9615"),
				Warnings:       []string{"binance USDT balance is 0"},
			},
			{Pair: "a:X/b:X", Error: "market not ready"},
		},
		Pending: []PendingOrder{
			{Leg: "binance:BTCUSDT", OrderID: "o-1", Amount: d("0.5"), Age: 90 * time.Second, Stale: true},
		},
		Metrics: infra.MetricsSnapshot{Ticks: 7, TradesSubmitted: 1},
	}
}

func TestFormat(t *testing.T) {
	out := Format(sampleStatus())

	assert.Contains(t, out, "Status 2024-01-02T03:04:05Z")
	assert.Contains(t, out, "[binance:BTCUSDT/upbit:KRW-BTC]")
	assert.Contains(t, out, "buy binance sell upbit: 1.9800%")
	assert.Contains(t, out, "buy upbit sell binance: -3.8500%")
	assert.Contains(t, out, "WARNING: binance USDT balance is 0")
	assert.Contains(t, out, "error: market not ready")
	assert.Contains(t, out, "binance:BTCUSDT o-1 amount=0.5 age=1m30s (stale)")
	assert.Contains(t, out, "ticks=7")
	assert.Contains(t, out, "trades=1")
}

func TestFormat_NoPending(t *testing.T) {
	s := sampleStatus()
	s.Pending = nil
	assert.Contains(t, Format(s), "No pending orders.")
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := NewLogReporter(logger)
	require.NoError(t, r.Report("hello"))

	assert.Contains(t, buf.String(), `"msg":"STATUS"`)
	assert.Contains(t, buf.String(), `"report":"hello"`)
	assert.Contains(t, buf.String(), `"module":"report"`)
}

type recordingReporter struct {
	got []string
	err error
}

func (r *recordingReporter) Report(text string) error {
	r.got = append(r.got, text)
	return r.err
}

func TestMultiReporter(t *testing.T) {
	failing := &recordingReporter{err: errors.New("down")}
	ok := &recordingReporter{}

	err := MultiReporter{failing, ok}.Report("x")
	assert.EqualError(t, err, "down")
	assert.Equal(t, []string{"x"}, failing.got)
	assert.Equal(t, []string{"x"}, ok.got, "later sinks still receive the report")
}

func TestSplitMessage(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		assert.Equal(t, []string{"abc"}, splitMessage("abc", 10))
	})

	t.Run("line boundaries", func(t *testing.T) {
		parts := splitMessage("aaaa\nbbbb\ncccc\n", 10)
		assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc\n"}, parts)
	})

	t.Run("long line", func(t *testing.T) {
		text := strings.Repeat("x", 25)
		parts := splitMessage(text, 10)
		assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, parts)
	})

	t.Run("long line keeps runes whole", func(t *testing.T) {
		// 3-byte runes: a 10 byte cut would land inside the fourth one
		text := strings.Repeat("가", 7)
		parts := splitMessage(text, 10)
		require.Len(t, parts, 3)
		for _, p := range parts {
			assert.True(t, utf8.ValidString(p), "invalid chunk %q", p)
			assert.LessOrEqual(t, len(p), 10)
		}
		assert.Equal(t, text, strings.Join(parts, ""))
	})
}

// blockingReporter holds every Report until release is closed.
type blockingReporter struct {
	release chan struct{}

	mu  sync.Mutex
	got []string
}

func (r *blockingReporter) Report(text string) error {
	<-r.release
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, text)
	return nil
}

func (r *blockingReporter) delivered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestAsyncReporter_DoesNotBlockCaller(t *testing.T) {
	sink := &blockingReporter{release: make(chan struct{})}
	var buf bytes.Buffer
	a := NewAsyncReporter(sink, 2, slog.New(slog.NewJSONHandler(&buf, nil)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			assert.NoError(t, a.Report("r"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Report blocked on a slow sink")
	}
	assert.Contains(t, buf.String(), "report queue full")

	close(sink.release)
	require.Eventually(t, func() bool { return len(sink.delivered()) >= 2 }, time.Second, 5*time.Millisecond)
	a.Close()
}

func TestAsyncReporter_DeliversInOrder(t *testing.T) {
	sink := &blockingReporter{release: make(chan struct{})}
	close(sink.release)
	a := NewAsyncReporter(sink, 4, nil)

	require.NoError(t, a.Report("one"))
	require.NoError(t, a.Report("two"))
	require.Eventually(t, func() bool { return len(sink.delivered()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, sink.delivered())

	a.Close()
	a.Close()
	assert.NoError(t, a.Report("after close"))
}
