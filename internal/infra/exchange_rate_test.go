package infra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func rateServer(t *testing.T, price float64, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]dunamuResponse{{
			Code:         "FRX.KRWUSD",
			CurrencyCode: "USD",
			BasePrice:    price,
		}})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func fastClient(onUpdate func(decimal.Decimal), url string) *ExchangeRateClient {
	c := NewExchangeRateClientWithConfig(onUpdate, url, time.Hour, nil)
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

func TestExchangeRateClient_FetchRate(t *testing.T) {
	server, _ := rateServer(t, 1400.5, 0)

	var updated decimal.Decimal
	client := fastClient(func(rate decimal.Decimal) { updated = rate }, server.URL)

	if err := client.fetchRate(context.Background()); err != nil {
		t.Fatalf("fetchRate failed: %v", err)
	}

	expected := decimal.NewFromFloat(1400.5)
	if !client.GetRate().Equal(expected) {
		t.Errorf("Expected rate %s, got %s", expected, client.GetRate())
	}
	if !updated.Equal(expected) {
		t.Errorf("Expected callback with %s, got %s", expected, updated)
	}
}

func TestExchangeRateClient_RetriesThenSucceeds(t *testing.T) {
	server, calls := rateServer(t, 1350, 2)
	client := fastClient(nil, server.URL)

	if err := client.fetchRate(context.Background()); err != nil {
		t.Fatalf("fetchRate failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestExchangeRateClient_GivesUp(t *testing.T) {
	server, calls := rateServer(t, 1350, 10)
	client := fastClient(nil, server.URL)

	if err := client.fetchRate(context.Background()); err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if calls.Load() != fetchAttempts {
		t.Errorf("Expected %d calls, got %d", fetchAttempts, calls.Load())
	}
	if !client.GetRate().IsZero() {
		t.Errorf("Expected zero rate, got %s", client.GetRate())
	}
}

func TestExchangeRateClient_UnchangedRateNotifiesOnce(t *testing.T) {
	server, _ := rateServer(t, 1400, 0)

	var notifications int
	client := fastClient(func(decimal.Decimal) { notifications++ }, server.URL)

	for i := 0; i < 3; i++ {
		if err := client.fetchRate(context.Background()); err != nil {
			t.Fatalf("fetchRate failed: %v", err)
		}
	}
	if notifications != 1 {
		t.Errorf("Expected 1 notification, got %d", notifications)
	}
}

func TestExchangeRateClient_StartStop(t *testing.T) {
	server, _ := rateServer(t, 1400, 0)

	updates := make(chan decimal.Decimal, 1)
	client := fastClient(func(rate decimal.Decimal) { updates <- rate }, server.URL)

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer client.Stop()

	select {
	case rate := <-updates:
		if !rate.Equal(decimal.NewFromInt(1400)) {
			t.Errorf("Expected 1400, got %s", rate)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for initial rate")
	}
}
