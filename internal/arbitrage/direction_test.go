package arbitrage

import (
	"testing"

	"cross_arb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPair() domain.MarketPair {
	return domain.MarketPair{
		First:  domain.Leg{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT"},
		Second: domain.Leg{Symbol: "KRW-BTC", Base: "BTC", Quote: "KRW"},
	}
}

func TestSelectDirection(t *testing.T) {
	rates := fixedRates{"USDT": d("1"), "KRW": d("0.001")}

	t.Run("buy on first", func(t *testing.T) {
		first := domain.NewBook("BTCUSDT", []domain.Level{lv("99", "1")}, []domain.Level{lv("100", "1")})
		second := domain.NewBook("KRW-BTC", []domain.Level{lv("102000", "1")}, []domain.Level{lv("103000", "1")})

		dir, err := SelectDirection(testPair(), first, second, rates)
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", dir.Buy.Symbol)
		assert.Equal(t, "KRW-BTC", dir.Sell.Symbol)
		assert.Same(t, first, dir.BuyBook)
		assert.True(t, dir.Ratio.Equal(d("1.02")))
		assert.True(t, dir.Profitable(d("0.01")))
		assert.False(t, dir.Profitable(d("0.03")))
	})

	t.Run("buy on second", func(t *testing.T) {
		first := domain.NewBook("BTCUSDT", []domain.Level{lv("105", "1")}, []domain.Level{lv("106", "1")})
		second := domain.NewBook("KRW-BTC", []domain.Level{lv("99000", "1")}, []domain.Level{lv("100000", "1")})

		dir, err := SelectDirection(testPair(), first, second, rates)
		require.NoError(t, err)
		assert.Equal(t, "KRW-BTC", dir.Buy.Symbol)
		assert.Equal(t, "BTCUSDT", dir.Sell.Symbol)
		assert.True(t, dir.Ratio.Equal(d("1.05")))
		assert.True(t, dir.Ratio.GreaterThan(dir.Reverse))
	})

	t.Run("tie buys on first", func(t *testing.T) {
		first := domain.NewBook("BTCUSDT", []domain.Level{lv("100", "1")}, []domain.Level{lv("100", "1")})
		second := domain.NewBook("KRW-BTC", []domain.Level{lv("100000", "1")}, []domain.Level{lv("100000", "1")})

		dir, err := SelectDirection(testPair(), first, second, rates)
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", dir.Buy.Symbol)
		assert.True(t, dir.Ratio.Equal(dir.Reverse))
	})

	t.Run("empty book has zero ratio", func(t *testing.T) {
		first := domain.NewBook("BTCUSDT", nil, nil)
		second := domain.NewBook("KRW-BTC", []domain.Level{lv("100000", "1")}, []domain.Level{lv("100000", "1")})

		dir, err := SelectDirection(testPair(), first, second, rates)
		require.NoError(t, err)
		assert.True(t, dir.Ratio.IsZero())
		assert.False(t, dir.Profitable(d("0")))
	})

	t.Run("missing rate", func(t *testing.T) {
		first := domain.NewBook("BTCUSDT", []domain.Level{lv("100", "1")}, []domain.Level{lv("100", "1")})
		second := domain.NewBook("KRW-BTC", []domain.Level{lv("100000", "1")}, []domain.Level{lv("100000", "1")})

		_, err := SelectDirection(testPair(), first, second, fixedRates{"USDT": d("1")})
		assert.ErrorIs(t, err, domain.ErrRateUnavailable)
	})
}
