// Package report renders strategy status and delivers it to sinks.
package report

import (
	"fmt"
	"strings"
	"time"

	"cross_arb/internal/infra"

	"github.com/shopspring/decimal"
)

// LegQuote is the top of book and balances of one leg.
type LegQuote struct {
	Market       string          `json:"market"`
	Symbol       string          `json:"symbol"`
	Base         string          `json:"base"`
	Quote        string          `json:"quote"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	BidAdjusted  decimal.Decimal `json:"bid_adjusted"`
	AskAdjusted  decimal.Decimal `json:"ask_adjusted"`
	BaseBalance  decimal.Decimal `json:"base_balance"`
	QuoteBalance decimal.Decimal `json:"quote_balance"`
}

// PairStatus is the status of one market pair.
type PairStatus struct {
	Pair           string          `json:"pair"`
	First          LegQuote        `json:"first"`
	Second         LegQuote        `json:"second"`
	BuyFirstRatio  decimal.Decimal `json:"buy_first_ratio"`
	BuySecondRatio decimal.Decimal `json:"buy_second_ratio"`
	Warnings       []string        `json:"warnings,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// PendingOrder is a tracked order as shown in a report.
type PendingOrder struct {
	Leg     string          `json:"leg"`
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Age     time.Duration   `json:"age"`
	Stale   bool            `json:"stale"`
}

// Status is the content of a periodic status report.
type Status struct {
	Time    time.Time             `json:"time"`
	Pairs   []PairStatus          `json:"pairs"`
	Pending []PendingOrder        `json:"pending"`
	Metrics infra.MetricsSnapshot `json:"metrics"`
}

// Format renders a status as plain text.
func Format(s Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status %s\n", s.Time.UTC().Format(time.RFC3339))

	for _, p := range s.Pairs {
		fmt.Fprintf(&b, "\n[%s]\n", p.Pair)
		if p.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", p.Error)
			continue
		}
		writeLeg(&b, p.First)
		writeLeg(&b, p.Second)
		fmt.Fprintf(&b, "  buy %s sell %s: %s%%\n", p.First.Market, p.Second.Market, percent(p.BuyFirstRatio))
		fmt.Fprintf(&b, "  buy %s sell %s: %s%%\n", p.Second.Market, p.First.Market, percent(p.BuySecondRatio))
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "  WARNING: %s\n", w)
		}
	}

	if len(s.Pending) == 0 {
		b.WriteString("\nNo pending orders.\n")
	} else {
		b.WriteString("\nPending orders:\n")
		for _, o := range s.Pending {
			stale := ""
			if o.Stale {
				stale = " (stale)"
			}
			fmt.Fprintf(&b, "  %s %s amount=%s age=%s%s\n", o.Leg, o.OrderID, o.Amount, o.Age.Truncate(time.Second), stale)
		}
	}

	m := s.Metrics
	fmt.Fprintf(&b, "\nticks=%d pairs=%d trades=%d resolved=%d ignored=%d aborts=%d errors=%d drops=%d\n",
		m.Ticks, m.PairsEvaluated, m.TradesSubmitted, m.OrdersResolved,
		m.EventsIgnored, m.WalkAborts, m.PairErrors, m.InboxDrops)

	return b.String()
}

func writeLeg(b *strings.Builder, q LegQuote) {
	fmt.Fprintf(b, "  %s %s bid=%s ask=%s (adj %s/%s) %s=%s %s=%s\n",
		q.Market, q.Symbol,
		q.Bid, q.Ask,
		q.BidAdjusted.StringFixed(8), q.AskAdjusted.StringFixed(8),
		q.Base, q.BaseBalance, q.Quote, q.QuoteBalance)
}

// percent renders a bid/ask ratio as a profit percentage.
func percent(ratio decimal.Decimal) string {
	if ratio.IsZero() {
		return "n/a "
	}
	return ratio.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).StringFixed(4)
}
