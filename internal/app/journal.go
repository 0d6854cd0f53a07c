package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"cross_arb/internal/infra/storage"
)

// PrintJournal writes a single order when orderID is set, otherwise the most
// recent trades followed by every unresolved order.
func PrintJournal(ctx context.Context, w io.Writer, j *storage.Journal, limit int, orderID string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if orderID != "" {
		o, err := j.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %s not found", orderID)
		}
		printOrders(tw, []storage.OrderRecord{*o})
		return nil
	}

	trades, err := j.RecentTrades(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "TIME\tPAIR\tAMOUNT\tBUY\tSELL\tPROFITABILITY")
	for _, t := range trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.CreatedAt.Format("2006-01-02 15:04:05"), t.Pair, t.Amount, t.BuyPrice, t.SellPrice, t.Profitability)
	}

	open, err := j.UnresolvedOrders(ctx)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		fmt.Fprintln(tw)
		printOrders(tw, open)
	}
	return nil
}

func printOrders(tw *tabwriter.Writer, orders []storage.OrderRecord) {
	fmt.Fprintln(tw, "ORDER\tMARKET\tSYMBOL\tSIDE\tAMOUNT\tSTATUS\tPRICE")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.OrderID, o.Market, o.Symbol, o.Side, o.Amount, o.Status, o.Price)
	}
}
