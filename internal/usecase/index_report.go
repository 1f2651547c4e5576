package usecase

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"CPITracker/internal/domain"
)

// WriteIndexReport prints both baskets, their totals, the index and its interpretation.
func WriteIndexReport(w io.Writer, res domain.IndexResult) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "--- CPI Analysis ---")
	fmt.Fprintf(bw, "Base Period Date:    %s\n", res.BaseDay.Format(time.DateOnly))
	fmt.Fprintf(bw, "Current Period Date: %s\n", res.CurrentDay.Format(time.DateOnly))

	writeBasket(bw, "Base Period Basket", res.BaseBasket)
	fmt.Fprintf(bw, "Total Base Cost: %s\n", res.BaseCost.StringFixed(2))

	writeBasket(bw, "Current Period Basket", res.CurrentBasket)
	fmt.Fprintf(bw, "Total Current Cost: %s\n", res.CurrentCost.StringFixed(2))

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "--------------------------")
	fmt.Fprintf(bw, "CPI: %s\n", res.Index.StringFixed(2))
	fmt.Fprintln(bw, "--------------------------")
	fmt.Fprintf(bw, "Interpretation: %s\n", res.Interpretation())

	return bw.Flush()
}

func writeBasket(w io.Writer, title string, items []domain.BasketItem) {
	fmt.Fprintf(w, "\n%s (%d items):\n", title, len(items))
	for _, item := range items {
		fmt.Fprintf(w, "  - %s: %s\n", item.Name, item.Value.StringFixed(2))
	}
}

// WriteRunSummary prints the per-run counters and each failed product.
func WriteRunSummary(w io.Writer, report RunReport) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Collection %s: %d collected, %d already collected today, %d invalid, %d failed\n",
		report.Outcome(), report.Collected, report.AlreadyCollected, report.Invalid, len(report.Failures))
	for _, f := range report.Failures {
		fmt.Fprintf(bw, "  - %s: %v\n", f.Product.Name, f.Err)
	}
	return bw.Flush()
}
