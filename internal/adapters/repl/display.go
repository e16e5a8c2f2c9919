package repl

import (
	"fmt"
	"io"
	"strings"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
)

func printLocations(out io.Writer, result *app.LocationListResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 56))
	fmt.Fprintln(out, "  ACTIVE LOCATIONS")
	fmt.Fprintln(out, strings.Repeat("=", 56))
	if len(result.Locations) == 0 {
		fmt.Fprintln(out, "  No locations found.")
		fmt.Fprintln(out, strings.Repeat("=", 56))
		return
	}
	fmt.Fprintf(out, "  %-10s %-32s %s\n", "CODE", "NAME", "TYPE")
	fmt.Fprintln(out, strings.Repeat("-", 56))
	for _, l := range result.Locations {
		fmt.Fprintf(out, "  %-10s %-32s %s\n", l.Code, l.Name, l.Type)
	}
	fmt.Fprintln(out, strings.Repeat("=", 56))
}

func printStock(out io.Writer, result *app.StockResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 78))
	fmt.Fprintln(out, "  STOCK")
	fmt.Fprintln(out, strings.Repeat("=", 78))
	if len(result.Lines) == 0 {
		fmt.Fprintln(out, "  No balances found.")
		fmt.Fprintln(out, strings.Repeat("=", 78))
		return
	}
	fmt.Fprintf(out, "  %-10s %-10s %-20s %10s %10s %10s\n", "LOCATION", "PRODUCT", "NAME", "ON HAND", "RESERVED", "AVAILABLE")
	fmt.Fprintln(out, strings.Repeat("-", 78))
	for _, l := range result.Lines {
		fmt.Fprintf(out, "  %-10s %-10s %-20s %10s %10s %10s\n",
			l.LocationCode, l.ProductCode, clip(l.ProductName, 20), l.Quantity, l.Reserved, l.Available)
	}
	fmt.Fprintln(out, strings.Repeat("=", 78))
}

func printAlerts(out io.Writer, report *core.AlertReport) {
	fmt.Fprintf(out, "\nAlerts: %d critical, %d warning, %d low\n", report.Counts.Critical, report.Counts.Warning, report.Counts.Low)
	for _, a := range report.Alerts {
		fmt.Fprintf(out, "  [%s] %s %s available %s / min %s\n", a.Criticality, a.LocationCode, a.ProductCode, a.Available, a.MinStock)
	}
}

func printCounts(out io.Writer, result *app.CountListResult) {
	if len(result.Counts) == 0 {
		fmt.Fprintln(out, "No counts in progress.")
		return
	}
	fmt.Fprintln(out, "Counts in progress:")
	for _, c := range result.Counts {
		fmt.Fprintf(out, "  %-15s %-9s %d/%d counted, %d divergent\n", c.Code, c.CountType, c.ItemsCounted, c.TotalItems, c.Discrepancies)
	}
}

func printCountItems(out io.Writer, result *app.CountItemsResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 74))
	fmt.Fprintf(out, "  %s  (%d items)\n", result.Code, len(result.Items))
	fmt.Fprintln(out, strings.Repeat("=", 74))
	if len(result.Items) == 0 {
		fmt.Fprintln(out, "  No items match.")
		fmt.Fprintln(out, strings.Repeat("=", 74))
		return
	}
	fmt.Fprintf(out, "  %-10s %-24s %-4s %9s %9s %9s\n", "PRODUCT", "NAME", "UNIT", "SYSTEM", "COUNTED", "DIFF")
	fmt.Fprintln(out, strings.Repeat("-", 74))
	for _, it := range result.Items {
		counted, diff := "-", "-"
		if it.CountedQty != nil {
			counted = it.CountedQty.String()
		}
		if it.Difference != nil {
			diff = signed(*it.Difference)
		}
		fmt.Fprintf(out, "  %-10s %-24s %-4s %9s %9s %9s\n",
			it.ProductCode, clip(it.ProductName, 24), it.Unit, it.SystemQty, counted, diff)
	}
	fmt.Fprintln(out, strings.Repeat("=", 74))
}

func printProgress(out io.Writer, code string, p *core.CountProgress) {
	fmt.Fprintf(out, "%s: %d of %d counted (%.0f%%), %d divergent\n",
		code, p.ItemsCounted, p.TotalItems, p.Percent, p.Discrepancies)
}

func printRequest(out io.Writer, r *core.MaterialRequest) {
	fmt.Fprintf(out, "\nRequest %s  Status: %s  Priority: %s\n", r.Code, r.Status, r.Priority)
	fmt.Fprintf(out, "  Contract: %s\n", r.ContractID)
	for i, it := range r.Items {
		fmt.Fprintf(out, "  %d. %s x %s\n", i+1, it.ProductID, it.RequestedQuantity)
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /locations                                   list active locations")
	fmt.Fprintln(out, "  /stock [location] [product]                  show balances")
	fmt.Fprintln(out, "  /alerts [location]                           low-stock alerts")
	fmt.Fprintln(out, "  /counts [location]                           counts in progress")
	fmt.Fprintln(out, "  /start <location> [FULL|ROTATING|SPOT] [products...]")
	fmt.Fprintln(out, "  /open <count-ref>                            resume a count")
	fmt.Fprintln(out, "  /items [pending|counted|divergent] [search]  list count items")
	fmt.Fprintln(out, "  /progress                                    counted vs total")
	fmt.Fprintln(out, "  /complete                                    post adjustments and close")
	fmt.Fprintln(out, "  /cancel <reason>                             abandon the open count")
	fmt.Fprintln(out, "  /close                                       stop entering lines")
	fmt.Fprintln(out, "  /new-request <source-location> <contract-id> draft a material request")
	fmt.Fprintln(out, "  /exit")
	fmt.Fprintln(out, "With a count open, type: <product-code> <qty> [notes]")
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
