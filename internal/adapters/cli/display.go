package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
)

func rule(out io.Writer, ch string, n int) {
	fmt.Fprintln(out, strings.Repeat(ch, n))
}

func header(out io.Writer, title string, width int) {
	fmt.Fprintln(out)
	rule(out, "=", width)
	fmt.Fprintf(out, "  %s\n", title)
	rule(out, "=", width)
}

func printLocations(out io.Writer, result *app.LocationListResult) {
	header(out, "STOCK LOCATIONS", 64)
	if len(result.Locations) == 0 {
		fmt.Fprintln(out, "  No locations found.")
		rule(out, "=", 64)
		return
	}
	fmt.Fprintf(out, "  %-10s %-30s %-8s %s\n", "CODE", "NAME", "TYPE", "ACTIVE")
	rule(out, "-", 64)
	for _, l := range result.Locations {
		fmt.Fprintf(out, "  %-10s %-30s %-8s %v\n", l.Code, l.Name, l.Type, l.IsActive)
	}
	rule(out, "=", 64)
}

func printProducts(out io.Writer, result *app.ProductListResult) {
	header(out, "PRODUCTS", 64)
	if len(result.Products) == 0 {
		fmt.Fprintln(out, "  No products found.")
		rule(out, "=", 64)
		return
	}
	fmt.Fprintf(out, "  %-10s %-30s %-6s %s\n", "CODE", "NAME", "UNIT", "CATEGORY")
	rule(out, "-", 64)
	for _, p := range result.Products {
		fmt.Fprintf(out, "  %-10s %-30s %-6s %s\n", p.Code, p.Name, p.Unit, p.Category)
	}
	rule(out, "=", 64)
}

func printStock(out io.Writer, result *app.StockResult) {
	header(out, "STOCK BALANCES", 86)
	if len(result.Lines) == 0 {
		fmt.Fprintln(out, "  No balances found.")
		rule(out, "=", 86)
		return
	}
	fmt.Fprintf(out, "  %-10s %-10s %-22s %10s %10s %10s %8s\n", "LOCATION", "PRODUCT", "NAME", "ON HAND", "RESERVED", "AVAILABLE", "MIN")
	rule(out, "-", 86)
	for _, l := range result.Lines {
		fmt.Fprintf(out, "  %-10s %-10s %-22s %10s %10s %10s %8s\n",
			l.LocationCode, l.ProductCode, truncate(l.ProductName, 22), l.Quantity, l.Reserved, l.Available, l.MinStock)
	}
	rule(out, "=", 86)
}

func printMovements(out io.Writer, result *app.MovementListResult) {
	header(out, "LEDGER MOVEMENTS (newest first)", 86)
	if len(result.Movements) == 0 {
		fmt.Fprintln(out, "  No movements found.")
		rule(out, "=", 86)
		return
	}
	fmt.Fprintf(out, "  %-16s %-10s %10s %10s %10s  %s\n", "WHEN", "KIND", "QTY", "ON HAND", "RESERVED", "REFERENCE")
	rule(out, "-", 86)
	for _, m := range result.Movements {
		fmt.Fprintf(out, "  %-16s %-10s %10s %10s %10s  %s %s\n",
			m.CreatedAt.Format("2006-01-02 15:04"), m.Kind, m.Quantity, m.QuantityAfter, m.ReservedAfter, m.RefType, m.Note)
	}
	rule(out, "=", 86)
}

func printAlerts(out io.Writer, report *core.AlertReport) {
	header(out, fmt.Sprintf("LOW-STOCK ALERTS  critical %d  warning %d  low %d",
		report.Counts.Critical, report.Counts.Warning, report.Counts.Low), 86)
	if len(report.Alerts) == 0 {
		fmt.Fprintln(out, "  No alerts.")
		rule(out, "=", 86)
		return
	}
	fmt.Fprintf(out, "  %-9s %-10s %-10s %10s %8s %8s  %s\n", "TIER", "LOCATION", "PRODUCT", "AVAILABLE", "MIN", "DEFICIT", "ACTION")
	rule(out, "-", 86)
	for _, a := range report.Alerts {
		action := string(a.Action)
		if a.SourceLocationCode != "" {
			action += " from " + a.SourceLocationCode
		}
		fmt.Fprintf(out, "  %-9s %-10s %-10s %10s %8s %8s  %s\n",
			a.Criticality, a.LocationCode, a.ProductCode, a.Available, a.MinStock, a.Deficit, action)
	}
	rule(out, "=", 86)
}

func printRequests(out io.Writer, result *app.RequestListResult) {
	header(out, fmt.Sprintf("MATERIAL REQUESTS (%d)", result.Total), 80)
	if len(result.Requests) == 0 {
		fmt.Fprintln(out, "  No requests found.")
		rule(out, "=", 80)
		return
	}
	fmt.Fprintf(out, "  %-14s %-19s %-8s %-12s %6s  %s\n", "CODE", "STATUS", "PRIORITY", "CONTRACT", "ITEMS", "REQUESTED")
	rule(out, "-", 80)
	for _, r := range result.Requests {
		fmt.Fprintf(out, "  %-14s %-19s %-8s %-12s %6d  %s\n",
			r.Code, r.Status, r.Priority, r.ContractID, len(r.Items), r.RequestedAt.Format("2006-01-02"))
	}
	rule(out, "=", 80)
}

func printRequest(out io.Writer, r *core.MaterialRequest) {
	header(out, fmt.Sprintf("%s  %s", r.Code, r.Status), 84)
	fmt.Fprintf(out, "  Contract : %s\n", r.ContractID)
	fmt.Fprintf(out, "  Priority : %s\n", r.Priority)
	fmt.Fprintf(out, "  Requester: %s\n", r.RequesterID)
	rule(out, "-", 84)
	fmt.Fprintf(out, "  %-36s %10s %10s %10s %10s\n", "ITEM", "REQUESTED", "APPROVED", "SEPARATED", "DELIVERED")
	for _, it := range r.Items {
		fmt.Fprintf(out, "  %-36s %10s %10s %10s %10s\n", it.ID, it.RequestedQuantity,
			optional(it.ApprovedQuantity), optional(it.SeparatedQuantity), optional(it.DeliveredQuantity))
	}
	rule(out, "=", 84)
}

func printTransfers(out io.Writer, result *app.TransferListResult) {
	header(out, fmt.Sprintf("STOCK TRANSFERS (%d)", result.Total), 80)
	if len(result.Transfers) == 0 {
		fmt.Fprintln(out, "  No transfers found.")
		rule(out, "=", 80)
		return
	}
	fmt.Fprintf(out, "  %-14s %-27s %6s %12s  %s\n", "CODE", "STATUS", "ITEMS", "VALUE", "REQUESTED")
	rule(out, "-", 80)
	for _, t := range result.Transfers {
		fmt.Fprintf(out, "  %-14s %-27s %6d %12s  %s\n",
			t.Code, t.Status, len(t.Items), t.TotalValue.StringFixed(2), t.RequestedAt.Format("2006-01-02"))
	}
	rule(out, "=", 80)
}

func printTransfer(out io.Writer, t *core.StockTransfer) {
	header(out, fmt.Sprintf("%s  %s", t.Code, t.Status), 72)
	fmt.Fprintf(out, "  Requester: %s\n", t.RequesterID)
	fmt.Fprintf(out, "  Value    : %s\n", t.TotalValue.StringFixed(2))
	rule(out, "-", 72)
	fmt.Fprintf(out, "  %-36s %10s %10s %10s\n", "ITEM", "QTY", "SHIPPED", "RECEIVED")
	for _, it := range t.Items {
		fmt.Fprintf(out, "  %-36s %10s %10s %10s\n", it.ID, it.Quantity, optional(it.ShippedQuantity), optional(it.ReceivedQuantity))
	}
	rule(out, "=", 72)
}

func printCounts(out io.Writer, result *app.CountListResult) {
	header(out, "INVENTORY COUNTS", 72)
	if len(result.Counts) == 0 {
		fmt.Fprintln(out, "  No counts found.")
		rule(out, "=", 72)
		return
	}
	fmt.Fprintf(out, "  %-15s %-12s %-9s %7s %9s  %s\n", "CODE", "STATUS", "TYPE", "ITEMS", "DIVERGENT", "STARTED")
	rule(out, "-", 72)
	for _, c := range result.Counts {
		fmt.Fprintf(out, "  %-15s %-12s %-9s %7d %9d  %s\n",
			c.Code, c.Status, c.CountType, c.TotalItems, c.Discrepancies, c.StartedAt.Format("2006-01-02"))
	}
	rule(out, "=", 72)
}

func printCountProgress(out io.Writer, code string, p *core.CountProgress, divergent *app.CountItemsResult) {
	header(out, fmt.Sprintf("%s  %s", code, p.Status), 72)
	fmt.Fprintf(out, "  Counted  : %d of %d\n", p.ItemsCounted, p.TotalItems)
	fmt.Fprintf(out, "  Divergent: %d\n", p.Discrepancies)
	if len(divergent.Items) > 0 {
		rule(out, "-", 72)
		fmt.Fprintf(out, "  %-10s %-26s %10s %10s %10s\n", "PRODUCT", "NAME", "SYSTEM", "COUNTED", "DIFF")
		for _, it := range divergent.Items {
			fmt.Fprintf(out, "  %-10s %-26s %10s %10s %10s\n",
				it.ProductCode, truncate(it.ProductName, 26), it.SystemQty, optional(it.CountedQty), optional(it.Difference))
		}
	}
	rule(out, "=", 72)
}

func optional(v *decimal.Decimal) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
