package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
)

// ErrUsage is returned when a command is unknown or its arguments are wrong.
var ErrUsage = errors.New("usage")

const usage = `Available commands:
  locations [all]                          list stock locations
  products                                 list products
  stock [location] [product]               show balances
  movements <location> [product] [limit]   show the ledger journal
  receive <location> <product> <qty> [note]
  adjust <location> <product> <delta> <reason...>
  limits <location> <product> <min> [max]
  alerts [location] [criticality]          low-stock alerts
  replenish <location> <product>           draft a transfer from an alert
  requests [status]                        list material requests
  request <ref> [submit|approve|separate [item=qty...]|deliver <receiver>|reject <reason>|cancel <reason>]
  transfers [status]                       list transfers
  transfer <ref> [submit|approve|dispatch [plate] [driver]|receive|reject <reason>|cancel <reason>]
  counts [location]                        list inventory counts
  count <ref>                              show count progress and divergences
  audit <entity> <ref>                     show the audit trail as JSON`

// Run executes a one-shot CLI command, writing its output to out.
// args is os.Args[1:]; the first element is the subcommand name. actor is
// recorded on every mutation.
func Run(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer, actor string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given\n%s", ErrUsage, usage)
	}
	cmd, rest := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "locations", "locs":
		result, err := svc.ListLocations(ctx, arg(rest, 0) == "all")
		if err != nil {
			return err
		}
		printLocations(out, result)

	case "products":
		result, err := svc.ListProducts(ctx)
		if err != nil {
			return err
		}
		printProducts(out, result)

	case "stock":
		result, err := svc.GetStock(ctx, arg(rest, 0), arg(rest, 1))
		if err != nil {
			return err
		}
		printStock(out, result)

	case "movements", "moves":
		if len(rest) < 1 {
			return fmt.Errorf("%w: movements <location> [product] [limit]", ErrUsage)
		}
		q := app.MovementQuery{LocationRef: rest[0], ProductRef: arg(rest, 1), Limit: 50}
		if v := arg(rest, 2); v != "" {
			if _, err := fmt.Sscanf(v, "%d", &q.Limit); err != nil {
				return fmt.Errorf("%w: limit must be an integer", ErrUsage)
			}
		}
		result, err := svc.ListMovements(ctx, q)
		if err != nil {
			return err
		}
		printMovements(out, result)

	case "receive":
		if len(rest) < 3 {
			return fmt.Errorf("%w: receive <location> <product> <qty> [note]", ErrUsage)
		}
		qty, err := parseQty(rest[2])
		if err != nil {
			return err
		}
		b, err := svc.ReceiveStock(ctx, app.StockEntryRequest{
			LocationRef: rest[0], ProductRef: rest[1], Quantity: qty,
			Note: strings.Join(rest[3:], " "), ActorID: actor,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Received %s. On hand: %s, available: %s.\n", qty, b.Quantity, b.Available())

	case "adjust":
		if len(rest) < 4 {
			return fmt.Errorf("%w: adjust <location> <product> <delta> <reason...>", ErrUsage)
		}
		delta, err := parseQty(rest[2])
		if err != nil {
			return err
		}
		b, err := svc.AdjustStock(ctx, app.StockEntryRequest{
			LocationRef: rest[0], ProductRef: rest[1], Quantity: delta,
			Note: strings.Join(rest[3:], " "), ActorID: actor,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Adjusted by %s. On hand: %s, available: %s.\n", delta, b.Quantity, b.Available())

	case "limits":
		if len(rest) < 3 {
			return fmt.Errorf("%w: limits <location> <product> <min> [max]", ErrUsage)
		}
		req := app.SetLimitsRequest{LocationRef: rest[0], ProductRef: rest[1]}
		var err error
		if req.MinStock, err = parseQty(rest[2]); err != nil {
			return err
		}
		if v := arg(rest, 3); v != "" {
			maxStock, err := parseQty(v)
			if err != nil {
				return err
			}
			req.MaxStock = &maxStock
		}
		b, err := svc.SetStockLimits(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Limits set. Min: %s.\n", b.MinStock)

	case "alerts":
		report, err := svc.ComputeAlerts(ctx, core.AlertFilter{
			LocationID:  arg(rest, 0),
			Criticality: core.Criticality(strings.ToUpper(arg(rest, 1))),
		})
		if err != nil {
			return err
		}
		printAlerts(out, report)

	case "replenish":
		if len(rest) < 2 {
			return fmt.Errorf("%w: replenish <location> <product>", ErrUsage)
		}
		t, err := svc.DraftTransferFromAlert(ctx, rest[0], rest[1], actor)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Transfer %s drafted (DRAFT).\n", t.Code)
		printTransfer(out, t)

	case "requests":
		result, err := svc.ListRequests(ctx, core.RequestFilter{
			Status: core.RequestStatus(strings.ToUpper(arg(rest, 0))),
			Page:   core.Page{PageSize: 200},
		})
		if err != nil {
			return err
		}
		printRequests(out, result)

	case "request", "rm":
		if len(rest) < 1 {
			return fmt.Errorf("%w: request <ref> [action]", ErrUsage)
		}
		r, err := requestAction(ctx, svc, rest[0], rest[1:], actor)
		if err != nil {
			return err
		}
		printRequest(out, r)

	case "transfers":
		result, err := svc.ListTransfers(ctx, core.TransferFilter{
			Status: core.TransferStatus(strings.ToUpper(arg(rest, 0))),
			Page:   core.Page{PageSize: 200},
		})
		if err != nil {
			return err
		}
		printTransfers(out, result)

	case "transfer", "tr":
		if len(rest) < 1 {
			return fmt.Errorf("%w: transfer <ref> [action]", ErrUsage)
		}
		t, err := transferAction(ctx, svc, rest[0], rest[1:], actor)
		if err != nil {
			return err
		}
		printTransfer(out, t)

	case "counts":
		result, err := svc.ListCounts(ctx, core.CountFilter{LocationID: arg(rest, 0)})
		if err != nil {
			return err
		}
		printCounts(out, result)

	case "count":
		if len(rest) < 1 {
			return fmt.Errorf("%w: count <ref>", ErrUsage)
		}
		progress, err := svc.CountProgress(ctx, rest[0])
		if err != nil {
			return err
		}
		items, err := svc.CountItems(ctx, rest[0], core.CountItemFilter{Status: core.CountItemsDivergent})
		if err != nil {
			return err
		}
		printCountProgress(out, items.Code, progress, items)

	case "audit":
		if len(rest) < 2 {
			return fmt.Errorf("%w: audit <entity> <ref>", ErrUsage)
		}
		entries, err := svc.AuditTrail(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)

	case "help", "h":
		fmt.Fprintln(out, usage)

	default:
		return fmt.Errorf("%w: unknown command %q\n%s", ErrUsage, args[0], usage)
	}
	return nil
}

func requestAction(ctx context.Context, svc app.ApplicationService, ref string, args []string, actor string) (*core.MaterialRequest, error) {
	if len(args) == 0 {
		return svc.GetRequest(ctx, ref)
	}
	tail := strings.Join(args[1:], " ")
	switch strings.ToLower(args[0]) {
	case "submit":
		return svc.SubmitRequest(ctx, ref, actor)
	case "approve":
		return svc.ApproveRequest(ctx, ref, actor, nil)
	case "separate":
		separations, err := parseSeparations(args[1:])
		if err != nil {
			return nil, err
		}
		return svc.StartSeparation(ctx, ref, actor, separations)
	case "deliver":
		return svc.DeliverRequest(ctx, ref, actor, tail)
	case "reject":
		return svc.RejectRequest(ctx, ref, actor, tail)
	case "cancel":
		return svc.CancelRequest(ctx, ref, actor, tail)
	}
	return nil, fmt.Errorf("%w: unknown request action %q", ErrUsage, args[0])
}

func transferAction(ctx context.Context, svc app.ApplicationService, ref string, args []string, actor string) (*core.StockTransfer, error) {
	if len(args) == 0 {
		return svc.GetTransfer(ctx, ref)
	}
	tail := strings.Join(args[1:], " ")
	switch strings.ToLower(args[0]) {
	case "submit":
		return svc.SubmitTransfer(ctx, ref, actor)
	case "approve":
		return svc.ApproveTransfer(ctx, ref, actor)
	case "dispatch":
		return svc.DispatchTransfer(ctx, ref, actor, arg(args, 1), strings.Join(args[min(2, len(args)):], " "))
	case "receive":
		return svc.ReceiveTransfer(ctx, ref, actor, "", nil)
	case "reject":
		return svc.RejectTransfer(ctx, ref, actor, tail)
	case "cancel":
		return svc.CancelTransfer(ctx, ref, actor, tail)
	}
	return nil, fmt.Errorf("%w: unknown transfer action %q", ErrUsage, args[0])
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// parseSeparations reads "<item-id>=<qty>" pairs.
func parseSeparations(args []string) ([]core.ItemSeparation, error) {
	var out []core.ItemSeparation
	for _, a := range args {
		id, qty, ok := strings.Cut(a, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: expected <item-id>=<qty>, got %q", ErrUsage, a)
		}
		d, err := parseQty(qty)
		if err != nil {
			return nil, err
		}
		out = append(out, core.ItemSeparation{ItemID: id, SeparatedQuantity: d})
	}
	return out, nil
}

func parseQty(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrUsage, s)
	}
	return d, nil
}
