package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
)

var errExit = errors.New("exit")

// session is the state of one interactive counting session.
type session struct {
	ctx    context.Context
	svc    app.ApplicationService
	reader *bufio.Reader
	out    io.Writer
	actor  string
	// open is the code of the count receiving product lines, empty when none.
	open string
}

// Run starts the interactive counting loop.
// Slash commands are dispatched directly. Any other input is read as a
// count line "<product-code> <qty> [notes]" for the open count.
func Run(ctx context.Context, svc app.ApplicationService, reader *bufio.Reader, out io.Writer, actor string) error {
	s := &session{ctx: ctx, svc: svc, reader: reader, out: out, actor: actor}

	fmt.Fprintln(out, "Fieldstock")
	fmt.Fprintf(out, "Operator: %s\n", actor)
	fmt.Fprintln(out, "Open a count with /start or /open, then type <product-code> <qty> [notes]. /help lists commands.")
	fmt.Fprintln(out, strings.Repeat("-", 70))

	for {
		if s.open != "" {
			fmt.Fprintf(out, "\n[%s] > ", s.open)
		} else {
			fmt.Fprint(out, "\n> ")
		}
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "Goodbye!")
				return nil
			}
			if err != nil {
				return err
			}
			continue
		}

		if strings.HasPrefix(input, "/") {
			if dispErr := s.dispatchSlash(input); dispErr != nil {
				if errors.Is(dispErr, errExit) {
					fmt.Fprintln(out, "Goodbye!")
					return nil
				}
				fmt.Fprintf(out, "Error: %v\n", dispErr)
			}
		} else if regErr := s.registerLine(input); regErr != nil {
			fmt.Fprintf(out, "Error: %v\n", regErr)
		}

		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
	}
}

func (s *session) dispatchSlash(input string) error {
	tokens := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(tokens) == 0 {
		return nil
	}
	cmd := strings.ToLower(tokens[0])
	args := tokens[1:]

	switch cmd {
	case "locations", "locs":
		result, err := s.svc.ListLocations(s.ctx, false)
		if err != nil {
			return err
		}
		printLocations(s.out, result)

	case "stock":
		result, err := s.svc.GetStock(s.ctx, arg(args, 0), arg(args, 1))
		if err != nil {
			return err
		}
		printStock(s.out, result)

	case "alerts":
		report, err := s.svc.ComputeAlerts(s.ctx, core.AlertFilter{LocationID: arg(args, 0)})
		if err != nil {
			return err
		}
		printAlerts(s.out, report)

	case "counts":
		result, err := s.svc.ListCounts(s.ctx, core.CountFilter{LocationID: arg(args, 0), Status: core.CountInProgress})
		if err != nil {
			return err
		}
		printCounts(s.out, result)

	case "start":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /start <location> [FULL|ROTATING|SPOT] [product-codes...]")
			return nil
		}
		req := app.StartCountRequest{LocationRef: args[0], CountType: core.CountFull, StartedBy: s.actor}
		if len(args) > 1 {
			req.CountType = core.CountType(strings.ToUpper(args[1]))
			req.ProductRefs = args[2:]
		}
		c, err := s.svc.StartCount(s.ctx, req)
		if err != nil {
			return err
		}
		s.open = c.Code
		fmt.Fprintf(s.out, "Count %s started with %d items. Type <product-code> <qty> to register.\n", c.Code, c.TotalItems)

	case "open":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /open <count-ref>")
			return nil
		}
		c, err := s.svc.GetCount(s.ctx, args[0])
		if err != nil {
			return err
		}
		if c.Status != core.CountInProgress {
			return fmt.Errorf("count %s is %s", c.Code, c.Status)
		}
		s.open = c.Code
		fmt.Fprintf(s.out, "Count %s opened: %d of %d counted.\n", c.Code, c.ItemsCounted, c.TotalItems)

	case "items":
		code, err := s.requireOpen()
		if err != nil {
			return err
		}
		filter := core.CountItemFilter{}
		if len(args) > 0 {
			switch st := core.CountItemStatus(strings.ToLower(args[0])); st {
			case core.CountItemsPending, core.CountItemsCounted, core.CountItemsDivergent:
				filter.Status = st
				args = args[1:]
			}
		}
		filter.Search = strings.Join(args, " ")
		result, err := s.svc.CountItems(s.ctx, code, filter)
		if err != nil {
			return err
		}
		printCountItems(s.out, result)

	case "progress":
		code, err := s.requireOpen()
		if err != nil {
			return err
		}
		p, err := s.svc.CountProgress(s.ctx, code)
		if err != nil {
			return err
		}
		printProgress(s.out, code, p)

	case "complete":
		return s.complete()

	case "cancel":
		code, err := s.requireOpen()
		if err != nil {
			return err
		}
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /cancel <reason>")
			return nil
		}
		c, err := s.svc.CancelCount(s.ctx, code, s.actor, strings.Join(args, " "))
		if err != nil {
			return err
		}
		s.open = ""
		fmt.Fprintf(s.out, "Count %s CANCELLED. Stock unchanged.\n", c.Code)

	case "close":
		s.open = ""

	case "new-request":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: /new-request <source-location> <contract-id>")
			return nil
		}
		return s.handleNewRequest(args[0], args[1])

	case "help", "h":
		printHelp(s.out)

	case "exit", "quit", "e", "q":
		return errExit

	default:
		fmt.Fprintf(s.out, "Unknown command: /%s  (type /help for all commands)\n", cmd)
	}
	return nil
}

// registerLine records "<product-code> <qty> [notes]" against the open count.
func (s *session) registerLine(input string) error {
	code, err := s.requireOpen()
	if err != nil {
		return err
	}
	parts := strings.Fields(input)
	if len(parts) < 2 {
		fmt.Fprintln(s.out, "Invalid format. Use: <product-code> <qty> [notes]")
		return nil
	}
	qty, err := decimal.NewFromString(parts[1])
	if err != nil || qty.IsNegative() {
		fmt.Fprintf(s.out, "Invalid quantity: %s\n", parts[1])
		return nil
	}

	result, err := s.svc.CountItems(s.ctx, code, core.CountItemFilter{Search: parts[0]})
	if err != nil {
		return err
	}
	var item *core.CountItemView
	for i := range result.Items {
		if strings.EqualFold(result.Items[i].ProductCode, parts[0]) {
			item = &result.Items[i]
			break
		}
	}
	if item == nil {
		return fmt.Errorf("product %s is not part of count %s", strings.ToUpper(parts[0]), code)
	}

	c, err := s.svc.RegisterCount(s.ctx, item.ID, s.actor, qty, strings.Join(parts[2:], " "))
	if err != nil {
		return err
	}
	diff := qty.Sub(item.SystemQty)
	mark := "ok"
	if !diff.IsZero() {
		mark = "DIVERGENT " + signed(diff)
	}
	fmt.Fprintf(s.out, "  %s = %s (%s)  [%d/%d]\n", item.ProductCode, qty, mark, c.ItemsCounted, c.TotalItems)
	return nil
}

func (s *session) complete() error {
	code, err := s.requireOpen()
	if err != nil {
		return err
	}
	p, err := s.svc.CountProgress(s.ctx, code)
	if err != nil {
		return err
	}
	if p.ItemsCounted < p.TotalItems {
		return fmt.Errorf("count %s has %d items still pending", code, p.TotalItems-p.ItemsCounted)
	}
	divergent, err := s.svc.CountItems(s.ctx, code, core.CountItemFilter{Status: core.CountItemsDivergent})
	if err != nil {
		return err
	}
	if len(divergent.Items) > 0 {
		fmt.Fprintln(s.out, "The following adjustments will be posted:")
		printCountItems(s.out, divergent)
	} else {
		fmt.Fprintln(s.out, "No divergences. Stock stays as it is.")
	}

	fmt.Fprint(s.out, "\nComplete this count? (y/n): ")
	choice, _ := s.reader.ReadString('\n')
	choice = strings.TrimSpace(strings.ToLower(choice))
	if choice != "y" && choice != "yes" {
		fmt.Fprintln(s.out, "Count left open.")
		return nil
	}

	c, err := s.svc.CompleteCount(s.ctx, code, s.actor)
	if err != nil {
		return err
	}
	s.open = ""
	fmt.Fprintf(s.out, "Count %s COMPLETED. %d adjustments posted.\n", c.Code, c.Discrepancies)
	return nil
}

func (s *session) requireOpen() (string, error) {
	if s.open == "" {
		return "", errors.New("no open count: use /start or /open first")
	}
	return s.open, nil
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.String()
	}
	return d.String()
}
