package repl

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
)

// handleNewRequest runs an interactive material request draft session.
func (s *session) handleNewRequest(sourceRef, contractID string) error {
	fmt.Fprintf(s.out, "Drafting material request from %s for contract %s\n", sourceRef, contractID)
	fmt.Fprintln(s.out, "Enter request lines. Type 'done' when finished, 'cancel' to abort.")
	fmt.Fprintln(s.out, "Format per line: <product-code> <quantity> [notes]")

	var lines []app.RequestLine
	lineNum := 1
	for {
		fmt.Fprintf(s.out, "  Line %d: ", lineNum)
		raw, err := s.reader.ReadString('\n')
		raw = strings.TrimSpace(raw)
		if strings.EqualFold(raw, "cancel") {
			fmt.Fprintln(s.out, "Request draft cancelled.")
			return nil
		}
		if strings.EqualFold(raw, "done") || (raw == "" && err != nil) {
			break
		}
		if raw == "" {
			continue
		}

		parts := strings.Fields(raw)
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "  Invalid format. Use: <product-code> <quantity> [notes]")
			continue
		}
		qty, perr := decimal.NewFromString(parts[1])
		if perr != nil || !qty.IsPositive() {
			fmt.Fprintln(s.out, "  Invalid quantity.")
			continue
		}
		lines = append(lines, app.RequestLine{
			ProductRef: strings.ToUpper(parts[0]),
			Quantity:   qty,
			Notes:      strings.Join(parts[2:], " "),
		})
		lineNum++
	}

	if len(lines) == 0 {
		fmt.Fprintln(s.out, "No lines entered. Request not created.")
		return nil
	}

	fmt.Fprint(s.out, "Priority [NORMAL]: ")
	priority, _ := s.reader.ReadString('\n')
	priority = strings.TrimSpace(strings.ToUpper(priority))
	if priority == "" {
		priority = string(core.PriorityNormal)
	}

	fmt.Fprint(s.out, "Notes (optional): ")
	notes, _ := s.reader.ReadString('\n')

	r, err := s.svc.CreateMaterialRequest(s.ctx, app.CreateMaterialRequestRequest{
		ContractID:        contractID,
		SourceLocationRef: sourceRef,
		Priority:          core.Priority(priority),
		Notes:             strings.TrimSpace(notes),
		Items:             lines,
		RequesterID:       s.actor,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "\nRequest created (Status: %s)\n", r.Status)
	printRequest(s.out, r)
	fmt.Fprintln(s.out, "Submit it with: fieldstock request "+r.Code+" submit")
	return nil
}
