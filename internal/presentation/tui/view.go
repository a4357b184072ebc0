package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/chequeflow/pkg/domain"
)

// FormatView renders a view descriptor as markdown. Actions are numbered from 1
// so a prompt can accept the number as a shortcut.
func FormatView(view domain.ViewDescriptor) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", view.Title)
	if view.Busy {
		sb.WriteString("_Waiting for the server..._\n\n")
	}

	if e := view.Error; e != nil {
		fmt.Fprintf(&sb, "> **%s failed** (%s", e.Operation, e.Kind)
		if e.Code != "" {
			fmt.Fprintf(&sb, ", %s", e.Code)
		}
		fmt.Fprintf(&sb, "): %s\n\n", e.Message)
	}

	writeData(&sb, view.Data)

	if len(view.Actions) > 0 {
		sb.WriteString("## Actions\n\n")
		for i, a := range view.Actions {
			fmt.Fprintf(&sb, "%d. %s", i+1, a.Label)
			if a.Operation != "" {
				fmt.Fprintf(&sb, " `%s`", a.Operation)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func writeData(sb *strings.Builder, data domain.Payload) {
	switch d := data.(type) {
	case domain.StatusResult:
		fmt.Fprintf(sb, "**Comparison:** %s\n\n", d.ComparisonStatus)
		if d.Message != "" {
			fmt.Fprintf(sb, "%s\n\n", d.Message)
		}
		if len(d.Sheets) > 0 {
			sb.WriteString("| Serial | State |\n|---|---|\n")
			for _, s := range d.Sheets {
				fmt.Fprintf(sb, "| %s | %s |\n", s.Serial, s.State)
			}
			sb.WriteString("\n")
		}
	case domain.AddInstrumentResult:
		fmt.Fprintf(sb, "**Instrument:** %s\n\n", d.InstrumentID)
		if d.Amount != 0 {
			fmt.Fprintf(sb, "**Amount:** %d %s\n\n", d.Amount, d.Currency)
		}
	case domain.StepResult:
		fmt.Fprintf(sb, "**Bank:** %s  \n**Step:** %s\n\n", d.BankType, d.Step)
		if d.Reason != "" {
			fmt.Fprintf(sb, "**Reason:** %s\n\n", d.Reason)
		}
		if d.ImageURL != "" {
			fmt.Fprintf(sb, "**Image:** %s\n\n", d.ImageURL)
		}
		if d.IssueDetail != nil {
			fmt.Fprintf(sb, "**Issue %s:** %s\n\n", d.IssueDetail.Code, d.IssueDetail.Description)
		}
	case domain.DeliveryResult:
		fmt.Fprintf(sb, "**Branch:** %s\n\n", d.Branch)
		if d.Address != "" {
			fmt.Fprintf(sb, "**Address:** %s\n\n", d.Address)
		}
		if !d.ExpectedAt.IsZero() {
			fmt.Fprintf(sb, "**Expected:** %s\n\n", d.ExpectedAt.Format("2006-01-02 15:04"))
		}
		if len(d.Items) > 0 {
			sb.WriteString("| Item | Quantity |\n|---|---|\n")
			for _, it := range d.Items {
				fmt.Fprintf(sb, "| %s | %d |\n", it.Name, it.Quantity)
			}
			sb.WriteString("\n")
		}
	}
}
