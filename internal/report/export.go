// Package report reads and writes the spreadsheets exchanged with branch staff:
// the order export of a branch dashboard and the bulk menu import.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/service"
)

const (
	OrdersSheet  = "Orders"
	SummarySheet = "Summary"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var orderHeader = []interface{}{
	"Order Number", "Created At (UTC)", "Status", "Customer", "Phone", "Email",
	"Payment", "Delivery", "Address", "Total", "Notes", "Device",
}

// OrderExport is the data behind one branch export.
type OrderExport struct {
	Branch      database.Branch
	Orders      []database.Order
	Stats       service.OrderStats
	GeneratedAt time.Time
}

// FileName is the suggested attachment name, e.g. orders-device_dahan_main-20260101.xlsx.
func (e OrderExport) FileName() string {
	return fmt.Sprintf("orders-%s-%s.xlsx", e.Branch.DeviceID, e.GeneratedAt.UTC().Format("20060102"))
}

// WriteOrders renders the export as an XLSX workbook with an Orders sheet and a
// Summary sheet holding the per-status counts.
func WriteOrders(w io.Writer, e OrderExport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", OrdersSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	// --- Orders ---
	if err := f.SetSheetRow(OrdersSheet, "A1", &orderHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(OrdersSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, o := range e.Orders {
		row := []interface{}{
			o.OrderNumber,
			o.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			service.StatusBadge(o.Status).Label,
			o.CustomerName.String,
			o.CustomerPhone.String,
			o.CustomerEmail.String,
			o.PaymentMethod.String,
			o.DeliveryMethod.String,
			o.DeliveryAddress.String,
			numericFloat(o),
			o.Notes.String,
			o.DeviceID.String,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(OrdersSheet, cell, &row); err != nil {
			return fmt.Errorf("write order %s: %w", o.OrderNumber, err)
		}
	}
	if err := f.SetColWidth(OrdersSheet, "A", "L", 18); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	// --- Summary ---
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	summary := [][]interface{}{
		{"Branch", e.Branch.Name},
		{"Device", e.Branch.DeviceID},
		{"Generated At (UTC)", e.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Total Orders", e.Stats.Total},
		{"Total Amount", e.Stats.TotalAmount.InexactFloat64()},
	}
	for _, st := range enum.OrderStatuses {
		summary = append(summary, []interface{}{service.StatusBadge(string(st)).Label, e.Stats.ByStatus[st]})
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if err := f.SetColStyle(SummarySheet, "A", bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "A", "B", 22); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func numericFloat(o database.Order) float64 {
	return service.DecimalFromNumeric(o.TotalAmount).InexactFloat64()
}
