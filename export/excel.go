/*
Package export renders spreadsheets for the accounts office.

PURPOSE:
  Turns payment batches and claim lists into .xlsx workbooks. The payment
  sheet is what the accounts office pays from, so it carries the bank
  snapshot of every claim and a total row at the bottom.

PAYMENT SHEET LAYOUT:
  Row 1:      Reference number
  Row 3:      Column headers (bold)
  Row 4..N:   One row per claim
  Row N+1:    "Total" and the sum of the Amount column

SEE ALSO:
  - claim/disbursement.go: Builds the rows (claim.SheetRow)
  - api/handlers_disbursement.go: Serves the workbook for download
*/
package export

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/rdc/incentive-engine/claim"
)

const (
	PaymentSheetName = "Payment Sheet"
	ClaimsSheetName  = "Claims"

	// ContentType is the MIME type of every workbook this package writes.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var paymentHeaders = []string{
	"Sr No", "Claim ID", "Name", "Faculty", "Type",
	"Beneficiary", "Account No", "IFSC", "Bank", "Amount", "Remarks",
}

var claimHeaders = []string{
	"Claim ID", "Type", "Title", "Name", "Faculty", "Status",
	"Calculated Incentive", "Final Amount", "Submitted At", "Payment Ref",
}

// Excel implements claim.SheetRenderer with excelize.
type Excel struct{}

func NewExcel() *Excel { return &Excel{} }

// =============================================================================
// PAYMENT SHEET
// =============================================================================

func (e *Excel) RenderPaymentSheet(reference string, rows []claim.SheetRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := PaymentSheetName
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &[]any{"Reference", reference}); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if err := writeHeader(f, sheet, 3, paymentHeaders); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for i, r := range rows {
		total = total.Add(r.Amount)
		values := []any{
			i + 1,
			r.ClaimID,
			r.UserName,
			r.Faculty,
			string(r.ClaimType),
			r.Bank.BeneficiaryName,
			r.Bank.AccountNumber, // string, so leading zeros survive
			r.Bank.IFSC,
			r.Bank.BankName,
			r.Amount.InexactFloat64(),
			r.Remarks,
		}
		if err := setRow(f, sheet, i+4, values); err != nil {
			return nil, err
		}
	}

	totalRow := len(rows) + 4
	if err := setRow(f, sheet, totalRow, []any{"Total"}); err != nil {
		return nil, err
	}
	amountCell, err := excelize.CoordinatesToCellName(10, totalRow)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if err := f.SetCellValue(sheet, amountCell, total.InexactFloat64()); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	if err := f.SetColWidth(sheet, "A", "K", 18); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return write(f)
}

// =============================================================================
// CLAIMS REPORT
// =============================================================================

// RenderClaims writes one row per claim in the given order.
func (e *Excel) RenderClaims(claims []*claim.Claim) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := ClaimsSheetName
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if err := writeHeader(f, sheet, 1, claimHeaders); err != nil {
		return nil, err
	}

	for i, c := range claims {
		submitted := ""
		if c.SubmittedAt != nil {
			submitted = c.SubmittedAt.Format("2006-01-02")
		}
		values := []any{
			c.ClaimID,
			string(c.Type),
			c.Title(),
			c.UserName,
			c.Faculty,
			string(c.Status),
			amount(c.CalculatedIncentive),
			amount(c.FinalApprovedAmount),
			submitted,
			c.PaymentSheetRef,
		}
		if err := setRow(f, sheet, i+2, values); err != nil {
			return nil, err
		}
	}
	return write(f)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeHeader(f *excelize.File, sheet string, row int, headers []string) error {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := setRow(f, sheet, row, values); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(headers), row)
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("export: row %d: %w", row, err)
	}
	return nil
}

func write(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return buf.Bytes(), nil
}

func amount(d *decimal.Decimal) any {
	if d == nil {
		return ""
	}
	return d.InexactFloat64()
}
