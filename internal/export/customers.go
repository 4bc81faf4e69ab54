// Package export renders tenant data as spreadsheets.
package export

import (
	"bytes"
	"fmt"

	"github.com/kiranshivaraju/memberbase/internal/phone"
	"github.com/kiranshivaraju/memberbase/pkg/models"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the customer rows.
const SheetName = "Customers"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var customerHeader = []string{
	"First Name", "Last Name", "Phone", "Birth Date", "Email",
	"Address Line 1", "Address Line 2", "City", "State", "Postal Code",
	"Consent", "Created At",
}

var customerColWidths = []float64{16, 18, 20, 12, 28, 28, 20, 18, 12, 12, 10, 20}

// Customers renders rows as a single-sheet workbook with a bold, frozen
// header row. Phones are shown in national style.
func Customers(rows []*models.Customer) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for col, title := range customerHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(SheetName, cell, title); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, name, name, customerColWidths[col]); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(customerHeader), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for i, c := range rows {
		consent := "No"
		if c.ConsentGiven {
			consent = "Yes"
		}
		values := []any{
			c.FirstName, c.LastName, phone.Display(c.Phone, phone.National),
			c.BirthDate.Format("2006-01-02"), c.Email,
			c.AddressLine1, c.AddressLine2, c.City, c.State, c.PostalCode,
			consent, c.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
