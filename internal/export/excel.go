package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rently/internal/calendar"
	"rently/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const bookingsSheet = "Bookings"

type bookingLister interface {
	GetBookingsInPeriod(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
}

// Exporter writes period reports for the operations team as Excel files.
type Exporter struct {
	db     bookingLister
	path   string
	logger *zerolog.Logger
}

func NewExporter(db bookingLister, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{db: db, path: path, logger: logger}
}

// ExportBookings writes every booking overlapping [from, to] to an xlsx file
// and returns the file path.
func (e *Exporter) ExportBookings(ctx context.Context, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	bookings, err := e.db.GetBookingsInPeriod(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("error getting bookings: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(bookingsSheet, "A1", fmt.Sprintf("Period: %s - %s",
		calendar.FormatDay(from), calendar.FormatDay(to)))

	writeHeaders(f)
	for i, booking := range bookings {
		writeBookingRow(f, i+3, booking)
	}

	_ = f.MergeCell(bookingsSheet, "A1", "L1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(bookingsSheet, "A1", "A1", titleStyle)

	_ = f.SetColWidth(bookingsSheet, "B", "B", 14)
	_ = f.SetColWidth(bookingsSheet, "F", "G", 12)
	_ = f.SetColWidth(bookingsSheet, "K", "K", 12)
	_ = f.SetColWidth(bookingsSheet, "L", "L", 20)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx",
		calendar.FormatDay(from), calendar.FormatDay(to))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", len(bookings)).Msg("Excel file created")
	return filePath, nil
}

func writeHeaders(f *excelize.File) {
	headers := []string{
		"ID", "Code", "Listing", "Renter", "Owner",
		"Start", "End", "Days", "Total", "Deposit", "Status", "Created At",
	}
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(bookingsSheet, cell, header)
		_ = f.SetCellStyle(bookingsSheet, cell, cell, style)
	}
}

func writeBookingRow(f *excelize.File, row int, booking *models.Booking) {
	values := []interface{}{
		booking.ID,
		booking.Code,
		booking.ListingID,
		booking.RenterID,
		booking.OwnerID,
		calendar.FormatDay(booking.StartDate),
		calendar.FormatDay(booking.EndDate),
		len(booking.DateRange),
		float64(booking.TotalAmount) / 100,
		float64(booking.Deposit) / 100,
		booking.Status,
		booking.CreatedAt.Format("2006-01-02 15:04"),
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(bookingsSheet, cell, v)
	}

	statusCell, _ := excelize.CoordinatesToCellName(11, row)
	if styleID, err := statusStyle(f, booking.Status); err == nil {
		_ = f.SetCellStyle(bookingsSheet, statusCell, statusCell, styleID)
	}
}

func statusStyle(f *excelize.File, status string) (int, error) {
	var color string
	switch status {
	case models.StatusConfirmed, models.StatusActive, models.StatusCompleted:
		color = "#C6EFCE"
	case models.StatusHold, models.StatusPending:
		color = "#FFEB9C"
	case models.StatusCancelled, models.StatusRejected:
		color = "#FFC7CE"
	default:
		color = "#FFFFFF"
	}
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
}
