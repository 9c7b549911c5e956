// Package export renders a listing's reservations as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rentbook/internal/interval"
	"rentbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	reservationsSheet = "Бронирования"
	calendarSheet     = "Календарь"
	dateFormat        = "02.01.2006"
)

var reservationHeaders = []string{
	"ID", "Гость", "Тип", "Заезд", "Выезд", "Начало", "Конец", "Поздний выезд", "Стоимость", "Создано",
}

type Exporter struct {
	dir string
}

func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// Workbook builds a workbook with the reservation list and a calendar of days in [from, to].
func Workbook(listing *models.Listing, reservations []models.Reservation, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(reservationsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeReservations(f, listing, reservations); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(calendarSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeCalendar(f, reservations, from, to); err != nil {
		f.Close()
		return nil, err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// Write streams the workbook to w.
func (e *Exporter) Write(w io.Writer, listing *models.Listing, reservations []models.Reservation, from, to time.Time) error {
	f, err := Workbook(listing, reservations, from, to)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// Save writes the workbook into the export directory and returns its path.
func (e *Exporter) Save(listing *models.Listing, reservations []models.Reservation, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := Workbook(listing, reservations, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(listing, from, to))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return filePath, nil
}

func FileName(listing *models.Listing, from, to time.Time) string {
	return fmt.Sprintf("reservations_%s_%s_to_%s.xlsx", listing.ID, interval.DayKey(from), interval.DayKey(to))
}

func writeReservations(f *excelize.File, listing *models.Listing, reservations []models.Reservation) error {
	title := listing.Title
	if title == "" {
		title = listing.ID
	}
	_ = f.SetCellValue(reservationsSheet, "A1", title)

	for i, h := range reservationHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(reservationsSheet, cell, h)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(reservationHeaders))
	_ = f.SetCellStyle(reservationsSheet, "A2", lastCol+"2", headerStyle)

	for i := range reservations {
		r := &reservations[i]
		row := i + 3
		startTime, endTime := "", ""
		if r.HasHours() {
			startTime, endTime = interval.FormatHour(*r.StartHour), interval.FormatHour(*r.EndHour)
		}
		values := []interface{}{
			r.ID,
			r.UserID,
			bookingTypeLabel(r.BookingType),
			r.StartDate.Format(dateFormat),
			r.EndDate.Format(dateFormat),
			startTime,
			endTime,
			yesNo(r.HasLateCheckout),
			r.TotalPrice,
			r.CreatedAt.Format("02.01.2006 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(reservationsSheet, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
	}

	_ = f.SetColWidth(reservationsSheet, "A", "A", 38)
	_ = f.SetColWidth(reservationsSheet, "B", lastCol, 15)
	return nil
}

func writeCalendar(f *excelize.File, reservations []models.Reservation, from, to time.Time) error {
	_ = f.SetCellValue(calendarSheet, "A1", fmt.Sprintf("Период: %s - %s", from.Format(dateFormat), to.Format(dateFormat)))
	_ = f.SetCellValue(calendarSheet, "A2", "Дата")
	_ = f.SetCellValue(calendarSheet, "B2", "Статус")

	busyStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	partStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFF2CC"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	row := 3
	for day := interval.DayNumber(from); day <= interval.DayNumber(to); day++ {
		date := interval.FromDayNumber(day)
		status, occupancy := dayStatus(reservations, day)

		dateCell, _ := excelize.CoordinatesToCellName(1, row)
		statusCell, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(calendarSheet, dateCell, date.Format(dateFormat))
		_ = f.SetCellValue(calendarSheet, statusCell, status)
		switch occupancy {
		case occupiedFull:
			_ = f.SetCellStyle(calendarSheet, statusCell, statusCell, busyStyle)
		case occupiedPart:
			_ = f.SetCellStyle(calendarSheet, statusCell, statusCell, partStyle)
		}
		row++
	}

	_ = f.SetColWidth(calendarSheet, "A", "A", 14)
	_ = f.SetColWidth(calendarSheet, "B", "B", 40)
	return nil
}

type occupancy int

const (
	occupiedNone occupancy = iota
	occupiedPart
	occupiedFull
)

// dayStatus describes one day: a night under a daily reservation is full,
// a day with hourly reservations lists their slots.
func dayStatus(reservations []models.Reservation, day int) (string, occupancy) {
	var slots []string
	for i := range reservations {
		r := &reservations[i]
		if !r.IsHourly() {
			if interval.OccupiedNights(r.StartDate, r.EndDate).Contains(day) {
				return "Занято", occupiedFull
			}
			continue
		}
		if interval.DayNumber(r.StartDate) == day && r.HasHours() {
			slots = append(slots, interval.HourRange{Start: *r.StartHour, End: *r.EndHour}.String())
		}
	}
	if len(slots) == 0 {
		return "Свободно", occupiedNone
	}
	return "Почасовые: " + strings.Join(slots, ", "), occupiedPart
}

func bookingTypeLabel(t models.BookingType) string {
	if t == models.BookingHourly {
		return "Почасовая"
	}
	return "Посуточная"
}

func yesNo(v bool) string {
	if v {
		return "Да"
	}
	return "Нет"
}
