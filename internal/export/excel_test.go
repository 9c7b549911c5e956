package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"rentbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func fixture() (*models.Listing, []models.Reservation) {
	listing := &models.Listing{ID: "loft", Title: "Loft", Price: 100}
	reservations := []models.Reservation{
		{ID: "r-1", ListingID: "loft", UserID: "alice", BookingType: models.BookingDaily, StartDate: day(2), EndDate: day(4), TotalPrice: 220, HasLateCheckout: true},
		{ID: "r-2", ListingID: "loft", UserID: "bob", BookingType: models.BookingHourly, StartDate: day(5), EndDate: day(5), StartHour: models.Hour(10), EndHour: models.Hour(13), TotalPrice: 18},
	}
	return listing, reservations
}

func TestWorkbook(t *testing.T) {
	listing, reservations := fixture()

	f, err := Workbook(listing, reservations, day(1), day(5))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{reservationsSheet, calendarSheet}, f.GetSheetList())

	title, _ := f.GetCellValue(reservationsSheet, "A1")
	assert.Equal(t, "Loft", title)

	rows, err := f.GetRows(reservationsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "r-1", rows[2][0])
	assert.Equal(t, "Посуточная", rows[2][2])
	assert.Equal(t, "02.01.2024", rows[2][3])
	assert.Equal(t, "Да", rows[2][7])
	assert.Equal(t, "220", rows[2][8])
	assert.Equal(t, "10:00", rows[3][5])
	assert.Equal(t, "13:00", rows[3][6])

	expected := map[string]string{
		"B3": "Свободно",
		"B4": "Занято",
		"B5": "Занято",
		"B6": "Свободно",
		"B7": "Почасовые: 10:00-13:00",
	}
	for cell, want := range expected {
		got, err := f.GetCellValue(calendarSheet, cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}
}

func TestExporter_Save(t *testing.T) {
	listing, reservations := fixture()
	dir := filepath.Join(t.TempDir(), "exports")

	path, err := NewExporter(dir).Save(listing, reservations, day(1), day(31))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reservations_loft_2024-01-01_to_2024-01-31.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(reservationsSheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "bob", v)
}

func TestExporter_Write(t *testing.T) {
	listing, _ := fixture()
	var buf bytes.Buffer

	require.NoError(t, NewExporter(t.TempDir()).Write(&buf, listing, nil, day(1), day(2)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(reservationsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
