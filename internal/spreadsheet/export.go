// Package spreadsheet writes attendance listings to XLSX and reads employee
// rosters from XLSX or legacy XLS workbooks.
package spreadsheet

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"attendance/internal/models"
)

const attendanceSheet = "Attendance"

var exportHeader = []any{
	"Employee", "Date", "Status", "Clock In", "Clock Out", "Location",
	"Latitude", "Longitude", "Device", "IP", "Attempts", "Locked",
}

// WriteAttendance renders records as a single-sheet workbook. Clock times are
// shown in loc.
func WriteAttendance(w io.Writer, records []models.AttendanceRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", attendanceSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(attendanceSheet, "A1", &exportHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(attendanceSheet, 1, 1, bold); err != nil {
		return err
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			rec.EmployeeRef,
			rec.Date.Format(models.DateLayout),
			string(rec.Status),
			clock(rec.ClockIn, loc),
			clock(rec.ClockOut, loc),
			rec.LocationText,
			optional(rec.Latitude),
			optional(rec.Longitude),
			rec.DeviceInfo,
			rec.IPAddress,
			rec.AttemptCount,
			rec.Locked,
		}
		if err := f.SetSheetRow(attendanceSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(attendanceSheet, "F", "F", 48); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func clock(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("15:04:05")
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
