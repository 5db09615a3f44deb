package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"attendance/internal/models"
	"attendance/pkg/geo"
)

// DefaultSiteRadius applies to roster rows that name a site without a radius.
const DefaultSiteRadius = 100.0

const maxRows = 100000

var (
	ErrUnsupportedFormat = errors.New("unsupported file type; upload .xlsx or .xls")
	ErrMissingColumn     = errors.New("missing required column")
)

// ReadEmployees parses a roster. Rows without an employee id or with an
// unusable site position are counted as skipped.
func ReadEmployees(r io.Reader, filename string) ([]models.Employee, int, error) {
	rows, err := readRows(r, filename)
	if err != nil {
		return nil, 0, err
	}

	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[normalizeHeader(h)] = i
	}
	for _, col := range []string{"employee id", "name"} {
		if _, ok := idx[col]; !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	col := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok {
			return ""
		}
		return cellValue(row, i)
	}

	var (
		employees []models.Employee
		skipped   int
	)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		e := models.Employee{
			ExternalID: col(row, "employee id"),
			Name:       col(row, "name"),
			Email:      col(row, "email"),
		}
		if e.ExternalID == "" {
			skipped++
			continue
		}
		site, ok := parseSite(col(row, "site"), col(row, "latitude"), col(row, "longitude"), col(row, "radius"))
		if !ok {
			skipped++
			continue
		}
		e.Site = site
		employees = append(employees, e)
	}
	return employees, skipped, nil
}

func parseSite(name, lat, lng, radius string) (*models.Site, bool) {
	if lat == "" && lng == "" {
		return nil, name == ""
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, false
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, false
	}
	if (geo.Coordinates{Latitude: la, Longitude: lo}).Validate() != nil {
		return nil, false
	}
	site := &models.Site{Name: name, Latitude: la, Longitude: lo, RadiusMeters: DefaultSiteRadius}
	if radius != "" {
		rm, err := strconv.ParseFloat(radius, 64)
		if err != nil || rm <= 0 {
			return nil, false
		}
		site.RadiusMeters = rm
	}
	return site, true
}

func readRows(reader io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		if workbook.NumSheets() == 0 {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows := workbook.ReadAllCells(maxRows)
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	case ".xlsx":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows, err := file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

func normalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.NewReplacer("_", " ", "-", " ").Replace(h)
	switch h {
	case "employeeid", "id":
		return "employee id"
	case "lat":
		return "latitude"
	case "lng", "lon":
		return "longitude"
	case "radius meters", "radius (m)":
		return "radius"
	}
	return h
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
