package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenRotoCore/internal/molding"
)

// Column names of the shop-floor mold sheet.
const (
	colName         = "Name"
	colType         = "Type"
	colCount        = "Count"
	colWeight       = "Weight (kg)(With Powder)"
	colOvenTime     = "Oven Time"
	colOvenTemp     = "Oven Temperature"
	colCoolingTime  = "Cooling Time"
	colMountingTime = "Molding/Demolding Time"
	colLength       = "Length (mm)"
	colBreadth      = "Breadth (mm)"
	colHeight       = "Height (mm)"
	colVolume       = "Volume (m3)"
	colDistance     = "Distance From Center (m)"
)

// Values used when a sheet cell is empty.
const (
	DefaultDimension    = 0.5 // m, per axis
	DefaultWeight       = 5.0
	DefaultOvenTime     = 3.0
	DefaultOvenTemp     = 200.0
	DefaultCoolingTime  = 2.0
	DefaultMountingTime = 1.0
	DefaultDistance     = 0.5
	DefaultCount        = 1
	DefaultMoldType     = "UNKNOWN"
)

var exportColumns = []string{
	colName, colType, colCount, colWeight, colOvenTime, colOvenTemp,
	colCoolingTime, colMountingTime, colVolume, colDistance,
}

// RowError describes a sheet row that could not be turned into a mold.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

type row struct {
	index  map[string]int
	fields []string
}

func (r row) value(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r row) float(col string, def float64) (float64, error) {
	v := r.value(col)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", col, err)
	}
	return f, nil
}

// LoadMoldsCSV parses a mold sheet. Rows without a name are skipped silently; rows with
// unparseable numbers are reported in the returned RowErrors and left out.
func LoadMoldsCSV(r io.Reader) ([]molding.Mold, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, ok := index[colName]; !ok {
		return nil, nil, fmt.Errorf("missing %q column", colName)
	}

	molds := make([]molding.Mold, 0)
	var rowErrs []RowError

	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		rec := row{index: index, fields: fields}
		if rec.value(colName) == "" {
			continue
		}

		m, err := moldFromRow(rec)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		molds = append(molds, m)
	}

	return molds, rowErrs, nil
}

func moldFromRow(r row) (molding.Mold, error) {
	m := molding.Mold{
		MoldID:   r.value(colName),
		MoldType: r.value(colType),
	}
	if m.MoldType == "" {
		m.MoldType = DefaultMoldType
	}

	var err error
	if m.Volume, err = volumeFromRow(r); err != nil {
		return m, err
	}

	fields := []struct {
		col string
		def float64
		dst *float64
	}{
		{colWeight, DefaultWeight, &m.Weight},
		{colOvenTime, DefaultOvenTime, &m.HeatingTime},
		{colOvenTemp, DefaultOvenTemp, &m.HeatingTemperature},
		{colCoolingTime, DefaultCoolingTime, &m.CoolingTime},
		{colMountingTime, DefaultMountingTime, &m.MountingTime},
		{colDistance, DefaultDistance, &m.DistanceFromCenter},
	}
	for _, f := range fields {
		if *f.dst, err = r.float(f.col, f.def); err != nil {
			return m, err
		}
	}

	count, err := r.float(colCount, DefaultCount)
	if err != nil {
		return m, err
	}
	if count < 0 || count > math.MaxInt32 || count != math.Trunc(count) {
		return m, fmt.Errorf("column %q: want a non-negative whole number, got %s", colCount, r.value(colCount))
	}
	m.AvailableQuantity = int(count)

	return m, nil
}

// volumeFromRow prefers an explicit volume and otherwise multiplies the three
// dimensions, converted from mm to m.
func volumeFromRow(r row) (float64, error) {
	if r.value(colVolume) != "" {
		return r.float(colVolume, 0)
	}

	volume := 1.0
	for _, col := range []string{colLength, colBreadth, colHeight} {
		mm, err := r.float(col, DefaultDimension*1000)
		if err != nil {
			return 0, err
		}
		volume *= mm / 1000
	}
	return volume, nil
}

func LoadMoldsCSVFile(path string) ([]molding.Mold, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open mold sheet: %w", err)
	}
	defer f.Close()

	return LoadMoldsCSV(f)
}

// WriteMoldsCSV writes molds in the sheet format read by LoadMoldsCSV.
func WriteMoldsCSV(w io.Writer, molds []molding.Mold) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, m := range molds {
		record := []string{
			m.MoldID,
			m.MoldType,
			strconv.Itoa(m.AvailableQuantity),
			formatFloat(m.Weight),
			formatFloat(m.HeatingTime),
			formatFloat(m.HeatingTemperature),
			formatFloat(m.CoolingTime),
			formatFloat(m.MountingTime),
			formatFloat(m.Volume),
			formatFloat(m.DistanceFromCenter),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write mold %s: %w", m.MoldID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Import loads a mold sheet into the catalog and returns how many molds were stored.
func (c *Catalog) Import(r io.Reader) (int, []RowError, error) {
	molds, rowErrs, err := LoadMoldsCSV(r)
	if err != nil {
		return 0, nil, err
	}
	for _, m := range molds {
		c.Put(m)
	}
	return len(molds), rowErrs, nil
}
