package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// ReadCSVFile reads a CSV file with a header row. See ReadCSV.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	f, err := ReadCSV(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return f, nil
}

// ReadCSV reads numeric CSV with a header row. Empty cells and NA/NaN/null
// are read as NaN; any other non-numeric cell is an error.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read headers")
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	// pandas writes an unnamed index column first
	skipFirst := len(headers) > 0 && headers[0] == ""
	if skipFirst {
		headers = headers[1:]
	}

	var rows [][]float64
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "error reading record on line %d", line)
		}
		if skipFirst {
			record = record[1:]
		}

		row := make([]float64, len(record))
		for j, val := range record {
			v, err := parseCell(val)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d, column %q", line, headers[j])
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	return NewFrame(headers, rows)
}

func parseCell(val string) (float64, error) {
	val = strings.TrimSpace(val)
	switch strings.ToLower(val) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return v, nil
}
