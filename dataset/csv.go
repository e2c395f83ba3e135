// Package dataset loads feature matrices and label vectors from CSV files.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// Options controls how a CSV file is turned into X and y.
type Options struct {
	// HasHeader treats the first record as column names.
	HasHeader bool
	// LabelColumn is the index of the label column; negative values count
	// from the end, so -1 is the last column.
	LabelColumn int
	// MissingTokens are cell values read as NAValue.
	MissingTokens []string
	// NAValue is stored for missing feature cells.
	NAValue float64
	// Comma is the field delimiter.
	Comma rune
}

// DefaultOptions reads a headed, comma separated file with the label in the
// last column and "", NA and NaN as missing values.
func DefaultOptions() Options {
	return Options{
		HasHeader:     true,
		LabelColumn:   -1,
		MissingTokens: []string{"", "NA", "NaN", "nan", "?"},
		NAValue:       math.NaN(),
		Comma:         ',',
	}
}

// Dataset is a loaded CSV.
type Dataset struct {
	X        *mat.Dense
	Y        *mat.Dense
	Features []string
	Label    string
	// Classes holds the original label strings when labels were not
	// numeric; y then holds indices into Classes.
	Classes []string
}

// LoadCSV reads the file at path.
func LoadCSV(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer f.Close()
	ds, err := ReadCSV(f, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset %s", path)
	}
	return ds, nil
}

// ReadCSV parses CSV records from r.
func ReadCSV(r io.Reader, opts Options) (*Dataset, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}

	var header []string
	if opts.HasHeader && len(records) > 0 {
		header, records = records[0], records[1:]
	}
	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "csv has no data rows")
	}

	width := len(records[0])
	if header != nil && len(header) != width {
		return nil, errors.NewValueError("ReadCSV",
			fmt.Sprintf("header has %d columns but rows have %d", len(header), width))
	}
	for i, rec := range records {
		if len(rec) != width {
			return nil, errors.NewValueError("ReadCSV",
				fmt.Sprintf("row %d has %d fields, expected %d", i+1, len(rec), width))
		}
	}
	if width < 2 {
		return nil, errors.NewValueError("ReadCSV", "need at least one feature column and a label column")
	}
	labelCol := opts.LabelColumn
	if labelCol < 0 {
		labelCol += width
	}
	if labelCol < 0 || labelCol >= width {
		return nil, errors.NewValidationError("label_column", "out of range", opts.LabelColumn)
	}

	missing := lo.SliceToMap(opts.MissingTokens, func(s string) (string, struct{}) { return s, struct{}{} })
	n, nf := len(records), width-1
	X := mat.NewDense(n, nf, nil)
	rawLabels := make([]string, n)
	for i, rec := range records {
		j := 0
		for c, cell := range rec {
			cell = strings.TrimSpace(cell)
			if c == labelCol {
				rawLabels[i] = cell
				continue
			}
			v, err := parseCell(cell, missing, opts.NAValue)
			if err != nil {
				return nil, errors.NewValueError("ReadCSV",
					fmt.Sprintf("row %d column %d: %v", i+1, c+1, err))
			}
			X.Set(i, j, v)
			j++
		}
	}

	y, classes, err := encodeLabels(rawLabels, missing)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{X: X, Y: y, Classes: classes}
	if header != nil {
		ds.Label = header[labelCol]
		ds.Features = append(append([]string(nil), header[:labelCol]...), header[labelCol+1:]...)
	} else {
		ds.Features = lo.Times(nf, func(j int) string { return fmt.Sprintf("x%d", j) })
	}
	return ds, nil
}

func parseCell(cell string, missing map[string]struct{}, na float64) (float64, error) {
	if _, ok := missing[cell]; ok {
		return na, nil
	}
	d, err := decimal.NewFromString(cell)
	if err != nil {
		return 0, errors.Newf("not a number: %q", cell)
	}
	return d.InexactFloat64(), nil
}

// encodeLabels keeps numeric labels as they are and maps any other label
// set to indices of its sorted distinct values.
func encodeLabels(raw []string, missing map[string]struct{}) (*mat.Dense, []string, error) {
	values := make([]float64, len(raw))
	numeric := true
	for i, s := range raw {
		if _, ok := missing[s]; ok {
			return nil, nil, errors.NewValueError("ReadCSV", fmt.Sprintf("row %d has a missing label", i+1))
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			numeric = false
			break
		}
		values[i] = d.InexactFloat64()
	}
	if numeric {
		return mat.NewDense(len(raw), 1, values), nil, nil
	}

	classes := lo.Uniq(raw)
	sort.Strings(classes)
	index := lo.SliceToMap(classes, func(c string) (string, int) { return c, sort.SearchStrings(classes, c) })
	for i, s := range raw {
		values[i] = float64(index[s])
	}
	return mat.NewDense(len(raw), 1, values), classes, nil
}
