package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Column names used from the source CSV. Every other column is ignored.
const (
	ColLocation = "LocationDesc"
	ColQuestion = "Question"
	ColValue    = "Data_Value"
	ColSegment  = "Stratification1"
	ColCategory = "StratificationCategory1"
)

var requiredColumns = []string{ColLocation, ColQuestion, ColValue, ColSegment, ColCategory}

// ErrMissingColumn is returned when the CSV header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Row is one observation from the survey table. Value is NaN when the
// source cell was empty.
type Row struct {
	State    string
	Question string
	Value    float64
	Category string
	Segment  string
}

// HasValue reports whether the row carries a recorded value.
func (r Row) HasValue() bool {
	return !math.IsNaN(r.Value)
}

// Dataset holds the rows of the survey table indexed by question.
type Dataset struct {
	byQuestion map[string][]Row
	total      int
}

// Load reads the CSV file at path.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return ds, nil
}

// Parse reads a CSV stream with a header row.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(requiredColumns))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	ds := &Dataset{byQuestion: make(map[string][]Row)}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		field := func(col string) string {
			i := idx[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		value := math.NaN()
		if raw := field(ColValue); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse %s %q: %w", line, ColValue, raw, err)
			}
			value = v
		}

		row := Row{
			State:    field(ColLocation),
			Question: field(ColQuestion),
			Value:    value,
			Category: field(ColCategory),
			Segment:  field(ColSegment),
		}
		ds.byQuestion[row.Question] = append(ds.byQuestion[row.Question], row)
		ds.total++
	}

	return ds, nil
}

// Rows returns the rows recorded for question. The slice is shared and
// must not be modified.
func (d *Dataset) Rows(question string) []Row {
	return d.byQuestion[question]
}

// Len returns the total number of rows.
func (d *Dataset) Len() int {
	return d.total
}

// Questions returns the number of distinct questions.
func (d *Dataset) Questions() int {
	return len(d.byQuestion)
}
