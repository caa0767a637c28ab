// Package csv provides CSV reading of tabular samples and CSV writing of
// scored results.
package csv

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "csv")

// Reader reads data from CSV files.
type Reader struct {
	closer    io.Closer
	reader    *csv.Reader
	hasHeader bool
	headers   []string
	columns   []int
	comma     rune

	line    int
	skipped int
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithColumns restricts the samples to the given zero-based column indexes,
// in the given order.
func WithColumns(columns ...int) Option {
	return func(r *Reader) {
		r.columns = columns
	}
}

// WithComma sets the field delimiter.
func WithComma(comma rune) Option {
	return func(r *Reader) {
		r.comma = comma
	}
}

// NewReader creates a new CSV reader for a file.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filename)
	}

	r, err := NewReaderFrom(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReaderFrom creates a new CSV reader over src.
func NewReaderFrom(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{
		reader:    csv.NewReader(src),
		hasHeader: true,
		comma:     ',',
	}

	for _, opt := range opts {
		opt(r)
	}

	r.reader.Comma = r.comma
	r.reader.FieldsPerRecord = -1
	r.reader.TrimLeadingSpace = true

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, errors.Wrap(err, "read csv header")
		}
		r.line++
		r.headers = headers
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// FeatureNames returns the headers of the selected columns.
func (r *Reader) FeatureNames() []string {
	if len(r.headers) == 0 || len(r.columns) == 0 {
		return r.headers
	}
	names := make([]string, 0, len(r.columns))
	for _, c := range r.columns {
		if c < len(r.headers) {
			names = append(names, r.headers[c])
		}
	}
	return names
}

// Skipped returns the number of malformed rows skipped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// next returns the next well-formed row, or io.EOF.
func (r *Reader) next() ([]float64, error) {
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		r.line++
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				r.skip(err)
				continue
			}
			return nil, err
		}

		row, err := parseRow(record, r.columns)
		if err != nil {
			r.skip(err)
			continue // Skip malformed rows
		}
		return row, nil
	}
}

func (r *Reader) skip(err error) {
	r.skipped++
	log.WithError(err).WithField("line", r.line).Debug("skipping malformed row")
}

// Read returns all data as a 2D float slice.
func (r *Reader) Read() ([][]float64, error) {
	var data [][]float64

	for {
		row, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		data = append(data, row)
	}

	return data, nil
}

// Stream returns a channel of rows for real-time processing.
func (r *Reader) Stream(ctx context.Context) (<-chan []float64, error) {
	out := make(chan []float64, 100)

	go func() {
		defer close(out)
		for {
			row, err := r.next()
			if err == io.EOF {
				return
			}
			if err != nil {
				log.WithError(err).Error("csv stream aborted")
				return
			}

			select {
			case out <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// parseRow converts string slice to float slice, keeping only columns when
// it is not empty.
func parseRow(record []string, columns []int) ([]float64, error) {
	if len(record) == 0 || (len(record) == 1 && record[0] == "") {
		return nil, errors.New("empty row")
	}

	if len(columns) == 0 {
		row := make([]float64, len(record))
		for i, val := range record {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "column %d", i)
			}
			row[i] = f
		}
		return row, nil
	}

	row := make([]float64, len(columns))
	for i, c := range columns {
		if c < 0 || c >= len(record) {
			return nil, errors.Errorf("column %d out of range for %d fields", c, len(record))
		}
		f, err := strconv.ParseFloat(record[c], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "column %d", c)
		}
		row[i] = f
	}
	return row, nil
}
