package csv

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	sgio "github.com/hed1ad/streamguard/pkg/io"
)

// Writer writes scored results as CSV rows of index, score and features.
type Writer struct {
	closer       io.Closer
	writer       *csv.Writer
	featureNames []string
	withFeatures bool
	wroteHeader  bool
}

// WriterOption configures a CSV writer.
type WriterOption func(*Writer)

// WithFeatureNames sets the header names of the feature columns.
func WithFeatureNames(names []string) WriterOption {
	return func(w *Writer) {
		w.featureNames = names
	}
}

// WithFeatures controls whether the input features are echoed after the score.
func WithFeatures(enabled bool) WriterOption {
	return func(w *Writer) {
		w.withFeatures = enabled
	}
}

// NewWriter creates a CSV writer that truncates or creates filename.
func NewWriter(filename string, opts ...WriterOption) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", filename)
	}
	w := NewWriterTo(file, opts...)
	w.closer = file
	return w, nil
}

// NewWriterTo creates a CSV writer over dst. Close flushes but does not close dst.
func NewWriterTo(dst io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{
		writer:       csv.NewWriter(dst),
		withFeatures: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ sgio.Writer = (*Writer)(nil)

func (w *Writer) header(numFeatures int) []string {
	header := []string{"index", "score"}
	if !w.withFeatures {
		return header
	}
	for i := 0; i < numFeatures; i++ {
		if i < len(w.featureNames) {
			header = append(header, w.featureNames[i])
		} else {
			header = append(header, "f"+strconv.Itoa(i))
		}
	}
	return header
}

// Write outputs a single result.
func (w *Writer) Write(result sgio.Result) error {
	if !w.wroteHeader {
		if err := w.writer.Write(w.header(len(result.Features))); err != nil {
			return errors.Wrap(err, "write csv header")
		}
		w.wroteHeader = true
	}

	record := []string{
		strconv.FormatInt(result.Index, 10),
		strconv.FormatFloat(result.Score, 'f', -1, 64),
	}
	if w.withFeatures {
		for _, v := range result.Features {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return w.writer.Write(record)
}

// WriteAll outputs multiple results and flushes.
func (w *Writer) WriteAll(results []sgio.Result) error {
	for _, result := range results {
		if err := w.Write(result); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes pending rows and releases resources.
func (w *Writer) Close() error {
	w.writer.Flush()
	err := w.writer.Error()
	if w.closer != nil {
		err = multierr.Append(err, w.closer.Close())
	}
	return err
}
