package trajplot

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Loading goes in two stages: a StringReader splits the input into rows of
// fields (strict CSV, relaxed text, or a spreadsheet), then ReadTable takes the
// first row as the header and parses every following row into numbers.

// When Read is called, return an array of strings which are the columns.
// io.EOF is returned once the input is exhausted.
type StringReader interface {
	Read(context.Context) ([]string, error)
}

// This implements a StringReader and reads an io.Reader using the Golang csv
// module. The input must strictly conform to CSV and every record must have
// the same number of fields as the first one. Lines starting with # are
// comments.
type CsvStringReader struct {
	input     io.Reader
	csvReader *csv.Reader

	lineCount int
}

func NewCsvStringReader(input io.Reader) *CsvStringReader {
	csvReader := csv.NewReader(input)
	csvReader.Comment = '#'
	csvReader.TrimLeadingSpace = true

	return &CsvStringReader{
		input:     input,
		csvReader: csvReader,
		lineCount: 0,
	}
}

func (r *CsvStringReader) Read(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	line, err := r.csvReader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}

	r.lineCount++

	if err != nil {
		logger := logrus.WithFields(logrus.Fields{
			"tag":     "CsvString",
			"line":    line,
			"lineNum": r.lineCount,
		})

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			logger.WithError(err).Debug("unable to parse CSV")
			return nil, fmt.Errorf("%w: %w", ErrLoad, err)
		}

		logger.WithError(err).Error("unable to read CSV")
		return nil, err
	}

	return line, nil
}

// This is a more relaxed reader that can split on spaces or commas. However,
// it does not follow CSV quoting rules. Blank lines and lines starting with #
// are skipped.
type RelaxedStringReader struct {
	input   io.Reader
	scanner *bufio.Scanner

	lineCount int
}

func NewRelaxedStringReader(input io.Reader) *RelaxedStringReader {
	return &RelaxedStringReader{
		input:   input,
		scanner: bufio.NewScanner(input),

		lineCount: 0,
	}
}

// Split on either comma or any number of spaces or tabs
var relaxedSplitter = regexp.MustCompile("[ \t]+|,")

func (r *RelaxedStringReader) Read(ctx context.Context) ([]string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				logrus.WithField("tag", "RelaxedString").WithError(err).Error("unable to read line")
				return nil, err
			}
			return nil, io.EOF
		}

		r.lineCount++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		return Filter(relaxedSplitter.Split(line, -1), func(value string) bool {
			return len(value) > 0
		}), nil
	}
}

// ReadTable reads a header row followed by numeric data rows. Every failure is
// wrapped in ErrLoad, except for context cancellation.
func ReadTable(ctx context.Context, input StringReader) (*Table, error) {
	logger := logrus.WithField("tag", "ReadTable")

	header, err := input.Read(ctx)
	if err == io.EOF {
		return nil, fmt.Errorf("%w: input is empty, expected a header row", ErrLoad)
	} else if err != nil {
		return nil, wrapLoadError(err)
	}

	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		// Spreadsheet exports often start with a byte order mark.
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	if isNumericRow(header) {
		return nil, fmt.Errorf("%w: missing header row, first line is %v", ErrLoad, header)
	}

	table, err := newTable(header)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(header))
	for rowNum := 1; ; rowNum++ {
		line, err := input.Read(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, wrapLoadError(err)
		}

		if len(line) != len(header) {
			return nil, fmt.Errorf("%w: data row %d has %d fields, header has %d", ErrLoad, rowNum, len(line), len(header))
		}

		for i, value := range line {
			floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: data row %d, column %q: cannot parse %q as a number", ErrLoad, rowNum, header[i], value)
			}
			values[i] = floatValue
		}

		table.appendRow(values)
	}

	if table.NumRows() == 0 {
		return nil, fmt.Errorf("%w: no data rows after the header", ErrLoad)
	}

	logger.WithFields(logrus.Fields{
		"columns": table.ColumnNames(),
		"rows":    table.NumRows(),
	}).Debug("loaded table")

	return table, nil
}

// LoadTableFile opens the file at path and reads it into a Table. Files ending
// in .xlsx are read as workbooks, everything else as delimited text.
func LoadTableFile(ctx context.Context, path string, relaxed bool) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		reader, err := OpenXlsxStringReader(path)
		if err != nil {
			return nil, err
		}
		defer reader.Close()

		return ReadTable(ctx, reader)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer f.Close()

	var reader StringReader = NewCsvStringReader(f)
	if relaxed {
		reader = NewRelaxedStringReader(f)
	}

	return ReadTable(ctx, reader)
}

func isNumericRow(fields []string) bool {
	for _, field := range fields {
		if _, err := strconv.ParseFloat(field, 64); err != nil {
			return false
		}
	}
	return len(fields) > 0
}

func wrapLoadError(err error) error {
	if errors.Is(err, ErrLoad) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrLoad, err)
}
