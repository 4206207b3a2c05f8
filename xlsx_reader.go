package trajplot

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// XlsxStringReader reads the rows of the first sheet of a workbook. Cells are
// returned as their formatted text, so numbers come back the way a CSV export
// of the sheet would write them.
type XlsxStringReader struct {
	file  *excelize.File
	rows  *excelize.Rows
	sheet string

	lineCount int
	logger    logrus.FieldLogger
}

func OpenXlsxStringReader(path string) (*XlsxStringReader, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: workbook %s has no sheets", ErrLoad, path)
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	return &XlsxStringReader{
		file:   file,
		rows:   rows,
		sheet:  sheets[0],
		logger: logrus.WithFields(logrus.Fields{"tag": "XlsxString", "sheet": sheets[0]}),
	}, nil
}

func (r *XlsxStringReader) Read(ctx context.Context) ([]string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !r.rows.Next() {
			if err := r.rows.Error(); err != nil {
				r.logger.WithError(err).Error("unable to read row")
				return nil, fmt.Errorf("%w: %w", ErrLoad, err)
			}
			return nil, io.EOF
		}

		r.lineCount++
		columns, err := r.rows.Columns()
		if err != nil {
			r.logger.WithError(err).WithField("lineNum", r.lineCount).Error("unable to read cells")
			return nil, fmt.Errorf("%w: sheet %s row %d: %w", ErrLoad, r.sheet, r.lineCount, err)
		}

		// Entirely empty rows carry no data, same as blank lines in text input.
		if len(columns) == 0 {
			continue
		}

		return columns, nil
	}
}

func (r *XlsxStringReader) Close() error {
	if err := r.rows.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
