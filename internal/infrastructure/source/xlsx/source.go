package xlsx

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// Source reads one worksheet. The first row holds field names; blank cells
// become null values.
type Source struct {
	path  string
	sheet string
}

func New(path, sheet string) *Source {
	return &Source{path: path, sheet: sheet}
}

func (s *Source) Name() string {
	if s.sheet == "" {
		return filepath.Base(s.path)
	}
	return filepath.Base(s.path) + "#" + s.sheet
}

func (s *Source) Records(ctx context.Context) ([]domain.Record, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "open xlsx source", err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "read xlsx sheet", fmt.Errorf("%s: %w", sheet, err))
	}
	defer rows.Close()

	var (
		header  []string
		records []domain.Record
	)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols, err := rows.Columns()
		if err != nil {
			return nil, domain.WrapError(domain.ErrIO, "read xlsx row", err)
		}
		if header == nil {
			header = make([]string, len(cols))
			for i, c := range cols {
				header[i] = strings.TrimSpace(c)
			}
			if len(header) == 0 {
				return nil, domain.WrapError(domain.ErrIO, "read xlsx header", fmt.Errorf("sheet %s has an empty header row", sheet))
			}
			continue
		}
		if isBlank(cols) {
			continue
		}
		record := make(domain.Record, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(cols) && strings.TrimSpace(cols[i]) != "" {
				record[name] = cols[i]
			} else {
				record[name] = nil
			}
		}
		records = append(records, record)
	}
	if err := rows.Error(); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "read xlsx rows", err)
	}
	if header == nil {
		return nil, domain.WrapError(domain.ErrIO, "read xlsx header", fmt.Errorf("sheet %s is empty", sheet))
	}
	return records, nil
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
