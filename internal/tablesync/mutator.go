package tablesync

import (
	"fmt"
	"slices"

	"tabledash/internal/domain"
)

// SetCell returns a copy of s with one cell replaced.
func SetCell(s *Snapshot, row int, column string, value any) (*Snapshot, error) {
	if err := s.checkRow(row); err != nil {
		return nil, err
	}
	col := s.ColumnIndex(column)
	if col < 0 {
		return nil, fmt.Errorf("column %q: %w", column, domain.ErrRange)
	}

	rows := slices.Clone(s.rows)
	rows[row] = slices.Clone(rows[row])
	rows[row][col] = cell{value: value, present: true}
	return &Snapshot{columns: s.columns, rows: rows}, nil
}

// AppendRow returns a copy of s with one blank row at the end.
func AppendRow(s *Snapshot) *Snapshot {
	blank := make([]cell, len(s.columns))
	for i := range blank {
		blank[i] = cell{value: Blank, present: true}
	}
	rows := make([][]cell, len(s.rows), len(s.rows)+1)
	copy(rows, s.rows)
	return &Snapshot{columns: s.columns, rows: append(rows, blank)}
}

// DeleteRow returns a copy of s without row.
func DeleteRow(s *Snapshot, row int) (*Snapshot, error) {
	if err := s.checkRow(row); err != nil {
		return nil, err
	}
	return &Snapshot{columns: s.columns, rows: slices.Delete(slices.Clone(s.rows), row, row+1)}, nil
}
