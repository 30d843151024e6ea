package tablesync

import (
	"encoding/json"
	"fmt"
	"slices"

	"tabledash/internal/domain"
)

// Blank is what an empty cell reads as.
const Blank = ""

// cell is one table value. An absent cell was padded on load because the source record
// never had that field; it reads as Blank but is not written back on save.
type cell struct {
	value   any
	present bool
}

// Snapshot is an immutable table: ordered columns plus rows that all have exactly those
// columns. Mutations return a new Snapshot sharing unchanged rows with the old one.
type Snapshot struct {
	columns []string
	rows    [][]cell
}

// BuildSnapshot infers the column set from records (union of keys in first-seen order,
// identity field excluded) and pads every row to it.
func BuildSnapshot(records []domain.Record) *Snapshot {
	columns := []string{}
	seen := make(map[string]int)
	for _, rec := range records {
		for _, f := range rec {
			if f.Name == domain.IdentityField {
				continue
			}
			if _, ok := seen[f.Name]; !ok {
				seen[f.Name] = len(columns)
				columns = append(columns, f.Name)
			}
		}
	}

	rows := make([][]cell, len(records))
	for i, rec := range records {
		row := make([]cell, len(columns))
		for _, f := range rec {
			if idx, ok := seen[f.Name]; ok {
				row[idx] = cell{value: f.Value, present: true}
			}
		}
		rows[i] = row
	}
	return &Snapshot{columns: columns, rows: rows}
}

// Columns returns the column names in order.
func (s *Snapshot) Columns() []string {
	return slices.Clone(s.columns)
}

// Len is the number of rows.
func (s *Snapshot) Len() int {
	return len(s.rows)
}

// ColumnIndex returns the position of name, or -1.
func (s *Snapshot) ColumnIndex(name string) int {
	return slices.Index(s.columns, name)
}

// Cell reads one value. Absent cells read as Blank.
func (s *Snapshot) Cell(row int, column string) (any, error) {
	if err := s.checkRow(row); err != nil {
		return nil, err
	}
	col := s.ColumnIndex(column)
	if col < 0 {
		return nil, fmt.Errorf("column %q: %w", column, domain.ErrRange)
	}
	return s.rows[row][col].read(), nil
}

// Row returns row i with every column, absent cells as Blank.
func (s *Snapshot) Row(i int) (domain.Record, error) {
	if err := s.checkRow(i); err != nil {
		return nil, err
	}
	return s.row(i), nil
}

// Rows returns every row as the table shows it.
func (s *Snapshot) Rows() []domain.Record {
	out := make([]domain.Record, len(s.rows))
	for i := range s.rows {
		out[i] = s.row(i)
	}
	return out
}

// Records returns what a save writes: each row without its absent cells.
func (s *Snapshot) Records() []domain.Record {
	out := make([]domain.Record, len(s.rows))
	for i, row := range s.rows {
		rec := make(domain.Record, 0, len(row))
		for j, c := range row {
			if c.present {
				rec = append(rec, domain.Field{Name: s.columns[j], Value: c.value})
			}
		}
		out[i] = rec
	}
	return out
}

// MarshalJSON renders the snapshot as {"columns": [...], "rows": [{...}, ...]}.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Columns []string        `json:"columns"`
		Rows    []domain.Record `json:"rows"`
	}{s.columns, s.Rows()})
}

func (s *Snapshot) row(i int) domain.Record {
	rec := make(domain.Record, len(s.columns))
	for j, c := range s.rows[i] {
		rec[j] = domain.Field{Name: s.columns[j], Value: c.read()}
	}
	return rec
}

func (s *Snapshot) checkRow(row int) error {
	if row < 0 || row >= len(s.rows) {
		return fmt.Errorf("row %d of %d: %w", row, len(s.rows), domain.ErrRange)
	}
	return nil
}

func (c cell) read() any {
	if !c.present {
		return Blank
	}
	return c.value
}
