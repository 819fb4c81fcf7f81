package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadCSV decodes a header-first CSV, empty cells are read as missing.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	table := &Table{Columns: header}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = Of(row[i])
			} else {
				rec[col] = Missing()
			}
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, nil
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}

// WriteCSV encodes the table with a header row, missing values are written
// as empty cells.
func WriteCSV(w io.Writer, table *Table) error {
	writer := csv.NewWriter(w)
	err := writer.Write(table.Columns)
	if err != nil {
		return err
	}

	row := make([]string, len(table.Columns))
	for _, rec := range table.Rows {
		for i, col := range table.Columns {
			row[i] = rec.Get(col).String()
		}
		err = writer.Write(row)
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	table, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// WriteCSVFile overwrites `path` with the table, creating parent directories
// as needed.
func WriteCSVFile(path string, table *Table) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = WriteCSV(f, table)
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
