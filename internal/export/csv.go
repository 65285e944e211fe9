package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Header is the first line of every export
const Header = "Kilómetro,Medido,Ideal,Diferencia"

// Row is one kilometer of an export
type Row struct {
	Km       int
	Measured int64
	Ideal    int64
	HasIdeal bool
}

// Rows pairs each split with its ideal time, when one exists
func Rows(splits, ideals []int64) []Row {
	rows := make([]Row, len(splits))
	for i, s := range splits {
		rows[i] = Row{Km: i + 1, Measured: s}
		if i < len(ideals) {
			rows[i].Ideal = ideals[i]
			rows[i].HasIdeal = true
		}
	}
	return rows
}

// String renders the row as a table line. The time fields contain a comma
// as decimal separator and are written unquoted.
func (r Row) String() string {
	ideal, diff := "-", "-"
	if r.HasIdeal {
		ideal = FormatSplit(r.Ideal)
		diff = FormatDifference(r.Measured, r.Ideal)
	}
	return strings.Join([]string{strconv.Itoa(r.Km), FormatSplit(r.Measured), ideal, diff}, ",")
}

// Table renders the header and one line per split, newline separated
func Table(splits, ideals []int64) string {
	lines := make([]string, 0, len(splits)+1)
	lines = append(lines, Header)
	for _, r := range Rows(splits, ideals) {
		lines = append(lines, r.String())
	}
	return strings.Join(lines, "\n")
}

// Write writes the table to w
func Write(w io.Writer, splits, ideals []int64) error {
	if _, err := io.WriteString(w, Table(splits, ideals)); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}

// FileName returns the export file name for a given moment
func FileName(at time.Time) string {
	return fmt.Sprintf("medicion_%d.csv", at.UnixMilli())
}

// WriteFile writes the table into dir and returns the created path
func WriteFile(dir string, at time.Time, splits, ideals []int64) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, FileName(at))
	if err := os.WriteFile(path, []byte(Table(splits, ideals)), 0644); err != nil {
		return "", fmt.Errorf("writing export file: %w", err)
	}
	return path, nil
}
