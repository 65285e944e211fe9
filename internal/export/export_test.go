package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFormatSplit(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "00:00,0"},
		{185200, "03:05,2"},
		{180000, "03:00,0"},
		{5200, "00:05,2"},
		{1049, "00:01,0"},
		{1050, "00:01,1"},
		{59960, "01:00,0"}, // tenths carry into seconds and minutes
		{9999, "00:10,0"},
		{-1, "00:00,0"},
		{6_000_000, "100:00,0"},
	}
	for _, tt := range tests {
		if got := FormatSplit(tt.ms); got != tt.want {
			t.Errorf("FormatSplit(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "00:00"},
		{13345, "00:13"},
		{61999, "01:01"},
		{-500, "00:00"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.ms); got != tt.want {
			t.Errorf("FormatClock(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestFormatDifference(t *testing.T) {
	tests := []struct {
		name         string
		split, ideal int64
		want         string
	}{
		{"slower", 185200, 180000, "+00:05,2"},
		{"faster", 178500, 180000, "-00:01,5"},
		{"equal", 180000, 180000, "00:00,0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDifference(tt.split, tt.ideal); got != tt.want {
				t.Errorf("FormatDifference() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDelta(t *testing.T) {
	tests := []struct {
		diff int64
		want string
	}{
		{1500, "Tiempo: -00:01,5"},
		{-2300, "Tiempo: +00:02,3"},
		{0, "Tiempo: 00:00,0"},
	}
	for _, tt := range tests {
		if got := FormatDelta(tt.diff); got != tt.want {
			t.Errorf("FormatDelta(%d) = %q, want %q", tt.diff, got, tt.want)
		}
	}
}

func TestTable(t *testing.T) {
	got := Table([]int64{185200}, []int64{180000})
	want := "Kilómetro,Medido,Ideal,Diferencia\n1,03:05,2,03:00,0,+00:05,2"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Table() mismatch (-want +got):\n%s", diff)
	}
}

func TestTableMissingIdeal(t *testing.T) {
	got := Table([]int64{60000, 121000}, []int64{60000})
	want := "Kilómetro,Medido,Ideal,Diferencia\n" +
		"1,01:00,0,01:00,0,00:00,0\n" +
		"2,02:01,0,-,-"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Table() mismatch (-want +got):\n%s", diff)
	}
}

func TestTableEmpty(t *testing.T) {
	if got := Table(nil, nil); got != Header {
		t.Errorf("Table(nil) = %q, want header only", got)
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []int64{185200}, []int64{180000}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != Table([]int64{185200}, []int64{180000}) {
		t.Errorf("Write() wrote %q", buf.String())
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	at := time.UnixMilli(1700000000123)

	path, err := WriteFile(dir, at, []int64{185200}, []int64{180000})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if filepath.Base(path) != "medicion_1700000000123.csv" {
		t.Errorf("file name = %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if string(data) != "Kilómetro,Medido,Ideal,Diferencia\n1,03:05,2,03:00,0,+00:05,2" {
		t.Errorf("file content = %q", data)
	}
}
