// Package importer loads CPF seed rows from CSV and XLSX files for bulk
// insertion into the store.
package importer

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/leadfactor/enrich-cli/internal/phone"
	"github.com/leadfactor/enrich-cli/internal/store"
)

// ReadSeeds parses a CSV or XLSX file into client seeds. The format is
// picked from the file extension. The first row is treated as a header
// when it contains a "cpf" column; otherwise columns are positional
// (cpf, name, phone).
func ReadSeeds(path string) ([]store.ClientSeed, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	return seedsFromRows(rows)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "importer: read csv")
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// columnLayout maps the cpf, name and phone columns of a file.
type columnLayout struct {
	cpf, name, phone int
}

func detectLayout(header []string) (columnLayout, bool) {
	layout := columnLayout{cpf: -1, name: -1, phone: -1}
	for i, cell := range header {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "cpf":
			layout.cpf = i
		case "name", "nome":
			layout.name = i
		case "phone", "telefone", "celular":
			layout.phone = i
		}
	}
	return layout, layout.cpf >= 0
}

func seedsFromRows(rows [][]string) ([]store.ClientSeed, error) {
	if len(rows) == 0 {
		return nil, eris.New("importer: file has no rows")
	}

	layout := columnLayout{cpf: 0, name: 1, phone: 2}
	if detected, ok := detectLayout(rows[0]); ok {
		layout = detected
		rows = rows[1:]
	}

	var seeds []store.ClientSeed
	for i, row := range rows {
		cpf, err := normalizeCPF(cell(row, layout.cpf))
		if err != nil {
			return nil, eris.Wrapf(err, "importer: row %d", i+1)
		}
		if cpf == "" {
			continue
		}

		seed := store.ClientSeed{CPF: cpf}
		if name := strings.TrimSpace(cell(row, layout.name)); name != "" {
			seed.Name = &name
		}
		if p := phone.Digits(cell(row, layout.phone)); p != "" {
			seed.Phone = &p
		}
		seeds = append(seeds, seed)
	}

	if len(seeds) == 0 {
		return nil, eris.New("importer: no usable rows")
	}
	return seeds, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// normalizeCPF strips formatting and left-pads to 11 digits. Spreadsheet
// exports routinely drop leading zeros.
func normalizeCPF(raw string) (string, error) {
	digits := phone.Digits(raw)
	if digits == "" {
		return "", nil
	}
	if len(digits) > 11 {
		return "", eris.Errorf("invalid CPF %q", raw)
	}
	return strings.Repeat("0", 11-len(digits)) + digits, nil
}
