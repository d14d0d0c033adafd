package manifest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformed is returned when a manifest table cannot be understood.
var ErrMalformed = errors.New("malformed manifest")

const (
	ColumnComplexName = "complex_name"
	ColumnReceptor    = "protein_path"
	ColumnLigand      = "ligand_description"
)

// WorkItem is one docking task.
type WorkItem struct {
	// ComplexName identifies the receptor-ligand pair in outputs.
	//
	// It is unique in one manifest, but not always across receptors.
	ComplexName string

	ReceptorPath string
	LigandPath   string
}

// NewWorkItem makes a WorkItem named after the ligand file.
func NewWorkItem(receptorPath, ligandPath string) WorkItem {
	return WorkItem{
		ComplexName:  ComplexNameOf(ligandPath),
		ReceptorPath: receptorPath,
		LigandPath:   ligandPath,
	}
}

// ComplexNameOf derives a complex name from a ligand path:
// the base name up to its first dot.
//
//	ComplexNameOf("ligands/ZINC0001.sdf")     // => "ZINC0001"
//	ComplexNameOf("ligands/ZINC0001.min.sdf") // => "ZINC0001"
func ComplexNameOf(ligandPath string) string {
	base := filepath.Base(ligandPath)
	name, _, _ := strings.Cut(base, ".")
	return name
}

// Columns selects the header variant of a manifest.
type Columns int

const (
	// complex_name, protein_path, ligand_description
	WithComplexName Columns = iota

	// protein_path, ligand_description
	WithoutComplexName
)

func (c Columns) Header() []string {
	if c == WithoutComplexName {
		return []string{ColumnReceptor, ColumnLigand}
	}
	return []string{ColumnComplexName, ColumnReceptor, ColumnLigand}
}

// Delimiters which a manifest may use.
var Delimiters = []rune{';', ',', '\t'}

// Format of a manifest table.
type Format struct {
	Delimiter rune
	Columns   Columns
}

// DefaultFormat is the format of manifests written for chunks.
var DefaultFormat = Format{Delimiter: ';', Columns: WithComplexName}

func (f Format) Validate() error {
	for _, d := range Delimiters {
		if d == f.Delimiter {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported delimiter %q", ErrMalformed, f.Delimiter)
}

// ParseDelimiter converts a configured delimiter into a rune.
//
// "tab" and `\t` mean a tab character.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "tab", `\t`, "\t":
		return '\t', nil
	case ";":
		return ';', nil
	case ",":
		return ',', nil
	}
	return 0, fmt.Errorf("%w: unsupported delimiter %q", ErrMalformed, s)
}

// Manifest is an ordered list of work items and the table format it has been read from.
type Manifest struct {
	Format Format
	Items  []WorkItem
}

// Receptors returns distinct receptor paths in order of first appearance.
func (m Manifest) Receptors() []string {
	seen := map[string]struct{}{}
	ret := []string{}
	for _, it := range m.Items {
		if _, ok := seen[it.ReceptorPath]; ok {
			continue
		}
		seen[it.ReceptorPath] = struct{}{}
		ret = append(ret, it.ReceptorPath)
	}
	return ret
}

// Write writes items as a table in format f, header first.
func Write(w io.Writer, f Format, items []WorkItem) error {
	if err := f.Validate(); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.Comma = f.Delimiter
	if err := cw.Write(f.Columns.Header()); err != nil {
		return err
	}
	for _, it := range items {
		var row []string
		if f.Columns == WithoutComplexName {
			row = []string{it.ReceptorPath, it.LigandPath}
		} else {
			row = []string{it.ComplexName, it.ReceptorPath, it.LigandPath}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates (or truncates) a manifest file at path.
func WriteFile(path string, f Format, items []WorkItem) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0644))
	if err != nil {
		return err
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	if err := Write(bw, f, items); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return file.Close()
}

// detect finds the delimiter and column positions from a header line.
func detect(headerLine string) (Format, map[string]int, bool) {
	headerLine = strings.TrimRight(headerLine, "\r\n")
	for _, d := range Delimiters {
		cols := strings.Split(headerLine, string(d))
		pos := map[string]int{}
		for i, c := range cols {
			pos[strings.TrimSpace(c)] = i
		}
		_, hasReceptor := pos[ColumnReceptor]
		_, hasLigand := pos[ColumnLigand]
		if !hasReceptor || !hasLigand {
			continue
		}
		columns := WithoutComplexName
		if _, ok := pos[ColumnComplexName]; ok {
			columns = WithComplexName
		}
		return Format{Delimiter: d, Columns: columns}, pos, true
	}
	return Format{}, nil, false
}

const byteOrderMark = "\ufeff"

// Read parses a manifest table.
//
// The delimiter and the header variant are detected from the header line.
// Columns may come in any order. When complex_name is missing, it is derived
// from ligand_description with ComplexNameOf.
func Read(r io.Reader) (Manifest, error) {
	br := bufio.NewReader(r)

	var header string
	for first := true; ; first = false {
		line, err := br.ReadString('\n')
		if first {
			// spreadsheets export tables with a byte order mark.
			line = strings.TrimPrefix(line, byteOrderMark)
		}
		if strings.TrimSpace(line) != "" {
			header = line
			break
		}
		if err == io.EOF {
			return Manifest{}, fmt.Errorf("%w: empty table", ErrMalformed)
		}
		if err != nil {
			return Manifest{}, err
		}
	}

	format, pos, ok := detect(header)
	if !ok {
		return Manifest{}, fmt.Errorf(
			"%w: header should have %s and %s: %q",
			ErrMalformed, ColumnReceptor, ColumnLigand, strings.TrimSpace(header),
		)
	}

	cr := csv.NewReader(br)
	cr.Comma = format.Delimiter
	cr.FieldsPerRecord = len(strings.Split(strings.TrimRight(header, "\r\n"), string(format.Delimiter)))
	cr.ReuseRecord = true

	items := []WorkItem{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		it := WorkItem{
			ReceptorPath: strings.TrimSpace(rec[pos[ColumnReceptor]]),
			LigandPath:   strings.TrimSpace(rec[pos[ColumnLigand]]),
		}
		if i, ok := pos[ColumnComplexName]; ok {
			it.ComplexName = strings.TrimSpace(rec[i])
		} else {
			it.ComplexName = ComplexNameOf(it.LigandPath)
		}
		items = append(items, it)
	}

	return Manifest{Format: format, Items: items}, nil
}

// ReadFile reads a manifest file.
func ReadFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()

	m, err := Read(f)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
