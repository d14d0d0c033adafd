package manifest_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vsdock/vsdock/pkg/cmp"
	"github.com/vsdock/vsdock/pkg/manifest"
	"github.com/vsdock/vsdock/pkg/utils/try"
)

func TestComplexNameOf(t *testing.T) {
	for ligand, expected := range map[string]string{
		"ligands/ZINC0001.sdf":    "ZINC0001",
		"/abs/ZINC0002.min.mol2":  "ZINC0002",
		"noext":                   "noext",
		"dir.with.dot/ZINC3.sdf":  "ZINC3",
		"CCO":                     "CCO",
		"ligands/aspirin_v2.mol2": "aspirin_v2",
	} {
		if actual := manifest.ComplexNameOf(ligand); actual != expected {
			t.Errorf("ComplexNameOf(%q) = %q, expected %q", ligand, actual, expected)
		}
	}
}

func TestWriteThenRead(t *testing.T) {
	items := []manifest.WorkItem{
		manifest.NewWorkItem("/data/receptor.pdb", "/data/ligands/A.sdf"),
		manifest.NewWorkItem("/data/receptor.pdb", "/data/ligands/B.sdf"),
		manifest.NewWorkItem("/data/other.pdb", "/data/ligands/C.mol2"),
	}

	for name, format := range map[string]manifest.Format{
		"semicolon with complex name": {Delimiter: ';', Columns: manifest.WithComplexName},
		"comma without complex name":  {Delimiter: ',', Columns: manifest.WithoutComplexName},
		"tab with complex name":       {Delimiter: '\t', Columns: manifest.WithComplexName},
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "job_csv_1.csv")
			if err := manifest.WriteFile(path, format, items); err != nil {
				t.Fatal(err)
			}

			actual := try.To(manifest.ReadFile(path)).OrFatal(t)
			if actual.Format != format {
				t.Errorf("format: actual=%+v, expected=%+v", actual.Format, format)
			}
			if !cmp.SliceEq(actual.Items, items) {
				t.Errorf(
					"items:\n===actual===\n%+v\n===expected===\n%+v",
					actual.Items, items,
				)
			}
		})
	}
}

func TestWrite_Header(t *testing.T) {
	sb := new(strings.Builder)
	err := manifest.Write(sb, manifest.DefaultFormat, []manifest.WorkItem{
		{ComplexName: "A", ReceptorPath: "r.pdb", LigandPath: "A.sdf"},
	})
	if err != nil {
		t.Fatal(err)
	}
	expected := "complex_name;protein_path;ligand_description\nA;r.pdb;A.sdf\n"
	if sb.String() != expected {
		t.Errorf("written:\n===actual===\n%s\n===expected===\n%s", sb.String(), expected)
	}
}

func TestRead(t *testing.T) {
	type Then struct {
		Format manifest.Format
		Items  []manifest.WorkItem
		Err    error
	}

	theory := func(content string, then Then) func(*testing.T) {
		return func(t *testing.T) {
			actual, err := manifest.Read(strings.NewReader(content))
			if then.Err != nil {
				if !errors.Is(err, then.Err) {
					t.Fatalf("expected error %v, but got %v", then.Err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}
			if actual.Format != then.Format {
				t.Errorf("format: actual=%+v, expected=%+v", actual.Format, then.Format)
			}
			if !cmp.SliceEq(actual.Items, then.Items) {
				t.Errorf(
					"items:\n===actual===\n%+v\n===expected===\n%+v",
					actual.Items, then.Items,
				)
			}
		}
	}

	t.Run("columns in any order", theory(
		"ligand_description,complex_name,protein_path\nl/A.sdf,cA,r.pdb\n",
		Then{
			Format: manifest.Format{Delimiter: ',', Columns: manifest.WithComplexName},
			Items:  []manifest.WorkItem{{ComplexName: "cA", ReceptorPath: "r.pdb", LigandPath: "l/A.sdf"}},
		},
	))
	t.Run("complex name is derived when missing", theory(
		"protein_path;ligand_description\r\nr.pdb;l/B.mol2\r\n",
		Then{
			Format: manifest.Format{Delimiter: ';', Columns: manifest.WithoutComplexName},
			Items:  []manifest.WorkItem{{ComplexName: "B", ReceptorPath: "r.pdb", LigandPath: "l/B.mol2"}},
		},
	))
	t.Run("leading blank lines and blank rows are skipped", theory(
		"\n\ncomplex_name\tprotein_path\tligand_description\nA\tr.pdb\tA.sdf\n\nB\tr.pdb\tB.sdf\n",
		Then{
			Format: manifest.Format{Delimiter: '\t', Columns: manifest.WithComplexName},
			Items: []manifest.WorkItem{
				{ComplexName: "A", ReceptorPath: "r.pdb", LigandPath: "A.sdf"},
				{ComplexName: "B", ReceptorPath: "r.pdb", LigandPath: "B.sdf"},
			},
		},
	))
	t.Run("header with a byte order mark", theory(
		"\ufeffcomplex_name,protein_path,ligand_description\nmyname,r.pdb,lig/ZINC1.sdf\n",
		Then{
			Format: manifest.Format{Delimiter: ',', Columns: manifest.WithComplexName},
			Items:  []manifest.WorkItem{{ComplexName: "myname", ReceptorPath: "r.pdb", LigandPath: "lig/ZINC1.sdf"}},
		},
	))
	t.Run("header only", theory(
		"complex_name;protein_path;ligand_description\n",
		Then{
			Format: manifest.DefaultFormat,
			Items:  []manifest.WorkItem{},
		},
	))
	t.Run("empty table", theory("", Then{Err: manifest.ErrMalformed}))
	t.Run("unknown header", theory("name;receptor;ligand\na;b;c\n", Then{Err: manifest.ErrMalformed}))
	t.Run("row with missing field", theory(
		"complex_name;protein_path;ligand_description\nA;r.pdb\n",
		Then{Err: manifest.ErrMalformed},
	))
}

func TestManifest_Receptors(t *testing.T) {
	m := manifest.Manifest{Items: []manifest.WorkItem{
		{ReceptorPath: "b.pdb"}, {ReceptorPath: "a.pdb"}, {ReceptorPath: "b.pdb"},
	}}
	if actual := m.Receptors(); !cmp.SliceEq(actual, []string{"b.pdb", "a.pdb"}) {
		t.Errorf("receptors: %v", actual)
	}
}

func TestParseDelimiter(t *testing.T) {
	for in, expected := range map[string]rune{";": ';', ",": ',', "tab": '\t', `\t`: '\t'} {
		if actual := try.To(manifest.ParseDelimiter(in)).OrFatal(t); actual != expected {
			t.Errorf("ParseDelimiter(%q) = %q, expected %q", in, actual, expected)
		}
	}
	if _, err := manifest.ParseDelimiter("|"); !errors.Is(err, manifest.ErrMalformed) {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (manifest.Format{Delimiter: '|'}).Validate(); !errors.Is(err, manifest.ErrMalformed) {
		t.Errorf("unexpected error: %v", err)
	}
}
