package recovery_test

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/vsdock/vsdock/pkg/cmp"
	"github.com/vsdock/vsdock/pkg/manifest"
	"github.com/vsdock/vsdock/pkg/recovery"
)

const sentinel = "Calculations finished after "

func table(rows ...string) *fstest.MapFile {
	return &fstest.MapFile{
		Data: []byte(strings.Join(append([]string{"complex_name;protein_path;ligand_description"}, rows...), "\n") + "\n"),
	}
}

func file(content string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(content)}
}

func complexNames(items []manifest.WorkItem) []string {
	ret := make([]string, len(items))
	for i, it := range items {
		ret[i] = it.ComplexName
	}
	return ret
}

func TestOutputName(t *testing.T) {
	for _, tc := range []struct {
		filename string
		prefix   string
		expected string
	}{
		{filename: "A_rank1.sdf", prefix: "VS_DD", expected: "A"},
		{filename: "molecules/A_rank1_confidence-0.52.sdf", prefix: "VS_DD", expected: "A"},
		{filename: "VS_DD_ZINC01_rank3.sdf", prefix: "VS_DD", expected: "ZINC01"},
		{filename: "VS_DD_screen_VS_DD_c1_rank1.sdf", prefix: "VS_DD", expected: "c1"},
		{filename: "c1.sdf", prefix: "VS_DD", expected: "c1"},
		{filename: "VS_DD_c1_rank1.sdf", prefix: "", expected: "VS_DD_c1"},
	} {
		if actual := recovery.OutputName(tc.filename, tc.prefix); actual != tc.expected {
			t.Errorf("OutputName(%q, %q) = %q, expected %q", tc.filename, tc.prefix, actual, tc.expected)
		}
	}
}

func TestClassifyItems(t *testing.T) {
	t.Run("items without outputs are failed", func(t *testing.T) {
		// Given
		fsys := fstest.MapFS{
			"csvs/job_csv_1.csv":              table("A;r.pdb;l/a.sdf", "B;r.pdb;l/b.sdf"),
			"csvs/job_csv_2.csv":              table("C;r.pdb;l/c.sdf", "D;r.pdb;l/d.sdf"),
			"csvs/notes.txt":                  file("not a manifest"),
			"molecules/A_rank1.sdf":           file("A"),
			"molecules/A_rank2.sdf":           file("A"),
			"molecules/6w70/C_rank1.SDF":      file("C"),
			"molecules/6w70/deep/D_rank1.sdf": file("too deep"),
			"molecules/B_rank1.pdb":           file("not an output"),
			"molecules/Z_rank1.sdf":           file("Z"),
		}

		// When
		actual, err := recovery.ClassifyItems(fsys, ".sdf", "VS_DD")

		// Then
		if err != nil {
			t.Fatal(err)
		}
		if !cmp.SliceEq(complexNames(actual.Items), []string{"A", "B", "C", "D"}) {
			t.Errorf("items: %v", complexNames(actual.Items))
		}
		if !cmp.SliceEq(complexNames(actual.Failed), []string{"B", "D"}) {
			t.Errorf("failed: %v", complexNames(actual.Failed))
		}
		if !cmp.SliceEq(actual.Succeeded, []string{"A", "C"}) {
			t.Errorf("succeeded: %v", actual.Succeeded)
		}
		if !cmp.SliceEq(actual.Unknown, []string{"Z"}) {
			t.Errorf("unknown: %v", actual.Unknown)
		}
		if actual.Failed[0].LigandPath != "l/b.sdf" || actual.Failed[0].ReceptorPath != "r.pdb" {
			t.Errorf("failed item: %+v", actual.Failed[0])
		}
	})

	t.Run("a complex name appearing twice is one item", func(t *testing.T) {
		fsys := fstest.MapFS{
			"csvs/job_csv_1.csv": table("A;r.pdb;l/a.sdf"),
			"csvs/job_csv_2.csv": table("A;s.pdb;l/a.sdf"),
		}
		actual, err := recovery.ClassifyItems(fsys, ".sdf", "VS_DD")
		if err != nil {
			t.Fatal(err)
		}
		if len(actual.Items) != 1 || actual.Items[0].ReceptorPath != "s.pdb" {
			t.Errorf("items: %+v", actual.Items)
		}
		if len(actual.Succeeded) != 0 || len(actual.Failed) != 1 {
			t.Errorf("outcome: %+v", actual)
		}
	})

	t.Run("it fails when there are no manifests", func(t *testing.T) {
		fsys := fstest.MapFS{
			"molecules/A_rank1.sdf": file("A"),
		}
		if _, err := recovery.ClassifyItems(fsys, ".sdf", "VS_DD"); !errors.Is(err, recovery.ErrNoManifests) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it fails for a malformed manifest", func(t *testing.T) {
		fsys := fstest.MapFS{
			"csvs/job_csv_1.csv": file("protein;ligand\nr.pdb;l.sdf\n"),
		}
		if _, err := recovery.ClassifyItems(fsys, ".sdf", "VS_DD"); !errors.Is(err, manifest.ErrMalformed) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestClassifyJobs(t *testing.T) {
	type Then struct {
		Finished   []int
		Unfinished []int
		JobIDs     map[int][]string
	}

	theory := func(fsys fstest.MapFS, then Then) func(*testing.T) {
		return func(t *testing.T) {
			actual, err := recovery.ClassifyJobs(fsys, sentinel)
			if err != nil {
				t.Fatal(err)
			}
			if !cmp.SliceEq(actual.Finished, then.Finished) {
				t.Errorf("finished: actual=%v, expected=%v", actual.Finished, then.Finished)
			}
			if !cmp.SliceEq(actual.Unfinished, then.Unfinished) {
				t.Errorf("unfinished: actual=%v, expected=%v", actual.Unfinished, then.Unfinished)
			}
			if actual.Completed() != (len(then.Unfinished) == 0) {
				t.Errorf("completed: %v", actual.Completed())
			}
			if len(actual.JobIDs) != len(then.JobIDs) {
				t.Errorf("job ids: actual=%v, expected=%v", actual.JobIDs, then.JobIDs)
			}
			for i, ids := range then.JobIDs {
				if !cmp.SliceEq(actual.JobIDs[i], ids) {
					t.Errorf("job ids of #%d: actual=%v, expected=%v", i, actual.JobIDs[i], ids)
				}
			}
		}
	}

	t.Run("jobs whose log has the sentinel are finished", theory(
		fstest.MapFS{
			"jobs/job_1.sh":           file("sbatch"),
			"jobs/job_1.yaml":         file("index: 1"),
			"jobs/job_2.sh":           file("sbatch"),
			"jobs/job_3.sh":           file("sbatch"),
			"jobs_out/job_1_1001.out": file("loading\n" + sentinel + "12.3 seconds\n"),
			"jobs_out/job_2_1002.out": file("loading\nCUDA out of memory\n"),
			"jobs_out/job_3_1003.out": file(sentinel + "1.0 seconds"),
		},
		Then{
			Finished:   []int{1, 3},
			Unfinished: []int{2},
			JobIDs:     map[int][]string{1: {"1001"}, 2: {"1002"}, 3: {"1003"}},
		},
	))

	t.Run("a job finished in any of its attempts is finished", theory(
		fstest.MapFS{
			"jobs/job_1.sh":           file("sbatch"),
			"jobs_out/job_1_1001.out": file("killed"),
			"jobs_out/job_1_1004.out": file(sentinel + "3.0 seconds"),
		},
		Then{
			Finished:   []int{1},
			Unfinished: []int{},
			JobIDs:     map[int][]string{1: {"1001", "1004"}},
		},
	))

	t.Run("jobs without logs are unfinished", theory(
		fstest.MapFS{
			"jobs/job_1.sh":      file("bash"),
			"jobs/job_2.sh":      file("bash"),
			"jobs_out/job_1.out": file(sentinel + "3.0 seconds"),
		},
		Then{
			Finished:   []int{1},
			Unfinished: []int{2},
			JobIDs:     map[int][]string{},
		},
	))

	t.Run("redo jobs are classified by their indices", theory(
		fstest.MapFS{
			"jobs/redo_job_1.sh":           file("sbatch"),
			"jobs/redo_job_2.sh":           file("sbatch"),
			"jobs_out/redo_job_2_2002.out": file(sentinel + "3.0 seconds"),
		},
		Then{
			Finished:   []int{2},
			Unfinished: []int{1},
			JobIDs:     map[int][]string{2: {"2002"}},
		},
	))

	t.Run("the sentinel across a read boundary is found", theory(
		fstest.MapFS{
			"jobs/job_1.sh": file("sbatch"),
			"jobs_out/job_1_1001.out": file(
				strings.Repeat("x", 64*1024-10) + sentinel + "3.0 seconds",
			),
		},
		Then{
			Finished:   []int{1},
			Unfinished: []int{},
			JobIDs:     map[int][]string{1: {"1001"}},
		},
	))

	t.Run("an empty run has nothing to do", theory(
		fstest.MapFS{},
		Then{Finished: []int{}, Unfinished: []int{}, JobIDs: map[int][]string{}},
	))
}
