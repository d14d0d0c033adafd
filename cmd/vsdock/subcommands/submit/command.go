package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/common"
	"github.com/vsdock/vsdock/pkg/director"
	"github.com/vsdock/vsdock/pkg/embedding"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/partition"
	"github.com/vsdock/vsdock/pkg/prompt"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Receptor string `flag:"receptor" alias:"r" metavar:"path/to/receptor.pdb" help:"Receptor docked with every ligand in --ligands."`
	Ligands  string `flag:"ligands" alias:"l" metavar:"path/to/ligands/" help:"Directory of ligand files to be docked with --receptor."`
	Manifest string `flag:"manifest" alias:"m" metavar:"path/to/table.csv" help:"Table of complex_name, protein_path and ligand_description. When given, --receptor and --ligands are ignored."`

	Jobs int `flag:"jobs" alias:"n" help:"Number of jobs the work is split into."`

	GPU    bool   `flag:"gpu" alias:"g" help:"Run jobs on GPUs."`
	Cores  int    `flag:"cores" alias:"c" help:"CPU cores per job. 1 with --gpu, 4 otherwise, when not given."`
	Memory string `flag:"memory" metavar:"4G" help:"Memory per job."`
	Time   string `flag:"time" alias:"t" metavar:"[DAYS-]HH:MM:SS" help:"Wall-clock time limit per job."`
	Queue  string `flag:"queue" alias:"p" metavar:"PARTITION" help:"Queue (partition) jobs are submitted to."`

	Samples             int  `flag:"samples" alias:"s" help:"Number of poses sampled per complex."`
	RemoveHs            bool `flag:"remove-hs" help:"Remove hydrogens from output molecules."`
	KeepLocalStructures bool `flag:"keep-local-structures" help:"Keep local structures of ligands."`
	KeepCache           bool `flag:"keep-cache" help:"Keep caches of the docking executable."`

	NoScheduler     bool   `flag:"no-scheduler" help:"Run the work in place, without a scheduler. The work is not split."`
	InferenceConfig string `flag:"inference-config" metavar:"path/to/args.yaml" help:"Inference configuration of the docking executable. The configured one is used when not given."`
}

const ARG_OUTPUT = "OUTPUT"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Split docking work into jobs and submit them.",
		Flag{
			Jobs:    1,
			Memory:  director.DefaultMemory,
			Samples: 1,
		},
		flarc.Args{
			{
				Name: ARG_OUTPUT, Required: true,
				Help: "Name of the run. The run directory is made beside it, named after it and the date.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Split docking work into jobs and submit them to the scheduler.

Work is given in one of two ways:

- a receptor (--receptor) and a directory of ligands (--ligands), or
- a table (--manifest) with columns complex_name, protein_path and ligand_description.

With a receptor, its embedding is computed before jobs are submitted, unless it is cached.

A run directory named "<prefix>_<OUTPUT>_<year>_<month>_<day>" is made beside OUTPUT.
If it exists, you are asked whether to remove it.
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	env common.Env,
	cl flarc.Commandline[Flag],
	_ []any,
) error {
	flags := cl.Flags()
	mode := env.Config.Scheduler
	if flags.NoScheduler {
		mode = jobspec.ModeLocal
	}

	terminal := prompt.NewTerminal(cl.Stdin(), cl.Stderr())

	sched, err := env.Backends.Scheduler(mode)
	if err != nil {
		return err
	}
	preflight, err := env.Backends.Preflight(mode, terminal)
	if err != nil {
		return err
	}
	d := &director.Director{
		Config:     env.Config,
		Scheduler:  sched,
		Embeddings: embedding.NewCache(env.Config.Embedding.CacheDir, logger),
		Confirmer:  terminal,
		Preflight:  preflight,
		Logger:     logger,
	}
	if flags.Manifest == "" {
		if d.Embedder, err = env.Backends.Embedder(mode, flags.GPU); err != nil {
			return err
		}
	}

	result, err := d.Submit(ctx, director.Request{
		Output:              cl.Args()[ARG_OUTPUT][0],
		Receptor:            flags.Receptor,
		Ligands:             flags.Ligands,
		Manifest:            flags.Manifest,
		Jobs:                flags.Jobs,
		GPU:                 flags.GPU,
		Cores:               flags.Cores,
		Memory:              flags.Memory,
		Time:                flags.Time,
		Queue:               flags.Queue,
		Samples:             flags.Samples,
		RemoveHs:            flags.RemoveHs,
		KeepLocalStructures: flags.KeepLocalStructures,
		KeepCache:           flags.KeepCache,
		InferenceConfig:     flags.InferenceConfig,
	})
	if err != nil {
		if errors.Is(err, director.ErrInvalidInput) || errors.Is(err, partition.ErrInvalidChunkCount) {
			return errors.Join(flarc.ErrUsage, err)
		}
		return err
	}
	return Print(cl.Stdout(), result)
}

// Print writes what has been submitted.
func Print(w io.Writer, result director.Result) error {
	if _, err := fmt.Fprintf(
		w, "run: %s\nitems: %d\njobs: %d\n", result.Layout.Root, result.Items, len(result.Jobs),
	); err != nil {
		return err
	}
	for _, j := range result.Jobs {
		id := j.JobID
		if id == "" {
			id = "-"
		}
		if _, err := fmt.Fprintf(w, "  #%d\t%s\t%s\n", j.Index, id, j.Log); err != nil {
			return err
		}
	}
	return nil
}
