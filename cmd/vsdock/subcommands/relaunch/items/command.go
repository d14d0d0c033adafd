package items

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/common"
	"github.com/vsdock/vsdock/pkg/partition"
	"github.com/vsdock/vsdock/pkg/recovery"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Jobs int `flag:"jobs" alias:"n" help:"Number of jobs failed items are split into. Asked when not given."`
}

const ARG_RUN = "RUN"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Resubmit work items which have no outputs.",
		Flag{},
		flarc.Args{
			{
				Name: ARG_RUN, Required: true,
				Help: "Run directory.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Find work items of the run which have no outputs in its molecules directory,
and submit them again as new jobs in "RUN/redo".

Jobs are submitted with the same parameters as the first job of the run.
Outputs go to the molecules directory of the run.
If "RUN/redo" exists, you are asked whether to remove it.
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
	jobs := cl.Flags().Jobs
	if jobs < 0 {
		return errors.Join(flarc.ErrUsage, fmt.Errorf("--jobs should be positive: %d", jobs))
	}

	engine := common.Engine(logger, env, cl)
	result, err := engine.RelaunchItems(ctx, cl.Args()[ARG_RUN][0], jobs)
	if err != nil {
		if errors.Is(err, recovery.ErrNotLaunched) {
			logger.Println(err)
			return nil
		}
		if errors.Is(err, partition.ErrInvalidChunkCount) {
			return errors.Join(flarc.ErrUsage, err)
		}
		return err
	}

	w := cl.Stdout()
	if _, err := fmt.Fprintf(
		w, "items: %d succeeded, %d failed\n",
		len(result.Outcome.Succeeded), len(result.Outcome.Failed),
	); err != nil {
		return err
	}
	for _, j := range result.Jobs {
		if _, err := fmt.Fprintf(w, "  #%d\t%s\t%s\n", j.Index, j.JobID, j.Log); err != nil {
			return err
		}
	}
	return nil
}
