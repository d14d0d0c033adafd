package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/common"
	"github.com/vsdock/vsdock/pkg/recovery"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Redo bool `flag:"redo" help:"Relaunch jobs of the redo pass (RUN/redo) instead of the run itself."`
}

const ARG_RUN = "RUN"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Resubmit job scripts which have not finished.",
		Flag{},
		flarc.Args{
			{
				Name: ARG_RUN, Required: true,
				Help: "Run directory.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Find job scripts of the run whose logs do not tell they have finished,
and submit them again as they are.

Jobs which the scheduler still has, pending or running, are left alone.
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
	l, err := recovery.OpenRun(cl.Args()[ARG_RUN][0])
	if err != nil {
		return err
	}
	if cl.Flags().Redo {
		l = l.Redo()
		if _, err := os.Stat(l.Root); err != nil {
			return fmt.Errorf("no redo pass: %w", err)
		}
	}

	engine := common.Engine(logger, env, cl)
	result, err := engine.RelaunchJobs(ctx, l)
	if len(result.Outcome.Scripts) == 0 {
		return err
	}

	if werr := writeResult(cl.Stdout(), result); werr != nil {
		return errors.Join(err, werr)
	}
	return err
}

func writeResult(w io.Writer, result recovery.JobsRelaunch) error {
	if _, err := fmt.Fprintf(
		w, "jobs: %d finished, %d relaunched, %d still active\n",
		len(result.Outcome.Finished), len(result.Jobs), len(result.Active),
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
