package status

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/common"
	"github.com/vsdock/vsdock/pkg/jobspec"
	"github.com/vsdock/vsdock/pkg/recovery"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Wait     bool          `flag:"wait" alias:"w" help:"Wait until every job has finished."`
	Interval time.Duration `flag:"interval" metavar:"DURATION" help:"With --wait, how often the run is checked besides when logs change."`
}

const ARG_RUN = "RUN"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show which jobs and work items of a run have finished.",
		Flag{
			Wait:     false,
			Interval: 30 * time.Second,
		},
		flarc.Args{
			{
				Name: ARG_RUN, Required: true,
				Help: "Run directory.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Show which jobs of the run have finished, and which work items have outputs.
This command does not change the run.

With --wait, it waits until every job (including ones in "RUN/redo") has finished.
When the scheduler is kubernetes, logs of finished Jobs are collected while waiting.
If every unfinished job has ended without finishing (it has failed, or it was cancelled),
the command stops waiting and reports them. Relaunch them with "vsdock relaunch jobs".
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
	root := cl.Args()[ARG_RUN][0]
	engine := common.Engine(logger, env, cl)

	if !flags.Wait {
		report, err := engine.Status(root)
		if err != nil {
			return err
		}
		return report.Write(cl.Stdout())
	}

	if flags.Interval <= 0 {
		return errors.Join(flarc.ErrUsage, fmt.Errorf("--interval should be positive: %s", flags.Interval))
	}

	var refresh func(context.Context) error
	if env.Config.Scheduler == jobspec.ModeKubernetes {
		fetcher, err := env.Backends.LogFetcher()
		if err != nil {
			return err
		}
		refresh = func(ctx context.Context) error {
			_, err := engine.CollectRun(ctx, root, fetcher)
			return err
		}
	}

	report, err := engine.Wait(ctx, root, flags.Interval, refresh, func(r recovery.Report) {
		unfinished := len(r.Jobs.Unfinished)
		if r.Redo != nil {
			unfinished += len(r.Redo.Unfinished)
		}
		if unfinished != 0 {
			logger.Printf("waiting for %d jobs...", unfinished)
		}
	})
	if errors.Is(err, recovery.ErrJobsLost) {
		if werr := report.Write(cl.Stdout()); werr != nil {
			return errors.Join(err, werr)
		}
		return err
	}
	if err != nil {
		return err
	}
	return report.Write(cl.Stdout())
}
