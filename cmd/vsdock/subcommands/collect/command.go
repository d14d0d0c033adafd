package collect

import (
	"context"
	"fmt"
	"log"

	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/common"
	"github.com/youta-t/flarc"
)

const ARG_RUN = "RUN"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Copy logs of finished Kubernetes Jobs into a run.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_RUN, Required: true,
				Help: "Run directory.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Copy logs of finished Kubernetes Jobs of the run (and of "RUN/redo") into
their placeholders in "jobs_out", so that status and relaunch can read them.

Logs of Jobs still running are left empty. Jobs of other schedulers are skipped.
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	env common.Env,
	cl flarc.Commandline[struct{}],
	_ []any,
) error {
	fetcher, err := env.Backends.LogFetcher()
	if err != nil {
		return err
	}
	engine := common.Engine(logger, env, cl)
	collected, err := engine.CollectRun(ctx, cl.Args()[ARG_RUN][0], fetcher)
	fmt.Fprintf(cl.Stdout(), "collected: %d logs\n", collected)
	return err
}
