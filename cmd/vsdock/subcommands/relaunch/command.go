package relaunch

import (
	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/relaunch/items"
	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/relaunch/jobs"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	it, err := items.New()
	if err != nil {
		return nil, err
	}
	jb, err := jobs.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Resubmit what has not completed in a run.",
		struct{}{},
		flarc.WithSubcommand("items", it),
		flarc.WithSubcommand("jobs", jb),
	)
}
