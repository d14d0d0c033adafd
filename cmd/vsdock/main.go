package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"

	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/collect"
	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/common"
	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/relaunch"
	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/status"
	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/submit"
	"github.com/vsdock/vsdock/cmd/vsdock/subcommands/version"
	"github.com/vsdock/vsdock/pkg/utils/logger"
	"github.com/vsdock/vsdock/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func main() {
	name := path.Base(os.Args[0])
	logger := logger.Default()
	logger.SetPrefix(fmt.Sprintf("[%s] ", name))

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	cf := try.To(common.Flags(".")).OrFatal(logger)
	submit := try.To(submit.New()).OrFatal(logger)
	relaunch := try.To(relaunch.New()).OrFatal(logger)
	status := try.To(status.New()).OrFatal(logger)
	collect := try.To(collect.New()).OrFatal(logger)
	version := try.To(version.New()).OrFatal(logger)

	vsdock := try.To(
		flarc.NewCommandGroup(
			"Virtual screening by docking, split into jobs of a scheduler",
			cf,
			flarc.WithSubcommand("submit", submit),
			flarc.WithSubcommand("relaunch", relaunch),
			flarc.WithSubcommand("status", status),
			flarc.WithSubcommand("collect", collect),
			flarc.WithSubcommand("version", version),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, vsdock, flarc.WithHelp(true)))
}
