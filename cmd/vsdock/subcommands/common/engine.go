package common

import (
	"log"

	"github.com/vsdock/vsdock/pkg/prompt"
	"github.com/vsdock/vsdock/pkg/recovery"
	"github.com/youta-t/flarc"
)

// Engine makes a recovery engine asking questions on the terminal of cl.
func Engine[T any](logger *log.Logger, env Env, cl flarc.Commandline[T]) *recovery.Engine {
	terminal := prompt.NewTerminal(cl.Stdin(), cl.Stderr())
	return &recovery.Engine{
		Config:     env.Config,
		Schedulers: env.Backends.Scheduler,
		Confirmer:  terminal,
		Asker:      terminal,
		Logger:     logger,
	}
}
