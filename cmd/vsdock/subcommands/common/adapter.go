package common

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vsdock/vsdock/pkg/configs"
	kpath "github.com/vsdock/vsdock/pkg/utils/path"
	"github.com/youta-t/flarc"
)

// Env is what every task runs with.
type Env struct {
	Config   *configs.Config
	Backends Backends
}

type TaskWithCommonFlag[T any] func(
	ctx context.Context,
	logger *log.Logger,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTaskWithCommonFlag[T any](task TaskWithCommonFlag[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		logger := log.New(cl.Stderr(), "", log.LstdFlags)
		logger.SetPrefix(fmt.Sprintf("[%s] ", cl.Fullname()))

		return task(ctx, logger, commonFlag, cl, newpos)
	}
}

type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	env Env,
	cl flarc.Commandline[T],
	params []any,
) error

// NewTask loads the configuration and prepares backends for task.
func NewTask[T any](task Task[T]) flarc.Task[T] {
	return NewTaskWithCommonFlag(func(
		ctx context.Context,
		logger *log.Logger,
		commonFlag CommonFlags,
		cl flarc.Commandline[T],
		params []any,
	) error {
		path := commonFlag.ConfigFile
		if path != "" {
			resolved, err := kpath.Resolve(path)
			if err != nil {
				return err
			}
			path = resolved
		}
		conf, err := configs.Load(path)
		if err != nil {
			if errors.Is(err, configs.ErrConfigInvalid) {
				return errors.Join(flarc.ErrUsage, err)
			}
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		backends := NewBackends(conf, cl.Stdout(), cl.Stderr(), logger)
		return task(ctx, logger, Env{Config: conf, Backends: backends}, cl, params)
	})
}
