package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"
)

type Entrypoint interface {
	io.Closer
	Init(ctx context.Context) error
	Run(ctx context.Context) error
}

// Run initialises e, runs it until it returns or a termination signal
// arrives, and then closes it. Close is never called before Run returns.
func Run(ctx context.Context, e Entrypoint) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := e.Init(ctx); err != nil {
		return errors.Wrap(err, "entrypoint init error")
	}

	eg, ctx := errgroup.WithContext(ctx)
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	runDone := make(chan struct{})

	eg.Go(func() error {
		defer close(runDone)
		defer stop()

		return e.Run(ctx)
	})

	// graceful shutdown, once Run has let go of what Close releases
	eg.Go(func() error {
		<-ctx.Done()
		<-runDone

		return e.Close()
	})

	if err := eg.Wait(); err != nil {
		fmt.Printf("app was shut down, reason: %s\n", err.Error())
		return err
	}

	return nil
}
