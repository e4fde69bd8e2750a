package papp

import (
	"context"
	"log/slog"
)

type app struct {
	di *dependencyInjector
}

func New(ctx context.Context) *app {
	return &app{di: newDI()}
}

func (a *app) Run(ctx context.Context) error {
	a.di.Logger()

	c := a.di.Consumer(ctx)
	slog.Info("processor starting...")

	defer c.Stop(ctx)
	if err := c.Run(ctx); err != nil {
		return err
	}

	c.StartCleanup(ctx)
	slog.Info("cleanup running...")

	<-ctx.Done()

	slog.Info("processor shutting down...")
	return nil
}
