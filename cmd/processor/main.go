package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/you-humble/mybook/internal/papp"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	a := papp.New(ctx)
	if err := a.Run(ctx); err != nil {
		log.Fatalln("processor:", err)
	}
}
