package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"topicwire/cmd/handlers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := handlers.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
