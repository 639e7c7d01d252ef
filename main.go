package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"digitlotto/cmd"

	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		log.WithError(err).Error("digitlotto exited with error")
		stop()
		os.Exit(1)
	}
}
