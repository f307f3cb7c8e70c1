package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ctagard/dap-exthost/internal/commands"
	"github.com/ctagard/dap-exthost/internal/logger"
)

const (
	errCommand = 1
	errSetup   = 2
)

func main() {
	log := logger.New("dap-exthost")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	root, err := commands.NewRootCmd(log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(errSetup)
	}

	err = root.ExecuteContext(ctx)
	stop()
	log.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errCommand)
	}
}
