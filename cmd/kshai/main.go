package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/doeshing/kshai/internal/app"
	"github.com/doeshing/kshai/internal/infrastructure/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	// SIGINT is handled per turn by the chat loop.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	container, err := app.BuildContainer(ctx, app.Options{Verbose: isVerbose()})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer func() {
		if err := container.Close(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintln(os.Stderr, "warning:", err)
		}
	}()

	if err := cli.NewRootCmd(container).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func isVerbose() bool {
	v := os.Getenv("KSHAI_DEBUG")
	return v == "1" || strings.EqualFold(v, "true")
}
