// Command distill runs the book-distillation core's HTTP server and
// supporting CLI (config management, local DefraDB lifecycle). Grounded
// on the teacher's cmd/shelf/main.go: a manually-handled signal channel
// survives a second Ctrl+C instead of bypassing the shutdown chain the
// way signal.NotifyContext's single-shot cancellation would.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh // first signal: trigger graceful shutdown
		cancel()
		<-sigCh // second signal: force exit
		fmt.Fprintln(os.Stderr, "\nforced exit")
		os.Exit(1)
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
