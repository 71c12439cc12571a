package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "provider-sim",
		Short:        "Simulate payment provider callbacks against the leaderboard",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(listenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
