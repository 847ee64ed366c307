package main

import (
	"log/slog"
	"os"

	"receipt-overseer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		slog.Error("receipt-overseer failed", "error", err)
		os.Exit(1)
	}
}
