package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"regime-trader/internal/cli"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
