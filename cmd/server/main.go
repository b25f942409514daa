package main

import (
	"context"
	"os"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	setupLogging()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
