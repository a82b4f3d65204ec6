package main

import (
	"os"

	"github.com/cwbudde/algo-tab/internal/progress"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		progress.NewReporter(os.Stderr, false).Error(err)
		os.Exit(1)
	}
}
