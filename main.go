package main

import (
	"os"

	"gitevents/internal"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		internal.NewLogger("cli").WithError(err).Error("command failed")
		os.Exit(1)
	}
}
