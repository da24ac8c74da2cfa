package main

import (
	"context"
	"os"

	"lorairo/internal/memory"
	"lorairo/internal/startup"

	"github.com/charmbracelet/fang"
)

func main() {
	memory.ConfigureFromEnv()
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(startup.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
