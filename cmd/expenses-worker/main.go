package main

import (
	"os"

	"expenses/internal/commands"
)

func main() {
	if err := commands.NewWorkerRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
