package main

import (
	"os"

	"github.com/osteele/slurm-watcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
