package main

import (
	"os"

	"github.com/alesut/pixel-agents/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
