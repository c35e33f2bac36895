package main

import (
	"os"

	"github.com/sriscode/MobileArc/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
