package main

import (
	"os"

	"github.com/ssargent/pinkv/cmd/pinkv/cmd"
	"github.com/ssargent/pinkv/pkg/di"
)

func main() {
	// Initialize dependency injection container
	container := di.NewContainer()

	if err := cmd.NewRootCmd(container).Execute(); err != nil {
		os.Exit(1)
	}
}
