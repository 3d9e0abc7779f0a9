package main

import (
	"os"

	"fleetops/cmd/fleetctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
