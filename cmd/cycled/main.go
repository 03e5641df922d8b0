package main

import (
	"os"

	"github.com/ipgold/cycleledger/cmd/cycled/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
