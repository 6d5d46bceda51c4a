package main

import (
	"os"

	"github.com/solatis/correlate/cmd/correlate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
