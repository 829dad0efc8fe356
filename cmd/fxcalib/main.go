package main

import (
	"os"

	"github.com/rustyeddy/fxcalib/cmd/fxcalib/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
