package main

import (
	"os"

	"github.com/psantana5/ytconvert/cmd/convertd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
