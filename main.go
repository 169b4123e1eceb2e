package main

import (
	"os"

	"github.com/glazeware/glaze/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
