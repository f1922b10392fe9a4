package main

import (
	"os"

	"bibo/cmd/bibo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
