package main

import (
	"os"

	"github.com/TAMAKQR/KONTENTZAVOD/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
