package main

import (
	"os"

	"github.com/florean/agora/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
