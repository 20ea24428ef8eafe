package main

import (
	"os"

	"github.com/adamavenir/huddle/internal/command"
)

func main() {
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
