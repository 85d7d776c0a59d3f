package main

import (
	"github.com/tebeka/atexit"

	"github.com/cs244-team/sidekick/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		atexit.Fatal(err)
	}
	atexit.Exit(0)
}
