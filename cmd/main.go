package main

import (
	"os"

	"dialogue-lesson-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
