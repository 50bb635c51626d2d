package main

import (
	"log"

	"deltacar/server/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("deltacar server failed: %v", err)
	}
}
