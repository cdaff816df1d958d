package main

import (
	"log"

	"go-mailflow-dashboard/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).Execute(); err != nil {
		log.Fatalf("mailflow: %v", err)
	}
}
