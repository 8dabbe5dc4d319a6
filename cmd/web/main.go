package main

import (
	"log"
	"os"

	"olympiad/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("olympiad: %v", err)
		os.Exit(1)
	}
}
