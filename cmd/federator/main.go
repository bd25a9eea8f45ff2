package main

import (
	"log"
	"os"

	"github.com/andywolf/federator/internal/cli"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := cli.Execute(); err != nil {
		log.Printf("federator exited with error: %v", err)
		os.Exit(1)
	}
}
