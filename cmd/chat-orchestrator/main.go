package main

import (
	"log"

	"github.com/psds-microservice/chat-orchestrator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
