package main

import (
	"log"

	"github.com/promptd/promptd/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ promptd failed to start: %v", err)
	}
}
