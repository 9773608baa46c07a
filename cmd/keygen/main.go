package main

import (
	"fmt"
	"os"

	"github.com/promptmeter/spendgate/internal/spendlogs"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/keygen/main.go <api-key>")
		fmt.Println("Generates the SHA-256 hash of a key, as stored in spend log records")
		fmt.Println("and as accepted for spend_logs.master_key in config.yaml")
		os.Exit(1)
	}

	apiKey := os.Args[1]
	keyHash := spendlogs.HashToken(apiKey)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("  spend_logs:\n")
	fmt.Printf("    master_key: \"%s\"\n", keyHash)
}
