// Command prompta runs YAML prompt recipes against an OpenAI-compatible
// completion API and prints the parsed content blocks.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	if err := newApp(nil).rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
