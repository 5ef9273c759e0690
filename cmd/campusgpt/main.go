// campusgpt is a retrieval-grounded assistant for a university
// website: crawl, convert, index, serve.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/miabe-ai/campusgpt/internal/adapters/driving/cli"
)

func main() {
	// .env is optional; real deployments export the keys directly
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
