// Command aigw is the entry point for the Talent Ops AI gateway.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// chatbot query, context-button, and document ingestion endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/talentops/ai-gateway/cmd/aigw/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
