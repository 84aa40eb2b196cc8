package main

import (
	"fmt"
	"os"

	"github.com/rony4d/go-alligator/cmd/alligator/launcher"
)

func main() {

	// Gather the full list of command-line arguments
	arguments := os.Args

	if err := launcher.Launch(arguments); err != nil {

		// Report the issue to stderr so the user sees it
		fmt.Fprintln(os.Stderr, "Error:", err)

		// Exit with a non-zero status code to indicate failure
		os.Exit(1)
	}

}
