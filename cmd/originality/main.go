// originality ingests student submissions, extracts their text, scores it
// for originality and stores a report next to the original.
//
// Usage:
//
//	originality serve  [--config=<yaml>] [--env-file=<path>]
//	originality submit --course=<name> --assignment=<title> [--student=<name>] <file>...
//	originality fetch  <relative-path> [-o <file>]
//	originality mcp
//
// Every command reads its configuration from the environment (optionally
// preloaded from a .env file) on top of an optional YAML file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
