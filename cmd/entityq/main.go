// Command entityq shows how entity comparisons in a YAML query document are lowered to
// primary-key comparisons.
//
// Usage:
//
//	entityq rewrite query.yaml --model model.yaml [--sql] [--emit]
//	entityq model --model model.yaml
package main

import (
	"fmt"
	"os"

	"github.com/nlstn/go-entityquery/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
