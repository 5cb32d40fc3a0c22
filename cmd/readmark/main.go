package main

import (
	"fmt"
	"os"

	"github.com/csheth/readmark/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "readmark:", err)
		os.Exit(1)
	}
}
