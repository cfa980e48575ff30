package main

import (
	"fmt"
	"os"
)

func main() {
	a := newApp(defaultFactories(), os.Stdin, os.Stdout, os.Stderr)
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
