package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr, nil).Execute(); err != nil {
		os.Exit(1)
	}
}
