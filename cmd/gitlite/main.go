// Command gitlite is a pure Go git client implementing the object
// store, pack transport, and clone parts of git, without a working
// tree. See git.go for the actual CLI wiring.
package main

import (
	"fmt"
	"os"

	"github.com/nivlgo/gitlite/internal/env"
)

func main() {
	pwd, err := os.Getwd()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	root := newRootCmd(pwd, env.NewFromOS())
	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
