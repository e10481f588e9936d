package main

import (
	"os"

	textgencmder "github.com/papercomputeco/textgen/cmd/textgen"
)

func main() {
	cmd := textgencmder.NewTextgenCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
