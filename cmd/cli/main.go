package main

import "github.com/dumpster/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
