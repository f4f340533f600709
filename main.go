package main

import (
	"github.com/sidkik/aethersync/cmd"
	"github.com/sidkik/aethersync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
