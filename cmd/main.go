package main

import (
	"github.com/millpond-labs/millpond/cmd/cli"
)

func main() {
	cli.Execute()
}
