package main

import "github.com/mcoot/stakegame/internal/cli"

func main() {
	cli.Execute()
}
