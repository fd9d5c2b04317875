package main

import "github.com/spaghettifunk/anima-rendergraph/cmd/anima/internal/command"

func main() {
	command.Execute()
}
