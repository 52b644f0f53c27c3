package main

import (
	"github.com/bryanchriswhite/framepoll/cmd/framepoll/commands"
)

func main() {
	commands.Execute()
}
