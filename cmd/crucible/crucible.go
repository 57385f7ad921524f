package main

import (
	"github.com/Mootikins/crucible/internal/crucible/cmd"
)

func main() {
	cmd.Execute()
}
