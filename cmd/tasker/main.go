package main

import (
	"github.com/mtwebit/tasker/pkg/cli/cmd"
)

func main() {
	cmd.Execute()
}
