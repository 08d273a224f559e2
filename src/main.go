package main

import (
	"github.com/admi-n/poc-excavator/src/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		cmd.PrintFatal(err)
	}
}
