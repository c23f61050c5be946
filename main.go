package main

import (
	"github.com/ColonelBlimp/cwlisten/cmd"
	"github.com/ColonelBlimp/cwlisten/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
