package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/yndnr/forkhttpd/internal/cli/command"
	"github.com/yndnr/forkhttpd/internal/supervisor"
)

func main() {
	app := command.App()

	err := app.Run(os.Args)
	if err != nil && !errors.Is(err, supervisor.ErrDetached) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", app.Name, err)
	}
	os.Exit(command.ExitCode(err))
}
