package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/temirov/flux-validator/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the flux-validator command-line application.
func main() {
	executionError := cli.Execute()
	if executionError == nil {
		return
	}

	var exitError cli.ExitError
	if errors.As(executionError, &exitError) {
		if exitError.Err != nil {
			fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, exitError.Err)
		}
		os.Exit(exitError.Code)
	}

	fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
	os.Exit(cli.ExitCodeFatal)
}
