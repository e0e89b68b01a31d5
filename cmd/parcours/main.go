package main

import (
	"fmt"
	"os"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, apiclient.UserMessage(err))
		os.Exit(1)
	}
}
