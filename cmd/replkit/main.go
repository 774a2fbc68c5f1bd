package main

import (
	"fmt"
	"os"

	"github.com/replkit/replkit/internal/cli"
	"github.com/replkit/replkit/internal/launch"
)

func main() {
	if len(os.Args) > 2 && os.Args[1] == launch.ServerSentinel {
		if err := launch.RunServerProcess(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "replkit server: %v\n", err)
			os.Exit(1)
		}
		return
	}

	code := cli.Run(os.Args[1:])
	os.Exit(code)
}
