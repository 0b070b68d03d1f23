package main

import (
	"fmt"
	"os"

	"security-gateway/internal/redisclient"
)

var Version = "0.1.0"

func main() {
	app := newApp(os.Stdout, redisclient.New)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "secctl:", err)
		os.Exit(1)
	}
}
