// Command stylectl runs the style workflow against local files.
//
// Usage:
//
//	stylectl styles [--catalog path]
//	stylectl apply --image photo.png --style van-gogh [--out dir] [--compare]
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()
	logger := log.New(os.Stderr, "[stylectl] ", log.LstdFlags|log.Lmsgprefix)

	app := &cli.App{
		Name:           "stylectl",
		Usage:          "Apply artistic style presets to images",
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			stylesCommand(),
			applyCommand(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCoder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
