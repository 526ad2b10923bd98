package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dunamismax/styleflow/internal/catalog"
	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/dunamismax/styleflow/internal/export"
	"github.com/dunamismax/styleflow/internal/ingest"
	"github.com/dunamismax/styleflow/internal/transform"
	"github.com/dunamismax/styleflow/internal/workflow"
	"github.com/urfave/cli/v2"
)

const (
	exitFailed  = 1
	exitInvalid = 2
)

var catalogFlag = &cli.StringFlag{
	Name:    "catalog",
	Usage:   "YAML style catalog (built-in presets when empty)",
	EnvVars: []string{"STYLE_CATALOG_PATH"},
}

func stylesCommand() *cli.Command {
	return &cli.Command{
		Name:  "styles",
		Usage: "List the available style presets",
		Flags: []cli.Flag{catalogFlag},
		Action: func(c *cli.Context) error {
			styles, err := catalog.LoadFile(c.String("catalog"))
			if err != nil {
				return cli.Exit(err.Error(), exitInvalid)
			}
			return printStyles(c.App.Writer, styles.List())
		},
	}
}

func printStyles(w io.Writer, presets []domain.StylePreset) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tARTIST\tPERIOD")
	for _, p := range presets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Artist, p.Period)
	}
	return tw.Flush()
}

func applyCommand(logger *log.Logger) *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "Upload an image, apply one style and write the download",
		Flags: []cli.Flag{
			catalogFlag,
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "source JPEG or PNG", Required: true},
			&cli.StringFlag{Name: "style", Aliases: []string{"s"}, Usage: "style preset id", Required: true},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output directory", Value: "."},
			&cli.StringFlag{Name: "provider", Usage: "delay, filter or gemini", Value: transform.ProviderFilter, EnvVars: []string{"TRANSFORM_PROVIDER"}},
			&cli.DurationFlag{Name: "delay", Usage: "latency of the delay provider", Value: 3 * time.Second},
			&cli.DurationFlag{Name: "timeout", Usage: "give up after this long", Value: 2 * time.Minute},
			&cli.BoolFlag{Name: "compare", Usage: "also write a side-by-side comparison"},
		},
		Action: func(c *cli.Context) error {
			return runApply(c, logger)
		},
	}
}

func runApply(c *cli.Context, logger *log.Logger) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	styles, err := catalog.LoadFile(c.String("catalog"))
	if err != nil {
		return cli.Exit(err.Error(), exitInvalid)
	}
	provider, err := transform.NewLocal(ctx, transform.LocalConfig{
		Provider:     c.String("provider"),
		Delay:        c.Duration("delay"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  os.Getenv("GEMINI_MODEL"),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitInvalid)
	}

	controller, err := workflow.New(provider, workflow.Options{Logger: logger, Styles: styles})
	if err != nil {
		return err
	}
	defer controller.Close()

	updates, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	file, closeFile, err := openImage(c.String("image"))
	if err != nil {
		return cli.Exit(err.Error(), exitInvalid)
	}
	_, err = controller.UploadImage(ctx, file)
	closeFile()
	if err != nil {
		return cli.Exit(fmt.Sprintf("upload rejected: %v", err), exitInvalid)
	}
	if _, err := controller.SelectStyle(ctx, c.String("style")); err != nil {
		return cli.Exit(err.Error(), exitInvalid)
	}

	state, err := awaitResult(ctx, controller, updates)
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}
	if state.Status == domain.StatusFailed {
		return cli.Exit(fmt.Sprintf("transform failed: %s", state.Error.Message), exitFailed)
	}

	download, err := export.FromState(state)
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}
	outDir := c.String("out")
	path := filepath.Join(outDir, download.Filename)
	if err := os.WriteFile(path, download.Data, 0o644); err != nil {
		return fmt.Errorf("write download: %w", err)
	}
	fmt.Fprintln(c.App.Writer, path)

	if c.Bool("compare") {
		side, err := export.Compare(*state.SourceImage, *state.ResultImage, state.SelectedStyle)
		if err != nil {
			return cli.Exit(err.Error(), exitFailed)
		}
		comparePath := filepath.Join(outDir, strings.TrimSuffix(download.Filename, ".png")+"-compare.png")
		if err := os.WriteFile(comparePath, side, 0o644); err != nil {
			return fmt.Errorf("write comparison: %w", err)
		}
		fmt.Fprintln(c.App.Writer, comparePath)
	}
	return nil
}

// awaitResult blocks until the transform settles. The snapshot is checked
// first because the transform may finish before the first update is read.
func awaitResult(ctx context.Context, controller *workflow.Controller, updates <-chan domain.WorkflowState) (domain.WorkflowState, error) {
	state := controller.Snapshot()
	for {
		switch state.Status {
		case domain.StatusComplete, domain.StatusFailed:
			return state, nil
		}
		select {
		case next, ok := <-updates:
			if !ok {
				return state, domain.ErrClosed
			}
			state = next
		case <-ctx.Done():
			return state, fmt.Errorf("waiting for transform: %w", ctx.Err())
		}
	}
}

func openImage(path string) (ingest.File, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return ingest.File{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return ingest.File{}, nil, err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return ingest.File{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Size:     info.Size(),
		Body:     f,
	}, func() { _ = f.Close() }, nil
}
