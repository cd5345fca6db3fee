package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"annotate/internal/app"
	"annotate/internal/config"
	"annotate/internal/pdfdoc"
	"annotate/internal/source"
)

const usage = `usage: annotate <command> [flags]

commands:
  serve                   run the HTTP API, websocket events and MCP endpoint
  mcp                     run a standalone MCP server on stdin/stdout
  upload FILE...          store PDFs and print their document IDs
  list                    list stored documents
  render [flags] SOURCE   write a page with its annotations as PNG
  watch FILE              open a local PDF and reload it when it changes
  purge                   remove expired object links now
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	pdfdoc.Configure(pdfdoc.Options{MaxConcurrentRenders: runtime.NumCPU()})

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		err = withApp(cfg, func(ctx context.Context, a *app.App) error { return a.Serve(ctx) })
	case "mcp":
		err = app.ServeMCP(cfg)
	case "upload":
		err = withApp(cfg, func(ctx context.Context, a *app.App) error { return upload(ctx, a, cfg.UserID, args) })
	case "list":
		err = withApp(cfg, func(ctx context.Context, a *app.App) error { return list(ctx, a, cfg.UserID) })
	case "render":
		err = render(cfg, args)
	case "watch":
		if len(args) != 1 {
			log.Fatal("usage: annotate watch FILE")
		}
		err = withApp(cfg, func(ctx context.Context, a *app.App) error { return a.Watch(ctx, args[0]) })
	case "purge":
		err = withApp(cfg, func(ctx context.Context, a *app.App) error {
			log.Printf("purged %d expired links", a.PurgeLinks(ctx))
			return nil
		})
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// withApp builds the app, runs fn until it returns or the process is
// interrupted, then closes the app.
func withApp(cfg *config.Config, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func upload(ctx context.Context, a *app.App, user string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("usage: annotate upload FILE...")
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		rec, err := a.Documents.Upload(ctx, user, filepath.Base(f), data)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%d pages\n", rec.ID, rec.Filename, rec.TotalPages)
	}
	return nil
}

func list(ctx context.Context, a *app.App, user string) error {
	docs, err := a.Documents.List(ctx, user)
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Printf("%s\t%s\t%d pages\t%s\n", d.ID, d.Filename, d.TotalPages, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func render(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	page := fs.Int("page", 1, "page number")
	width := fs.Int("width", 0, "scale the image down to at most this width")
	out := fs.String("o", "", "output file (default stdout)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: annotate render [-page N] [-width W] [-o FILE] DOCUMENT-ID|PATH|URL")
	}

	var src source.Source
	switch arg := fs.Arg(0); {
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		src.URL = arg
	case strings.HasSuffix(strings.ToLower(arg), ".pdf"):
		src.Path = arg
	default:
		src.DocumentID = arg
	}

	return withApp(cfg, func(ctx context.Context, a *app.App) error {
		var w io.Writer = os.Stdout
		if *out != "" {
			f, err := os.Create(*out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return a.RenderPage(ctx, src, *page, *width, w)
	})
}
