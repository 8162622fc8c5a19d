package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stumpapp/stump/pkg/cbz"
	"github.com/stumpapp/stump/pkg/epub"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/pdf"
	"github.com/stumpapp/stump/pkg/rar"
)

func main() {
	log := logger.New()

	var opts struct {
		Output string `short:"o" long:"output" description:"Path to write the extracted page to" required:"true"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 2 {
		fmt.Println("go run ./cmd/scripts/debug/render-page -o out.jpg <path/to/file> <page>")
		os.Exit(1)
	}
	path := args[0]

	page, err := strconv.Atoi(args[1])
	if err != nil || page < 1 {
		fmt.Println("page must be a positive integer")
		os.Exit(1)
	}

	dispatch := mediafile.NewDispatch()
	dispatch.Register(cbz.New(), "cbz", "zip")
	dispatch.Register(rar.New(), "cbr", "rar")
	dispatch.Register(epub.New(), "epub")
	dispatch.Register(pdf.New(pdf.Options{RenderingEnabled: true}), "pdf")

	processor, err := dispatch.For(path)
	if err != nil {
		log.Err(err).Fatal("unsupported file")
	}

	contentType, data, err := processor.Page(context.Background(), path, page)
	if err != nil {
		log.Err(err).Fatal("page extract error")
	}

	if err := os.WriteFile(opts.Output, data, 0644); err != nil {
		log.Err(err).Fatal("file write error")
	}
	fmt.Printf("Wrote page %d (%s, %d bytes) to %s\n", page, contentType, len(data), opts.Output)
}
