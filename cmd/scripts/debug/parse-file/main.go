package main

import (
	"context"
	"fmt"
	"os"

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
		Hash bool `long:"hash" description:"Also compute the content hash"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/parse-file <path/to/file>")
		os.Exit(1)
	}
	path := args[0]

	dispatch := mediafile.NewDispatch()
	dispatch.Register(cbz.New(), "cbz", "zip")
	dispatch.Register(rar.New(), "cbr", "rar")
	dispatch.Register(epub.New(), "epub")
	dispatch.Register(pdf.New(pdf.Options{RenderingEnabled: true}), "pdf")

	processor, err := dispatch.For(path)
	if err != nil {
		log.Err(err).Fatal("unsupported file")
	}
	fmt.Printf("Extension: %s\n", mediafile.Extension(path))

	ctx := context.Background()

	pages, err := processor.PageCount(ctx, path)
	if err != nil {
		log.Err(err).Fatal("page count error")
	}
	fmt.Printf("Pages: %d\n", pages)

	metadata, err := processor.ReadMetadata(ctx, path)
	switch {
	case err != nil:
		fileErr, ok := mediafile.AsFileError(err)
		if !ok {
			log.Err(err).Fatal("metadata error")
		}
		fmt.Printf("Metadata: error (%s)\n", fileErr.Error())
	case metadata == nil:
		fmt.Println("Metadata: none")
	default:
		printMetadata(metadata)
	}

	if opts.Hash {
		hash, err := processor.Hash(ctx, path)
		if err != nil {
			log.Err(err).Fatal("hash error")
		}
		fmt.Printf("Hash: %s\n", hash)
	}
}

func printMetadata(m *mediafile.Metadata) {
	fmt.Printf("Title: %s\n", orNone(m.Title))
	fmt.Printf("Series: %s\n", orNone(m.Series))
	fmt.Printf("Writer(s): %s\n", orNone(m.Writers))
	fmt.Printf("Publisher: %s\n", orNone(m.Publisher))
	if m.Year != nil {
		fmt.Printf("Year: %d\n", *m.Year)
	}
	if m.AgeRating != nil {
		fmt.Printf("Age Rating: %d\n", *m.AgeRating)
	}
}

func orNone(s *string) string {
	if s == nil {
		return "<none>"
	}
	return *s
}
