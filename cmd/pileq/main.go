// Command pileq quotes junk removal jobs from customer photo submissions,
// either one job at a time or by trawling a directory of per-job image
// subfolders.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	"github.com/junkvolume/pileq"
	"github.com/junkvolume/pileq/internal/adapters"
	"github.com/junkvolume/pileq/internal/catalog"
	"github.com/junkvolume/pileq/internal/maskcache"
	"github.com/junkvolume/pileq/search"
)

func loadImages(dir string) ([][]byte, error) {
	paths, err := search.FindImages(dir)
	if err != nil {
		return nil, err
	}
	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		images = append(images, raw)
	}
	return images, nil
}

// buildAdapters selects the local or hosted adapter set per --adapter-mode.
func buildAdapters(mode, hostedURL string) adapters.Bundle {
	cache := maskcache.New()
	if mode == "hosted" {
		return adapters.NewHostedBundle(hostedURL, &http.Client{Timeout: 60 * time.Second}, cache)
	}
	return adapters.NewLocalBundle(cache)
}

// quoteJob runs one full pipeline job over a directory of images and
// writes the resulting quote payload alongside it.
func quoteJob(cCtx *cli.Context, imagesURI, outdirURI string) error {
	dir, base := filepath.Split(filepath.Clean(imagesURI))
	if outdirURI == "" {
		outdirURI = dir
	}

	log.Println("Loading images:", imagesURI)
	images, err := loadImages(imagesURI)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return pileq.ErrEmptyImageSet
	}

	cat, err := catalog.Open(cCtx.String("catalog-uri"))
	if err != nil {
		return err
	}

	cfg := pileq.Config{
		ConcurrencyCap: cCtx.Int("concurrency"),
		Deadline:       cCtx.Duration("deadline"),
		Adapters:       buildAdapters(cCtx.String("adapter-mode"), cCtx.String("hosted-url")),
		Catalog:        cat,
	}
	orch := pileq.NewOrchestrator(cfg)
	defer orch.Close()

	log.Println("Running pipeline for:", imagesURI)
	payload := orch.Run(context.Background(), images, nil, pileq.JPEGDecoder{}, "")

	outURI := filepath.Join(outdirURI, base+"-quote.json")
	if _, err := pileq.WriteJSON(outURI, payload); err != nil {
		return err
	}
	log.Printf("Wrote quote %s: volume=%.2fcy confidence=%s\n", outURI, payload.FinalVolumeCY, payload.ConfidenceScore)
	return nil
}

// quoteTrawl finds every subdirectory of uri containing images and quotes
// each one concurrently, bounded by a pond worker pool exactly as the
// teacher's batch conversion command bounds concurrent file processing.
func quoteTrawl(cCtx *cli.Context) error {
	uri := cCtx.String("uri")
	entries, err := os.ReadDir(uri)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU()
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))
	defer pool.StopAndWait()

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		jobDir := filepath.Join(uri, e.Name())
		pool.Submit(func() {
			if err := quoteJob(cCtx, jobDir, cCtx.String("outdir-uri")); err != nil {
				log.Printf("job %s failed: %v", jobDir, err)
			}
		})
	}

	return nil
}

func main() {
	app := &cli.App{
		Name:  "pileq",
		Usage: "estimate junk pile volume from customer photos",
		Commands: []*cli.Command{
			{
				Name:  "quote",
				Usage: "quote a single job from a directory of photos",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "images-uri", Required: true, Usage: "directory containing one job's photos"},
					&cli.StringFlag{Name: "outdir-uri", Usage: "directory to write the quote JSON to"},
					&cli.StringFlag{Name: "catalog-uri", Value: "file::memory:?cache=shared", Usage: "sqlite DSN for the pricing/anchor/device catalog"},
					&cli.StringFlag{Name: "adapter-mode", Value: "local", Usage: "local or hosted perception adapters"},
					&cli.StringFlag{Name: "hosted-url", Usage: "base URL for hosted adapter mode"},
					&cli.IntFlag{Name: "concurrency", Value: 3, Usage: "max concurrent perception-lane calls per job"},
					&cli.DurationFlag{Name: "deadline", Value: 45 * time.Second, Usage: "per-job pipeline deadline"},
				},
				Action: func(cCtx *cli.Context) error {
					return quoteJob(cCtx, cCtx.String("images-uri"), cCtx.String("outdir-uri"))
				},
			},
			{
				Name:  "quote-dir",
				Usage: "quote every job subdirectory under uri",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Required: true, Usage: "directory containing one subdirectory per job"},
					&cli.StringFlag{Name: "outdir-uri", Usage: "directory to write quote JSON files to"},
					&cli.StringFlag{Name: "catalog-uri", Value: "file::memory:?cache=shared", Usage: "sqlite DSN for the pricing/anchor/device catalog"},
					&cli.StringFlag{Name: "adapter-mode", Value: "local", Usage: "local or hosted perception adapters"},
					&cli.StringFlag{Name: "hosted-url", Usage: "base URL for hosted adapter mode"},
					&cli.IntFlag{Name: "concurrency", Value: 3, Usage: "max concurrent perception-lane calls per job"},
					&cli.DurationFlag{Name: "deadline", Value: 45 * time.Second, Usage: "per-job pipeline deadline"},
				},
				Action: quoteTrawl,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		log.Fatal(err)
	}
}
