// Command validate dry-runs the CAP transform over files and directories and
// reports, per document, how many features would be indexed and why a
// document would produce none. Nothing is written to Elasticsearch.
//
// Usage:
//
//	go run ./cmd/validate -at 2030-06-01T13:00:00Z testdata/
//	go run ./cmd/validate -geojson alerts.geojson /data/geomet/weather/amqp/alerts/cap/20300601
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/filesource"
	"github.com/couchcryptid/cap-alerts-etl/internal/config"
	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
	"github.com/couchcryptid/cap-alerts-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

type options struct {
	paths   []string
	at      time.Time // zero means real time
	geojson string
}

// report tracks the outcome of one document.
type report struct {
	path     string
	ident    string
	features int
	pairing  domain.Pairing
	err      error
}

func (r report) status() string {
	switch {
	case r.err != nil:
		return "\033[31mFAIL\033[0m"
	case !r.pairing.Complete():
		return "\033[33mUNPAIRED\033[0m"
	case r.features == 0:
		return "EXPIRED"
	default:
		return "\033[32mOK\033[0m"
	}
}

func main() {
	at := flag.String("at", "", "processing time as RFC 3339 (default: now)")
	geojson := flag.String("geojson", "", "write the features as a GeoJSON FeatureCollection to this file")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	opts := options{paths: flag.Args(), geojson: *geojson}
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: invalid -at: %v\n", err)
			os.Exit(1)
		}
		opts.at = t
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	if code := run(cfg, opts, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(cfg *config.Config, opts options, out io.Writer) int {
	if !opts.at.IsZero() {
		domain.SetClock(clockwork.NewFakeClockAt(opts.at))
		defer domain.SetClock(nil)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source, err := filesource.New(opts.paths, logger)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}
	transformer := pipeline.NewTransformer(cfg, nil, logger)

	fmt.Fprintf(out, "=== CAP Transform Validation (%d documents) ===\n\n", source.Len())

	ctx := context.Background()
	var (
		reports  []report
		features []domain.Feature
		seen     = make(map[string]struct{})
	)
	for {
		batch, err := source.ExtractBatch(ctx, 100)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(out, "FATAL: %v\n", err)
			return 1
		}
		for _, raw := range batch {
			res, err := transformer.Transform(ctx, raw)
			r := report{path: raw.Path, ident: res.Identifier, err: err, pairing: res.Pairing, features: len(res.Features)}
			reports = append(reports, r)
			for _, f := range res.Features {
				if _, dup := seen[f.Properties.Identifier]; dup {
					continue
				}
				seen[f.Properties.Identifier] = struct{}{}
				features = append(features, f)
			}
		}
	}

	failed := 0
	for _, r := range reports {
		fmt.Fprintf(out, "  %-60s %3d features  %s\n", r.path, r.features, r.status())
		switch {
		case r.err != nil:
			failed++
			fmt.Fprintf(out, "      %v\n", r.err)
		case !r.pairing.Complete():
			fmt.Fprintf(out, "      %d english vs %d french areas; unmatched: %s\n",
				r.pairing.English, r.pairing.French, strings.Join(r.pairing.Unmatched, ", "))
		}
	}

	fmt.Fprintf(out, "\nDocuments: %d, failed: %d, unique features: %d\n", len(reports), failed, len(features))

	if opts.geojson != "" {
		if err := writeGeoJSON(opts.geojson, features); err != nil {
			fmt.Fprintf(out, "FATAL: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "GeoJSON written to %s\n", opts.geojson)
	}

	if failed > 0 {
		fmt.Fprintln(out, "\nValidation FAILED.")
		return 1
	}
	fmt.Fprintln(out, "\nAll documents transformed.")
	return 0
}

func writeGeoJSON(path string, features []domain.Feature) error {
	if features == nil {
		features = []domain.Feature{}
	}
	data, err := json.MarshalIndent(map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}
