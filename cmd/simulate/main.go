// Command simulate replays a CSV report stream through the ingestion cycle
// offline, using the deterministic stub collaborators, and prints the trace of
// every cycle followed by the consolidated incidents.
//
// Usage:
//
//	go run ./cmd/simulate -csv data/mock_stream.csv -cycles 10
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Mathew005/aura-agent/internal/adapter/csvfeed"
	"github.com/Mathew005/aura-agent/internal/correlate"
	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/extract"
	"github.com/Mathew005/aura-agent/internal/observability"
	"github.com/Mathew005/aura-agent/internal/pipeline"
	"github.com/Mathew005/aura-agent/internal/scout"
	"github.com/Mathew005/aura-agent/internal/verify"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer) error {
	csvPath := flag.String("csv", "data/mock_stream.csv", "CSV stream with text and source columns")
	cycles := flag.Int("cycles", 0, "number of cycles to run (default: one pass over the stream)")
	threshold := flag.Int("threshold", verify.DefaultThreshold, "verification threshold (0-100)")
	asJSON := flag.Bool("json", false, "print incidents as JSON")
	flag.Parse()

	clock := clockwork.NewFakeClockAt(time.Now().UTC())
	domain.SetClock(clock)

	feed, err := csvfeed.Open(*csvPath, clock)
	if err != nil {
		return err
	}
	n := *cycles
	if n <= 0 {
		n = feed.Len()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	engine := correlate.New(correlate.WithClock(clock), correlate.WithMetrics(metrics))
	orch := pipeline.New(pipeline.Deps{
		Feed:       feed,
		Extractor:  extract.Stub{},
		Strategist: scout.TemplateStrategist{},
		Gatherer:   scout.StubGatherer{},
		Verifier:   verify.New(nil, nil, nil, *threshold, logger, metrics),
		Store:      engine,
	}, pipeline.Config{Clock: clock}, logger, metrics)

	counts := map[pipeline.Status]int{}
	for i := range n {
		cycle := orch.ProcessNext(context.Background())
		counts[cycle.Status]++
		fmt.Fprintf(out, "--- cycle %d: %s\n", i+1, cycle.Status)
		for _, line := range cycle.Logs() {
			fmt.Fprintf(out, "  %s\n", line)
		}
		clock.Advance(time.Second)
	}

	fmt.Fprintf(out, "\n%d cycles: %d success, %d rejected, %d extraction failed, %d unlocated, %d failed\n",
		n, counts[pipeline.StatusSuccess], counts[pipeline.StatusRejected],
		counts[pipeline.StatusExtractionFailed], counts[pipeline.StatusUnlocated], counts[pipeline.StatusFailed])

	incidents := engine.List()
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(incidents)
	}
	for _, inc := range incidents {
		fmt.Fprintf(out, "#%d %s [%s] %s, %d reports, confidence %.2f\n",
			inc.ID, inc.Title(), inc.Severity, inc.Coordinate, len(inc.Reports), inc.Confidence)
	}
	return nil
}
