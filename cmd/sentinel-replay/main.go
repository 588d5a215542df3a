// Package main replays recorded or scripted events through a fresh
// detection engine and prints the alerts they raise.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"fleet-sentinel/internal/alerting"
	"fleet-sentinel/internal/detection"
	"fleet-sentinel/internal/logging"
	"fleet-sentinel/internal/report"
	"fleet-sentinel/internal/schema"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sentinel-replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "JSON-lines file of events to replay (\"-\" for stdin); the built-in scenario runs when empty")
	rules := fs.String("rules", "", "detection rules YAML; stock parameters when empty")
	asJSON := fs.Bool("json", false, "print alerts as JSON lines instead of the report")
	logLevel := fs.String("log-level", "warn", "log level for engine diagnostics")
	showVersion := fs.Bool("version", false, "show version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "sentinel-replay %s\n", version)
		return 0
	}

	logger := logging.NewWithWriter(stderr, logging.Config{Level: *logLevel, Format: "text"})

	cfg := detection.DefaultConfig()
	if *rules != "" {
		loaded, err := detection.LoadConfig(*rules)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	source := "built-in scenario"
	var envelopes []schema.Envelope
	switch *file {
	case "":
		envelopes = scenario(time.Now().UTC().Truncate(time.Second))
	case "-":
		source = "stdin"
		var err error
		if envelopes, err = readEnvelopes(stdin); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	default:
		source = *file
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		envelopes, err = readEnvelopes(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", *file, err)
			return 1
		}
	}

	summary, err := replay(cfg, envelopes, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	summary.Source = source

	if *asJSON {
		enc := json.NewEncoder(stdout)
		for _, a := range summary.Alerts {
			if err := enc.Encode(a); err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
		}
		return 0
	}

	if err := report.Alerts(stdout, summary); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// replay feeds envelopes in order through a new engine. Envelopes that fail
// validation are logged and counted but never reach the engine.
func replay(cfg detection.Config, envelopes []schema.Envelope, logger *slog.Logger) (report.Summary, error) {
	sink := alerting.NewSink(alerting.WithLogger(logger))
	engine, err := detection.NewEngine(cfg, sink, detection.WithLogger(logger))
	if err != nil {
		return report.Summary{}, err
	}
	// Recorded events may be arbitrarily old.
	validator := schema.NewValidatorWithConfig(schema.ValidatorConfig{})

	var rejected int
	for i := range envelopes {
		if err := validator.Validate(&envelopes[i]); err != nil {
			logger.Warn("event rejected", "index", i, "error", err)
			rejected++
			continue
		}
		engine.InstrumentEnvelope(envelopes[i])
	}

	return report.Summary{
		Events:   len(envelopes),
		Rejected: rejected,
		Alerts:   sink.List(),
		Stats:    engine.Stats(),
	}, nil
}

// readEnvelopes decodes a stream of JSON envelopes, one per line.
func readEnvelopes(r io.Reader) ([]schema.Envelope, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var envelopes []schema.Envelope
	for {
		var env schema.Envelope
		err := dec.Decode(&env)
		if errors.Is(err, io.EOF) {
			return envelopes, nil
		}
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", len(envelopes), err)
		}
		envelopes = append(envelopes, env)
	}
}
