package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"txmconvert/internal/logging"
	"txmconvert/pkg/batch"
	"txmconvert/pkg/config"
)

func main() {
	configPath := flag.String("config", "txmconvert.yaml", "Configuration file (YAML, or TOML with a .toml extension)")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	outputDir := flag.String("output", "", "Output directory (default from config)")
	workers := flag.Int("workers", 0, "Number of files converted concurrently (default from config)")
	imageFormat := flag.String("format", "", "Image format: tiff, png, bmp or none")
	metadataFormat := flag.String("metadata", "", "Metadata format: txt, csv, arrow or none")
	prefix := flag.String("prefix", "", "Slice stream name prefix")
	noRescale := flag.Bool("no-rescale", false, "Export raw intensities without percentile rescaling")
	lower := flag.Float64("lower", 0, "Lower clip percentile")
	upper := flag.Float64("upper", 0, "Upper clip percentile")
	bits := flag.Int("bits", 0, "Output bit depth (1-16)")
	zipOutput := flag.Bool("zip", false, "Zip each file's images")
	metadataOnly := flag.Bool("metadata-only", false, "Extract metadata only")
	preview := flag.Bool("preview", false, "Write the middle slice along each axis as PNG")
	logFile := flag.String("log", "", "Log file (default from config)")
	level := flag.String("level", "", "Log level: debug, info, warning, error, critical or silent")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file or directory>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Explicit flags override the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.Output.Dir = *outputDir
		case "workers":
			cfg.Processing.Workers = *workers
		case "format":
			cfg.Output.ImageFormat = *imageFormat
		case "metadata":
			cfg.Output.MetadataFormat = *metadataFormat
		case "prefix":
			cfg.Processing.StreamPrefix = *prefix
		case "no-rescale":
			cfg.Rescale.Enabled = !*noRescale
		case "lower":
			cfg.Rescale.Lower = *lower
		case "upper":
			cfg.Rescale.Upper = *upper
		case "bits":
			cfg.Rescale.Bits = *bits
		case "zip":
			cfg.Output.Zip = *zipOutput
		case "metadata-only":
			cfg.Processing.MetadataOnly = *metadataOnly
		case "log":
			cfg.Logging.Logfile = *logFile
		case "level":
			cfg.Logging.Level = *level
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	mode, _ := logging.ParseMode(cfg.Logging.Level)
	logging.SetLogMode(mode)
	cfg.Logging.SetLogger()
	defer logging.Shutdown()

	var paths []string
	for _, arg := range flag.Args() {
		found, err := batch.Discover(arg, cfg.Processing.Extensions)
		if err != nil {
			log.Fatalf("Failed to scan %s: %v", arg, err)
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		log.Fatalf("No %v files found", cfg.Processing.Extensions)
	}
	jobs, err := batch.NewJobs(paths)
	if err != nil {
		log.Fatalf("%v", err)
	}

	out := &outputWriter{cfg: cfg, preview: *preview}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Converting %d files into %s\n", len(jobs), cfg.Output.Dir)
	report := batch.Run(ctx, jobs, batch.Options{
		Workers:    cfg.Processing.Workers,
		Prefix:     cfg.Processing.StreamPrefix,
		Rescale:    cfg.RescaleParams(),
		SkipVolume: cfg.Processing.MetadataOnly,
		Handler:    out.handle,
	})

	fmt.Printf("\nRun %s finished in %s\n", report.RunID, report.Elapsed.Round(1e6))
	fmt.Printf("%s\n", report.Summary())
	fmt.Printf("%s written\n", humanize.Bytes(uint64(out.written())))

	incomplete := report.Incomplete()
	for _, res := range incomplete {
		fmt.Printf("  %s [%s]: %v\n", res.Job.Path, res.Outcome(), res.Err())
	}
	if len(incomplete) > 0 {
		logging.Shutdown()
		os.Exit(1)
	}
}
