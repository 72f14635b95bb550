// Copyright the NGS-Barcode-Count contributors.

// barcodecount decodes combinatorial DNA barcodes from a FASTQ file
// against a scheme and dictionaries, and writes per-sample count tables.
//
// A typical invocation:
//
//	barcodecount --fastq reads.fastq.gz --sequence-format scheme.txt \
//	    --sample-barcodes samples.csv --counted-barcodes counted.csv \
//	    --output-dir results --prefix run1 --merge-output --enrich
//
// Configuration may also be supplied as a JSON file:
//
//	barcodecount --config-file config.json
package main

import (
	"compress/gzip"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	colorable "github.com/mattn/go-colorable"
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/shenwei356/go-logging"

	"github.com/Roco-scientist/NGS-Barcode-Count/counter"
	"github.com/Roco-scientist/NGS-Barcode-Count/decode"
	"github.com/Roco-scientist/NGS-Barcode-Count/dict"
	"github.com/Roco-scientist/NGS-Barcode-Count/emit"
	"github.com/Roco-scientist/NGS-Barcode-Count/fastq"
	"github.com/Roco-scientist/NGS-Barcode-Count/pipeline"
	"github.com/Roco-scientist/NGS-Barcode-Count/scheme"
)

var logger = logging.MustGetLogger("barcodecount")

var logFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{color}[%{level:.4s}]%{color:reset} %{message}`,
)

func init() {
	var stderr io.Writer = os.Stderr
	if runtime.GOOS == "windows" {
		stderr = colorable.NewColorableStderr()
	}
	backend := logging.NewLogBackend(stderr, "", 0)
	backendFormatter := logging.NewBackendFormatter(backend, logFormat)
	logging.SetBackend(backendFormatter)
}

// Config is barcodecount's full set of run parameters. It can be built
// either from command-line flags or decoded wholesale from a
// --config-file JSON document.
type Config struct {
	FastqPath       string `json:"fastq"`
	SampleBarcodes  string `json:"sample_barcodes"`
	SequenceFormat  string `json:"sequence_format"`
	CountedBarcodes string `json:"counted_barcodes"`
	OutputDir       string `json:"output_dir"`
	Prefix          string `json:"prefix"`
	Threads         int    `json:"threads"`
	MergeOutput     bool   `json:"merge_output"`
	MinQuality      float64 `json:"min_quality"`
	Enrich          bool    `json:"enrich"`
	MaxConstantErrors int   `json:"max_constant_errors"`
	MaxBarcodeErrors  int   `json:"max_barcode_errors"`
	DryRun            bool  `json:"dry_run"`
	Profile           bool  `json:"profile"`
}

func readConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", path)
	}
	defer f.Close()

	c := new(Config)
	if err := json.NewDecoder(f).Decode(c); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", path)
	}
	return c, nil
}

func parseFlags() *Config {
	configFile := flag.String("config-file", "", "JSON file containing the full run configuration; overrides all other flags")
	fastqPath := flag.String("fastq", "", "FASTQ input file; .gz and .sz suffixes are decompressed automatically")
	sampleBarcodes := flag.String("sample-barcodes", "", "sample barcode dictionary CSV (barcode,sample_id)")
	sequenceFormat := flag.String("sequence-format", "", "scheme file describing the read layout")
	countedBarcodes := flag.String("counted-barcodes", "", "counted barcode dictionary CSV (barcode,barcode_id,slot_number)")
	outputDir := flag.String("output-dir", ".", "directory for output files")
	prefix := flag.String("prefix", time.Now().Format("2006-01-02"), "prefix for output file names")
	threads := flag.Int("threads", runtime.NumCPU(), "number of decode worker goroutines")
	mergeOutput := flag.Bool("merge-output", false, "additionally write a merged multi-sample counts file")
	minQuality := flag.Float64("min-quality", 0, "minimum mean Phred quality per barcode slot; 0 disables the filter")
	enrich := flag.Bool("enrich", false, "write singleton/pair enrichment tables")
	maxConstantErrors := flag.Int("max-constant-errors", -1, "max mismatches tolerated in a constant segment; default 20% of that segment's own length")
	maxBarcodeErrors := flag.Int("max-barcode-errors", -1, "max mismatches tolerated against a barcode dictionary; default 20% of that slot's own length")
	dryRun := flag.Bool("dry-run", false, "parse inputs and report the plan without decoding any reads")
	doProfile := flag.Bool("cpu-profile", false, "write a CPU profile (cpu.pprof) to --output-dir")
	flag.Parse()

	if *configFile != "" {
		c, err := readConfig(*configFile)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		return c
	}

	return &Config{
		FastqPath:         *fastqPath,
		SampleBarcodes:    *sampleBarcodes,
		SequenceFormat:    *sequenceFormat,
		CountedBarcodes:   *countedBarcodes,
		OutputDir:         *outputDir,
		Prefix:            *prefix,
		Threads:           *threads,
		MergeOutput:       *mergeOutput,
		MinQuality:        *minQuality,
		Enrich:            *enrich,
		MaxConstantErrors: *maxConstantErrors,
		MaxBarcodeErrors:  *maxBarcodeErrors,
		DryRun:            *dryRun,
		Profile:           *doProfile,
	}
}

// openDecompressed opens path and, based on its suffix, wraps it with a
// decompressing reader: ".sz" for snappy (the format the rest of the
// pipeline's ancestor tooling uses for intermediate files), ".gz" for
// gzip, otherwise the file is assumed to already be plaintext FASTQ.
func openDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	switch {
	case strings.HasSuffix(path, ".sz"):
		return struct {
			io.Reader
			io.Closer
		}{snappy.NewReader(f), f}, nil
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "opening gzip stream %s", path)
		}
		return struct {
			io.Reader
			io.Closer
		}{gz, f}, nil
	default:
		return f, nil
	}
}

func run(cfg *Config) error {
	runID := uuid.New().String()
	logger.Infof("run %s starting", runID)

	if cfg.SequenceFormat == "" {
		return errors.New("--sequence-format is required")
	}
	schemeFile, err := os.Open(cfg.SequenceFormat)
	if err != nil {
		return errors.Wrapf(err, "opening scheme file %s", cfg.SequenceFormat)
	}
	s, err := scheme.Parse(schemeFile)
	schemeFile.Close()
	if err != nil {
		return errors.Wrap(err, "parsing scheme")
	}
	logger.Infof("scheme: %d segments, %d counted slot(s), total width %d", len(s.Segments), s.NumCounted, s.Length)

	var sampleDict *dict.BarcodeDict
	if cfg.SampleBarcodes != "" {
		f, err := os.Open(cfg.SampleBarcodes)
		if err != nil {
			return errors.Wrapf(err, "opening sample barcode file %s", cfg.SampleBarcodes)
		}
		sampleDict, err = dict.LoadBarcodeDict(f, s.SampleLength)
		f.Close()
		if err != nil {
			return errors.Wrap(err, "loading sample barcode dictionary")
		}
		logger.Infof("loaded %d sample barcodes", sampleDict.Len())
	}

	var countedDict *dict.CountedDict
	if cfg.CountedBarcodes != "" {
		f, err := os.Open(cfg.CountedBarcodes)
		if err != nil {
			return errors.Wrapf(err, "opening counted barcode file %s", cfg.CountedBarcodes)
		}
		countedDict, err = dict.LoadCountedDict(f, s.CountedLength)
		f.Close()
		if err != nil {
			return errors.Wrap(err, "loading counted barcode dictionary")
		}
		logger.Infof("loaded counted barcode dictionary for %d slot(s)", countedDict.K)
	}

	if cfg.DryRun {
		logger.Infof("dry run: scheme and dictionaries are valid, stopping before decode")
		fmt.Printf("%s", s.String())
		return nil
	}

	if cfg.FastqPath == "" {
		return errors.New("--fastq is required")
	}
	rc, err := openDecompressed(cfg.FastqPath)
	if err != nil {
		return err
	}
	defer rc.Close()

	d := &decode.Decoder{
		Scheme:            s,
		SampleDict:        sampleDict,
		CountedDict:       countedDict,
		MaxConstantErrors: cfg.MaxConstantErrors,
		MaxBarcodeErrors:  cfg.MaxBarcodeErrors,
		MinQuality:        cfg.MinQuality,
	}
	c := counter.New(s.HasRandom())

	start := time.Now()
	r := fastq.NewReader(rc)
	err = pipeline.Run(r, pipeline.Options{
		Decoder: d,
		Counter: c,
		Workers: cfg.Threads,
		Progress: func(n int64) {
			logger.Infof("processed %s reads", humanize.Comma(n))
		},
	})
	elapsed := time.Since(start)
	if err != nil {
		return errors.Wrap(err, "running pipeline")
	}

	logger.Infof("decoded %s reads in %s (%s matched, %s duplicate, %s rejected)",
		humanize.Comma(c.Stats.Total()), elapsed,
		humanize.Comma(c.Stats.Matched()), humanize.Comma(c.Stats.Duplicate()),
		humanize.Comma(c.Stats.ConstantMismatch()+c.Stats.SampleMismatch()+c.Stats.CountedMismatch()+c.Stats.LowQuality()))

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", cfg.OutputDir)
	}

	written, err := emit.WriteAll(c, emit.Options{
		OutputDir:   cfg.OutputDir,
		Prefix:      cfg.Prefix,
		K:           s.NumCounted,
		CountedDict: countedDict,
		Merge:       cfg.MergeOutput,
		Enrich:      cfg.Enrich,
	})
	if err != nil {
		return errors.Wrap(err, "writing output files")
	}
	for _, p := range written {
		logger.Infof("wrote %s", filepath.Base(p))
	}

	if err := emit.AppendStats(&c.Stats, elapsed, emit.Options{OutputDir: cfg.OutputDir}); err != nil {
		return errors.Wrap(err, "appending run statistics")
	}

	return nil
}

func main() {
	cfg := parseFlags()

	if cfg.Profile {
		defer profile.Start(profile.ProfilePath(cfg.OutputDir)).Stop()
	}

	if err := run(cfg); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
