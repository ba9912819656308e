// collects vim colour schemes from the runtime distribution and
// www.vim.org into a single flat directory, discarding duplicate and
// obsolete copies as it goes.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
)

// built once in `main`, read-only after that, passed into every stage.
type Config struct {
	TargetDir string
	CacheDir  string
	LogFile   string
	Verbose   bool
	FTPMirror string

	SkipRuntime bool
	SkipScripts bool
	SkipExtras  bool
	SkipResolve bool

	Client *http.Client
}

// colour scheme compilation packs worth fetching whole.
// these bundle dozens to hundreds of schemes and the search scrape
// either misses them or drowns in them.
var extra_compilations = map[string]string{
	"ColorSamplerPack.zip":     "https://www.vim.org/scripts/download_script.php?src_id=18915",
	"ColorSchemeMenuMaker.zip": "https://www.vim.org/scripts/download_script.php?src_id=9789",
	"oceandeep_collection.zip": "https://www.vim.org/scripts/download_script.php?src_id=12843",
}

// --- counters

type run_stats struct {
	Fetched     int
	New         int
	Overwritten int
	Variants    int
	Duplicates  int
	Ambiguous   int
	Errors      int

	new_names []string
}

func (s *run_stats) record(outcome merge_outcome, base string) {
	switch outcome {
	case merged_new:
		s.New++
		s.new_names = append(s.new_names, base)
	case merged_overwrite:
		s.Overwritten++
	case merged_variant:
		s.Variants++
	case merged_duplicate:
		s.Duplicates++
	}
}

// --- stages

// merges a batch of unpacked candidates, mapping merge failures onto
// the counters. errors never propagate, one bad file costs one file.
func merge_candidates(cfg *Config, stats *run_stats, source string, candidates []candidate) {
	for _, c := range candidates {
		outcome, err := merge_scheme_file(cfg.TargetDir, c.Name, c.Data)
		if err != nil {
			if errors.Is(err, err_merge_ambiguous) {
				slog.Error("merge needs manual review", "source", source, "file", c.Name, "error", err)
				stats.Ambiguous++
			} else {
				slog.Error("failed to merge file", "source", source, "file", c.Name, "error", err)
				stats.Errors++
			}
			continue
		}
		stats.record(outcome, scheme_base_name(c.Name))
	}
}

// the schemes shipped with vim itself, from the github contents api or
// an ftp mirror.
func run_runtime_stage(cfg *Config, stats *run_stats) {
	slog.Info("fetching runtime colour schemes")

	if cfg.FTPMirror != "" {
		files, err := fetch_runtime_ftp(cfg.FTPMirror)
		if err != nil {
			slog.Error("failed to fetch runtime colours from ftp mirror", "mirror", cfg.FTPMirror, "error", err)
			stats.Errors++
			return
		}
		stats.Fetched += len(files)
		merge_candidates(cfg, stats, cfg.FTPMirror, files)
		return
	}

	listing, err := list_runtime_colors(cfg.Client)
	if err != nil {
		slog.Error("failed to list runtime colours", "error", err)
		stats.Errors++
		return
	}

	for _, rf := range listing {
		resp, err := download_with_retries(cfg.Client, rf.URL)
		if err != nil {
			slog.Error("skipping runtime colour scheme", "name", rf.Name, "error", err)
			stats.Errors++
			continue
		}
		stats.Fetched++
		merge_candidates(cfg, stats, rf.URL, []candidate{{Name: rf.Name, Data: resp.Body}})
	}
}

// every colour scheme script on www.vim.org.
func run_scripts_stage(cfg *Config, stats *run_stats) {
	slog.Info("discovering colour scheme scripts on vim.org")

	script_ids, err := discover_script_ids(cfg.Client)
	if err != nil {
		slog.Error("failed to discover scripts", "error", err)
		stats.Errors++
		return
	}
	slog.Info("found scripts", "num", len(script_ids))

	for _, script_id := range script_ids {
		dl, err := discover_download(cfg.Client, script_id)
		if err != nil {
			slog.Warn("skipping script", "script-id", script_id, "error", err)
			stats.Errors++
			continue
		}

		resp, err := download_with_retries(cfg.Client, fmt.Sprintf(download_script_url, dl.SrcId))
		if err != nil {
			slog.Error("skipping script", "script-id", script_id, "filename", dl.Filename, "error", err)
			stats.Errors++
			continue
		}
		stats.Fetched++

		ingest_artifact(cfg, stats, dl.Filename, resp.Body)
	}
}

// the fixed list of compilation packs. zips are picked apart remotely
// so only the scheme files themselves transfer.
func run_extras_stage(cfg *Config, stats *run_stats) {
	slog.Info("fetching extra compilation packs")

	for filename, url := range extra_compilations {
		if classify_artifact(filename) == artifact_zip {
			files, err := fetch_zip(cfg.Client, url, is_scheme_candidate)
			if err != nil {
				slog.Error("skipping compilation pack", "name", filename, "error", err)
				stats.Errors++
				continue
			}
			stats.Fetched++
			merge_candidates(cfg, stats, filename, files)
			continue
		}

		resp, err := download_with_retries(cfg.Client, url)
		if err != nil {
			slog.Error("skipping compilation pack", "name", filename, "error", err)
			stats.Errors++
			continue
		}
		stats.Fetched++
		ingest_artifact(cfg, stats, filename, resp.Body)
	}
}

// unpacks one downloaded artifact and merges whatever falls out.
// artifacts we can't classify are parked in the target directory
// untouched for someone to look at.
func ingest_artifact(cfg *Config, stats *run_stats, filename string, data []byte) {
	candidates, err := unpack_artifact(filename, data)
	if err != nil {
		if errors.Is(err, err_unrecognised_artifact) {
			parked := filepath.Join(cfg.TargetDir, filepath.Base(filename))
			write_err := os.WriteFile(parked, data, 0644)
			slog.Error("unrecognised artifact, parked for manual inspection", "file", parked, "write-error", write_err)
		} else {
			slog.Error("failed to unpack artifact", "file", filename, "error", err)
		}
		stats.Errors++
		return
	}
	merge_candidates(cfg, stats, filename, candidates)
}

// --- bootstrap

func parse_flags(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("colorscheme-collector", pflag.ContinueOnError)

	cfg := &Config{}
	flags.StringVarP(&cfg.TargetDir, "target", "t", "colors", "target directory for merged scheme files")
	flags.StringVarP(&cfg.CacheDir, "cache", "c", "cache", "HTTP response cache directory")
	flags.StringVarP(&cfg.LogFile, "log-file", "o", "", "also write log output to this file")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&cfg.FTPMirror, "ftp-mirror", "", "fetch the runtime colours from this ftp mirror (host/path) instead of the github api")
	flags.BoolVar(&cfg.SkipRuntime, "skip-runtime", false, "skip the runtime colours stage")
	flags.BoolVar(&cfg.SkipScripts, "skip-scripts", false, "skip the vim.org scripts stage")
	flags.BoolVar(&cfg.SkipExtras, "skip-extras", false, "skip the compilation packs stage")
	flags.BoolVar(&cfg.SkipResolve, "skip-resolve", false, "skip the final variant resolve pass")

	err := flags.Parse(args)
	if err != nil {
		return nil, err
	}

	// no ambient working directory: every path is absolute from here on
	cfg.TargetDir, err = filepath.Abs(cfg.TargetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target directory: %w", err)
	}
	cfg.CacheDir, err = filepath.Abs(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}

	return cfg, nil
}

func init_logging(cfg *Config) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		fh, err := os.Create(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to open log file '%s': %w", cfg.LogFile, err)
		}
		out = io.MultiWriter(os.Stderr, fh)
	}

	slog.SetDefault(slog.New(tint.NewHandler(out, &tint.Options{Level: level})))
	return nil
}

func main() {
	cfg, err := parse_flags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err = init_logging(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	die(os.MkdirAll(cfg.TargetDir, 0755) != nil, "failed to create target directory: "+cfg.TargetDir)
	die(os.MkdirAll(cfg.CacheDir, 0755) != nil, "failed to create cache directory: "+cfg.CacheDir)

	cfg.Client = &http.Client{Transport: &cache_transport{dir: cfg.CacheDir}}

	stats := &run_stats{}

	if !cfg.SkipRuntime {
		run_runtime_stage(cfg, stats)
	}
	if !cfg.SkipScripts {
		run_scripts_stage(cfg, stats)
	}
	if !cfg.SkipExtras {
		run_extras_stage(cfg, stats)
	}
	if !cfg.SkipResolve {
		slog.Info("resolving variant slots")
		err = resolve_variants(cfg.TargetDir)
		if err != nil {
			slog.Error("variant resolve pass failed", "error", err)
			stats.Errors++
		}
	}

	slog.Info("run complete",
		"fetched", stats.Fetched,
		"new", stats.New,
		"overwritten", stats.Overwritten,
		"variants", stats.Variants,
		"duplicates-dropped", stats.Duplicates,
		"ambiguous", stats.Ambiguous,
		"errors", stats.Errors)

	if len(stats.new_names) > 0 {
		sample := stats.new_names
		if len(sample) > 10 {
			sample = sample[:10]
		}
		labels := make([]string, 0, len(sample))
		for _, name := range sample {
			labels = append(labels, title_case(strings.ReplaceAll(name, "_", " ")))
		}
		slog.Info("newly collected schemes", "sample", strings.Join(labels, ", "))
	}
}
