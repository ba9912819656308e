// merging downloaded scheme files into the flat target directory.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// a scheme may occupy up to five slots in the target directory:
// "desert.vim" then "desert_1.vim" .. "desert_4.vim".
const max_variants = 5

var err_merge_ambiguous = errors.New("same scheme but no resolvable winner, keeping both")
var err_merge_slots_exhausted = errors.New("all variant slots occupied")

type merge_outcome int

// merged_new: wrote the primary slot.
// merged_duplicate: byte-identical to an occupant, dropped.
// merged_overwrite: replaced an obsolete occupant.
// merged_variant: wrote a numbered slot.
const (
	merged_new merge_outcome = iota
	merged_duplicate
	merged_overwrite
	merged_variant
)

// "desert" => "/target/desert.vim", "/target/desert_1.vim", ...
func variant_path(target_dir, base string, i int) string {
	if i == 0 {
		return filepath.Join(target_dir, base+".vim")
	}
	return filepath.Join(target_dir, fmt.Sprintf("%s_%d.vim", base, i))
}

// "colors/desert.vim" => "desert"
func scheme_base_name(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// merges the bytes of one downloaded scheme file into the target
// directory, walking the variant slots for its base name in order:
//   - an empty slot takes the incoming file.
//   - a byte-identical occupant means we already have it, drop it.
//   - an occupant judged the same scheme and obsolete is overwritten.
//   - otherwise (occupant wins, or no winner, or a different scheme
//     that happens to share the name) move on to the next slot.
//
// running out of slots is an error: the incoming file is dropped and
// left for an operator to look at the logs.
func merge_scheme_file(target_dir, name string, data []byte) (merge_outcome, error) {
	base := scheme_base_name(name)
	incoming := new_scheme_file(name, data)
	ambiguous := false

	for i := 0; i < max_variants; i++ {
		dest := variant_path(target_dir, base, i)

		if !path_exists(dest) {
			err := os.WriteFile(dest, data, 0644)
			if err != nil {
				return 0, fmt.Errorf("failed to write scheme file '%s': %w", dest, err)
			}
			slog.Debug("wrote scheme file", "path", dest)
			if i == 0 {
				return merged_new, nil
			}
			return merged_variant, nil
		}

		existing, existing_data, err := read_scheme_file(dest)
		if err != nil {
			return 0, fmt.Errorf("failed to read existing scheme file '%s': %w", dest, err)
		}

		if bytes.Equal(existing_data, data) {
			slog.Debug("duplicate scheme file, dropping", "path", dest)
			return merged_duplicate, nil
		}

		if !same_scheme(existing, incoming) {
			// same name, different scheme. try the next slot.
			continue
		}

		switch should_delete(existing, incoming) {
		case discard_a:
			err := os.WriteFile(dest, data, 0644)
			if err != nil {
				return 0, fmt.Errorf("failed to overwrite scheme file '%s': %w", dest, err)
			}
			slog.Debug("overwrote obsolete scheme file", "path", dest)
			return merged_overwrite, nil
		case discard_b:
			// the occupant wins but the incoming file may still beat a
			// later variant. the resolve pass sorts out any leftovers.
			continue
		case keep_both:
			ambiguous = true
			continue
		}
	}

	if ambiguous {
		return 0, fmt.Errorf("dropping '%s': %w", name, err_merge_ambiguous)
	}
	return 0, fmt.Errorf("dropping '%s': %w", name, err_merge_slots_exhausted)
}

// re-judges every "_1" variant against its primary once ingestion is
// done, deleting the variant when it loses. collisions found mid-run
// are only resolvable once both competitors are fully on disk, so this
// runs last. idempotent, safe to re-run over the same directory.
func resolve_variants(target_dir string) error {
	entries, err := os.ReadDir(target_dir)
	if err != nil {
		return fmt.Errorf("failed to list target directory '%s': %w", target_dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, "_1.vim") {
			continue
		}
		base := strings.TrimSuffix(name, "_1.vim")
		primary_path := filepath.Join(target_dir, base+".vim")
		if !path_exists(primary_path) {
			continue
		}

		primary, _, err := read_scheme_file(primary_path)
		if err != nil {
			slog.Warn("skipping unreadable scheme file", "path", primary_path, "error", err)
			continue
		}
		variant, _, err := read_scheme_file(filepath.Join(target_dir, name))
		if err != nil {
			slog.Warn("skipping unreadable scheme file", "path", name, "error", err)
			continue
		}

		if !same_scheme(primary, variant) {
			continue
		}

		switch should_delete(primary, variant) {
		case discard_b:
			slog.Info("removing obsolete scheme variant", "path", variant.Path)
			err = os.Remove(variant.Path)
			if err != nil {
				slog.Warn("failed to remove scheme variant", "path", variant.Path, "error", err)
			}
		default:
			// the variant holds its own against the primary. keep both
			// and let someone with eyeballs decide.
			slog.Info("scheme variant needs manual review", "primary", primary_path, "variant", variant.Path)
		}
	}
	return nil
}
