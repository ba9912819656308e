// unpacking downloaded artifacts into candidate scheme files.
package main

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/nwaples/rardecode/v2"
)

var err_unrecognised_artifact = errors.New("unrecognised artifact type")

type artifact_kind int

// artifact_vim is a bare scheme file with no container.
// artifact_gz is a single gzipped file, not a gzipped tar.
const (
	artifact_unknown artifact_kind = iota
	artifact_vim
	artifact_zip
	artifact_rar
	artifact_tar_gz
	artifact_tar_bz2
	artifact_gz
	artifact_vimball
)

// a file dug out of an artifact, named as it appeared in the archive.
type candidate struct {
	Name string
	Data []byte
}

// classifies a downloaded artifact by its filename.
// vimballs ship as ".vba"/".vmb", often gzipped, and need their own
// reader. order matters: ".vba.gz" must not classify as plain ".gz".
func classify_artifact(filename string) artifact_kind {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".vim"):
		return artifact_vim
	case strings.HasSuffix(lower, ".zip"):
		return artifact_zip
	case strings.HasSuffix(lower, ".rar"):
		return artifact_rar
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return artifact_tar_gz
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return artifact_tar_bz2
	case strings.HasSuffix(lower, ".vba"), strings.HasSuffix(lower, ".vmb"),
		strings.HasSuffix(lower, ".vba.gz"), strings.HasSuffix(lower, ".vmb.gz"):
		return artifact_vimball
	case strings.HasSuffix(lower, ".gz"):
		return artifact_gz
	}
	return artifact_unknown
}

// directories whose .vim files are vim plugin machinery, never colour
// schemes.
var excluded_plugin_dirs = map[string]bool{
	"syntax":   true,
	"autoload": true,
	"plugin":   true,
	"after":    true,
	"indent":   true,
	"ftplugin": true,
}

// decides whether an archive member is worth forwarding to the merge
// engine: a .vim file under a "colors" directory, at the archive root,
// or at least not inside one of the known plugin directories.
func is_scheme_candidate(name string) bool {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if !strings.HasSuffix(strings.ToLower(clean), ".vim") {
		return false
	}
	dir, _ := path.Split(clean)
	if dir == "" {
		return true
	}
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	for _, part := range parts {
		if strings.ToLower(part) == "colors" {
			return true
		}
	}
	for _, part := range parts {
		if excluded_plugin_dirs[strings.ToLower(part)] {
			return false
		}
	}
	return true
}

// --- per-format readers

func unpack_zip(data []byte) ([]candidate, error) {
	rdr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create a zip reader: %w", err)
	}
	var results []candidate
	for _, entry := range rdr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		fh, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open zipped file entry '%s': %w", entry.Name, err)
		}
		bl, err := io.ReadAll(fh)
		fh.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read zipped file entry '%s': %w", entry.Name, err)
		}
		results = append(results, candidate{Name: entry.Name, Data: bl})
	}
	return results, nil
}

func unpack_rar(data []byte) ([]candidate, error) {
	rdr, err := rardecode.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create a rar reader: %w", err)
	}
	var results []candidate
	for {
		hdr, err := rdr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rar entry: %w", err)
		}
		if hdr.IsDir {
			continue
		}
		bl, err := io.ReadAll(rdr)
		if err != nil {
			return nil, fmt.Errorf("failed to read rar entry '%s': %w", hdr.Name, err)
		}
		results = append(results, candidate{Name: hdr.Name, Data: bl})
	}
	return results, nil
}

func unpack_tar(rdr io.Reader) ([]candidate, error) {
	tar_rdr := tar.NewReader(rdr)
	var results []candidate
	for {
		hdr, err := tar_rdr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		bl, err := io.ReadAll(tar_rdr)
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry '%s': %w", hdr.Name, err)
		}
		results = append(results, candidate{Name: hdr.Name, Data: bl})
	}
	return results, nil
}

func unpack_tar_gz(data []byte) ([]candidate, error) {
	gz_rdr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create a gzip reader: %w", err)
	}
	defer gz_rdr.Close()
	return unpack_tar(gz_rdr)
}

func unpack_tar_bz2(data []byte) ([]candidate, error) {
	return unpack_tar(bzip2.NewReader(bytes.NewReader(data)))
}

// a single gzipped file, named after the artifact minus ".gz".
func unpack_gz(filename string, data []byte) ([]candidate, error) {
	gz_rdr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create a gzip reader: %w", err)
	}
	defer gz_rdr.Close()
	bl, err := io.ReadAll(gz_rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress '%s': %w", filename, err)
	}
	return []candidate{{Name: strings.TrimSuffix(filename, ".gz"), Data: bl}}, nil
}

// reads a vimball. after a short preamble ("UseVimball" / "finish"),
// the format is a repeating sequence of
//
//	<path>	[[[1
//	<line count>
//	<that many lines of content>
//
// there is no go library for this format.
func unpack_vimball(filename string, data []byte) ([]candidate, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".gz") {
		gz_rdr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create a gzip reader: %w", err)
		}
		defer gz_rdr.Close()
		bl, err := io.ReadAll(gz_rdr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress vimball '%s': %w", filename, err)
		}
		data = bl
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var results []candidate
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if !strings.HasSuffix(trimmed, "[[[1") {
			continue
		}
		name := strings.TrimSpace(strings.TrimSuffix(trimmed, "[[[1"))
		if name == "" {
			continue
		}

		if !scanner.Scan() {
			return nil, fmt.Errorf("truncated vimball '%s': missing line count for '%s'", filename, name)
		}
		count, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			return nil, fmt.Errorf("bad vimball '%s': unparseable line count for '%s': %w", filename, name, err)
		}

		var content strings.Builder
		for i := 0; i < count; i++ {
			if !scanner.Scan() {
				return nil, fmt.Errorf("truncated vimball '%s': '%s' ended early", filename, name)
			}
			content.WriteString(scanner.Text())
			content.WriteString("\n")
		}
		results = append(results, candidate{Name: name, Data: []byte(content.String())})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan vimball '%s': %w", filename, err)
	}
	return results, nil
}

// --- entry point

// turns one downloaded artifact into the list of scheme files worth
// merging. a bare .vim file is its own single candidate. unknown
// artifact types are an error, the caller leaves the download on disk
// for manual inspection.
func unpack_artifact(filename string, data []byte) ([]candidate, error) {
	var candidates []candidate
	var err error

	switch classify_artifact(filename) {
	case artifact_vim:
		candidates = []candidate{{Name: path.Base(strings.ReplaceAll(filename, "\\", "/")), Data: data}}
	case artifact_zip:
		candidates, err = unpack_zip(data)
	case artifact_rar:
		candidates, err = unpack_rar(data)
	case artifact_tar_gz:
		candidates, err = unpack_tar_gz(data)
	case artifact_tar_bz2:
		candidates, err = unpack_tar_bz2(data)
	case artifact_gz:
		candidates, err = unpack_gz(filename, data)
	case artifact_vimball:
		candidates, err = unpack_vimball(filename, data)
	default:
		return nil, fmt.Errorf("'%s': %w", filename, err_unrecognised_artifact)
	}
	if err != nil {
		return nil, err
	}

	var results []candidate
	for _, c := range candidates {
		if is_scheme_candidate(c.Name) {
			results = append(results, c)
		} else {
			slog.Debug("dropping non-scheme archive member", "artifact", filename, "member", c.Name)
		}
	}
	return results, nil
}
