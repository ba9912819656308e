// colour scheme metadata extraction, the same-scheme classifier and
// the obsolescence resolver.
package main

import (
	"os"
	"regexp"
	"strings"
)

// vim colour scheme headers are free-form comments. the first and last
// handful of lines carry everything we can hope to learn about a file:
// who maintains it, a version and when it last changed.
const num_head_lines = 10
const num_tail_lines = 10

type SchemeFile struct {
	Path string
	Size int64
	Head []string // first 10 lines, raw
	Tail []string // last 10 lines, raw
}

// builds a `SchemeFile` from raw file contents.
// a BOM confuses line matching and is stripped before splitting,
// but `Size` stays the on-disk byte length.
func new_scheme_file(path string, data []byte) SchemeFile {
	stripped, err := elide_bom(data)
	if err != nil {
		stripped = data
	}
	lines := strings.Split(string(stripped), "\n")

	head := lines
	if len(head) > num_head_lines {
		head = head[:num_head_lines]
	}
	tail := lines
	if len(tail) > num_tail_lines {
		tail = tail[len(tail)-num_tail_lines:]
	}

	return SchemeFile{
		Path: path,
		Size: int64(len(data)),
		Head: head,
		Tail: tail,
	}
}

func read_scheme_file(path string) (SchemeFile, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SchemeFile{}, nil, err
	}
	return new_scheme_file(path, data), data, nil
}

// --- extraction
//
// all extraction is best-effort string matching. absence is common and
// is an ordinary result (empty string), never an error.

// returns the remainder of the first line in `lines` containing `label`.
func label_rest(lines []string, label string) string {
	for _, line := range lines {
		idx := strings.Index(line, label)
		if idx == -1 {
			continue
		}
		rest := line[idx+len(label):]
		rest = strings.TrimLeft(rest, ":")
		return strings.TrimSpace(rest)
	}
	return ""
}

// returns the first whitespace-delimited token following `label`.
func label_token(lines []string, label string) string {
	for _, line := range lines {
		idx := strings.Index(line, label)
		if idx == -1 {
			continue
		}
		fields := strings.Fields(line[idx+len(label):])
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// the maintainer identity, e.g. "Bram Moolenaar <Bram@vim.org>".
// "Maintainer:" is the conventional label but plenty of schemes use
// "Author" or "author" instead. label matching is case sensitive.
func scheme_maintainer(sf SchemeFile) string {
	for _, label := range []string{"Maintainer:", "Author", "author"} {
		rest := label_rest(sf.Head, label)
		if rest != "" {
			return rest
		}
	}
	return ""
}

var year_pattern = regexp.MustCompile(`20[0-9][0-9]`)

// the four digit year of the last change, e.g. "2010".
// only years 20xx are recognised, matching the conventions in the wild.
func scheme_year(sf SchemeFile) string {
	for _, label := range []string{"Last Change:", "Last Modified:"} {
		for _, line := range sf.Head {
			idx := strings.Index(line, label)
			if idx == -1 {
				continue
			}
			year := year_pattern.FindString(line[idx+len(label):])
			if year != "" {
				return year
			}
		}
	}
	return ""
}

var bare_version_pattern = regexp.MustCompile(`\sv[0-9]+\.\S*`)

// the version token, e.g. "1.0" or "v2.1b".
func scheme_version(sf SchemeFile) string {
	token := label_token(sf.Head, "Version:")
	if token != "" {
		return token
	}
	token = label_token(sf.Head, "version")
	if token != "" {
		return token
	}
	for _, line := range sf.Head {
		match := bare_version_pattern.FindString(line)
		if match != "" {
			return strings.TrimSpace(match)
		}
	}
	return ""
}

// --- classification

// decides whether two files are the same colour scheme.
// a cascade of heuristics, strongest signal first, short-circuiting on
// the first hit. the step order is deliberate and load bearing: the
// maintainer identity is the best signal but is frequently absent or
// written inconsistently ("Foo Bar", "Foo Bar <foo@bar.org>"), so
// token-wise partial matches and raw line comparisons back it up.
func same_scheme(a, b SchemeFile) bool {
	am := scheme_maintainer(a)
	bm := scheme_maintainer(b)

	if am != "" && bm != "" {
		if am == bm {
			return true
		}
		at := strings.Fields(am)
		bt := strings.Fields(bm)

		// same name, trailing token (usually an email address) changed
		if len(at) == len(bt) && len(at) > 3 {
			same := true
			for i := 0; i < len(at)-1; i++ {
				if at[i] != bt[i] {
					same = false
					break
				}
			}
			if same {
				return true
			}
		}
		// same trailing token, usually the email address
		if at[len(at)-1] == bt[len(bt)-1] {
			return true
		}
		// same second token, usually the surname
		if len(at) >= 3 && len(bt) >= 3 && at[1] == bt[1] {
			return true
		}
		// maintainers present but disagree. fall through to the raw
		// line comparisons, headers get reformatted more often than
		// colour definitions do.
	}

	// five of the first six lines matching is close enough
	matching := 0
	for i := 0; i < 6; i++ {
		if line_at(a.Head, i) == line_at(b.Head, i) {
			matching++
		}
	}
	if matching >= 5 {
		return true
	}

	// identical last ten lines
	for i := 0; i < num_tail_lines; i++ {
		if line_at(a.Tail, i) != line_at(b.Tail, i) {
			return false
		}
	}
	return true
}

// --- resolution

type resolution int

const (
	keep_both resolution = iota // ambiguous, no winner
	discard_a
	discard_b
)

// given two files already judged to be the same scheme, decides which
// one is obsolete. version beats date beats size, each comparison only
// applying when both files carry the signal.
//
// version and year comparisons are PLAIN lexicographic string
// comparisons, not numeric: "10" sorts before "9". this matches the
// behaviour of every tool that has ever consumed these directories and
// must not be "fixed".
//
// equal sizes keep the first argument. callers pass the file already
// on disk first, so ties favour the incumbent.
func should_delete(a, b SchemeFile) resolution {
	av := scheme_version(a)
	bv := scheme_version(b)
	if av != "" && bv != "" {
		if av < bv {
			return discard_a
		}
		if bv < av {
			return discard_b
		}
		// identical version strings on differing bytes carry no signal
		return keep_both
	}

	ay := scheme_year(a)
	by := scheme_year(b)
	if ay != "" && by != "" {
		if ay < by {
			return discard_a
		}
		if by < ay {
			return discard_b
		}
		return keep_both
	}

	if a.Size < b.Size {
		return discard_a
	}
	if b.Size < a.Size {
		return discard_b
	}
	return discard_b
}
