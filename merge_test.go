package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scheme file contents whose every line is unique to `prefix`.
func distinct_content(prefix string, num_lines int) []byte {
	var b strings.Builder
	for i := 0; i < num_lines; i++ {
		fmt.Fprintf(&b, "hi %s_group_%d guifg=#00000%d\n", prefix, i, i)
	}
	return []byte(b.String())
}

func list_dir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func read_file(t *testing.T, path string) []byte {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// an empty target directory takes the incoming file verbatim.
func Test_merge_into_empty_dir(t *testing.T) {
	dir := t.TempDir()
	content := distinct_content("desert", 12)

	outcome, err := merge_scheme_file(dir, "colors/desert.vim", content)
	require.NoError(t, err)
	assert.Equal(t, merged_new, outcome)
	assert.Equal(t, []string{"desert.vim"}, list_dir(t, dir))
	assert.Equal(t, content, read_file(t, filepath.Join(dir, "desert.vim")))
}

// merging the same bytes twice is a no-op the second time.
func Test_merge_idempotent(t *testing.T) {
	dir := t.TempDir()
	content := distinct_content("desert", 12)

	_, err := merge_scheme_file(dir, "desert.vim", content)
	require.NoError(t, err)
	outcome, err := merge_scheme_file(dir, "desert.vim", content)
	require.NoError(t, err)
	assert.Equal(t, merged_duplicate, outcome)
	assert.Equal(t, []string{"desert.vim"}, list_dir(t, dir))
}

// a newer version of the same scheme overwrites the occupant in place.
func Test_merge_overwrites_obsolete(t *testing.T) {
	dir := t.TempDir()
	existing := []byte("\" Maintainer: Foo Bar\n\" Version: 1.0\nhi Normal guibg=black\n")
	incoming := []byte("\" Maintainer: Foo Bar\n\" Version: 2.0\nhi Normal guibg=grey20\nhi Cursor guibg=green\n")

	_, err := merge_scheme_file(dir, "desert.vim", existing)
	require.NoError(t, err)
	outcome, err := merge_scheme_file(dir, "desert.vim", incoming)
	require.NoError(t, err)
	assert.Equal(t, merged_overwrite, outcome)
	assert.Equal(t, []string{"desert.vim"}, list_dir(t, dir))
	assert.Equal(t, incoming, read_file(t, filepath.Join(dir, "desert.vim")))
}

// an older version of the same scheme does not displace the occupant.
func Test_merge_keeps_newer_occupant(t *testing.T) {
	dir := t.TempDir()
	existing := []byte("\" Maintainer: Foo Bar\n\" Version: 2.0\nhi Normal guibg=grey20\n")
	incoming := []byte("\" Maintainer: Foo Bar\n\" Version: 1.0\nhi Normal guibg=black\n")

	_, err := merge_scheme_file(dir, "desert.vim", existing)
	require.NoError(t, err)
	outcome, err := merge_scheme_file(dir, "desert.vim", incoming)
	require.NoError(t, err)
	// the obsolete incoming lands in the next slot and the resolve
	// pass deals with it later.
	assert.Equal(t, merged_variant, outcome)
	assert.Equal(t, []string{"desert.vim", "desert_1.vim"}, list_dir(t, dir))
	assert.Equal(t, existing, read_file(t, filepath.Join(dir, "desert.vim")))
}

// an unrelated scheme that happens to share the name takes the next
// variant slot.
func Test_merge_unrelated_name_collision(t *testing.T) {
	dir := t.TempDir()
	existing := distinct_content("original", 12)
	incoming := distinct_content("impostor", 12)

	_, err := merge_scheme_file(dir, "desert.vim", existing)
	require.NoError(t, err)
	outcome, err := merge_scheme_file(dir, "desert.vim", incoming)
	require.NoError(t, err)
	assert.Equal(t, merged_variant, outcome)
	assert.Equal(t, []string{"desert.vim", "desert_1.vim"}, list_dir(t, dir))
	assert.Equal(t, existing, read_file(t, filepath.Join(dir, "desert.vim")))
	assert.Equal(t, incoming, read_file(t, filepath.Join(dir, "desert_1.vim")))
}

// five occupied slots and nothing resolvable is a terminal failure:
// the incoming file is dropped, the directory untouched.
func Test_merge_slots_exhausted(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < max_variants; i++ {
		_, err := merge_scheme_file(dir, "foo.vim", distinct_content(fmt.Sprintf("foo%d", i), 12))
		require.NoError(t, err)
	}
	before := list_dir(t, dir)
	require.Len(t, before, max_variants)

	_, err := merge_scheme_file(dir, "foo.vim", distinct_content("onemore", 12))
	assert.ErrorIs(t, err, err_merge_slots_exhausted)
	assert.Equal(t, before, list_dir(t, dir))
}

// same scheme in every slot but never a winner: flagged for review
// rather than lumped in with the exhaustion error.
func Test_merge_ambiguous(t *testing.T) {
	dir := t.TempDir()
	header := "\" Maintainer: Foo Bar\n\" Version: 1.0\n"
	for i := 0; i < max_variants; i++ {
		content := []byte(header + string(distinct_content(fmt.Sprintf("foo%d", i), 10)))
		_, err := merge_scheme_file(dir, "foo.vim", content)
		require.NoError(t, err)
	}

	incoming := []byte(header + string(distinct_content("onemore", 10)))
	_, err := merge_scheme_file(dir, "foo.vim", incoming)
	assert.ErrorIs(t, err, err_merge_ambiguous)
	assert.Len(t, list_dir(t, dir), max_variants)
}

// the resolve pass deletes a "_1" variant that loses to its primary.
func Test_resolve_variants(t *testing.T) {
	dir := t.TempDir()

	keep := []byte("\" Maintainer: Foo Bar\n\" Last Change: 2010 Mar 23\nhi Normal guibg=grey20\n")
	lose := []byte("\" Maintainer: Foo Bar\n\" Last Change: 2008 Jan 1\nhi Normal guibg=black\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bar.vim"), keep, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bar_1.vim"), lose, 0644))

	// unrelated variant pair stays put
	require.NoError(t, os.WriteFile(filepath.Join(dir, "baz.vim"), distinct_content("baz", 12), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "baz_1.vim"), distinct_content("other", 12), 0644))

	// orphan variant with no primary stays put
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan_1.vim"), distinct_content("orphan", 12), 0644))

	require.NoError(t, resolve_variants(dir))
	assert.Equal(t, []string{"bar.vim", "baz.vim", "baz_1.vim", "orphan_1.vim"}, list_dir(t, dir))
	assert.Equal(t, keep, read_file(t, filepath.Join(dir, "bar.vim")))

	// idempotent: a second pass changes nothing
	require.NoError(t, resolve_variants(dir))
	assert.Equal(t, []string{"bar.vim", "baz.vim", "baz_1.vim", "orphan_1.vim"}, list_dir(t, dir))
}
