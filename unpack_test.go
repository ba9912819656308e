package main

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_classify_artifact(t *testing.T) {
	cases := map[string]artifact_kind{
		"":                 artifact_unknown,
		"README":           artifact_unknown,
		"desert.vim":       artifact_vim,
		"Desert.VIM":       artifact_vim,
		"pack.zip":         artifact_zip,
		"pack.rar":         artifact_rar,
		"pack.tar.gz":      artifact_tar_gz,
		"pack.tgz":         artifact_tar_gz,
		"pack.tar.bz2":     artifact_tar_bz2,
		"pack.tbz2":        artifact_tar_bz2,
		"desert.vim.gz":    artifact_gz,
		"bundle.vba":       artifact_vimball,
		"bundle.vmb":       artifact_vimball,
		"bundle.vba.gz":    artifact_vimball,
		"bundle.vmb.gz":    artifact_vimball,
		"screenshot.png":   artifact_unknown,
		"desert.vim.patch": artifact_unknown,
	}
	for given, expected := range cases {
		assert.Equal(t, expected, classify_artifact(given), given)
	}
}

func Test_is_scheme_candidate(t *testing.T) {
	cases := map[string]bool{
		"":                     false,
		"desert.vim":           true,  // archive root
		"README":               false, // not a .vim file
		"colors/desert.vim":    true,
		"pack/colors/a.vim":    true,
		"after/colors/a.vim":   true,  // "colors" wins over "after"
		"syntax/foo.vim":       false,
		"autoload/foo.vim":     false,
		"plugin/foo.vim":       false,
		"indent/foo.vim":       false,
		"ftplugin/foo.vim":     false,
		"after/syntax/foo.vim": false,
		"themes/foo.vim":       true,  // unknown directory, give it a chance
		"colors\\win\\sep.vim": true,
		"colors/notes.txt":     false,
	}
	for given, expected := range cases {
		assert.Equal(t, expected, is_scheme_candidate(given), given)
	}
}

func make_zip(t *testing.T, files map[string]string) []byte {
	var buf bytes.Buffer
	zip_wtr := zip.NewWriter(&buf)
	for name, content := range files {
		fh, err := zip_wtr.Create(name)
		require.NoError(t, err)
		_, err = fh.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zip_wtr.Close())
	return buf.Bytes()
}

func make_tar_gz(t *testing.T, files map[string]string) []byte {
	var buf bytes.Buffer
	gz_wtr := gzip.NewWriter(&buf)
	tar_wtr := tar.NewWriter(gz_wtr)
	for name, content := range files {
		err := tar_wtr.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		})
		require.NoError(t, err)
		_, err = tar_wtr.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tar_wtr.Close())
	require.NoError(t, gz_wtr.Close())
	return buf.Bytes()
}

func candidate_names(candidates []candidate) []string {
	var names []string
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return names
}

func Test_unpack_zip_artifact(t *testing.T) {
	data := make_zip(t, map[string]string{
		"pack/colors/desert.vim": "hi Normal guibg=black\n",
		"pack/syntax/desert.vim": "syntax machinery\n",
		"pack/README.txt":        "not a scheme\n",
	})

	candidates, err := unpack_artifact("pack.zip", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"pack/colors/desert.vim"}, candidate_names(candidates))
	assert.Equal(t, []byte("hi Normal guibg=black\n"), candidates[0].Data)
}

func Test_unpack_tar_gz_artifact(t *testing.T) {
	data := make_tar_gz(t, map[string]string{
		"colors/blue.vim": "hi Normal guibg=blue\n",
		"plugin/blue.vim": "plugin machinery\n",
	})

	candidates, err := unpack_artifact("pack.tar.gz", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"colors/blue.vim"}, candidate_names(candidates))
}

func Test_unpack_gz_artifact(t *testing.T) {
	var buf bytes.Buffer
	gz_wtr := gzip.NewWriter(&buf)
	_, err := gz_wtr.Write([]byte("hi Normal guibg=blue\n"))
	require.NoError(t, err)
	require.NoError(t, gz_wtr.Close())

	candidates, err := unpack_artifact("blue.vim.gz", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"blue.vim"}, candidate_names(candidates))
	assert.Equal(t, []byte("hi Normal guibg=blue\n"), candidates[0].Data)
}

var sample_vimball = `" Vimball Archiver by Charles E. Campbell, Jr., Ph.D.
UseVimball
finish
colors/nightsky.vim	[[[1
3
" nightsky colour scheme
set background=dark
hi Normal guibg=#000020
plugin/nightsky.vim	[[[1
1
" plugin machinery
doc/nightsky.txt	[[[1
2
some
documentation
`

func Test_unpack_vimball_artifact(t *testing.T) {
	candidates, err := unpack_artifact("nightsky.vba", []byte(sample_vimball))
	require.NoError(t, err)
	assert.Equal(t, []string{"colors/nightsky.vim"}, candidate_names(candidates))
	expected := "\" nightsky colour scheme\nset background=dark\nhi Normal guibg=#000020\n"
	assert.Equal(t, []byte(expected), candidates[0].Data)
}

func Test_unpack_vimball_truncated(t *testing.T) {
	truncated := `UseVimball
finish
colors/foo.vim	[[[1
5
only
two lines
`
	_, err := unpack_vimball("foo.vba", []byte(truncated))
	assert.Error(t, err)
}

func Test_unpack_bare_vim_file(t *testing.T) {
	candidates, err := unpack_artifact("colors/desert.vim", []byte("hi Normal\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"desert.vim"}, candidate_names(candidates))
}

func Test_unpack_unrecognised_artifact(t *testing.T) {
	_, err := unpack_artifact("installer.exe", []byte("MZ..."))
	assert.ErrorIs(t, err, err_unrecognised_artifact)
}
