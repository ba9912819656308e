// fetching bytes over HTTP and FTP, with caching and bounded retries.
package main

import (
	"archive/zip"
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/snabb/httpreaderat"
	"github.com/tidwall/gjson"

	bufra "github.com/avvmoto/buf-readerat"
)

var err_fetch_exhausted = errors.New("retry budget exhausted")

// up to 6 attempts per url with a linearly increasing wait between
// them: 0s, 1s, 2s, 3s, 4s, 5s.
const num_attempts = 6

// one backoff step. tests shrink this.
var backoff_unit = time.Second

type ResponseWrapper struct {
	*http.Response
	Body []byte
}

func (rw ResponseWrapper) Text() string {
	return string(rw.Body)
}

// --- response cache
//
// an `http.RoundTripper` that caches whole responses on disk, keyed by
// the md5 of the request url. vim.org is slow and the script pages
// never change within a run, so re-runs against a warm cache are close
// to free.

type cache_transport struct {
	dir string
}

func cache_path(dir string, r *http.Request) string {
	md5sum := md5.Sum([]byte(r.URL.String()))
	return filepath.Join(dir, hex.EncodeToString(md5sum[:]))
}

// reads a cached response as if it were the result of
// `httputil.DumpResponse`: a status line, headers, then the body.
func read_cache_entry(path string) (*http.Response, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(fh), nil)
}

func (t *cache_transport) RoundTrip(req *http.Request) (*http.Response, error) {
	path := cache_path(t.dir, req)
	cached_resp, err := read_cache_entry(path)
	if err == nil {
		slog.Debug("cache HIT", "url", req.URL, "cache-path", path)
		return cached_resp, nil
	}
	slog.Debug("cache MISS", "url", req.URL, "cache-path", path)

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		// do not cache transport errors, pass through
		return resp, err
	}
	if resp.StatusCode != 200 {
		// non-200 response, pass through
		return resp, nil
	}

	dumped_bytes, err := httputil.DumpResponse(resp, true)
	if err != nil {
		slog.Warn("failed to dump response to bytes", "error", err)
		return resp, nil
	}
	err = os.WriteFile(path, dumped_bytes, 0644)
	if err != nil {
		slog.Warn("failed to write response to cache file", "error", err)
		return resp, nil
	}

	cached_resp, err = read_cache_entry(path)
	if err != nil {
		slog.Warn("failed to read cache file back", "error", err)
		return resp, nil
	}
	return cached_resp, nil
}

// client trace to log whether the request's underlying tcp connection
// was re-used.
func trace_context() context.Context {
	client_tracer := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			slog.Debug("HTTP connection reuse", "reused", info.Reused, "remote", info.Conn.RemoteAddr())
		},
	}
	return httptrace.WithClientTrace(context.Background(), client_tracer)
}

// --- downloading

func download(client *http.Client, url string) (ResponseWrapper, error) {
	slog.Debug("HTTP GET", "url", url)
	empty_response := ResponseWrapper{}

	req, err := http.NewRequestWithContext(trace_context(), http.MethodGet, url, nil)
	if err != nil {
		return empty_response, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return empty_response, fmt.Errorf("failed to fetch '%s': %w", url, err)
	}
	defer resp.Body.Close()

	content_bytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty_response, fmt.Errorf("failed to read response body: %w", err)
	}

	return ResponseWrapper{
		Response: resp,
		Body:     content_bytes,
	}, nil
}

func download_with_retries(client *http.Client, url string) (ResponseWrapper, error) {
	for i := 0; i < num_attempts; i++ {
		time.Sleep(time.Duration(i) * backoff_unit)

		resp, err := download(client, url)
		if err != nil {
			slog.Info("fetch failed, trying again", "url", url, "attempt", i+1, "error", err)
			continue
		}
		if resp.StatusCode != 200 {
			slog.Info("unsuccessful response, trying again", "url", url, "attempt", i+1, "response", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return ResponseWrapper{}, fmt.Errorf("failed to fetch '%s' after %d attempts: %w", url, num_attempts, err_fetch_exhausted)
}

// --- runtime colours via the github contents api

var runtime_colors_api = "https://api.github.com/repos/vim/vim/contents/runtime/colors"

type remote_file struct {
	Name string
	URL  string
}

// lists the scheme files in the vim runtime's colors directory.
// the contents api returns a json array of directory entries.
func list_runtime_colors(client *http.Client) ([]remote_file, error) {
	resp, err := download_with_retries(client, runtime_colors_api)
	if err != nil {
		return nil, fmt.Errorf("failed to list runtime colors: %w", err)
	}

	var results []remote_file
	for _, entry := range gjson.Parse(resp.Text()).Array() {
		if entry.Get("type").String() != "file" {
			continue
		}
		name := entry.Get("name").String()
		if !strings.HasSuffix(name, ".vim") {
			continue
		}
		url := entry.Get("download_url").String()
		if url == "" {
			slog.Warn("runtime colors entry has no download url, skipping", "name", name)
			continue
		}
		results = append(results, remote_file{Name: name, URL: url})
	}
	return results, nil
}

// --- runtime colours via an ftp mirror

// lists and retrieves the scheme files under `dir` on an ftp mirror.
// `mirror` is "host[:port]/path/to/runtime/colors".
func fetch_runtime_ftp(mirror string) ([]candidate, error) {
	host, dir, found := strings.Cut(mirror, "/")
	if !found {
		return nil, fmt.Errorf("bad ftp mirror '%s': expected host/path", mirror)
	}
	if !strings.Contains(host, ":") {
		host = host + ":21"
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ftp mirror '%s': %w", host, err)
	}
	defer conn.Quit()

	err = conn.Login("anonymous", "anonymous")
	if err != nil {
		return nil, fmt.Errorf("failed to log in to ftp mirror '%s': %w", host, err)
	}

	entries, err := conn.List(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list '%s' on ftp mirror: %w", dir, err)
	}

	var results []candidate
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile || !strings.HasSuffix(entry.Name, ".vim") {
			continue
		}
		remote_path := dir + "/" + entry.Name
		slog.Debug("FTP RETR", "path", remote_path)
		rdr, err := conn.Retr(remote_path)
		if err != nil {
			slog.Warn("failed to retrieve file from ftp mirror, skipping", "path", remote_path, "error", err)
			continue
		}
		bl, err := io.ReadAll(rdr)
		rdr.Close()
		if err != nil {
			slog.Warn("failed to read file from ftp mirror, skipping", "path", remote_path, "error", err)
			continue
		}
		results = append(results, candidate{Name: entry.Name, Data: bl})
	}
	return results, nil
}

// --- remote zips

// returns the members of a zip file at `url` whose names satisfy
// `filter`, without downloading the whole archive.
// a 'readerat' jumps around the remote file with HTTP Range requests,
// so only the central directory and the matching members transfer.
// the big compilation packs are tens of megabytes for a handful of
// useful files, which makes this worthwhile.
func fetch_zip(client *http.Client, url string, filter func(string) bool) ([]candidate, error) {
	req, err := http.NewRequestWithContext(trace_context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	http_readerat, err := httpreaderat.New(client, req, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create a HTTPReaderAt: %w", err)
	}

	buffer_size := 1024 * 1024 // 1MiB
	buffered_http_readerat := bufra.NewBufReaderAt(http_readerat, buffer_size)
	zip_rdr, err := zip.NewReader(buffered_http_readerat, http_readerat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to create a zip reader: %w", err)
	}

	var results []candidate
	for _, entry := range zip_rdr.File {
		if !filter(entry.Name) {
			continue
		}
		slog.Debug("found zipped file name match", "filename", entry.Name)

		fh, err := entry.Open()
		if err != nil {
			// this file is probably busted, stop trying to read it altogether.
			return nil, fmt.Errorf("failed to open zipped file entry: %w", err)
		}
		bl, err := io.ReadAll(fh)
		fh.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read zipped file entry: %w", err)
		}
		results = append(results, candidate{Name: entry.Name, Data: bl})
	}
	return results, nil
}
