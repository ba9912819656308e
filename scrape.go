// scraping www.vim.org for colour scheme scripts and download links.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var search_page_url = "https://www.vim.org/scripts/script_search_results.php?script_type=color%%20scheme&show_me=%d&result_ptr=%d"
var script_page_url = "https://www.vim.org/scripts/script.php?script_id=%s"
var download_script_url = "https://www.vim.org/scripts/download_script.php?src_id=%s"

var script_id_pattern = regexp.MustCompile(`script_id=([0-9]+)`)
var src_id_pattern = regexp.MustCompile(`src_id=([0-9]+)`)

// screenshots and colour swatches share the download tables with the
// actual scripts. not worth fetching.
var image_extensions = []string{".png", ".gif", ".jpg", ".jpeg", ".bmp"}

func is_image_filename(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range image_extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// a downloadable release of a vim.org script.
type script_download struct {
	SrcId    string
	Filename string
}

// pulls the script ids out of one search results page, ordered as they
// appear on the page.
func parse_search_page(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results page: %w", err)
	}

	var ids []string
	doc.Find(`a[href*="script.php?script_id="]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		matches := script_id_pattern.FindStringSubmatch(href)
		if len(matches) == 2 {
			ids = append(ids, matches[1])
		}
	})
	return unique(ids), nil
}

// walks the paginated search results for colour scheme scripts,
// accumulating script ids until a page stops yielding new ones.
func discover_script_ids(client *http.Client) ([]string, error) {
	per_page := 400
	ptr := 0
	var all_ids []string

	for {
		url := fmt.Sprintf(search_page_url, per_page, ptr)
		resp, err := download_with_retries(client, url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch search results page: %w", err)
		}

		ids, err := parse_search_page(resp.Text())
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		before := len(all_ids)
		all_ids = unique(append(all_ids, ids...))
		if len(all_ids) == before {
			// nothing new, vim.org serves the last page again when the
			// pointer runs off the end.
			break
		}

		slog.Debug("scraped search results page", "result-ptr", ptr, "total-scripts", len(all_ids))
		ptr += per_page
	}
	return all_ids, nil
}

// pulls the download candidates out of a script page, newest release
// first, as laid out in the page's releases table.
func parse_script_page(html string) ([]script_download, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse script page: %w", err)
	}

	var downloads []script_download
	doc.Find(`a[href*="download_script.php?src_id="]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		matches := src_id_pattern.FindStringSubmatch(href)
		if len(matches) != 2 {
			return
		}
		downloads = append(downloads, script_download{
			SrcId:    matches[1],
			Filename: strings.TrimSpace(sel.Text()),
		})
	})
	return downloads, nil
}

// resolves a script id to its newest non-image download.
// image candidates are skipped in favour of the next row.
func discover_download(client *http.Client, script_id string) (script_download, error) {
	empty_response := script_download{}

	url := fmt.Sprintf(script_page_url, script_id)
	resp, err := download_with_retries(client, url)
	if err != nil {
		return empty_response, fmt.Errorf("failed to fetch script page for script %s: %w", script_id, err)
	}

	downloads, err := parse_script_page(resp.Text())
	if err != nil {
		return empty_response, err
	}

	for _, dl := range downloads {
		if dl.Filename == "" {
			continue
		}
		if is_image_filename(dl.Filename) {
			slog.Debug("skipping image download candidate", "script-id", script_id, "filename", dl.Filename)
			continue
		}
		return dl, nil
	}
	return empty_response, fmt.Errorf("script %s has no usable downloads", script_id)
}
