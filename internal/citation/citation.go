// Package citation turns the pipeline's citation metadata into inline links.
package citation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// Source is one cited web page
type Source struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Snippets []string `json:"snippets"`
}

// Index maps a citation number to its source
type Index map[int]Source

type urlToInfo struct {
	URLToUnifiedIndex map[string]int `json:"url_to_unified_index"`
	URLToInfo         map[string]struct {
		Title    string   `json:"title"`
		Snippets []string `json:"snippets"`
	} `json:"url_to_info"`
}

// Parse builds the citation index from the pipeline's url_to_info document
func Parse(raw string) (Index, error) {
	var doc urlToInfo
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode citation metadata: %w", err)
	}

	index := make(Index, len(doc.URLToUnifiedIndex))
	for url, n := range doc.URLToUnifiedIndex {
		info := doc.URLToInfo[url]
		index[n] = Source{URL: url, Title: info.Title, Snippets: info.Snippets}
	}
	return index, nil
}

// InlineLinks rewrites every [n] marker to [[n]](url). Unknown numbers link to "#".
func InlineLinks(text string, index Index) string {
	return markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		num := markerPattern.FindStringSubmatch(m)[1]
		url := "#"
		if n, err := strconv.Atoi(num); err == nil {
			if src, ok := index[n]; ok && src.URL != "" {
				url = src.URL
			}
		}
		return "[[" + num + "]](" + url + ")"
	})
}
