package batch

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/cwygoda/ytaudio/internal/domain"
)

// ParseBatchFile reads one URL per line, skipping blank lines and lines
// starting with #.
func ParseBatchFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyBatch, path)
	}
	return urls, nil
}

// NormalizeURL returns a key under which equivalent URLs compare equal.
// YouTube links in any of their forms become "youtube:<id>".
func NormalizeURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(u.Host)
	if strings.Contains(host, "youtube.com") || strings.Contains(host, "youtu.be") {
		if id := youtubeID(u, host); id != "" {
			return "youtube:" + id
		}
	}
	return raw
}

func youtubeID(u *url.URL, host string) string {
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	path := strings.Trim(u.Path, "/")
	if strings.Contains(host, "youtu.be") && path != "" && !strings.Contains(path, "/") {
		return path
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 2 && (parts[0] == "embed" || parts[0] == "v") {
		return parts[1]
	}
	return ""
}

// DeduplicateURLs keeps the first occurrence of every normalized URL.
func DeduplicateURLs(urls []string) (unique, duplicates []string) {
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		key := NormalizeURL(u)
		if seen[key] {
			duplicates = append(duplicates, u)
			continue
		}
		seen[key] = true
		unique = append(unique, u)
	}
	return unique, duplicates
}
