package logos

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tvvoo-addon/work/client"
	"tvvoo-addon/work/config"

	"github.com/grafana/regexp"
)

// feedCountry is the country the playlist feed targets; the feed carries
// Italian channels only.
const feedCountry = "it"

// enrichTimeout bounds each enrichment HTTP request.
const enrichTimeout = 8 * time.Second

var trailingCountryCode = regexp.MustCompile(`(?i)-[a-z]{2}$`)

// repoEntry is one file entry from the GitHub contents API; only name and
// type matter here.
type repoEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// cleanupFilename derives a channel name from a logo filename:
// "sky-sports-tennis-uhd-uk.png" -> "sky sports tennis uhd".
func cleanupFilename(fname string) string {
	s := strings.TrimSuffix(strings.ToLower(fname), ".png")
	s = trailingCountryCode.ReplaceAllString(s, "")
	s = nonAlnumRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// EnrichFromRepo adds entries from the tv-logos repository's per-country
// directory listings. Countries are fetched concurrently on the worker pool;
// each listing only ever adds previously-absent keys. Best-effort: a failed
// country is skipped, the pass never fails as a whole.
func (s *Store) EnrichFromRepo(ctx context.Context) int {
	var added int64
	var wg sync.WaitGroup

	for _, c := range config.Countries() {
		if c.LogoDir == "" {
			continue
		}
		country := c
		wg.Add(1)
		task := func() {
			defer wg.Done()
			atomic.AddInt64(&added, int64(s.enrichCountry(ctx, country)))
		}
		if err := s.Pool.Submit(task); err != nil {
			// pool saturated or released: do the work inline
			task()
		}
	}
	wg.Wait()

	if added > 0 {
		s.Persist()
		s.Logger.Info("{logos - EnrichFromRepo} added %d entries", added)
	}
	return int(added)
}

// enrichCountry fetches one country's directory listing and records every
// .png file under its cleaned name.
func (s *Store) enrichCountry(ctx context.Context, c config.Country) int {
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	apiURL := s.Config.LogoRepoAPI + "/" + url.PathEscape(c.LogoDir)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := s.Client.Do(req)
	if err != nil {
		s.Logger.Debug("{logos - enrichCountry} listing failed for %s: %v", c.ID, err)
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.Logger.Debug("{logos - enrichCountry} listing answered %d for %s", resp.StatusCode, c.ID)
		return 0
	}

	var entries []repoEntry
	if err := client.DecodeJSON(resp, &entries); err != nil {
		s.Logger.Debug("{logos - enrichCountry} undecodable listing for %s: %v", c.ID, err)
		return 0
	}

	added := 0
	for _, e := range entries {
		if e.Type != "file" || !strings.HasSuffix(strings.ToLower(e.Name), ".png") {
			continue
		}
		rawURL := s.Config.LogoRepoRaw + "/" + url.PathEscape(c.LogoDir) + "/" + url.PathEscape(e.Name)
		if s.Add(Key(c.ID, cleanupFilename(e.Name)), rawURL) {
			added++
		}
	}
	return added
}

// EnrichFromFeed adds entries from the single designated playlist feed,
// extracting tvg-logo attributes from EXTINF lines. Add-only and
// best-effort like the repository pass.
func (s *Store) EnrichFromFeed(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Config.LogoFeedURL, nil)
	if err != nil {
		return 0
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		s.Logger.Debug("{logos - EnrichFromFeed} feed fetch failed: %v", err)
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.Logger.Debug("{logos - EnrichFromFeed} feed answered %d", resp.StatusCode)
		return 0
	}

	body, err := client.Body(resp)
	if err != nil {
		return 0
	}

	added := 0
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "#EXTINF") {
			continue
		}
		attrs := parseEXTINF(line)
		name := CleanupDisplayName(attrs["tvg-name"])
		logo := attrs["tvg-logo"]
		if name == "" || logo == "" {
			continue
		}
		if s.Add(Key(feedCountry, name), logo) {
			added++
		}
	}

	if added > 0 {
		s.Persist()
		s.Logger.Info("{logos - EnrichFromFeed} added %d entries", added)
	}
	return added
}

// parseEXTINF splits an EXTINF line into its key="value" attributes plus the
// display name after the last unquoted comma, stored as tvg-name.
func parseEXTINF(line string) map[string]string {
	attrs := make(map[string]string)
	line = strings.TrimPrefix(line, "#EXTINF:")

	// Find the last comma that separates attributes from the channel name.
	lastComma := -1
	inQuotes := false
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] == '"' {
			inQuotes = !inQuotes
		} else if line[i] == ',' && !inQuotes {
			lastComma = i
			break
		}
	}
	if lastComma == -1 {
		return attrs
	}

	attrPart := strings.TrimSpace(line[:lastComma])
	channelName := strings.TrimSpace(line[lastComma+1:])

	parts := splitQuoted(attrPart)
	if len(parts) > 0 {
		attrs["duration"] = parts[0]
	}
	for i := 1; i < len(parts); i++ {
		if eq := strings.Index(parts[i], "="); eq != -1 {
			key := parts[i][:eq]
			value := strings.Trim(parts[i][eq+1:], "\"")
			attrs[key] = value
		}
	}

	if channelName != "" {
		attrs["tvg-name"] = channelName
	}
	return attrs
}

// splitQuoted splits on spaces while keeping quoted values (which may contain
// spaces) intact.
func splitQuoted(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
