// Package probe performs a lightweight classification of a resolved playable
// URL, checking that it answers with a parsable HLS playlist. It backs the
// debug resolve endpoint only; the serving path never probes.
package probe

import (
	"bufio"
	"context"
	"net/http"
	"time"

	"tvvoo-addon/work/client"
	"tvvoo-addon/work/logger"

	"github.com/grafov/m3u8"
)

const probeTimeout = 10 * time.Second

// Result describes what a resolved URL answered with.
type Result struct {
	Status   int    `json:"status"`             // HTTP status of the playlist fetch
	Playlist string `json:"playlist,omitempty"` // "master", "media" or "" when not parsable
	Variants int    `json:"variants,omitempty"` // variant count for master playlists
	Segments int    `json:"segments,omitempty"` // segment count for media playlists
}

// Classify fetches the URL with the playback headers and classifies the body
// as an HLS master or media playlist. Best-effort: any failure yields a
// Result with whatever was learned up to that point.
func Classify(ctx context.Context, bc *client.BackendClient, log *logger.Logger, rawURL string, headers map[string]string) Result {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := bc.Client.Do(req)
	if err != nil {
		log.Debug("{probe - Classify} fetch failed: %v", err)
		return Result{}
	}
	defer resp.Body.Close()

	out := Result{Status: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		return out
	}

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(resp.Body), true)
	if err != nil {
		log.Debug("{probe - Classify} not an HLS playlist: %v", err)
		return out
	}

	switch listType {
	case m3u8.MASTER:
		out.Playlist = "master"
		if master, ok := playlist.(*m3u8.MasterPlaylist); ok {
			out.Variants = len(master.Variants)
		}
	case m3u8.MEDIA:
		out.Playlist = "media"
		if media, ok := playlist.(*m3u8.MediaPlaylist); ok {
			out.Segments = int(media.Count())
		}
	}

	return out
}
