package playlist

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// userAgent mimics a desktop player; some directory servers refuse unknown
// clients.
const userAgent = "iTunes/12.9.2 (Macintosh; OS X 10.14.3) AppleWebKit/606.4.5"

// maxPlaylistSize caps how much of a response is read while parsing; a
// playlist larger than this is not a playlist.
const maxPlaylistSize = 256 << 10

var httpClient = &http.Client{
	Transport: &http.Transport{
		DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
	},
	Timeout: 10 * time.Second,
}

// Resolve returns the stream URL behind rawurl. Playlist URLs are fetched
// and their first entry returned; anything else passes through unchanged,
// so resolution never opens the stream itself.
func Resolve(ctx context.Context, rawurl string) (string, error) {
	if !looksLikePlaylist(rawurl) {
		return rawurl, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("accept", "*/*")
	req.Header.Add("user-agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("playlist fetch returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	if isPLS(rawurl, resp.Header.Get("Content-Type"), body) {
		return parsePLS(body)
	}

	return parseM3U(body)
}

func looksLikePlaylist(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil {
		return false
	}

	switch strings.ToLower(path.Ext(u.Path)) {
	case ".pls", ".m3u", ".m3u8":
		return true
	}

	return false
}

func isPLS(rawurl, contentType string, body []byte) bool {
	if strings.Contains(contentType, "audio/x-scpls") || strings.Contains(contentType, "application/pls+xml") {
		return true
	}
	if u, err := url.Parse(rawurl); err == nil && strings.EqualFold(path.Ext(u.Path), ".pls") {
		return true
	}

	return bytes.Contains(body, []byte("[playlist]"))
}

// parsePLS returns the first FileN entry of a PLS playlist.
func parsePLS(body []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "File") {
			continue
		}
		if _, value, ok := strings.Cut(line, "="); ok {
			if u := strings.TrimSpace(value); u != "" {
				return u, nil
			}
		}
	}

	return "", fmt.Errorf("no stream URL found in PLS playlist")
}

// parseM3U returns the first URL entry of an M3U playlist, skipping
// comments.
func parseM3U(body []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line, nil
		}
	}

	return "", fmt.Errorf("no stream URL found in M3U playlist")
}
