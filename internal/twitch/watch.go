package twitch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const usherBaseURL = "https://usher.ttvnw.net/api/channel/hls/"

// SendWatchHeartbeat simulates a viewer on the channel by walking the HLS
// chain down to the newest media segment of the lowest quality variant.
func (ac *ApiClient) SendWatchHeartbeat(ctx context.Context, login, streamID, channelID string) error {
	var resp playbackTokenResponse
	if err := ac.gql.do(ctx, playbackTokenOp(login), &resp); err != nil {
		return err
	}
	token := resp.StreamPlaybackAccessToken
	if token == nil || token.Value == "" {
		return fmt.Errorf("playback token of %s: %w", login, ErrMissingField)
	}

	query := url.Values{}
	query.Set("sig", token.Signature)
	query.Set("token", token.Value)
	query.Set("allow_source", "true")
	query.Set("p", strconv.Itoa(rand.Intn(9_000_000)+1_000_000))
	masterURL := ac.usherBaseURL + url.PathEscape(login) + ".m3u8?" + query.Encode()

	master, err := ac.fetchPlaylist(ctx, masterURL)
	if err != nil {
		return fmt.Errorf("error fetching master playlist of %s: %w", login, err)
	}
	variantURL, ok := lowestBandwidthVariant(master)
	if !ok {
		// an offline channel answers with an empty or error playlist
		return fmt.Errorf("%s (stream %s): %w", login, streamID, ErrNotLive)
	}

	media, err := ac.fetchPlaylist(ctx, variantURL)
	if err != nil {
		return fmt.Errorf("error fetching media playlist of %s: %w", login, err)
	}
	segmentURL, ok := newestSegment(media)
	if !ok {
		return fmt.Errorf("media playlist of %s has no segments", login)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, resolveRef(variantURL, segmentURL), nil)
	if err != nil {
		return err
	}
	segResp, err := ac.media.Do(req)
	if err != nil {
		return fmt.Errorf("error requesting segment of %s: %w", login, err)
	}
	segResp.Body.Close()
	if segResp.StatusCode != http.StatusOK {
		return fmt.Errorf("segment of %s (channel %s): unexpected status %d", login, channelID, segResp.StatusCode)
	}
	return nil
}

func (ac *ApiClient) fetchPlaylist(ctx context.Context, playlistURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := ac.media.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func lowestBandwidthVariant(playlist string) (string, bool) {
	var (
		best      string
		bestRate  = -1
		pending   = -1
		inVariant bool
	)

	scanner := bufio.NewScanner(strings.NewReader(playlist))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			inVariant = true
			pending = attributeInt(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"), "BANDWIDTH")
		case line == "" || strings.HasPrefix(line, "#"):
		case inVariant:
			if bestRate < 0 || (pending >= 0 && pending < bestRate) {
				best, bestRate = line, pending
			}
			inVariant = false
		}
	}

	return best, best != ""
}

func newestSegment(playlist string) (string, bool) {
	var last string
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		last = line
	}
	return last, last != ""
}

func attributeInt(attrs, name string) int {
	for _, attr := range strings.Split(attrs, ",") {
		key, value, ok := strings.Cut(attr, "=")
		if !ok || key != name {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return -1
		}
		return n
	}
	return -1
}

func resolveRef(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
