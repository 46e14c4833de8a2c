// Package provider talks to the external playback sources a room can follow:
// the Spotify Web API for jukebox rooms and icecast/shoutcast status
// endpoints for radio rooms.
package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/waveroom/backend/internal/models"
)

// StatusError reports a non-success HTTP status from an upstream API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream request failed with status %d: %s", e.Status, e.Body)
}

// IsAuthError reports whether err is an upstream 401 or 403, meaning the
// user's provider credentials no longer work.
func IsAuthError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden
	}
	return false
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests
	}
	return false
}

type SpotifyService struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	limiter      *rate.Limiter
	token        string
	tokenExpiry  time.Time
	mu           sync.RWMutex

	// BaseURL is the Web API root. Tests point it at a local server.
	BaseURL string
}

type spotifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type SpotifyTrack struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	DurationMS int64    `json:"duration_ms"`
	Album      Album    `json:"album"`
	Artists    []Artist `json:"artists"`
}

type Album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Artist struct {
	Name string `json:"name"`
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type SpotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

type currentlyPlayingResponse struct {
	IsPlaying bool          `json:"is_playing"`
	Item      *SpotifyTrack `json:"item"`
}

type playerQueueResponse struct {
	Queue []SpotifyTrack `json:"queue"`
}

// NewSpotifyService creates a Spotify client. Outbound calls share a single
// limiter so a burst of room polls cannot stampede the API.
func NewSpotifyService(clientID, clientSecret string) *SpotifyService {
	return &SpotifyService{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		BaseURL: "https://api.spotify.com/v1",
	}
}

// Track converts a Spotify API track into the internal representation.
func (t SpotifyTrack) Track() models.Track {
	track := models.Track{
		URI:        t.URI,
		Title:      t.Name,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
	}
	names := make([]string, 0, len(t.Artists))
	for _, artist := range t.Artists {
		names = append(names, artist.Name)
	}
	track.Artist = strings.Join(names, ", ")
	if len(t.Album.Images) > 0 {
		track.ArtworkURL = t.Album.Images[0].URL
	}
	return track
}

func (s *SpotifyService) getAccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		token := s.token
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, "POST", "https://accounts.spotify.com/api/token", strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var tokenResp spotifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	s.token = tokenResp.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)

	return s.token, nil
}

// Search queries the track catalog with the app-level token.
func (s *SpotifyService) Search(ctx context.Context, query string, limit int) ([]models.Track, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := s.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 50 {
		limit = 20
	}

	searchURL := fmt.Sprintf(s.BaseURL+"/search?q=%s&type=track&limit=%d",
		url.QueryEscape(query), limit)

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var searchResp SpotifySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	tracks := make([]models.Track, 0, len(searchResp.Tracks.Items))
	for _, item := range searchResp.Tracks.Items {
		tracks = append(tracks, item.Track())
	}
	return tracks, nil
}

// NowPlaying fetches what the given user is currently listening to, using
// that user's own OAuth bearer token. A 204 means nothing is playing and
// returns a nil track without error.
func (s *SpotifyService) NowPlaying(ctx context.Context, userToken string) (*models.Track, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.BaseURL+"/me/player/currently-playing", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create player request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+userToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("player request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var playing currentlyPlayingResponse
	if err := json.NewDecoder(resp.Body).Decode(&playing); err != nil {
		return nil, fmt.Errorf("failed to decode player response: %w", err)
	}
	if playing.Item == nil {
		return nil, nil
	}

	track := playing.Item.Track()
	track.Playing = playing.IsPlaying
	return &track, nil
}

// AddToQueue pushes a track onto the user's playback queue.
func (s *SpotifyService) AddToQueue(ctx context.Context, userToken, trackURI string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	queueURL := s.BaseURL + "/me/player/queue?uri=" + url.QueryEscape(trackURI)
	req, err := http.NewRequestWithContext(ctx, "POST", queueURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create queue request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+userToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("queue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// Queue fetches the user's upcoming playback queue.
func (s *SpotifyService) Queue(ctx context.Context, userToken string) ([]models.Track, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.BaseURL+"/me/player/queue", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+userToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("queue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var queueResp playerQueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&queueResp); err != nil {
		return nil, fmt.Errorf("failed to decode queue response: %w", err)
	}

	tracks := make([]models.Track, 0, len(queueResp.Queue))
	for _, item := range queueResp.Queue {
		tracks = append(tracks, item.Track())
	}
	return tracks, nil
}
