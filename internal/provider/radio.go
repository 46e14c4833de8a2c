package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/waveroom/backend/internal/models"
)

// Radio protocols a room's metadata endpoint can speak.
const (
	ProtocolIcecast   = "icecast"
	ProtocolShoutcast = "shoutcast"
)

// RadioService fetches now-playing metadata from internet radio stations.
type RadioService struct {
	httpClient *http.Client
}

func NewRadioService() *RadioService {
	return &RadioService{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// icecastStatus mirrors the status-json.xsl document. The source field is
// an object for single-mount servers and an array otherwise, so it is kept
// raw and decoded in two passes.
type icecastStatus struct {
	Icestats struct {
		Source json.RawMessage `json:"source"`
	} `json:"icestats"`
}

type icecastSource struct {
	Title       string `json:"title"`
	ServerName  string `json:"server_name"`
	Genre       string `json:"genre"`
	Bitrate     int    `json:"bitrate"`
	Listeners   int    `json:"listeners"`
	ListenURL   string `json:"listenurl"`
	StreamStart string `json:"stream_start"`
}

// FetchMeta polls the station's metadata endpoint and returns the station
// details plus the track derived from the stream title, if one is set.
func (s *RadioService) FetchMeta(ctx context.Context, metaURL, protocol string) (*models.StationMeta, *models.Track, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", metaURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create station request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("station request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read station response: %w", err)
	}

	switch protocol {
	case ProtocolShoutcast:
		return parseShoutcast(body)
	default:
		return parseIcecast(body)
	}
}

func parseIcecast(body []byte) (*models.StationMeta, *models.Track, error) {
	var status icecastStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, nil, fmt.Errorf("failed to decode icecast status: %w", err)
	}

	var source icecastSource
	if err := json.Unmarshal(status.Icestats.Source, &source); err != nil {
		// Multi-mount servers return an array of sources; take the first.
		var sources []icecastSource
		if err := json.Unmarshal(status.Icestats.Source, &sources); err != nil || len(sources) == 0 {
			return nil, nil, fmt.Errorf("icecast status has no usable source")
		}
		source = sources[0]
	}

	meta := &models.StationMeta{
		Title:     source.ServerName,
		Genre:     source.Genre,
		Bitrate:   source.Bitrate,
		Listeners: source.Listeners,
	}
	return meta, trackFromStreamTitle(source.Title), nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// parseShoutcast handles the legacy 7.html format: one CSV line of
// currentlisteners,status,peak,max,unique,bitrate,songtitle, sometimes
// wrapped in an HTML body.
func parseShoutcast(body []byte) (*models.StationMeta, *models.Track, error) {
	line := strings.TrimSpace(htmlTagPattern.ReplaceAllString(string(body), ""))
	fields := strings.SplitN(line, ",", 7)
	if len(fields) < 7 {
		return nil, nil, fmt.Errorf("unexpected shoutcast status format")
	}

	listeners, _ := strconv.Atoi(fields[0])
	bitrate, _ := strconv.Atoi(fields[5])
	title := strings.TrimSpace(fields[6])

	meta := &models.StationMeta{
		Title:     title,
		Bitrate:   bitrate,
		Listeners: listeners,
	}
	return meta, trackFromStreamTitle(title), nil
}

// trackFromStreamTitle splits the conventional "Artist - Title" stream
// title. A title without a separator is kept whole with no artist; an
// empty title yields no track.
func trackFromStreamTitle(title string) *models.Track {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	track := &models.Track{Playing: true}
	if artist, name, ok := strings.Cut(title, " - "); ok {
		track.Artist = strings.TrimSpace(artist)
		track.Title = strings.TrimSpace(name)
	} else {
		track.Title = title
	}
	return track
}
