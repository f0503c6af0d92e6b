package chart

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/hitcastor/snapshotter/internal/hash"
)

const (
	// SchemaTag identifies the canonical normalized shape.
	SchemaTag = "hitcastor.spotify.top100.v1"
	// Provider tags the upstream chart source.
	Provider = "spotify"

	// MaxEntries caps how many source rows are kept.
	MaxEntries = 100
	// minValidEntries is the quality gate: at least this many items must
	// carry a track id, title and artist.
	minValidEntries = 50

	trackURIPrefix = "spotify:track:"
)

var trackURLPattern = regexp.MustCompile(`/track/([a-zA-Z0-9]+)`)

// Entry is one ranked item of a normalized chart.
type Entry struct {
	Rank       int    `json:"rank"`
	TrackID    string `json:"trackId"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Streams    int64  `json:"streams"`
	ISRC       string `json:"isrc"`
	SpotifyURL string `json:"spotifyUrl"`
}

// Top100 is the canonical normalized artifact.
type Top100 struct {
	Schema          string  `json:"schema"`
	DateUTC         string  `json:"dateUTC"`
	Region          string  `json:"region"`
	Provider        string  `json:"provider"`
	SourceCSVURL    string  `json:"sourceCsvUrl"`
	SourceCSVSHA256 string  `json:"sourceCsvSha256"`
	ListLength      int     `json:"listLength"`
	Items           []Entry `json:"items"`
}

// Encode renders the artifact as indented JSON. The byte output is stable
// for identical input, so its hash can serve as a content address.
func (t *Top100) Encode() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Normalize parses raw chart CSV into the canonical top-100 schema. It also
// returns the sha256 of the raw bytes, computed before any transformation.
// Fails with ErrInvalidChartData when parsing yields no records, or with
// InsufficientDataError when the quality gate rejects the chart.
func Normalize(raw []byte, dateUTC, region, sourceURL string) (*Top100, string, error) {
	csvHash := hash.SHA256(raw)

	records, err := parseCSV(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidChartData, err)
	}
	if len(records) == 0 {
		return nil, "", ErrInvalidChartData
	}

	if len(records) > MaxEntries {
		records = records[:MaxEntries]
	}

	items := make([]Entry, len(records))
	valid := 0
	for i, rec := range records {
		item := normalizeRecord(rec, i+1)
		if item.TrackID != "" && item.Title != "" && item.Artist != "" {
			valid++
		}
		items[i] = item
	}

	// Short source charts are gated proportionally: a fully valid 3-row
	// chart normalizes, an all-blank one does not.
	required := minValidEntries
	if len(items) < required {
		required = len(items)
	}
	if valid < required {
		return nil, "", &InsufficientDataError{ValidCount: valid}
	}

	return &Top100{
		Schema:          SchemaTag,
		DateUTC:         dateUTC,
		Region:          region,
		Provider:        Provider,
		SourceCSVURL:    sourceURL,
		SourceCSVSHA256: csvHash,
		ListLength:      len(items),
		Items:           items,
	}, csvHash, nil
}

// parseCSV reads a header row plus data rows into per-row column maps.
// Header names are lowercased so lookups tolerate source naming drift.
func parseCSV(raw []byte) ([]map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %v", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var records []map[string]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %v", err)
		}
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				rec[h] = strings.TrimSpace(row[i])
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// normalizeRecord maps one source row to an Entry. The rank is always the
// positional index; any rank column in the source is ignored.
func normalizeRecord(rec map[string]string, rank int) Entry {
	trackID := pick(rec, "track_id", "trackid", "uri")
	if !strings.HasPrefix(trackID, trackURIPrefix) && strings.Contains(trackID, "/track/") {
		if m := trackURLPattern.FindStringSubmatch(trackID); m != nil {
			trackID = trackURIPrefix + m[1]
		}
	}

	spotifyURL := pick(rec, "spotify_url", "spotifyurl", "url")
	if spotifyURL == "" && strings.HasPrefix(trackID, trackURIPrefix) {
		spotifyURL = "https://open.spotify.com/track/" + strings.TrimPrefix(trackID, trackURIPrefix)
	}

	return Entry{
		Rank:       rank,
		TrackID:    trackID,
		Title:      pick(rec, "title", "track_name", "trackname"),
		Artist:     pick(rec, "artist", "artist_name", "artistname"),
		Streams:    parseStreams(pick(rec, "streams", "stream_count", "streamcount")),
		ISRC:       pick(rec, "isrc"),
		SpotifyURL: spotifyURL,
	}
}

// pick returns the first non-empty value among the candidate columns.
func pick(rec map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := rec[k]; v != "" {
			return v
		}
	}
	return ""
}

// parseStreams reads the leading decimal digits of s. Missing or unparsable
// counts become 0 rather than failing the record.
func parseStreams(s string) int64 {
	s = strings.TrimSpace(s)
	var n int64
	seen := false
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
		seen = true
	}
	if !seen {
		return 0
	}
	return n
}
