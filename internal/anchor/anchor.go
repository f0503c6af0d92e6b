// Package anchor pins normalized artifacts to an IPFS HTTP API endpoint.
// Anchoring is strictly best-effort; callers log failures and carry on.
package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Config holds the IPFS endpoint and bearer token. Both empty means
// anchoring is disabled.
type Config struct {
	Endpoint string
	Token    string
}

// Service anchors bytes through the IPFS add-and-pin API.
type Service struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Service {
	return &Service{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Enabled reports whether anchoring credentials are configured.
func (s *Service) Enabled() bool {
	return s.cfg.Endpoint != "" && s.cfg.Token != ""
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Anchor adds and pins data, returning its content identifier. Returns
// ("", nil) when anchoring is not configured.
func (s *Service) Anchor(ctx context.Context, data []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "top100.json")
	if err != nil {
		return "", fmt.Errorf("error building multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("error writing multipart form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("error closing multipart form: %w", err)
	}

	url := s.cfg.Endpoint + "/api/v0/add?pin=true&cid-version=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("error building add request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error calling IPFS add: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("IPFS add returned status %d: %s", resp.StatusCode, payload)
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("error decoding IPFS add response: %w", err)
	}
	if added.Hash == "" {
		return "", fmt.Errorf("IPFS add response missing CID")
	}
	return added.Hash, nil
}
