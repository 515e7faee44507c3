package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// MalwareBazaarClient queries the MalwareBazaar API for file-hash
// reputation. Unlike URLHaus, the abuse.ch auth key is mandatory here.
type MalwareBazaarClient struct {
	authKey    string
	baseURL    string
	httpClient *http.Client
}

// MalwareBazaarConfig holds configuration for the MalwareBazaar client.
type MalwareBazaarConfig struct {
	AuthKey string
	BaseURL string
	Timeout time.Duration
}

// DefaultMalwareBazaarConfig returns sensible defaults.
func DefaultMalwareBazaarConfig(authKey string) MalwareBazaarConfig {
	return MalwareBazaarConfig{
		AuthKey: authKey,
		BaseURL: "https://mb-api.abuse.ch/api/v1",
		Timeout: 10 * time.Second,
	}
}

// NewMalwareBazaarClient creates a client with default config.
func NewMalwareBazaarClient(authKey string) *MalwareBazaarClient {
	return NewMalwareBazaarClientWithConfig(DefaultMalwareBazaarConfig(authKey))
}

// NewMalwareBazaarClientWithConfig creates a client with custom config.
func NewMalwareBazaarClientWithConfig(config MalwareBazaarConfig) *MalwareBazaarClient {
	return &MalwareBazaarClient{
		authKey: config.AuthKey,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Kind implements Provider.
func (c *MalwareBazaarClient) Kind() Kind { return KindHash }

// Validate implements Provider.
func (c *MalwareBazaarClient) Validate(artifact string) bool { return ValidHash(artifact) }

type malwareBazaarResponse struct {
	QueryStatus string `json:"query_status"`
	Data        []struct {
		SHA256Hash     string   `json:"sha256_hash"`
		SHA1Hash       string   `json:"sha1_hash"`
		MD5Hash        string   `json:"md5_hash"`
		FileName       string   `json:"file_name"`
		FileSize       int64    `json:"file_size"`
		FileType       string   `json:"file_type"`
		FileTypeMime   string   `json:"file_type_mime"`
		Signature      string   `json:"signature"`
		FirstSeen      string   `json:"first_seen"`
		LastSeen       string   `json:"last_seen"`
		DeliveryMethod string   `json:"delivery_method"`
		Tags           []string `json:"tags"`
	} `json:"data"`
}

// Lookup checks one hash against MalwareBazaar.
func (c *MalwareBazaarClient) Lookup(ctx context.Context, artifact string) (*Report, error) {
	if c.authKey == "" {
		return nil, fmt.Errorf("%w: ACH_API_KEY not set", ErrUnavailable)
	}

	form := url.Values{
		"query": {"get_info"},
		"hash":  {artifact},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build malwarebazaar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Auth-Key", c.authKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: malwarebazaar: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: malwarebazaar: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: malwarebazaar returned %s", ErrUnavailable, resp.Status)
	}

	var parsed malwareBazaarResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malwarebazaar: parse response: %v", ErrUnavailable, err)
	}

	switch parsed.QueryStatus {
	case "ok":
		// fall through to the report
	case "hash_not_found":
		return nil, fmt.Errorf("%w: %s", ErrNotFound, artifact)
	default:
		return nil, fmt.Errorf("%w: malwarebazaar query_status %q", ErrUnavailable, parsed.QueryStatus)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, artifact)
	}

	d := parsed.Data[0]
	fileType := d.FileType
	if d.FileTypeMime != "" {
		fileType = fmt.Sprintf("%s (%s)", d.FileType, d.FileTypeMime)
	}

	rep := &Report{
		Kind:     KindHash,
		Artifact: artifact,
		Source:   "MalwareBazaar",
	}
	rep.Add("SHA-256", d.SHA256Hash, ToneNeutral)
	rep.Add("File Name", d.FileName, ToneNeutral)
	rep.Add("File Type", fileType, ToneNeutral)
	rep.Add("File Size", humanize.Bytes(uint64(d.FileSize)), ToneNeutral)
	rep.Add("Signature", d.Signature, ToneBad)
	rep.Add("First Seen", d.FirstSeen, ToneNeutral)
	if d.LastSeen != "" {
		rep.Add("Last Seen", d.LastSeen, ToneNeutral)
	}
	if d.DeliveryMethod != "" {
		rep.Add("Delivery", d.DeliveryMethod, ToneNeutral)
	}
	if len(d.Tags) > 0 {
		rep.Add("Tags", strings.Join(d.Tags, ", "), ToneNeutral)
	}

	return rep, nil
}
