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
)

// URLHausClient queries the URLHaus API for URL reputation. The
// abuse.ch auth key is optional; anonymous queries are rate-limited
// harder but answered.
type URLHausClient struct {
	authKey    string
	baseURL    string
	httpClient *http.Client
}

// URLHausConfig holds configuration for the URLHaus client.
type URLHausConfig struct {
	AuthKey string
	BaseURL string
	Timeout time.Duration
}

// DefaultURLHausConfig returns sensible defaults.
func DefaultURLHausConfig(authKey string) URLHausConfig {
	return URLHausConfig{
		AuthKey: authKey,
		BaseURL: "https://urlhaus-api.abuse.ch/v1",
		Timeout: 10 * time.Second,
	}
}

// NewURLHausClient creates a client with default config.
func NewURLHausClient(authKey string) *URLHausClient {
	return NewURLHausClientWithConfig(DefaultURLHausConfig(authKey))
}

// NewURLHausClientWithConfig creates a client with custom config.
func NewURLHausClientWithConfig(config URLHausConfig) *URLHausClient {
	return &URLHausClient{
		authKey: config.AuthKey,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Kind implements Provider.
func (c *URLHausClient) Kind() Kind { return KindURL }

// Validate implements Provider.
func (c *URLHausClient) Validate(artifact string) bool { return ValidURL(artifact) }

type urlHausResponse struct {
	QueryStatus string   `json:"query_status"`
	URLStatus   string   `json:"url_status"`
	Host        string   `json:"host"`
	DateAdded   string   `json:"date_added"`
	Threat      string   `json:"threat"`
	Reporter    string   `json:"reporter"`
	Tags        []string `json:"tags"`
	Payloads    []struct {
		Filename       string `json:"filename"`
		FileType       string `json:"file_type"`
		ResponseSHA256 string `json:"response_sha256"`
		SHA256Hash     string `json:"sha256_hash"`
	} `json:"payloads"`
}

// Lookup checks one URL against URLHaus.
func (c *URLHausClient) Lookup(ctx context.Context, artifact string) (*Report, error) {
	form := url.Values{"url": {artifact}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/url/",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build urlhaus request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.authKey != "" {
		req.Header.Set("Auth-Key", c.authKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: urlhaus: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: urlhaus: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: urlhaus returned %s", ErrUnavailable, resp.Status)
	}

	var parsed urlHausResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: urlhaus: parse response: %v", ErrUnavailable, err)
	}

	switch parsed.QueryStatus {
	case "ok":
		// fall through to the report
	case "no_results":
		return nil, fmt.Errorf("%w: %s", ErrNotFound, artifact)
	default:
		return nil, fmt.Errorf("%w: urlhaus query_status %q", ErrUnavailable, parsed.QueryStatus)
	}

	statusTone := ToneWarn
	if parsed.URLStatus == "online" {
		statusTone = ToneBad
	}

	rep := &Report{
		Kind:     KindURL,
		Artifact: artifact,
		Source:   "URLHaus",
	}
	rep.Add("URL", artifact, ToneNeutral)
	rep.Add("Host", parsed.Host, ToneNeutral)
	rep.Add("Status", parsed.URLStatus, statusTone)
	rep.Add("Threat", parsed.Threat, ToneBad)
	rep.Add("Date Added", parsed.DateAdded, ToneNeutral)
	rep.Add("Reporter", parsed.Reporter, ToneNeutral)
	if len(parsed.Tags) > 0 {
		rep.Add("Tags", strings.Join(parsed.Tags, ", "), ToneNeutral)
	}

	for i, p := range parsed.Payloads {
		if i == 5 {
			break
		}
		sha := p.ResponseSHA256
		if sha == "" {
			sha = p.SHA256Hash
		}
		rep.Details = append(rep.Details,
			fmt.Sprintf("%s (%s) %s", p.Filename, p.FileType, sha))
	}

	return rep, nil
}
