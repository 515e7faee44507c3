package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// AbuseIPDBClient queries the AbuseIPDB v2 API for IP reputation.
type AbuseIPDBClient struct {
	apiKey     string
	baseURL    string
	maxAgeDays int
	httpClient *http.Client
}

// AbuseIPDBConfig holds configuration for the AbuseIPDB client.
type AbuseIPDBConfig struct {
	APIKey     string
	BaseURL    string
	MaxAgeDays int
	Timeout    time.Duration
}

// DefaultAbuseIPDBConfig returns sensible defaults.
func DefaultAbuseIPDBConfig(apiKey string) AbuseIPDBConfig {
	return AbuseIPDBConfig{
		APIKey:     apiKey,
		BaseURL:    "https://api.abuseipdb.com/api/v2",
		MaxAgeDays: 90,
		Timeout:    10 * time.Second,
	}
}

// NewAbuseIPDBClient creates a client with default config.
func NewAbuseIPDBClient(apiKey string) *AbuseIPDBClient {
	return NewAbuseIPDBClientWithConfig(DefaultAbuseIPDBConfig(apiKey))
}

// NewAbuseIPDBClientWithConfig creates a client with custom config.
func NewAbuseIPDBClientWithConfig(config AbuseIPDBConfig) *AbuseIPDBClient {
	return &AbuseIPDBClient{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		maxAgeDays: config.MaxAgeDays,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Kind implements Provider.
func (c *AbuseIPDBClient) Kind() Kind { return KindIP }

// Validate implements Provider.
func (c *AbuseIPDBClient) Validate(artifact string) bool { return ValidIP(artifact) }

// abuseIPDBResponse mirrors the fields of /check we render.
type abuseIPDBResponse struct {
	Data struct {
		IPAddress            string `json:"ipAddress"`
		AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
		CountryName          string `json:"countryName"`
		CountryCode          string `json:"countryCode"`
		UsageType            string `json:"usageType"`
		ISP                  string `json:"isp"`
		Domain               string `json:"domain"`
		TotalReports         int    `json:"totalReports"`
		NumDistinctUsers     int    `json:"numDistinctUsers"`
		LastReportedAt       string `json:"lastReportedAt"`
		Reports              []struct {
			ReportedAt          string `json:"reportedAt"`
			Comment             string `json:"comment"`
			ReporterCountryName string `json:"reporterCountryName"`
		} `json:"reports"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
		Status int    `json:"status"`
	} `json:"errors"`
}

// Lookup checks one IP against AbuseIPDB.
func (c *AbuseIPDBClient) Lookup(ctx context.Context, artifact string) (*Report, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: ABUSE_API_KEY not set", ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/check", nil)
	if err != nil {
		return nil, fmt.Errorf("build abuseipdb request: %w", err)
	}
	q := req.URL.Query()
	q.Set("ipAddress", artifact)
	q.Set("maxAgeInDays", strconv.Itoa(c.maxAgeDays))
	q.Set("verbose", "")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: abuseipdb: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: abuseipdb: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: abuseipdb returned %s", ErrUnavailable, resp.Status)
	}

	var parsed abuseIPDBResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: abuseipdb: parse response: %v", ErrUnavailable, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("%w: abuseipdb: %s", ErrUnavailable, parsed.Errors[0].Detail)
	}

	d := parsed.Data
	score := d.AbuseConfidenceScore
	scoreTone := ToneGood
	switch {
	case score >= 80:
		scoreTone = ToneBad
	case score >= 40:
		scoreTone = ToneWarn
	}

	country := d.CountryName
	if country == "" {
		country = d.CountryCode
	}

	rep := &Report{
		Kind:     KindIP,
		Artifact: artifact,
		Source:   "AbuseIPDB",
	}
	rep.Add("IP Address", d.IPAddress, ToneNeutral)
	rep.Add("Abuse Confidence", fmt.Sprintf("%d%%", score), scoreTone)
	rep.Add("Country", country, ToneNeutral)
	rep.Add("ISP", d.ISP, ToneNeutral)
	rep.Add("Domain", d.Domain, ToneNeutral)
	rep.Add("Usage Type", d.UsageType, ToneNeutral)
	rep.Add("Reports", fmt.Sprintf("%d from %d reporters", d.TotalReports, d.NumDistinctUsers), ToneNeutral)
	if d.LastReportedAt != "" {
		rep.Add("Last Reported", d.LastReportedAt, ToneNeutral)
	}

	for i, r := range d.Reports {
		if i == 3 {
			break
		}
		comment := strings.TrimSpace(r.Comment)
		if len(comment) > 100 {
			comment = comment[:100] + "..."
		}
		rep.Details = append(rep.Details,
			fmt.Sprintf("%s [%s] %s", r.ReportedAt, r.ReporterCountryName, comment))
	}

	return rep, nil
}
