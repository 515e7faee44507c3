// Package intel answers artifact-reputation queries. Each provider is
// a client for one upstream service (IP, file hash, or URL reputation)
// behind a common interface, so the shell can hold test doubles and a
// caching layer without caring which service answers.
package intel

import (
	"context"
	"errors"
	"regexp"
)

// Kind classifies an artifact.
type Kind string

const (
	KindIP   Kind = "ip"
	KindHash Kind = "hash"
	KindURL  Kind = "url"
)

var (
	// ErrNotFound is the clean no-record verdict: the provider was
	// reachable and has nothing on the artifact.
	ErrNotFound = errors.New("no record for artifact")

	// ErrUnavailable covers missing credentials, network failures and
	// provider-side errors. Never cached.
	ErrUnavailable = errors.New("integration unavailable")
)

// Provider answers reputation queries for one artifact kind.
type Provider interface {
	Kind() Kind
	Validate(artifact string) bool
	Lookup(ctx context.Context, artifact string) (*Report, error)
}

var (
	ipPattern   = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4]\d|1\d{2}|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d{2}|[1-9]?\d)$`)
	hashPattern = regexp.MustCompile(`^(?:[A-Fa-f0-9]{64}|[A-Fa-f0-9]{40}|[A-Fa-f0-9]{32})$`)
	urlPattern  = regexp.MustCompile(`(?i)^https?://[^\s/$.?#].[^\s]*$`)
)

// ValidIP reports whether s is a dotted-quad IPv4 address.
func ValidIP(s string) bool { return ipPattern.MatchString(s) }

// ValidHash reports whether s is a SHA-256, SHA-1 or MD5 hex digest.
func ValidHash(s string) bool { return hashPattern.MatchString(s) }

// ValidURL reports whether s looks like an http(s) URL.
func ValidURL(s string) bool { return urlPattern.MatchString(s) }

// Detect classifies an artifact by trying IP, then hash, then URL, in
// that fixed order. The order is part of the contract: `lookup` routes
// to the first match.
func Detect(artifact string) (Kind, bool) {
	switch {
	case ValidIP(artifact):
		return KindIP, true
	case ValidHash(artifact):
		return KindHash, true
	case ValidURL(artifact):
		return KindURL, true
	}
	return "", false
}

// Tone grades a report row for rendering.
type Tone int

const (
	ToneNeutral Tone = iota
	ToneGood
	ToneWarn
	ToneBad
)

// Row is one labelled value in a report.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Tone  Tone   `json:"tone"`
}

// Report is a provider's answer, presentation-neutral: ordered rows
// plus optional free-form detail lines (recent abuse reports, payload
// listings). The shell decides how to render it.
type Report struct {
	Kind     Kind     `json:"kind"`
	Artifact string   `json:"artifact"`
	Source   string   `json:"source"`
	Rows     []Row    `json:"rows"`
	Details  []string `json:"details,omitempty"`
}

// Add appends one row.
func (r *Report) Add(label, value string, tone Tone) {
	r.Rows = append(r.Rows, Row{Label: label, Value: value, Tone: tone})
}
