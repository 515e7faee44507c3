// Package workspace prepares the on-disk layout mimir works in: the
// investigations and reports trees, the log and cache directories, and
// a starter .env for credentials. Everything here is idempotent; a
// populated workspace passes through untouched.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"mimir/internal/config"
)

// envSkeleton is written once, when the workspace has no .env yet.
const envSkeleton = `# Mimir environment variables.
# Lookup credentials. A blank key degrades the matching integration
# per call; everything else keeps working.
ABUSE_API_KEY=
ACH_API_KEY=

# Recognized but not consumed by any current integration.
OTX_API_KEY=
VT_API_KEY=
`

// Ensure creates whatever part of the workspace layout is missing and
// reports what it did. Only the workspace root and the investigations
// tree are load-bearing; trouble with anything else comes back as a
// message, not an error.
func Ensure(cfg *config.Config) ([]string, error) {
	var actions []string

	required := []string{
		cfg.Workspace,
		cfg.CasesDir(),
	}
	for _, dir := range required {
		created, err := ensureDir(dir)
		if err != nil {
			return actions, fmt.Errorf("create %s: %w", dir, err)
		}
		if created {
			actions = append(actions, "[setup] Created "+dir)
		}
	}

	optional := []string{
		cfg.ReportsDir(),
		filepath.Dir(cfg.Logging.File),
	}
	if cfg.Lookup.CacheEnabled() {
		optional = append(optional, filepath.Dir(cfg.Lookup.CachePath))
	}
	for _, dir := range optional {
		created, err := ensureDir(dir)
		if err != nil {
			actions = append(actions, fmt.Sprintf("[setup] Failed to create %s: %v", dir, err))
			continue
		}
		if created {
			actions = append(actions, "[setup] Created "+dir)
		}
	}

	envPath := filepath.Join(cfg.Workspace, ".env")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if err := os.WriteFile(envPath, []byte(envSkeleton), 0600); err != nil {
			actions = append(actions, fmt.Sprintf("[setup] Failed to create .env file: %v", err))
		} else {
			actions = append(actions, "[setup] Created .env file at "+envPath)
		}
	}

	return actions, nil
}

// MissingKeys names the credential variables that are still blank, for
// a one-line startup hint.
func MissingKeys(cfg *config.Config) []string {
	var missing []string
	if cfg.Lookup.AbuseIPDBKey == "" {
		missing = append(missing, "ABUSE_API_KEY")
	}
	if cfg.Lookup.AbuseCHKey == "" {
		missing = append(missing, "ACH_API_KEY")
	}
	return missing
}

func ensureDir(dir string) (created bool, err error) {
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}
	return true, nil
}
