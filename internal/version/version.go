// Package version provides version information and update checking.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// Repo is the GitHub repository releases are published to
	Repo = "ctagard/dap-exthost"

	latestReleaseURL = "https://api.github.com/repos/" + Repo + "/releases/latest"
	checkTimeout     = 5 * time.Second
)

// Set with -ldflags "-X github.com/ctagard/dap-exthost/internal/version.Version=..."
var (
	Version    = "0.1.0"
	CommitHash = ""
)

// Info is what the version command prints.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commitHash,omitempty"`
}

// Current returns the build's version information.
func Current() Info {
	return Info{Version: Version, CommitHash: CommitHash}
}

// UpdateInfo contains information about available updates
type UpdateInfo struct {
	CurrentVersion  string `json:"currentVersion"`
	LatestVersion   string `json:"latestVersion"`
	UpdateAvailable bool   `json:"updateAvailable"`
	ReleaseURL      string `json:"releaseUrl,omitempty"`
}

// Message returns a human-readable message about the update, or "" when
// the build is current.
func (u *UpdateInfo) Message() string {
	if !u.UpdateAvailable {
		return ""
	}
	return fmt.Sprintf("A new version of dap-exthost is available: v%s (current: v%s). See %s",
		u.LatestVersion, u.CurrentVersion, u.ReleaseURL)
}

// Checker queries the latest published release.
type Checker struct {
	url    string
	client *http.Client
}

// NewChecker creates a checker for the GitHub releases of Repo.
func NewChecker() *Checker {
	return &Checker{url: latestReleaseURL, client: &http.Client{Timeout: checkTimeout}}
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Check compares Version with the latest release.
func (c *Checker) Check(ctx context.Context) (*UpdateInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "dap-exthost/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release lookup returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	return &UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: Compare(Version, latest) < 0,
		ReleaseURL:      release.HTMLURL,
	}, nil
}

// Compare compares two semver strings.
// Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2
func Compare(v1, v2 string) int {
	a, b := parse(v1), parse(v2)
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func parse(v string) [3]int {
	var out [3]int
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	for i, p := range parts {
		// pre-release suffixes like "1.0.0-beta" are ignored
		p = strings.SplitN(p, "-", 2)[0]
		fmt.Sscanf(p, "%d", &out[i])
	}
	return out
}
