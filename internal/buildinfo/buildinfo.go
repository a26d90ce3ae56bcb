// Package buildinfo carries the release version and checks for newer releases.
package buildinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"github.com/nulzo/streamchat/internal/cli"
)

// Version is set at build time:
//
//	go build -ldflags "-X github.com/nulzo/streamchat/internal/buildinfo.Version=v1.2.0"
var Version = "v0.0.0"

const latestReleaseURL = "https://api.github.com/repos/nulzo/streamchat/releases/latest"

type gitHubRelease struct {
	TagName string `json:"tag_name"`
}

type Checker struct {
	client  *http.Client
	url     string
	current string
}

type Option func(*Checker)

func WithURL(url string) Option {
	return func(c *Checker) { c.url = url }
}

func WithCurrent(v string) Option {
	return func(c *Checker) { c.current = v }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		client:  &http.Client{Timeout: 2 * time.Second},
		url:     latestReleaseURL,
		current: Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Latest returns the newest published release and whether it is newer than
// the running build.
func (c *Checker) Latest(ctx context.Context) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("release lookup: status %d", resp.StatusCode)
	}

	var release gitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", false, fmt.Errorf("release lookup: %w", err)
	}

	current, err := version.NewVersion(c.current)
	if err != nil {
		return "", false, fmt.Errorf("current version %q: %w", c.current, err)
	}
	latest, err := version.NewVersion(release.TagName)
	if err != nil {
		return "", false, fmt.Errorf("latest version %q: %w", release.TagName, err)
	}

	return release.TagName, current.LessThan(latest), nil
}

// CheckForUpdates logs a warning when a newer release exists. Lookup
// failures are logged at debug level only.
func (c *Checker) CheckForUpdates(ctx context.Context, logger *zap.Logger) {
	latest, newer, err := c.Latest(ctx)
	if err != nil {
		logger.Debug("Update check failed", zap.Error(err))
		return
	}
	if newer {
		logger.Warn(fmt.Sprintf("%s %s", cli.WarningSign(), cli.Stylize("A newer release is available", cli.Yellow)),
			zap.String("current", c.current),
			zap.String("latest", latest),
		)
	}
}
