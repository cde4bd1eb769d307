// Package install provisions the buildcache binary into the runner: it picks
// the release asset for the OS, downloads and unpacks it, and links the
// compiler names buildcache impersonates.
package install

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// Where buildcache releases are published.
const (
	Owner = "mbitsnbites"
	Repo  = "buildcache"

	DefaultAPIBase      = "https://api.github.com"
	DefaultDownloadBase = "https://github.com"
)

// maxAPIResponse bounds how much of a releases API response is read.
const maxAPIResponse = 4 << 20

// AssetName returns the release file for goos.
func AssetName(goos string) string {
	switch goos {
	case "linux":
		return "buildcache-linux.tar.gz"
	case "windows":
		return "buildcache-windows.zip"
	default:
		return "buildcache-macos.zip"
	}
}

// BinaryName returns the file name of the buildcache executable on goos.
func BinaryName(goos string) string {
	if goos == "windows" {
		return "buildcache.exe"
	}
	return "buildcache"
}

// Releases queries the GitHub releases API.
type Releases struct {
	Client  *http.Client
	APIBase string
	Token   string
}

// ResolveTag returns the release tag to install. An empty tag or "latest"
// (any case) resolves to the newest release.
func (r *Releases) ResolveTag(ctx context.Context, tag string) (string, error) {
	latest := tag == "" || strings.EqualFold(tag, "latest")
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", r.apiBase(), Owner, Repo)
	if !latest {
		endpoint = fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", r.apiBase(), Owner, Repo, url.PathEscape(tag))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query buildcache releases: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponse))
	if err != nil {
		return "", fmt.Errorf("failed to read releases response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && !latest {
		return "", fmt.Errorf("unable to find a buildcache release with tag '%s'", tag)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		return "", fmt.Errorf("buildcache releases API returned %s: %s", resp.Status, msg)
	}

	name := gjson.GetBytes(body, "tag_name").String()
	if name == "" {
		return "", fmt.Errorf("buildcache release response has no tag_name")
	}
	return name, nil
}

func (r *Releases) apiBase() string {
	if r.APIBase != "" {
		return strings.TrimSuffix(r.APIBase, "/")
	}
	return DefaultAPIBase
}

func (r *Releases) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

// DownloadURL returns the URL of asset in release tag.
func DownloadURL(base, tag, asset string) string {
	if base == "" {
		base = DefaultDownloadBase
	}
	return fmt.Sprintf("%s/%s/%s/releases/download/%s/%s", strings.TrimSuffix(base, "/"), Owner, Repo, url.PathEscape(tag), asset)
}
