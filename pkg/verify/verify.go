// Package verify deals with post-publish checks: asking the package index
// and the conda channel whether the files a deployment just uploaded are
// actually listed.
//
// Uploads are accepted asynchronously by both services, so a negative
// answer immediately after an upload is not necessarily a failure; the
// deploy command treats these as advisory.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const (
	// PyPIBaseURL is the default simple-index root.
	PyPIBaseURL = "https://pypi.org/simple/"

	// AnacondaAPIBaseURL is the default anaconda.org API root.
	AnacondaAPIBaseURL = "https://api.anaconda.org"
)

// HTTPError is a non-200 response.
type HTTPError struct {
	Status     string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %s", e.Status)
}

func httpGet(ctx context.Context, client *http.Client, userAgent, requestURL string) (_ []byte, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("GET %q => %w", requestURL, err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	if err := resp.Body.Close(); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode}
	}
	return content, nil
}

// IndexClient reads a PEP 503 style simple index.
type IndexClient struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

func (c *IndexClient) fillDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = PyPIBaseURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.UserAgent == "" {
		c.UserAgent = "github.com/conveyor-ci/conveyor/pkg/verify"
	}
}

var reNameSep = regexp.MustCompile("[-_.]+")

// normalizeProject applies the index's name normalization: runs of ".",
// "-", "_" collapse to a single "-", case-insensitively.
func normalizeProject(str string) string {
	return strings.ToLower(reNameSep.ReplaceAllLiteralString(str, "-"))
}

// ListFiles returns the filenames the index lists for a project; the
// anchor text of each link on the project page.
func (c IndexClient) ListFiles(ctx context.Context, project string) ([]string, error) {
	c.fillDefaults()
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, normalizeProject(project)) + "/"

	content, err := httpGet(ctx, c.HTTPClient, c.UserAgent, u.String())
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var files []string
	if err := visitHTML(doc, nil, func(node *html.Node) error {
		if node.Type != html.ElementNode || node.Data != "a" {
			return nil
		}
		var text strings.Builder
		_ = visitHTML(node, nil, func(child *html.Node) error {
			if child.Type == html.TextNode {
				text.WriteString(child.Data)
			}
			return nil
		})
		if name := strings.TrimSpace(text.String()); name != "" {
			files = append(files, name)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return files, nil
}

// HasFile reports whether the index lists filename for project.
func (c IndexClient) HasFile(ctx context.Context, project, filename string) (bool, error) {
	files, err := c.ListFiles(ctx, project)
	if err != nil {
		return false, err
	}
	for _, f := range files {
		if f == filename {
			return true, nil
		}
	}
	return false, nil
}

func visitHTML(node *html.Node, before, after func(*html.Node) error) error {
	if before != nil {
		if err := before(node); err != nil {
			return err
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if err := visitHTML(child, before, after); err != nil {
			return err
		}
	}
	if after != nil {
		if err := after(node); err != nil {
			return err
		}
	}
	return nil
}

// CondaFile is one file in a conda package, as the channel API reports it.
type CondaFile struct {
	// Basename is the subdir-qualified filename
	// ("linux-64/molpack-1.2.1-py27_0.tar.bz2").
	Basename string `json:"basename"`

	Version string   `json:"version"`
	Labels  []string `json:"labels"`
}

// CondaClient reads the anaconda.org channel API.
type CondaClient struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

func (c *CondaClient) fillDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = AnacondaAPIBaseURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.UserAgent == "" {
		c.UserAgent = "github.com/conveyor-ci/conveyor/pkg/verify"
	}
}

// ListFiles returns every file the channel holds for owner's package.
func (c CondaClient) ListFiles(ctx context.Context, owner, pkg string) ([]CondaFile, error) {
	c.fillDefaults()
	requestURL := fmt.Sprintf("%s/package/%s/%s/files",
		strings.TrimSuffix(c.BaseURL, "/"), url.PathEscape(owner), url.PathEscape(pkg))
	content, err := httpGet(ctx, c.HTTPClient, c.UserAgent, requestURL)
	if err != nil {
		return nil, err
	}
	var files []CondaFile
	if err := json.Unmarshal(content, &files); err != nil {
		return nil, fmt.Errorf("GET %q => %w", requestURL, err)
	}
	return files, nil
}

// HasFile reports whether the channel lists filename for owner's package,
// and if label is non-empty, whether that copy carries the label.
func (c CondaClient) HasFile(ctx context.Context, owner, pkg, filename, label string) (bool, error) {
	files, err := c.ListFiles(ctx, owner, pkg)
	if err != nil {
		return false, err
	}
	for _, f := range files {
		if f.Basename != filename && path.Base(f.Basename) != filename {
			continue
		}
		if label == "" {
			return true, nil
		}
		for _, l := range f.Labels {
			if l == label {
				return true, nil
			}
		}
	}
	return false, nil
}
