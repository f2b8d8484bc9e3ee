// Package linkupclient talks to linkup servers: the shared remote server and
// the local server started by the CLI.
package linkupclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/utils"
	"github.com/MrSnakeDoc/linkup/internal/version"
)

// ErrNameMismatch means the remote and the local server disagree on the
// session name.
var ErrNameMismatch = errors.New("local and remote session names differ")

// StatusError is a non 200 answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Body)
}

// Client posts documents to one linkup server.
type Client struct {
	base *url.URL
	http *http.Client
}

func New(base string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid linkup server url %q", base)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, http: hc}, nil
}

// Linkup creates or updates a session and returns its name.
func (c *Client) Linkup(ctx context.Context, doc domain.Document) (string, error) {
	return c.post(ctx, "/linkup", doc)
}

// LocalSession is Linkup on the local server's alias.
func (c *Client) LocalSession(ctx context.Context, doc domain.Document) (string, error) {
	return c.post(ctx, "/linkup/local-session", doc)
}

// Preview creates a preview session and returns its name.
func (c *Client) Preview(ctx context.Context, doc domain.Document) (string, error) {
	return c.post(ctx, "/preview", doc)
}

// Check returns nil when the server answers its liveness endpoint.
func (c *Client) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/linkup/check"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer utils.Close(resp.Body)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

func (c *Client) post(ctx context.Context, path string, doc domain.Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", path, err)
	}
	defer utils.Close(resp.Body)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return strings.TrimSpace(string(data)), nil
}

// UploadState registers st with the remote server, where local services are
// reached through the tunnel, then with the local server under the same name.
// It returns the session name, which the caller saves into the state.
func UploadState(ctx context.Context, st *localstate.State, remote, local *Client) (string, error) {
	name, err := remote.Linkup(ctx, st.RemoteDocument())
	if err != nil {
		return "", fmt.Errorf("upload to remote server: %w", err)
	}

	doc := st.LocalDocument()
	doc.DesiredName = name
	localName, err := local.LocalSession(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("upload to local server: %w", err)
	}
	if localName != name {
		return "", fmt.Errorf("%w: remote %q, local %q", ErrNameMismatch, name, localName)
	}
	return name, nil
}

// SessionURLs lists https://<session>.<domain> for every domain that is not
// a subdomain of another listed domain.
func SessionURLs(session string, domains []domain.DomainSpec) []string {
	var out []string
	for _, d := range domains {
		covered := false
		for _, other := range domains {
			if other.Domain != d.Domain && strings.HasSuffix(d.Domain, "."+other.Domain) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, fmt.Sprintf("https://%s.%s", session, d.Domain))
		}
	}
	return out
}
