package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// FetchError reports a manifest that could not be retrieved or decoded.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch manifest %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetch retrieves and decodes the manifest at rawURL. http and https URLs
// are fetched with client (http.DefaultClient when nil); file URLs and bare
// paths are read from disk.
func Fetch(ctx context.Context, client *http.Client, rawURL string) (*Manifest, error) {
	rc, err := open(ctx, client, rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer rc.Close()

	m, err := Decode(rc)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	return m, nil
}

func open(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return resp.Body, nil
	case "file":
		return os.Open(u.Path)
	case "":
		return os.Open(rawURL)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
