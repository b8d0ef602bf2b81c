// Package arraystore reads and writes single-field columnar array files.
//
// An array store is a base URL; the array named id lives at
// {base}/{id}.parquet. Each file holds one logical field across rows. By
// convention the field is called "values"; a file with exactly one field
// of any name is accepted too.
package arraystore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Extension is the file extension of array files.
const Extension = ".parquet"

// ValueField is the conventional name of an array file's single field.
const ValueField = "values"

// FileName returns the file name of the array with the given id.
func FileName(id string) string {
	return id + Extension
}

// ResolveURL returns the location of array id under base. base may be an
// http(s) or file URL, or a local directory path.
func ResolveURL(base, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse array store url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "https", "file":
		u.Path = path.Join(u.Path, FileName(id))
		u.RawPath = ""
		return u.String(), nil
	case "":
		return filepath.Join(base, FileName(id)), nil
	default:
		return "", fmt.Errorf("unsupported array store scheme %q", u.Scheme)
	}
}

// Fetch reads the whole array file at location into memory.
func Fetch(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", location, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("get %s: unexpected status %s", location, resp.Status)
		}
		return io.ReadAll(resp.Body)
	}

	p := location
	if after, ok := strings.CutPrefix(location, "file://"); ok {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", location, err)
		}
		p = u.Path
		if p == "" {
			p = after
		}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}
