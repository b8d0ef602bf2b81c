package dtlview

import (
	"context"
	"io"

	"github.com/jward/dtlview/internal/manifest"
)

// BuildManifest builds a Manifest and its position index from already
// decoded parts. Snapshot IDs are assigned from list order.
func BuildManifest(source string, snapshots []Snapshot, mappings []Mapping) *Manifest {
	return manifest.Build(source, snapshots, mappings)
}

// DecodeManifest reads and validates a manifest document.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	return manifest.Decode(r)
}

// LoadManifest fetches a manifest from an http(s) URL, a file:// URL or a
// local path. Failures are reported as *FetchError.
func LoadManifest(ctx context.Context, rawURL string, opts ...Option) (*Manifest, error) {
	return manifest.Fetch(ctx, newOptions(opts).client, rawURL)
}
