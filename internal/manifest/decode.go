package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidManifest is returned when a manifest document cannot be decoded
// or fails validation.
var ErrInvalidManifest = errors.New("invalid manifest")

// document is the wire form of a manifest.
type document struct {
	Source    *string    `json:"source" validate:"required"`
	Snapshots []Snapshot `json:"snapshots" validate:"dive"`
	Mappings  []Mapping  `json:"mappings" validate:"dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses a manifest document and builds its index.
func Decode(r io.Reader) (*Manifest, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidManifest, err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return Build(*doc.Source, doc.Snapshots, doc.Mappings), nil
}

// Encode writes m as a manifest document.
func Encode(w io.Writer, m *Manifest) error {
	source := m.Source()
	doc := document{
		Source:    &source,
		Snapshots: m.Snapshots(),
		Mappings:  m.Mappings(),
	}
	if doc.Snapshots == nil {
		doc.Snapshots = []Snapshot{}
	}
	if doc.Mappings == nil {
		doc.Mappings = []Mapping{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
