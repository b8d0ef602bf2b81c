package dtlview

import (
	"github.com/jward/dtlview/internal/engine"
	"github.com/jward/dtlview/internal/manifest"
)

// Public type aliases for the internal manifest and engine types used in
// the Session and Planner API. External consumers use these names; no
// conversion is needed.

type Manifest = manifest.Manifest
type Snapshot = manifest.Snapshot
type Location = manifest.Location
type Column = manifest.Column
type Mapping = manifest.Mapping
type ArrayID = manifest.ArrayID
type ArraySet = manifest.ArraySet
type Table = engine.Table
type Field = engine.Field
