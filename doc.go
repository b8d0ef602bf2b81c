// Package dtlview maps positions in a traced program's source to the data
// snapshots captured there, and reads those snapshots from the columnar
// arrays backing them.
//
// # Manifests
//
// A [Manifest] holds the program source, its snapshots and the lineage
// mappings between arrays. Each snapshot covers a half-open source range
// and names the arrays holding its columns. When ranges overlap, the most
// specific snapshot wins: the one starting later, then the one ending
// sooner, then the one listed last.
//
//	m, err := dtlview.LoadManifest(ctx, "trace/manifest.json")
//	snap, err := m.SnapshotByRowColumn(12, 4)
//
// Lines and columns are 0-based; columns count characters, not bytes.
//
// # Sessions
//
// A [Session] registers every array a manifest references with a query
// engine, under the relation name {array}.parquet. Its [Planner] answers
// schema, length and paged data reads for a snapshot:
//
//	eng, err := dtlview.OpenSQLite("")
//	s, err := dtlview.OpenSession(ctx, manifestURL, arrayURL, eng)
//	defer s.Close()
//
//	fields, err := s.Query().Schema(ctx, snap.ID)
//	rows, err := s.Query().Data(ctx, snap.ID, dtlview.PageOf(0, 50))
//
// Columns of one snapshot are joined by row position.
//
// # Pipeline
//
// A [Pipeline] keeps a session current for the latest manifest and array
// store URLs, and re-issues reads as the selected snapshot or page change.
// Results for superseded inputs are dropped, and [View] only exposes schema,
// length and data together once all three belong to the same session and
// snapshot:
//
//	p := dtlview.NewPipeline(dtlview.SQLiteEngines(""))
//	defer p.Close()
//	p.SetSources(manifestURL, arrayURL)
//	p.SelectSnapshot(3)
//
//	views, unsubscribe := p.Subscribe()
//	defer unsubscribe()
//	for v := range views {
//		if v.Displayable {
//			render(v.Schema, v.Length, v.Data)
//		}
//	}
package dtlview
