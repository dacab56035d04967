package tagdb

// NamespaceStats describes the size of one namespace. Byte sizes are
// engine-specific: the bucket engines report per-bucket usage, SQLite only
// the whole file size.
type NamespaceStats struct {
	Keys         int
	Docs         int
	TagIndexRows int

	KVSize     int64
	KVAlloc    int64
	DocSize    int64
	DocAlloc   int64
	IndexSize  int64
	IndexAlloc int64

	FileSize int64
}

func (ns *NamespaceStats) TotalSize() int64 {
	return ns.KVSize + ns.DocSize + ns.IndexSize
}

func (ns *NamespaceStats) TotalAlloc() int64 {
	return ns.KVAlloc + ns.DocAlloc + ns.IndexAlloc
}

func (s *Store) Stats() (NamespaceStats, error) {
	return withNS(s, "stats", func(ns *namespace) (NamespaceStats, error) {
		var st NamespaceStats
		err := s.read(ns, "stats", ns.names.KV, func(tx *storeTx) error {
			var err error
			st, err = tx.btx.Stats(ns.names)
			return err
		})
		return st, err
	})
}

// loggableValue shortens JSON text for log lines.
func loggableValue(raw string) string {
	const maxLen = 200
	if len(raw) <= maxLen {
		return raw
	}
	return raw[:maxLen] + "..."
}
