package tagdb

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpTableHeaders = DumpFlags(1 << iota)
	DumpKeys
	DumpDocs
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the namespace as text for debugging and tests.
func (s *Store) Dump(f DumpFlags) (string, error) {
	return withNS(s, "dump", func(ns *namespace) (string, error) {
		var buf strings.Builder
		err := s.read(ns, "dump", ns.names.KV, func(tx *storeTx) error {
			return dumpNamespace(&buf, tx, ns.names, f)
		})
		return buf.String(), err
	})
}

func dumpNamespace(w *strings.Builder, tx *storeTx, names tableNames, f DumpFlags) error {
	st, err := tx.btx.Stats(names)
	if err != nil {
		return err
	}
	if f.Contains(DumpTableHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d keys)\n", names.KV, st.Keys)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: size = %d, alloc = %d\n", names.KV, st.KVSize, st.KVAlloc)
	}
	if f.Contains(DumpKeys) {
		err := tx.btx.KVScan(names.KV, func(row kvRow) bool {
			fmt.Fprintf(w, "%s.%d: %q = (c%d m%d) %s\n", names.KV, row.KeyID, row.Key, row.CTime, row.MTime, loggableValue(row.Value))
			return true
		})
		if err != nil {
			return err
		}
	}

	if f.Contains(DumpTableHeaders) {
		fmt.Fprintln(w, dumpSep2)
		fmt.Fprintf(w, "%s (%d docs)\n", names.Doc, st.Docs)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: index_rows = %d, data_size = %d, data_alloc = %d, index_size = %d, index_alloc = %d, total_alloc = %d\n", names.Doc, st.TagIndexRows, st.DocSize, st.DocAlloc, st.IndexSize, st.IndexAlloc, st.TotalAlloc())
	}
	if f.Contains(DumpDocs) {
		err := tx.btx.DocScan(names.Doc, docQuery{FromID: 1}, func(row docRow) bool {
			fmt.Fprintf(w, "%s.%d: tag=%q (c%d m%d) %s\n", names.Doc, row.ID, row.Tag, row.CTime, row.MTime, loggableValue(row.Value))
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}
