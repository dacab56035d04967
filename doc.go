/*
Package tagdb is an embedded key-value and tagged document store.

A Store is a handle on a namespace: a (file, table) pair holding

1. A key-value table of JSON values under string keys.

2. A document table of JSON values under auto-incremented integer ids, each
carrying a string tag for grouped lookup, update and delete.

Every Store opened on the same namespace shares one backend handle, one lock
and one in-memory cache of existing keys; the Registry tracks them.

# Tags

A document inserted without an explicit tag takes the value of its TagName
field (default "tag"). When an object lacks that field, its first field is
used and its name becomes the TagName. The TagName lives under the reserved
key "_tag" in the key-value table.

# Engines

EngineSQLite stores a namespace as two SQL tables, <name> and doc<name>, with
JSON text in the value column.

EngineBolt (the default) stores the same rows in Bolt buckets:

	<name>/data         key bytes => msgpack {key_id, value, ctime, mtime}
	doc<name>/data      8-byte big-endian id => msgpack {tag, value, ctime, mtime}
	doc<name>/tags      tag, 0x00, 8-byte id => empty

Bucket sequences assign key ids and document ids. Opening InMemory with
EngineBolt uses the same layout on a transient in-memory storage.
*/
package tagdb
