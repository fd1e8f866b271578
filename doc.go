/*
Package cabinet implements an embedded document database on top of a
key-value store (Bolt by default), with named views that project
documents into typed derived tables.

We implement:

1. Documents, schemaless bodies addressed by string keys. The reserved
body field "_id" carries the key; bodies without one get a fresh
time-ordered identifier on insert.

2. Views, named per-document projections compiled from a small query
language (see the viewql subpackage). Each view owns a dedicated output
table whose columns mirror the projection, in declaration order.

3. Batches, atomic units of work. Every mutation runs inside exactly one
batch; effects become durable only when the batch commits.

4. A process-wide instance cache that memoizes loaded view transforms by
the content hash of their compiled artifact, so two views with identical
compiled behavior share one executable instance.

# Technical Details

**Buckets.**
We rely on scoped namespaces for keys called buckets. Bolt supports them
natively; the in-memory and SQLite backends simulate them.

**Document bucket.**
Keys are the raw document key bytes; values are the msgpack encoding of
the body map.

**View catalog.**
The "views" bucket maps a view name to the msgpack encoding of its
definition record: source text, compiled artifact, content hash, output
schema and commit sequence. The "viewseq" bucket maps a big-endian
sequence number to the view name, which is what gives ListViews its
commit order. Definitions are immutable; there is no update path.

**View output tables.**
Each view owns a bucket named "view:" plus the view name, created in the
same batch that registers the definition. Rows are msgpack arrays of
column values in schema order.

**Content hash.**
xxhash64 of the compiled artifact bytes. The instance cache keys on this
hash, not on the view name.
*/
package cabinet
