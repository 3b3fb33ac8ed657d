/*
Package mutter provides a reactive, copy-on-write state runtime.

A Store holds a tree of plain data (map[string]any records and []any lists)
and exposes it through two handles:

  - *Mutable writes through to the live tree. Every write records a change
    notification and copies the affected snapshot chain on first touch.
  - *Snapshot is an immutable, structurally shared view. Subtrees that did not
    change keep the same *Snapshot across versions.

Reads made inside an Observer's tracking window register fine-grained
dependencies (one key, a container's key set, or a whole subtree). When a
later write touches one of them, the observer is re-run exactly once per
flush.

# Phases

The Runtime serializes all access through three phases: idle, reads and
writes. Mutations outside an explicit batch enter the writes phase and defer
a flush onto the Host; Batch flushes synchronously when it returns. Mutating
during reads is an error; schedule the change with Batch instead.

# Basic Usage

	q := mutter.NewQueue()
	rt := mutter.NewRuntime(q)

	store, err := rt.NewStore(map[string]any{
	    "todos": []any{},
	    "filter": "all",
	})
	if err != nil {
	    return err
	}

	obs, err := mutter.Observe(rt, func(*mutter.Observer) {
	    todos := store.Snapshot().Get("todos").(*mutter.Snapshot)
	    fmt.Println("todos:", todos.Len())
	})
	if err != nil {
	    return err
	}
	defer obs.Dispose()

	err = store.Batch(func(m *mutter.Mutable) error {
	    return m.Get("todos").(*mutter.Mutable).Append(map[string]any{"title": "write docs"})
	})

Changing "filter" would not re-run the observer above: it never read it.

# Hosts

A Runtime is single threaded. The Host decides where deferred flushes and
externally posted tasks run: Queue is drained explicitly (tests, synchronous
embeddings), Loop runs them on one goroutine.

# Sources

A Binding keeps a store in step with a Source. The core package provides
ChannelSource; additional sources are available in pkg/:

  - pkg/file: whole documents from a file, using fsnotify
  - pkg/redis: keys under a prefix, using keyspace notifications
  - pkg/nats: NATS JetStream KV buckets

Metrics providers are available in pkg/prometheus and pkg/otel.

# Diagnostics

Runtime and binding events are emitted as capitan signals (see signals.go).
Misuse is reported as *Error values matching ErrStructural, ErrPhase,
ErrAccessOutsideTracking or ErrImmutable through errors.Is.
*/
package mutter
