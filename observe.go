package mutter

import "log/slog"

// Observe runs fn immediately inside a tracking window and again, once per
// flush, whenever something it read changes. Dispose the returned observer to
// stop it.
//
// Example:
//
//	obs, err := mutter.Observe(rt, func(*mutter.Observer) {
//	    todos := store.Snapshot().Get("todos").(*mutter.Snapshot)
//	    render(todos.Len())
//	})
func Observe(rt *Runtime, fn func(*Observer)) (*Observer, error) {
	o := rt.NewObserver(func(o *Observer) {
		if err := rt.Track(o, func() { fn(o) }); err != nil {
			rt.logger.Error("mutter: observer re-run failed", slog.String("observer", o.id), slog.Any("error", err))
		}
	})
	if err := rt.Track(o, func() { fn(o) }); err != nil {
		return nil, err
	}
	return o, nil
}
