package mutter

import "sort"

// registry maps observables to the observers currently depending on them.
// An observer is listed under an observable iff the observable is in the
// observer's committed or pending set.
type registry struct {
	subs map[Observable]map[*Observer]struct{}
}

func newRegistry() *registry {
	return &registry{subs: make(map[Observable]map[*Observer]struct{})}
}

func (r *registry) add(obs Observable, o *Observer) {
	set, ok := r.subs[obs]
	if !ok {
		set = make(map[*Observer]struct{})
		r.subs[obs] = set
	}
	set[o] = struct{}{}
}

func (r *registry) remove(obs Observable, o *Observer) {
	set, ok := r.subs[obs]
	if !ok {
		return
	}
	delete(set, o)
	if len(set) == 0 {
		delete(r.subs, obs)
	}
}

// observers returns subscribers in creation order so flushes are deterministic.
func (r *registry) observers(obs Observable) []*Observer {
	set := r.subs[obs]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Observer, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *registry) len() int {
	return len(r.subs)
}
