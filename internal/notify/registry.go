// Package notify is the subscription & notification engine (spec §4.4):
// it tracks who asked to hear about which (key, appId, category) tuples
// and emits the write-completion protocol that turns a committed set/
// delete/reset into subscriber payloads.
package notify

import (
	"fmt"
	"sync"
)

// Subscription is one registered interest. Dimension is the coordinate
// the subscriber was looking at when it subscribed — it only applies to
// dimension-qualified categories and is what lets a later dimension
// rebuild (§4.1.6) decide whether this subscriber needs a fresh value.
type Subscription struct {
	Sender      string
	Key         string // "" for a category-wide description subscription
	AppID       string
	Category    string // the bare category name, e.g. "picture"
	CategoryDim string // category plus dimension suffix, e.g. "picture$dtv"
	Dimension   map[string]string
	Desc        bool // true for a DESC|... subscription rather than VALUE|...
}

func valueSubKey(key, appID, categoryOrDim string) string {
	return fmt.Sprintf("VALUE|%s|%s|%s", key, appID, categoryOrDim)
}

func descSubKey(key, appID string) string {
	return fmt.Sprintf("DESC|%s|%s", key, appID)
}

// Registry is the live subscription table. ValueSubscribers,
// DescSubscribers and DimensionDependent are direct keyed lookups;
// perAppSubscribers scans every canonical key.
type Registry struct {
	mu sync.RWMutex

	byCanonicalKey map[string][]*Subscription // VALUE|.. or DESC|.. -> subs
	byDimCategory  map[string][]*Subscription // category-dim -> dimension-dependent subs (§4.1.6 rebuild fan-out)
	bySender       map[string][]*Subscription // sender -> every sub it owns, for disconnect cleanup
}

// NewRegistry constructs an empty subscription table.
func NewRegistry() *Registry {
	return &Registry{
		byCanonicalKey: make(map[string][]*Subscription),
		byDimCategory:  make(map[string][]*Subscription),
		bySender:       make(map[string][]*Subscription),
	}
}

// SubscribeValue registers interest in key under (appId, category-or-dim).
// dimension, if non-empty, is the coordinate in effect right now; it
// makes this subscriber dimension-dependent for categoryDim.
func (r *Registry) SubscribeValue(sender, key, appID, categoryOrDim string, dimension map[string]string) *Subscription {
	sub := &Subscription{Sender: sender, Key: key, AppID: appID, CategoryDim: categoryOrDim, Dimension: dimension}

	r.mu.Lock()
	defer r.mu.Unlock()
	ck := valueSubKey(key, appID, categoryOrDim)
	r.byCanonicalKey[ck] = append(r.byCanonicalKey[ck], sub)
	r.bySender[sender] = append(r.bySender[sender], sub)
	if len(dimension) > 0 {
		r.byDimCategory[categoryOrDim] = append(r.byDimCategory[categoryOrDim], sub)
	}
	return sub
}

// SubscribeDesc registers interest in key's description for appId.
func (r *Registry) SubscribeDesc(sender, key, appID string) *Subscription {
	sub := &Subscription{Sender: sender, Key: key, AppID: appID, Desc: true}

	r.mu.Lock()
	defer r.mu.Unlock()
	ck := descSubKey(key, appID)
	r.byCanonicalKey[ck] = append(r.byCanonicalKey[ck], sub)
	r.bySender[sender] = append(r.bySender[sender], sub)
	return sub
}

// ValueSubscribers returns the subscribers registered for exactly this
// (key, appId, category-or-dim) tuple.
func (r *Registry) ValueSubscribers(key, appID, categoryOrDim string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Subscription(nil), r.byCanonicalKey[valueSubKey(key, appID, categoryOrDim)]...)
}

// DescSubscribers returns the subscribers registered for key's description
// for appId.
func (r *Registry) DescSubscribers(key, appID string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Subscription(nil), r.byCanonicalKey[descSubKey(key, appID)]...)
}

// perAppSubscribers returns every value subscriber for key/categoryDim
// registered under a non-empty appId — the bucket a global-scoped mixed-
// key write must also reach (§4.4.3).
func (r *Registry) perAppSubscribers(key, categoryDim string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscription
	prefix := "VALUE|" + key + "|"
	for ck, subs := range r.byCanonicalKey {
		if len(ck) <= len(prefix) || ck[:len(prefix)] != prefix {
			continue
		}
		for _, s := range subs {
			if s.AppID != "" && s.CategoryDim == categoryDim {
				out = append(out, s)
			}
		}
	}
	return out
}

// DimensionDependent returns every subscriber whose value subscription is
// pinned to a dimension coordinate within categoryDim, for the §4.1.6
// rebuild fan-out.
func (r *Registry) DimensionDependent(categoryDim string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Subscription(nil), r.byDimCategory[categoryDim]...)
}

// Unsubscribe removes every subscription owned by sender — called on bus
// client disconnect (spec §4.3.2).
func (r *Registry) Unsubscribe(sender string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.bySender[sender]
	delete(r.bySender, sender)

	for _, sub := range subs {
		var ck string
		if sub.Desc {
			ck = descSubKey(sub.Key, sub.AppID)
		} else {
			ck = valueSubKey(sub.Key, sub.AppID, sub.CategoryDim)
		}
		r.byCanonicalKey[ck] = removeSub(r.byCanonicalKey[ck], sub)
		if len(sub.Dimension) > 0 {
			r.byDimCategory[sub.CategoryDim] = removeSub(r.byDimCategory[sub.CategoryDim], sub)
		}
	}
}

func removeSub(subs []*Subscription, target *Subscription) []*Subscription {
	out := subs[:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
