// Package redis provides a mutter.Source for Redis string keys under a
// prefix, using keyspace notifications.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/mutter"
)

// DefaultSeparator splits key names into path segments.
const DefaultSeparator = ":"

// Source watches every key starting with a prefix. The rest of each key
// name, split on the separator, is the path the value is written to.
// Requires Redis to have keyspace notifications enabled:
//
//	CONFIG SET notify-keyspace-events KEA
//
// Or in redis.conf:
//
//	notify-keyspace-events KEA
type Source struct {
	client    *redis.Client
	prefix    string
	separator string
	db        int
	mount     []string
	scanCount int64
}

// Option configures a Source.
type Option func(*Source)

// WithSeparator sets the separator used to split key names. Default ":".
func WithSeparator(sep string) Option {
	return func(s *Source) {
		s.separator = sep
	}
}

// WithDB sets the database whose keyspace channel is subscribed to. It must
// match the client's database. Default 0.
func WithDB(db int) Option {
	return func(s *Source) {
		s.db = db
	}
}

// At mounts the keys under path instead of the store root.
func At(path ...string) Option {
	return func(s *Source) {
		s.mount = path
	}
}

// New creates a Source for keys starting with prefix, e.g. "app:".
func New(client *redis.Client, prefix string, opts ...Option) *Source {
	s := &Source{
		client:    client,
		prefix:    prefix,
		separator: DefaultSeparator,
		scanCount: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the store path for key, or false if key is outside the prefix.
func (s *Source) Path(key string) ([]string, bool) {
	rest, ok := strings.CutPrefix(key, s.prefix)
	if !ok || rest == "" {
		return nil, false
	}
	path := make([]string, 0, len(s.mount)+strings.Count(rest, s.separator)+1)
	path = append(path, s.mount...)
	return append(path, strings.Split(rest, s.separator)...), true
}

// Watch subscribes to keyspace notifications for the prefix and returns a
// channel of updates. Every existing key is emitted immediately as one
// update; afterwards each write, delete, expiry or eviction is emitted as
// it happens.
func (s *Source) Watch(ctx context.Context) (<-chan []mutter.Change, error) {
	channelPrefix := fmt.Sprintf("__keyspace@%d__:", s.db)
	pubsub := s.client.PSubscribe(ctx, channelPrefix+s.prefix+"*")

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	initial, err := s.load(ctx)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan []mutter.Change)

	go func() {
		defer close(out)
		defer pubsub.Close()

		select {
		case out <- initial:
		case <-ctx.Done():
			return
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				key := strings.TrimPrefix(msg.Channel, channelPrefix)
				path, ok := s.Path(key)
				if !ok {
					continue
				}

				var change mutter.Change
				switch msg.Payload {
				case "set", "setex", "psetex", "setnx", "setrange", "append", "incrby", "incrbyfloat", "rename_to":
					val, err := s.client.Get(ctx, key).Bytes()
					if err != nil {
						continue
					}
					change = mutter.Change{Path: path, Raw: val}
				case "del", "expired", "evicted", "rename_from":
					change = mutter.Change{Path: path, Deleted: true}
				default:
					continue
				}

				select {
				case out <- []mutter.Change{change}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// load reads every string key under the prefix.
func (s *Source) load(ctx context.Context) ([]mutter.Change, error) {
	changes := []mutter.Change{}
	iter := s.client.Scan(ctx, 0, s.prefix+"*", s.scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		path, ok := s.Path(key)
		if !ok {
			continue
		}
		val, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			// Not a string key.
			continue
		}
		changes = append(changes, mutter.Change{Path: path, Raw: val})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return initialUpdate(s.mount, changes), nil
}

// initialUpdate writes an empty record at the mount point when the prefix
// holds no keys, so a bare prefix still binds.
func initialUpdate(mount []string, changes []mutter.Change) []mutter.Change {
	if len(mount) == 0 || len(changes) > 0 {
		return changes
	}
	return []mutter.Change{{Path: mount, Raw: []byte("{}")}}
}

var _ mutter.Source = (*Source)(nil)
