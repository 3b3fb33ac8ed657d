package mutter

import "strings"

// Reserved markers appended to a node path.
const (
	// KeysMarker identifies the key set of a container. It fires when keys
	// are added or removed and on every list write.
	KeysMarker = "*"

	// SubtreeMarker identifies everything strictly beneath a node.
	SubtreeMarker = "**"
)

// Observable identifies one trackable fact about a tree: a property, the key
// set of a container, or a whole subtree.
type Observable string

// String returns the identifier.
func (o Observable) String() string {
	return string(o)
}

func keyObservable(path, key string) Observable {
	return Observable(path + "." + escapeKey(key))
}

func keysObservable(path string) Observable {
	return Observable(path + "." + KeysMarker)
}

func subtreeObservable(path string) Observable {
	return Observable(path + "." + SubtreeMarker)
}

// escapeKey keeps user keys from colliding with markers or nested paths.
func escapeKey(key string) string {
	if !strings.ContainsAny(key, `.*\`) {
		return key
	}
	var b strings.Builder
	b.Grow(len(key) + 2)
	for _, r := range key {
		if r == '.' || r == '*' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
