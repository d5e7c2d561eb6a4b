package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/delaneyj/proxyparty/reactive"
)

// path addresses a value inside a declared object. Read paths come in three
// forms: "obj.a.b" reads b, "obj.a.*" enumerates a, "obj.a?b" checks b.
type path struct {
	object   string
	segments []string
	op       reactive.OpType
}

func parseReadPath(s string) (path, error) {
	if left, key, ok := strings.Cut(s, "?"); ok {
		if key == "" || strings.ContainsAny(key, ".?*") {
			return path{}, fmt.Errorf("%w: bad existence check %q", ErrInvalid, s)
		}
		p, err := splitPath(left)
		if err != nil {
			return path{}, err
		}
		p.segments = append(p.segments, key)
		p.op = reactive.OpHas
		return p, nil
	}

	p, err := splitPath(s)
	if err != nil {
		return path{}, err
	}
	if n := len(p.segments); n > 0 && p.segments[n-1] == "*" {
		p.segments = p.segments[:n-1]
		p.op = reactive.OpIterate
		return p, nil
	}
	if len(p.segments) == 0 {
		return path{}, fmt.Errorf("%w: read %q names no key", ErrInvalid, s)
	}
	p.op = reactive.OpGet
	return p, nil
}

// parseWritePath accepts only "obj.a.b" forms.
func parseWritePath(s string) (path, error) {
	p, err := splitPath(s)
	if err != nil {
		return path{}, err
	}
	if len(p.segments) == 0 || strings.ContainsAny(s, "*?") {
		return path{}, fmt.Errorf("%w: bad write path %q", ErrInvalid, s)
	}
	p.op = reactive.OpSet
	return p, nil
}

func splitPath(s string) (path, error) {
	parts := strings.Split(s, ".")
	for _, part := range parts {
		if part == "" {
			return path{}, fmt.Errorf("%w: empty segment in %q", ErrInvalid, s)
		}
	}
	return path{object: parts[0], segments: parts[1:]}, nil
}

func (p path) String() string {
	return strings.Join(append([]string{p.object}, p.segments...), ".")
}

// keyFor converts a path segment to the key type the container uses.
func keyFor(container *reactive.Proxy, segment string) reactive.Key {
	if container.Kind() == reactive.KindSequence {
		if i, err := strconv.Atoi(segment); err == nil {
			return i
		}
	}
	return segment
}

// walk follows segments from root and returns the proxy holding the last
// segment together with its key.
func walk(root *reactive.Proxy, p path) (*reactive.Proxy, reactive.Key, error) {
	current := root
	for i, seg := range p.segments[:len(p.segments)-1] {
		next, ok := current.Get(keyFor(current, seg)).(*reactive.Proxy)
		if !ok {
			return nil, nil, fmt.Errorf("%s: segment %d (%q) is not an object", p, i+1, seg)
		}
		current = next
	}
	last := p.segments[len(p.segments)-1]
	return current, keyFor(current, last), nil
}

// container resolves the object a whole path points at, for iteration.
func container(root *reactive.Proxy, p path) (*reactive.Proxy, error) {
	current := root
	for i, seg := range p.segments {
		next, ok := current.Get(keyFor(current, seg)).(*reactive.Proxy)
		if !ok {
			return nil, fmt.Errorf("%s: segment %d (%q) is not an object", p, i+1, seg)
		}
		current = next
	}
	return current, nil
}
