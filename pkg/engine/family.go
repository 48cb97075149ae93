package engine

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultColumnFamily always exists.
const DefaultColumnFamily = "default"

const familySeparator = 0x00

// Families is the set of column families an engine was opened with. Each
// family is a key prefix of the form name+0x00 in the backend's keyspace.
type Families struct {
	prefixes map[string][]byte
}

// NewFamilies validates names and builds the family set. The default family
// is added when missing.
func NewFamilies(names ...string) (*Families, error) {
	f := &Families{prefixes: make(map[string][]byte, len(names)+1)}
	for _, name := range append([]string{DefaultColumnFamily}, names...) {
		if name == "" {
			return nil, errors.New("column family name must not be empty")
		}
		if strings.IndexByte(name, familySeparator) >= 0 {
			return nil, errors.Newf("column family name %q contains a NUL byte", name)
		}
		f.prefixes[name] = append([]byte(name), familySeparator)
	}
	return f, nil
}

// Names returns the sorted family names.
func (f *Families) Names() []string {
	names := make([]string, 0, len(f.prefixes))
	for name := range f.prefixes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Key returns the backend key for key in family name.
func (f *Families) Key(name string, key []byte) ([]byte, error) {
	prefix, ok := f.prefixes[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownColumnFamily, "%q", name)
	}
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...), nil
}

// Split reverses Key, returning the family name and the user key.
func (f *Families) Split(internal []byte) (string, []byte, error) {
	i := strings.IndexByte(string(internal), familySeparator)
	if i < 0 {
		return "", nil, errors.Wrapf(ErrCorruption, "key %q has no column family prefix", internal)
	}
	name := string(internal[:i])
	if _, ok := f.prefixes[name]; !ok {
		return "", nil, errors.Wrapf(ErrUnknownColumnFamily, "%q", name)
	}
	return name, internal[i+1:], nil
}
