package tagindex

import (
	"crypto/md5" //nolint:gosec // content-change detection, not a security boundary
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"
	"sync"
)

// FileEntry is the canonical record of "what tag set did this file
// contribute last time we saw it". Any GlobalTag.Frequency must equal the
// count of registry entries containing that tag.
type FileEntry struct {
	Hash string
	Tags map[string]struct{}
}

// TagSlice returns Tags as a sorted slice.
func (e FileEntry) TagSlice() []string {
	out := make([]string, 0, len(e.Tags))
	for t := range e.Tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// FileRegistry is the canonical filePath -> {hash, tags} truth table driving
// the O(|tags|) file diff in Manager.
type FileRegistry struct {
	mu      sync.RWMutex
	entries map[string]FileEntry
}

// NewFileRegistry creates an empty registry.
func NewFileRegistry() *FileRegistry {
	return &FileRegistry{entries: make(map[string]FileEntry)}
}

// HashContent returns the content digest used to detect unchanged files.
func HashContent(content []byte) string {
	sum := md5.Sum(content) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Get returns the registry entry for path, if any.
func (r *FileRegistry) Get(path string) (FileEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[path]
	return e, ok
}

// Len returns the number of tracked files.
func (r *FileRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Diff computes the tag-set delta for path against the currently recorded
// entry (if any) and stores the new entry. unchanged is true (added/removed
// both empty, no store performed) when the content hash is unchanged,
// satisfying the diff pipeline's O(1) no-op case.
func (r *FileRegistry) Diff(path, newHash string, newTags []string) (added, removed []string, unchanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, existed := r.entries[path]
	if existed && old.Hash == newHash {
		return nil, nil, true
	}

	newSet := make(map[string]struct{}, len(newTags))
	for _, t := range newTags {
		newSet[t] = struct{}{}
	}

	if existed {
		for t := range old.Tags {
			if _, ok := newSet[t]; !ok {
				removed = append(removed, t)
			}
		}
	}
	for t := range newSet {
		if !existed {
			added = append(added, t)
			continue
		}
		if _, ok := old.Tags[t]; !ok {
			added = append(added, t)
		}
	}

	r.entries[path] = FileEntry{Hash: newHash, Tags: newSet}
	return added, removed, false
}

// Remove deletes path's entry (file deleted), returning its former tag set
// so the caller can apply the corresponding GlobalTag decrements.
func (r *FileRegistry) Remove(path string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	if !ok {
		return nil, false
	}
	delete(r.entries, path)
	return e.TagSlice(), true
}

// Paths returns every tracked path, sorted.
func (r *FileRegistry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for p := range r.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// registryWireEntry is the on-disk shape of one FileRegistry.json row:
// {h: hash, t: [tag,...]}.
type registryWireEntry struct {
	H string   `json:"h"`
	T []string `json:"t"`
}

// Save atomically writes FileRegistry.json as an array of [path, entry]
// pairs, matching the documented on-disk shape.
func (r *FileRegistry) Save(path string) error {
	r.mu.RLock()
	paths := make([]string, 0, len(r.entries))
	for p := range r.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	wire := make([]json.RawMessage, 0, len(paths))
	for _, p := range paths {
		e := r.entries[p]
		pair := []interface{}{p, registryWireEntry{H: e.Hash, T: e.TagSlice()}}
		b, err := json.Marshal(pair)
		if err != nil {
			r.mu.RUnlock()
			return err
		}
		wire = append(wire, b)
	}
	r.mu.RUnlock()

	payload, err := json.Marshal(rawArray(wire))
	if err != nil {
		return err
	}
	return writeAtomicJSONBytes(path, payload)
}

// rawArray marshals a slice of json.RawMessage as a JSON array.
type rawArray []json.RawMessage

func (a rawArray) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("[]"), nil
	}
	buf := []byte{'['}
	for i, m := range a {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, m...)
	}
	buf = append(buf, ']')
	return buf, nil
}

// LoadFileRegistry reads a previously-saved FileRegistry.json. A missing
// file is not an error: it returns an empty registry, matching the "rebuild
// from scratch" bootstrap path.
func LoadFileRegistry(path string) (*FileRegistry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewFileRegistry(), nil
		}
		return nil, err
	}
	defer f.Close()

	var pairs []struct {
		Path  string
		Entry registryWireEntry
	}
	// FileRegistry.json stores [path, entry] pairs, not objects, so decode
	// via a generic array-of-arrays shape first.
	var raw []json.RawMessage
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}
	for _, r := range raw {
		var tuple [2]json.RawMessage
		if err := json.Unmarshal(r, &tuple); err != nil {
			continue
		}
		var path string
		if err := json.Unmarshal(tuple[0], &path); err != nil {
			continue
		}
		var entry registryWireEntry
		if err := json.Unmarshal(tuple[1], &entry); err != nil {
			continue
		}
		pairs = append(pairs, struct {
			Path  string
			Entry registryWireEntry
		}{Path: path, Entry: entry})
	}

	reg := NewFileRegistry()
	for _, p := range pairs {
		tagSet := make(map[string]struct{}, len(p.Entry.T))
		for _, t := range p.Entry.T {
			tagSet[t] = struct{}{}
		}
		reg.entries[p.Path] = FileEntry{Hash: p.Entry.H, Tags: tagSet}
	}
	return reg, nil
}
