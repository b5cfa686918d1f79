package domain

import (
	"path"
	"strings"
)

// FileID is a small stable handle for an interned file path.
type FileID uint32

// FileDictionary interns file paths to FileIDs. Ids are assigned in
// insertion order starting at zero and never change for the lifetime of the
// dictionary. A dictionary is not safe for concurrent use; each worker owns
// its own.
type FileDictionary struct {
	ids   map[string]FileID
	paths []string
}

// NewFileDictionary creates an empty dictionary.
func NewFileDictionary() *FileDictionary {
	return &FileDictionary{ids: make(map[string]FileID)}
}

// Intern returns the id for path, adding it if unseen.
func (d *FileDictionary) Intern(p string) FileID {
	key := NormalizePath(p)
	if id, ok := d.ids[key]; ok {
		return id
	}
	id := FileID(len(d.paths)) //#nosec G115 -- dictionaries hold one query's files
	d.ids[key] = id
	d.paths = append(d.paths, key)
	return id
}

// Lookup returns the id of an already interned path.
func (d *FileDictionary) Lookup(p string) (FileID, bool) {
	id, ok := d.ids[NormalizePath(p)]
	return id, ok
}

// Resolve returns the path for id, or "" if the id is unknown.
func (d *FileDictionary) Resolve(id FileID) string {
	if int(id) >= len(d.paths) {
		return ""
	}
	return d.paths[id]
}

// Len returns the number of distinct paths.
func (d *FileDictionary) Len() int {
	return len(d.paths)
}

// Paths returns all paths in id order.
func (d *FileDictionary) Paths() []string {
	out := make([]string, len(d.paths))
	copy(out, d.paths)
	return out
}

// NormalizePath trims whitespace and cleans redundant separators. URLs keep
// their scheme separator intact.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if scheme, rest, ok := strings.Cut(p, "://"); ok {
		if rest == "" {
			return p
		}
		return scheme + "://" + strings.TrimPrefix(path.Clean("/"+rest), "/")
	}
	return path.Clean(p)
}
