package container

import (
	"encoding/binary"

	"github.com/containerfs/containerfs/pkg/errors"
	"github.com/containerfs/containerfs/pkg/utils"
)

// EntryKind discriminates files from directories.
type EntryKind uint8

const (
	// KindFile marks a file entry.
	KindFile EntryKind = 0
	// KindDirectory marks a directory entry.
	KindDirectory EntryKind = 1
)

// Entry is one node of the in-memory metadata tree. Children are owned by
// their directory; Parent is a back-reference and is never serialized.
type Entry struct {
	Kind          EntryKind
	Name          string
	Size          uint64
	Timestamp     uint64
	DataOffset    uint64
	IntegrityHash []byte
	Children      []*Entry
	Parent        *Entry
}

// NewRoot creates the root directory entry.
func NewRoot(timestamp uint64) *Entry {
	return &Entry{Kind: KindDirectory, Timestamp: timestamp}
}

// IsDirectory reports whether the entry is a directory.
func (e *Entry) IsDirectory() bool {
	return e.Kind == KindDirectory
}

// Child returns the direct child with the given name, or nil.
func (e *Entry) Child(name string) *Entry {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AddChild appends c to the entry's children and sets the back-reference.
func (e *Entry) AddChild(c *Entry) {
	c.Parent = e
	e.Children = append(e.Children, c)
}

// RemoveChild unlinks c from the entry's children. The child keeps its
// payload state so open handles stay usable.
func (e *Entry) RemoveChild(c *Entry) bool {
	for i, child := range e.Children {
		if child == c {
			e.Children = append(e.Children[:i], e.Children[i+1:]...)
			c.Parent = nil
			return true
		}
	}
	return false
}

// Walk visits the subtree rooted at e in preorder, handing each entry its
// absolute path. The entry itself is visited with basePath.
func (e *Entry) Walk(basePath string, fn func(path string, entry *Entry)) {
	fn(basePath, e)
	for _, c := range e.Children {
		c.Walk(utils.JoinPaths(basePath, c.Name), fn)
	}
}

// CountUsage tallies files, directories (excluding e itself when it is a
// directory) and total file bytes in the subtree.
func (e *Entry) CountUsage() (files, directories, storage uint64) {
	for _, c := range e.Children {
		cf, cd, cs := c.CountUsage()
		files += cf
		directories += cd
		storage += cs
		if c.Kind == KindDirectory {
			directories++
		} else {
			files++
			storage += c.Size
		}
	}
	return files, directories, storage
}

// Marshal appends the preorder serialization of the subtree to buf.
func (e *Entry) Marshal(buf []byte) []byte {
	buf = append(buf, byte(e.Kind))
	buf = appendBytes(buf, []byte(e.Name))
	buf = binary.LittleEndian.AppendUint64(buf, e.Size)
	buf = binary.LittleEndian.AppendUint64(buf, e.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, e.DataOffset)
	buf = appendBytes(buf, e.IntegrityHash)
	if e.Kind == KindDirectory {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Children)))
		for _, c := range e.Children {
			buf = c.Marshal(buf)
		}
	}
	return buf
}

// UnmarshalEntry parses a serialized tree, reconstructing parent
// back-references during traversal.
func UnmarshalEntry(buf []byte) (*Entry, error) {
	r := reader{buf: buf}
	root, err := unmarshalEntry(&r, nil)
	if err != nil {
		return nil, err
	}
	return root, nil
}

func unmarshalEntry(r *reader, parent *Entry) (*Entry, error) {
	e := &Entry{Parent: parent}

	kind := r.uint8()
	switch EntryKind(kind) {
	case KindFile, KindDirectory:
		e.Kind = EntryKind(kind)
	default:
		if r.err == nil {
			return nil, errors.Newf(errors.KindInvalidFormat, "unknown entry kind %d", kind)
		}
	}
	e.Name = string(r.bytes())
	e.Size = r.uint64()
	e.Timestamp = r.uint64()
	e.DataOffset = r.uint64()
	e.IntegrityHash = r.bytes()

	if r.err != nil {
		return nil, errors.InvalidFormat("truncated entry").WithCause(r.err)
	}

	if e.Kind == KindDirectory {
		count := r.uint32()
		if r.err != nil {
			return nil, errors.InvalidFormat("truncated child count").WithCause(r.err)
		}
		// a child occupies at least its kind byte and four length words
		if int(count) > r.remaining() {
			return nil, errors.InvalidFormat("child count overruns buffer")
		}
		for i := uint32(0); i < count; i++ {
			child, err := unmarshalEntry(r, e)
			if err != nil {
				return nil, err
			}
			e.Children = append(e.Children, child)
		}
	}
	return e, nil
}
