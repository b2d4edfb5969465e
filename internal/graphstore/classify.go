package graphstore

// Class is the cached classification of a name: whether it denotes a group,
// a file, or neither.
type Class int

const (
	// ClassAbsent means no group or file of this name exists.
	ClassAbsent Class = iota
	ClassGroup
	ClassFile
)

// classResult is what the LRU actually stores — a tiny value type, cheap to
// copy, so the cache holds only scalars.
type classResult struct {
	class Class
}

// Classify is the hot path PathResolver calls for every prefix segment of
// every operation: "is this name a group, a file, or neither". It is backed
// by an LRU in front of two SQLite lookups, since an uncached classification
// still needs to distinguish "absent" from "file" when IsGroup alone says no.
func (s *Store) Classify(name string) (Class, error) {
	s.classMu.Lock()
	if cached, ok := s.class.Get(name); ok {
		s.classMu.Unlock()
		return cached.class, nil
	}
	s.classMu.Unlock()

	isGroup, err := s.IsGroup(name)
	if err != nil {
		return ClassAbsent, err
	}
	var class Class
	switch {
	case isGroup:
		class = ClassGroup
	default:
		isFile, err := s.IsFile(name)
		if err != nil {
			return ClassAbsent, err
		}
		if isFile {
			class = ClassFile
		} else {
			class = ClassAbsent
		}
	}

	s.classMu.Lock()
	s.class.Add(name, classResult{class: class})
	s.classMu.Unlock()
	return class, nil
}

// invalidateClass evicts name from the classification cache. Called by every
// Store method that creates, deletes, or renames a group or file.
func (s *Store) invalidateClass(name string) {
	s.classMu.Lock()
	s.class.Remove(name)
	s.classMu.Unlock()
}
