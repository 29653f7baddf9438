package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps documents in process memory. Documents are held in their
// encoded form so callers never share slices or maps with the store.
type MemoryStore struct {
	mu             sync.Mutex
	projects       *memCollection[Project]
	codes          *memCollection[Code]
	notes          *memCollection[Note]
	textFiles      *memCollection[TextFile]
	codingVersions *memCollection[CodingVersion]
	privileges     *memCollection[ProjectPrivilege]
	users          *memCollection[User]
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.projects = newMemCollection[Project](&s.mu, kindProjects)
	s.codes = newMemCollection[Code](&s.mu, kindCodes)
	s.notes = newMemCollection[Note](&s.mu, kindNotes)
	s.textFiles = newMemCollection[TextFile](&s.mu, kindTextFiles)
	s.codingVersions = newMemCollection[CodingVersion](&s.mu, kindCodingVersions)
	s.privileges = newMemCollection[ProjectPrivilege](&s.mu, kindPrivileges)
	s.users = newMemCollection[User](&s.mu, kindUsers)
	s.users.unique = "email"
	return s
}

func (s *MemoryStore) Projects() Collection[Project]             { return s.projects }
func (s *MemoryStore) Codes() Collection[Code]                   { return s.codes }
func (s *MemoryStore) Notes() Collection[Note]                   { return s.notes }
func (s *MemoryStore) TextFiles() Collection[TextFile]           { return s.textFiles }
func (s *MemoryStore) CodingVersions() Collection[CodingVersion] { return s.codingVersions }
func (s *MemoryStore) Privileges() Collection[ProjectPrivilege]  { return s.privileges }
func (s *MemoryStore) Users() Collection[User]                   { return s.users }

func (s *MemoryStore) CreateProject(_ context.Context, tree ProjectTree, owner ProjectPrivilege) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := newMemBatch()
	if err := addToBatch(b, s.projects, tree.Project); err != nil {
		return err
	}
	for _, code := range tree.Codes {
		if err := addToBatch(b, s.codes, code); err != nil {
			return err
		}
	}
	for _, note := range tree.Notes {
		if err := addToBatch(b, s.notes, note); err != nil {
			return err
		}
	}
	for _, file := range tree.TextFiles {
		if err := addToBatch(b, s.textFiles, file); err != nil {
			return err
		}
	}
	for _, version := range tree.CodingVersions {
		if err := addToBatch(b, s.codingVersions, version); err != nil {
			return err
		}
	}
	if err := addToBatch(b, s.privileges, owner); err != nil {
		return err
	}
	b.commit()
	return nil
}

func (s *MemoryStore) CreateTextFile(_ context.Context, file TextFile, versions []CodingVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := newMemBatch()
	if err := addToBatch(b, s.textFiles, file); err != nil {
		return err
	}
	for _, version := range versions {
		if err := addToBatch(b, s.codingVersions, version); err != nil {
			return err
		}
	}
	b.commit()
	return nil
}

// memBatch collects encoded writes so a multi-document insert either lands
// completely or not at all. Callers hold the store mutex.
type memBatch struct {
	seen   map[string]bool
	writes []func()
}

func newMemBatch() *memBatch {
	return &memBatch{seen: make(map[string]bool)}
}

func addToBatch[T Document](b *memBatch, c *memCollection[T], doc T) error {
	key := c.kind + "/" + doc.DocID()
	if _, exists := c.docs[doc.DocID()]; exists || b.seen[key] {
		return fmt.Errorf("%s %s: %w", c.kind, doc.DocID(), ErrDuplicate)
	}
	body, err := encode(doc)
	if err != nil {
		return err
	}
	if err := c.checkUnique(body); err != nil {
		return err
	}
	b.seen[key] = true
	id := doc.DocID()
	b.writes = append(b.writes, func() { c.docs[id] = body })
	return nil
}

func (b *memBatch) commit() {
	for _, write := range b.writes {
		write()
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

type memCollection[T Document] struct {
	mu   *sync.Mutex
	kind string
	docs map[string][]byte
	// unique names a top-level field no two documents may share.
	unique string
}

func newMemCollection[T Document](mu *sync.Mutex, kind string) *memCollection[T] {
	return &memCollection[T]{mu: mu, kind: kind, docs: make(map[string][]byte)}
}

// checkUnique rejects body when another document already holds its value of
// the unique field.
func (c *memCollection[T]) checkUnique(body []byte) error {
	if c.unique == "" {
		return nil
	}
	value, ok := fieldString(body, c.unique)
	if !ok {
		return nil
	}
	for id, other := range c.docs {
		if fieldEquals(other, c.unique, value) {
			return fmt.Errorf("%s %s: %s taken: %w", c.kind, id, c.unique, ErrDuplicate)
		}
	}
	return nil
}

func (c *memCollection[T]) Get(_ context.Context, id string) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(id)
}

func (c *memCollection[T]) get(id string) (T, error) {
	body, ok := c.docs[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", c.kind, id, ErrNotFound)
	}
	return decode[T](body)
}

func (c *memCollection[T]) Insert(_ context.Context, doc T) error {
	body, err := encode(doc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[doc.DocID()]; exists {
		return fmt.Errorf("%s %s: %w", c.kind, doc.DocID(), ErrDuplicate)
	}
	if err := c.checkUnique(body); err != nil {
		return err
	}
	c.docs[doc.DocID()] = body
	return nil
}

func (c *memCollection[T]) Update(_ context.Context, id string, mutate func(*T) error) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.get(id)
	if err != nil {
		return doc, err
	}
	if err := mutate(&doc); err != nil {
		var zero T
		return zero, err
	}
	body, err := encode(doc)
	if err != nil {
		var zero T
		return zero, err
	}
	c.docs[id] = body
	return doc, nil
}

func (c *memCollection[T]) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%s %s: %w", c.kind, id, ErrNotFound)
	}
	delete(c.docs, id)
	return nil
}

func (c *memCollection[T]) List(ctx context.Context) ([]T, error) {
	return c.Find(ctx, "", "")
}

func (c *memCollection[T]) Find(_ context.Context, field, value string) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.docs))
	for id, body := range c.docs {
		if field != "" && !fieldEquals(body, field, value) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]T, 0, len(ids))
	for _, id := range ids {
		doc, err := decode[T](c.docs[id])
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	return items, nil
}
