package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate document")
)

// Collection is a set of documents of one kind keyed by id.
type Collection[T Document] interface {
	Get(ctx context.Context, id string) (T, error)
	// Insert stores a new document. An existing id fails with ErrDuplicate
	// and leaves the stored document untouched.
	Insert(ctx context.Context, doc T) error
	// Update applies mutate to the stored document and persists the result
	// as one atomic read-modify-write. A mutate error aborts the write.
	Update(ctx context.Context, id string, mutate func(*T) error) (T, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]T, error)
	// Find returns documents whose top-level JSON field equals value.
	Find(ctx context.Context, field, value string) ([]T, error)
}

// Store is the document storage collaborator of the server.
type Store interface {
	Projects() Collection[Project]
	Codes() Collection[Code]
	Notes() Collection[Note]
	TextFiles() Collection[TextFile]
	CodingVersions() Collection[CodingVersion]
	Privileges() Collection[ProjectPrivilege]
	Users() Collection[User]
	// CreateProject inserts the project, its children and the owner grant
	// as one operation. A duplicate project id fails with ErrDuplicate
	// without writing anything.
	CreateProject(ctx context.Context, tree ProjectTree, owner ProjectPrivilege) error
	// CreateTextFile inserts a text file together with its coding versions
	// as one operation. Any duplicate id fails with ErrDuplicate without
	// writing anything.
	CreateTextFile(ctx context.Context, file TextFile, versions []CodingVersion) error
	Ping(ctx context.Context) error
	Close() error
}

// Collection names, shared by both backends.
const (
	kindProjects       = "projects"
	kindCodes          = "codes"
	kindNotes          = "notes"
	kindTextFiles      = "text_files"
	kindCodingVersions = "coding_versions"
	kindPrivileges     = "project_privileges"
	kindUsers          = "users"
)

type detacher[T any] interface {
	Detached() T
}

// encode serializes a document in its persisted form.
func encode[T Document](doc T) ([]byte, error) {
	if d, ok := any(doc).(detacher[T]); ok {
		doc = d.Detached()
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", doc.DocID(), err)
	}
	return body, nil
}

func decode[T Document](body []byte) (T, error) {
	var doc T
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// fieldString returns the top-level string field of body.
func fieldString(body []byte, field string) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", false
	}
	raw, ok := fields[field]
	if !ok {
		return "", false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil || text == "" {
		return "", false
	}
	return text, true
}

// fieldEquals reports whether the top-level JSON field of body equals value.
func fieldEquals(body []byte, field, value string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	raw, ok := fields[field]
	if !ok {
		return false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text == value
	}
	return string(raw) == value
}
