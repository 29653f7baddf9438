package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Document is anything stored in a collection under its own identifier.
type Document interface {
	DocID() string
}

// Link is a reference from a parent document to a child document. A link is
// either Unresolved (only the id is known) or Resolved (the child document has
// been loaded). ID works in both states.
type Link[T Document] struct {
	id  string
	doc *T
}

// Ref returns an unresolved link to id.
func Ref[T Document](id string) Link[T] {
	return Link[T]{id: id}
}

// Resolved returns a link carrying the loaded document.
func Resolved[T Document](doc T) Link[T] {
	return Link[T]{id: doc.DocID(), doc: &doc}
}

func (l Link[T]) ID() string {
	return l.id
}

// Document returns the loaded child, if the link has been expanded.
func (l Link[T]) Document() (T, bool) {
	if l.doc == nil {
		var zero T
		return zero, false
	}
	return *l.doc, true
}

func (l Link[T]) IsResolved() bool {
	return l.doc != nil
}

// Unresolve drops the loaded document and keeps only the id.
func (l Link[T]) Unresolve() Link[T] {
	return Link[T]{id: l.id}
}

// MarshalJSON writes the bare id for an unresolved link and the full child
// document for a resolved one.
func (l Link[T]) MarshalJSON() ([]byte, error) {
	if l.doc != nil {
		return json.Marshal(*l.doc)
	}
	return json.Marshal(l.id)
}

// UnmarshalJSON accepts either a bare id string or a full child document.
func (l *Link[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		*l = Link[T]{id: id}
		return nil
	}
	var doc T
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return err
	}
	if doc.DocID() == "" {
		return fmt.Errorf("linked document has no _id")
	}
	*l = Resolved(doc)
	return nil
}

// LinkIDs returns the ids of links in order.
func LinkIDs[T Document](links []Link[T]) []string {
	ids := make([]string, len(links))
	for i, link := range links {
		ids[i] = link.ID()
	}
	return ids
}

// ContainsLink reports whether links references id.
func ContainsLink[T Document](links []Link[T], id string) bool {
	return slices.ContainsFunc(links, func(link Link[T]) bool { return link.ID() == id })
}

// RemoveLink splices every reference to id out of links.
func RemoveLink[T Document](links []Link[T], id string) ([]Link[T], bool) {
	out := make([]Link[T], 0, len(links))
	removed := false
	for _, link := range links {
		if link.ID() == id {
			removed = true
			continue
		}
		out = append(out, link)
	}
	return out, removed
}

func detachLinks[T Document](links []Link[T]) []Link[T] {
	out := make([]Link[T], len(links))
	for i, link := range links {
		out[i] = link.Unresolve()
	}
	return out
}

type Project struct {
	ID        string           `json:"_id" validate:"required"`
	Name      string           `json:"name"`
	IsPublic  bool             `json:"is_public"`
	Codes     []Link[Code]     `json:"codes"`
	Notes     []Link[Note]     `json:"notes"`
	TextFiles []Link[TextFile] `json:"text_files"`
}

func (p Project) DocID() string { return p.ID }

// Detached returns a copy whose links carry only ids, which is the form
// projects are persisted in.
func (p Project) Detached() Project {
	p.Codes = detachLinks(p.Codes)
	p.Notes = detachLinks(p.Notes)
	p.TextFiles = detachLinks(p.TextFiles)
	return p
}

type Code struct {
	ID       string `json:"_id" validate:"required"`
	Name     string `json:"name"`
	Color    int    `json:"color"`
	ParentID string `json:"parent_id,omitempty"`
}

func (c Code) DocID() string { return c.ID }

// Coding is a labeled span [Start, Start+Length) of a text file.
type Coding struct {
	CodeID string `json:"code_id" validate:"required"`
	Start  int    `json:"start" validate:"min=0"`
	Length int    `json:"length" validate:"min=0"`
}

type CodingVersion struct {
	ID      string   `json:"_id" validate:"required"`
	Name    string   `json:"name"`
	Codings []Coding `json:"codings" validate:"dive"`
}

func (v CodingVersion) DocID() string { return v.ID }

type TextFile struct {
	ID             string                `json:"_id" validate:"required"`
	Name           string                `json:"name"`
	Text           string                `json:"text"`
	CodingVersions []Link[CodingVersion] `json:"coding_versions"`
}

func (f TextFile) DocID() string { return f.ID }

func (f TextFile) Detached() TextFile {
	f.CodingVersions = detachLinks(f.CodingVersions)
	return f
}

type Note struct {
	ID        string           `json:"_id" validate:"required"`
	Title     string           `json:"title"`
	Text      string           `json:"text"`
	TextLines map[string][]int `json:"text_lines"`
}

func (n Note) DocID() string { return n.ID }

type ProjectPrivilege struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	Level     int       `json:"level"`
	GrantedAt time.Time `json:"granted_at"`
}

func (p ProjectPrivilege) DocID() string { return p.ID }

// PrivilegeID is the identifier of the single privilege record a user can
// hold on a project.
func PrivilegeID(projectID, userID string) string {
	return projectID + ":" + userID
}

type User struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) DocID() string { return u.ID }

// ProjectTree is a project together with the child documents delivered with
// it, as submitted by a client publishing a project.
type ProjectTree struct {
	Project        Project
	Codes          []Code
	Notes          []Note
	TextFiles      []TextFile
	CodingVersions []CodingVersion
}

// SplitProject separates the resolved children of p from the project record.
// Unresolved links are kept as references and contribute no child document.
func SplitProject(p Project) ProjectTree {
	tree := ProjectTree{Project: p.Detached()}
	for _, link := range p.Codes {
		if doc, ok := link.Document(); ok {
			tree.Codes = append(tree.Codes, doc)
		}
	}
	for _, link := range p.Notes {
		if doc, ok := link.Document(); ok {
			tree.Notes = append(tree.Notes, doc)
		}
	}
	for _, link := range p.TextFiles {
		doc, ok := link.Document()
		if !ok {
			continue
		}
		for _, cvLink := range doc.CodingVersions {
			if cv, ok := cvLink.Document(); ok {
				tree.CodingVersions = append(tree.CodingVersions, cv)
			}
		}
		tree.TextFiles = append(tree.TextFiles, doc.Detached())
	}
	return tree
}
