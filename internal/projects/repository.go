// Package projects is the privilege-checked access path to projects.
package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qdamono/server/internal/rbac"
	"qdamono/server/internal/store"
)

// ErrUnauthorized is returned when the caller's level on a project is below
// what the operation requires.
var ErrUnauthorized = errors.New("insufficient project privilege")

// AccessibleProject is one row of a user's project listing.
type AccessibleProject struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Privilege rbac.Level `json:"privilege"`
}

type Repository struct {
	store store.Store
	now   func() time.Time
}

func NewRepository(s store.Store) *Repository {
	return &Repository{store: s, now: time.Now}
}

// Resolve returns the user's effective level on project.
func (r *Repository) Resolve(ctx context.Context, project store.Project, userID string) (rbac.Level, error) {
	grant, err := r.store.Privileges().Get(ctx, store.PrivilegeID(project.ID, userID))
	if errors.Is(err, store.ErrNotFound) {
		return rbac.Resolve(nil, project.IsPublic), nil
	}
	if err != nil {
		return rbac.LevelUnauthorized, fmt.Errorf("lookup privilege: %w", err)
	}
	level := rbac.Level(grant.Level)
	return rbac.Resolve(&level, project.IsPublic), nil
}

// Get fetches a project the user may read. With expand set every link of the
// project, and of its text files, is resolved to the stored child.
func (r *Repository) Get(ctx context.Context, projectID, userID string, expand bool) (store.Project, rbac.Level, error) {
	project, err := r.store.Projects().Get(ctx, projectID)
	if err != nil {
		return store.Project{}, rbac.LevelUnauthorized, err
	}
	level, err := r.Resolve(ctx, project, userID)
	if err != nil {
		return store.Project{}, rbac.LevelUnauthorized, err
	}
	if !level.CanRead() {
		return store.Project{}, level, fmt.Errorf("project %s: %w", projectID, ErrUnauthorized)
	}
	if expand {
		project, err = r.Expand(ctx, project)
		if err != nil {
			return store.Project{}, level, err
		}
	}
	return project, level, nil
}

// Create stores project, the children it carries and an owner grant for
// userID in one step. A duplicate id writes nothing.
func (r *Repository) Create(ctx context.Context, project store.Project, userID string) error {
	owner := store.ProjectPrivilege{
		ID:        store.PrivilegeID(project.ID, userID),
		UserID:    userID,
		ProjectID: project.ID,
		Level:     int(rbac.LevelOwner),
		GrantedAt: r.now().UTC(),
	}
	if err := r.store.CreateProject(ctx, store.SplitProject(project), owner); err != nil {
		return fmt.Errorf("create project %s: %w", project.ID, err)
	}
	return nil
}

// ListAccessible returns every project the user can at least read.
func (r *Repository) ListAccessible(ctx context.Context, userID string) ([]AccessibleProject, error) {
	grants, err := r.store.Privileges().Find(ctx, "user_id", userID)
	if err != nil {
		return nil, fmt.Errorf("list privileges: %w", err)
	}
	explicit := make(map[string]rbac.Level, len(grants))
	for _, grant := range grants {
		explicit[grant.ProjectID] = rbac.Level(grant.Level)
	}

	all, err := r.store.Projects().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]AccessibleProject, 0, len(all))
	for _, project := range all {
		var level rbac.Level
		if grant, ok := explicit[project.ID]; ok {
			level = rbac.Resolve(&grant, project.IsPublic)
		} else {
			level = rbac.Resolve(nil, project.IsPublic)
		}
		if !level.CanRead() {
			continue
		}
		out = append(out, AccessibleProject{ID: project.ID, Name: project.Name, Privilege: level})
	}
	return out, nil
}

// ListPrivileges returns the explicit grants held by a user.
func (r *Repository) ListPrivileges(ctx context.Context, userID string) ([]store.ProjectPrivilege, error) {
	grants, err := r.store.Privileges().Find(ctx, "user_id", userID)
	if err != nil {
		return nil, fmt.Errorf("list privileges: %w", err)
	}
	return grants, nil
}

// Expand resolves the links of project. Links to children that no longer
// exist are dropped from the result.
func (r *Repository) Expand(ctx context.Context, project store.Project) (store.Project, error) {
	var err error
	if project.Codes, err = expandLinks(ctx, r.store.Codes(), project.Codes); err != nil {
		return store.Project{}, err
	}
	if project.Notes, err = expandLinks(ctx, r.store.Notes(), project.Notes); err != nil {
		return store.Project{}, err
	}
	if project.TextFiles, err = expandLinks(ctx, r.store.TextFiles(), project.TextFiles); err != nil {
		return store.Project{}, err
	}
	for i, link := range project.TextFiles {
		file, _ := link.Document()
		if file.CodingVersions, err = expandLinks(ctx, r.store.CodingVersions(), file.CodingVersions); err != nil {
			return store.Project{}, err
		}
		project.TextFiles[i] = store.Resolved(file)
	}
	return project, nil
}

func expandLinks[T store.Document](ctx context.Context, c store.Collection[T], links []store.Link[T]) ([]store.Link[T], error) {
	out := make([]store.Link[T], 0, len(links))
	for _, link := range links {
		if link.IsResolved() {
			out = append(out, link)
			continue
		}
		doc, err := c.Get(ctx, link.ID())
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", link.ID(), err)
		}
		out = append(out, store.Resolved(doc))
	}
	return out, nil
}
