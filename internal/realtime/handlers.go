package realtime

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"qdamono/server/internal/store"
)

// errUnchanged aborts a Collection.Update whose mutation turned out to be a
// no-op.
var errUnchanged = errors.New("document unchanged")

func ignoreUnchanged(err error) error {
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

// currentProject loads the project the session has joined.
func (e *Engine) currentProject(ctx context.Context, sess *Session) (store.Project, error) {
	project, err := e.store.Projects().Get(ctx, sess.ProjectID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Project{}, sessionStateError(fmt.Sprintf("project %s no longer exists", sess.ProjectID))
	}
	return project, err
}

// updateProject applies mutate to the session's project atomically.
func (e *Engine) updateProject(ctx context.Context, sess *Session, mutate func(*store.Project) error) error {
	_, err := e.store.Projects().Update(ctx, sess.ProjectID, mutate)
	if errors.Is(err, store.ErrNotFound) {
		return sessionStateError(fmt.Sprintf("project %s no longer exists", sess.ProjectID))
	}
	return ignoreUnchanged(err)
}

func requireLink[T store.Document](links []store.Link[T], kind, id string) error {
	if !store.ContainsLink(links, id) {
		return documentNotFound(kind, id)
	}
	return nil
}

// appendLink adds a reference to id unless one is already present.
func appendLink[T store.Document](links []store.Link[T], id string) ([]store.Link[T], error) {
	if store.ContainsLink(links, id) {
		return links, errUnchanged
	}
	return append(links, store.Ref[T](id)), nil
}

// unresolvedChild rejects a child sent as a bare id where the full document
// is required.
func unresolvedChild(kind, id string) error {
	return invalidEvent(fmt.Sprintf("%s %s must be sent as a full document", kind, id), map[string]any{"kind": kind, "id": id})
}

// textFileInProject checks that a text file belongs to the session's project
// and returns it.
func (e *Engine) textFileInProject(ctx context.Context, sess *Session, textFileID string) (store.Project, store.TextFile, error) {
	project, err := e.currentProject(ctx, sess)
	if err != nil {
		return store.Project{}, store.TextFile{}, err
	}
	if err := requireLink(project.TextFiles, "text_file", textFileID); err != nil {
		return store.Project{}, store.TextFile{}, err
	}
	file, err := e.store.TextFiles().Get(ctx, textFileID)
	if err != nil {
		return store.Project{}, store.TextFile{}, err
	}
	return project, file, nil
}

// versionInProject checks that a coding version is listed by a text file of
// the session's project.
func (e *Engine) versionInProject(ctx context.Context, sess *Session, textFileID, versionID string) (store.Project, store.TextFile, error) {
	project, file, err := e.textFileInProject(ctx, sess, textFileID)
	if err != nil {
		return store.Project{}, store.TextFile{}, err
	}
	if err := requireLink(file.CodingVersions, "coding_version", versionID); err != nil {
		return store.Project{}, store.TextFile{}, err
	}
	return project, file, nil
}

// versionAnywhereInProject checks that some text file of project lists the
// coding version.
func (e *Engine) versionAnywhereInProject(ctx context.Context, project store.Project, versionID string) error {
	for _, link := range project.TextFiles {
		file, err := e.store.TextFiles().Get(ctx, link.ID())
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if store.ContainsLink(file.CodingVersions, versionID) {
			return nil
		}
	}
	return documentNotFound("coding_version", versionID)
}

// dropNoteLines removes the line lists kept for the given coding versions
// from every note of project.
func (e *Engine) dropNoteLines(ctx context.Context, project store.Project, versionIDs ...string) error {
	if len(versionIDs) == 0 {
		return nil
	}
	for _, link := range project.Notes {
		_, err := e.store.Notes().Update(ctx, link.ID(), func(note *store.Note) error {
			changed := false
			for _, id := range versionIDs {
				if _, ok := note.TextLines[id]; ok {
					delete(note.TextLines, id)
					changed = true
				}
			}
			if !changed {
				return errUnchanged
			}
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("project lists missing note", zap.String("project_id", project.ID), zap.String("note_id", link.ID()))
			continue
		}
		if err := ignoreUnchanged(err); err != nil {
			return err
		}
	}
	return nil
}
