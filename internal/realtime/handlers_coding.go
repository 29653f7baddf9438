package realtime

import (
	"context"
	"errors"
	"fmt"

	"qdamono/server/internal/store"
)

func (e *Engine) codingAdd(ctx context.Context, sess *Session, ev *CodingAddEvent) error {
	project, _, err := e.versionInProject(ctx, sess, ev.TextFileID, ev.CodingVersionID)
	if err != nil {
		return err
	}
	if err := requireLink(project.Codes, "code", ev.Coding.CodeID); err != nil {
		return err
	}
	_, err = e.store.CodingVersions().Update(ctx, ev.CodingVersionID, func(version *store.CodingVersion) error {
		version.Codings = append(version.Codings, ev.Coding)
		return nil
	})
	return err
}

// codingRemove drops the first coding equal to the one in the event.
func (e *Engine) codingRemove(ctx context.Context, sess *Session, ev *CodingRemoveEvent) error {
	if _, _, err := e.versionInProject(ctx, sess, ev.TextFileID, ev.CodingVersionID); err != nil {
		return err
	}
	_, err := e.store.CodingVersions().Update(ctx, ev.CodingVersionID, func(version *store.CodingVersion) error {
		for i, coding := range version.Codings {
			if coding == ev.Coding {
				version.Codings = append(version.Codings[:i], version.Codings[i+1:]...)
				return nil
			}
		}
		id := fmt.Sprintf("%s@%d+%d", ev.Coding.CodeID, ev.Coding.Start, ev.Coding.Length)
		return documentNotFound("coding", id)
	})
	return err
}

func (e *Engine) codingVersionAdd(ctx context.Context, sess *Session, ev *CodingVersionAddEvent) error {
	if _, _, err := e.textFileInProject(ctx, sess, ev.TextFileID); err != nil {
		return err
	}
	version := ev.CodingVersion
	if version.Codings == nil {
		version.Codings = []store.Coding{}
	}
	if err := e.store.CodingVersions().Insert(ctx, version); err != nil {
		return err
	}
	_, err := e.store.TextFiles().Update(ctx, ev.TextFileID, func(file *store.TextFile) error {
		var err error
		file.CodingVersions, err = appendLink(file.CodingVersions, version.ID)
		return err
	})
	return ignoreUnchanged(err)
}

// codingVersionRemove deletes a coding version, unlinks it from its text
// file and forgets the note lines recorded against it.
func (e *Engine) codingVersionRemove(ctx context.Context, sess *Session, ev *CodingVersionRemoveEvent) error {
	project, _, err := e.versionInProject(ctx, sess, ev.TextFileID, ev.CodingVersionID)
	if err != nil {
		return err
	}
	if err := e.store.CodingVersions().Delete(ctx, ev.CodingVersionID); err != nil {
		return err
	}
	_, err = e.store.TextFiles().Update(ctx, ev.TextFileID, func(file *store.TextFile) error {
		var removed bool
		file.CodingVersions, removed = store.RemoveLink(file.CodingVersions, ev.CodingVersionID)
		if !removed {
			return errUnchanged
		}
		return nil
	})
	if err := ignoreUnchanged(err); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return e.dropNoteLines(ctx, project, ev.CodingVersionID)
}

func (e *Engine) codingVersionUpdate(ctx context.Context, sess *Session, ev *CodingVersionUpdateEvent) error {
	if _, _, err := e.versionInProject(ctx, sess, ev.TextFileID, ev.CodingVersionID); err != nil {
		return err
	}
	_, err := e.store.CodingVersions().Update(ctx, ev.CodingVersionID, func(version *store.CodingVersion) error {
		if ev.CodingVersionName != nil {
			version.Name = *ev.CodingVersionName
		}
		return nil
	})
	return err
}
