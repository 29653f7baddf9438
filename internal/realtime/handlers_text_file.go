package realtime

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"qdamono/server/internal/store"
)

// textFileAdd stores a text file together with its coding versions, which
// must be delivered inline.
func (e *Engine) textFileAdd(ctx context.Context, sess *Session, ev *TextFileAddEvent) error {
	project, err := e.currentProject(ctx, sess)
	if err != nil {
		return err
	}
	file := ev.TextFile
	versions := make([]store.CodingVersion, 0, len(file.CodingVersions))
	for _, link := range file.CodingVersions {
		version, ok := link.Document()
		if !ok {
			return unresolvedChild("coding_version", link.ID())
		}
		for _, coding := range version.Codings {
			if err := requireLink(project.Codes, "code", coding.CodeID); err != nil {
				return err
			}
		}
		if version.Codings == nil {
			version.Codings = []store.Coding{}
		}
		versions = append(versions, version)
	}
	if file.CodingVersions == nil {
		file.CodingVersions = []store.Link[store.CodingVersion]{}
	}
	if err := e.store.CreateTextFile(ctx, file.Detached(), versions); err != nil {
		return err
	}
	return e.updateProject(ctx, sess, func(p *store.Project) error {
		var err error
		p.TextFiles, err = appendLink(p.TextFiles, file.ID)
		return err
	})
}

// textFileRemove deletes a text file with its coding versions.
func (e *Engine) textFileRemove(ctx context.Context, sess *Session, ev *TextFileRemoveEvent) error {
	project, file, err := e.textFileInProject(ctx, sess, ev.TextFileID)
	if err != nil {
		return err
	}
	if err := e.store.TextFiles().Delete(ctx, file.ID); err != nil {
		return err
	}

	versionIDs := store.LinkIDs(file.CodingVersions)
	for _, id := range versionIDs {
		err := e.store.CodingVersions().Delete(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("text file lists missing coding version", zap.String("text_file_id", file.ID), zap.String("coding_version_id", id))
			continue
		}
		if err != nil {
			return err
		}
	}
	if err := e.dropNoteLines(ctx, project, versionIDs...); err != nil {
		return err
	}

	return e.updateProject(ctx, sess, func(p *store.Project) error {
		var removed bool
		p.TextFiles, removed = store.RemoveLink(p.TextFiles, file.ID)
		if !removed {
			return errUnchanged
		}
		return nil
	})
}

func (e *Engine) textFileUpdate(ctx context.Context, sess *Session, ev *TextFileUpdateEvent) error {
	if _, _, err := e.textFileInProject(ctx, sess, ev.TextFileID); err != nil {
		return err
	}
	_, err := e.store.TextFiles().Update(ctx, ev.TextFileID, func(file *store.TextFile) error {
		if ev.TextFileName != nil {
			file.Name = *ev.TextFileName
		}
		if ev.Text != nil {
			file.Text = *ev.Text
		}
		return nil
	})
	return err
}
