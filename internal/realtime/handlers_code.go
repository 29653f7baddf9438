package realtime

import (
	"context"
	"errors"

	"qdamono/server/internal/store"
)

func (e *Engine) codeAdd(ctx context.Context, sess *Session, ev *CodeAddEvent) error {
	code := ev.Code
	if code.ParentID != "" {
		if code.ParentID == code.ID {
			return invalidEvent("code cannot be its own parent", map[string]any{"id": code.ID})
		}
		project, err := e.currentProject(ctx, sess)
		if err != nil {
			return err
		}
		if err := requireLink(project.Codes, "code", code.ParentID); err != nil {
			return err
		}
	}

	if err := e.store.Codes().Insert(ctx, code); err != nil {
		return err
	}
	return e.updateProject(ctx, sess, func(p *store.Project) error {
		var err error
		p.Codes, err = appendLink(p.Codes, code.ID)
		return err
	})
}

// codeRemove deletes a code and hands its children to the removed code's
// parent.
func (e *Engine) codeRemove(ctx context.Context, sess *Session, ev *CodeRemoveEvent) error {
	project, err := e.currentProject(ctx, sess)
	if err != nil {
		return err
	}
	if err := requireLink(project.Codes, "code", ev.CodeID); err != nil {
		return err
	}
	removed, err := e.store.Codes().Get(ctx, ev.CodeID)
	if err != nil {
		return err
	}
	if err := e.store.Codes().Delete(ctx, removed.ID); err != nil {
		return err
	}

	for _, link := range project.Codes {
		if link.ID() == removed.ID {
			continue
		}
		_, err := e.store.Codes().Update(ctx, link.ID(), func(child *store.Code) error {
			if child.ParentID != removed.ID {
				return errUnchanged
			}
			child.ParentID = removed.ParentID
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err := ignoreUnchanged(err); err != nil {
			return err
		}
	}

	return e.updateProject(ctx, sess, func(p *store.Project) error {
		var removedLink bool
		p.Codes, removedLink = store.RemoveLink(p.Codes, removed.ID)
		if !removedLink {
			return errUnchanged
		}
		return nil
	})
}

func (e *Engine) codeUpdate(ctx context.Context, sess *Session, ev *CodeUpdateEvent) error {
	project, err := e.currentProject(ctx, sess)
	if err != nil {
		return err
	}
	if err := requireLink(project.Codes, "code", ev.CodeID); err != nil {
		return err
	}
	_, err = e.store.Codes().Update(ctx, ev.CodeID, func(code *store.Code) error {
		if ev.CodeName != nil {
			code.Name = *ev.CodeName
		}
		if ev.CodeColor != nil {
			code.Color = *ev.CodeColor
		}
		return nil
	})
	return err
}
