package realtime

import (
	"context"
	"fmt"
	"slices"

	"qdamono/server/internal/store"
)

// noteAdd stores a note. Line lists it arrives with must point at coding
// versions of the project and are kept sorted without repeats.
func (e *Engine) noteAdd(ctx context.Context, sess *Session, ev *NoteAddEvent) error {
	note := ev.Note
	if len(note.TextLines) > 0 {
		project, err := e.currentProject(ctx, sess)
		if err != nil {
			return err
		}
		for versionID, lines := range note.TextLines {
			if err := e.versionAnywhereInProject(ctx, project, versionID); err != nil {
				return err
			}
			if slices.ContainsFunc(lines, func(line int) bool { return line < 0 }) {
				return invalidEvent("line index must not be negative", map[string]any{"coding_version_id": versionID})
			}
			slices.Sort(lines)
			note.TextLines[versionID] = slices.Compact(lines)
		}
	}
	if note.TextLines == nil {
		note.TextLines = map[string][]int{}
	}
	if err := e.store.Notes().Insert(ctx, note); err != nil {
		return err
	}
	return e.updateProject(ctx, sess, func(p *store.Project) error {
		var err error
		p.Notes, err = appendLink(p.Notes, note.ID)
		return err
	})
}

func (e *Engine) noteRemove(ctx context.Context, sess *Session, ev *NoteRemoveEvent) error {
	project, err := e.currentProject(ctx, sess)
	if err != nil {
		return err
	}
	if err := requireLink(project.Notes, "note", ev.NoteID); err != nil {
		return err
	}
	if err := e.store.Notes().Delete(ctx, ev.NoteID); err != nil {
		return err
	}
	return e.updateProject(ctx, sess, func(p *store.Project) error {
		var removed bool
		p.Notes, removed = store.RemoveLink(p.Notes, ev.NoteID)
		if !removed {
			return errUnchanged
		}
		return nil
	})
}

func (e *Engine) noteUpdate(ctx context.Context, sess *Session, ev *NoteUpdateEvent) error {
	project, err := e.currentProject(ctx, sess)
	if err != nil {
		return err
	}
	if err := requireLink(project.Notes, "note", ev.NoteID); err != nil {
		return err
	}
	_, err = e.store.Notes().Update(ctx, ev.NoteID, func(note *store.Note) error {
		if ev.Title != nil {
			note.Title = *ev.Title
		}
		if ev.Text != nil {
			note.Text = *ev.Text
		}
		return nil
	})
	return err
}

// noteAddToLine attaches a note to a line of a coding version. Line lists
// stay sorted without repeats.
func (e *Engine) noteAddToLine(ctx context.Context, sess *Session, ev *NoteAddToLineEvent) error {
	project, err := e.currentProject(ctx, sess)
	if err != nil {
		return err
	}
	if err := requireLink(project.Notes, "note", ev.NoteID); err != nil {
		return err
	}
	if err := e.versionAnywhereInProject(ctx, project, ev.CodingVersionID); err != nil {
		return err
	}
	_, err = e.store.Notes().Update(ctx, ev.NoteID, func(note *store.Note) error {
		if note.TextLines == nil {
			note.TextLines = map[string][]int{}
		}
		lines := note.TextLines[ev.CodingVersionID]
		pos, found := slices.BinarySearch(lines, ev.LineIndex)
		if found {
			return errUnchanged
		}
		note.TextLines[ev.CodingVersionID] = slices.Insert(lines, pos, ev.LineIndex)
		return nil
	})
	return ignoreUnchanged(err)
}

func (e *Engine) noteRemoveFromLine(ctx context.Context, sess *Session, ev *NoteRemoveFromLineEvent) error {
	project, err := e.currentProject(ctx, sess)
	if err != nil {
		return err
	}
	if err := requireLink(project.Notes, "note", ev.NoteID); err != nil {
		return err
	}
	_, err = e.store.Notes().Update(ctx, ev.NoteID, func(note *store.Note) error {
		lines, ok := note.TextLines[ev.CodingVersionID]
		pos := slices.Index(lines, ev.LineIndex)
		if !ok || pos < 0 {
			return documentNotFound("note_line", fmt.Sprintf("%s:%s:%d", ev.NoteID, ev.CodingVersionID, ev.LineIndex))
		}
		lines = slices.Delete(lines, pos, pos+1)
		if len(lines) == 0 {
			delete(note.TextLines, ev.CodingVersionID)
		} else {
			note.TextLines[ev.CodingVersionID] = lines
		}
		return nil
	})
	return err
}
