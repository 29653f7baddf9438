package realtime

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"qdamono/server/internal/projects"
	"qdamono/server/internal/store"
)

// getProject joins the requested project's room and replies with the
// expanded project. Missing and unreadable projects get the same empty reply.
func (e *Engine) getProject(ctx context.Context, sess *Session, ev *GetProjectEvent) error {
	project, level, err := e.projects.Get(ctx, ev.Passcode, sess.UserID, true)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, projects.ErrUnauthorized) {
		e.logger.Info("project not available",
			zap.String("conn_id", sess.ConnID),
			zap.String("user_id", sess.UserID),
			zap.String("project_id", ev.Passcode),
			zap.Error(err),
		)
		e.send(sess, ProjectEvent{header: named(KindProject)})
		return nil
	}
	if err != nil {
		return err
	}

	e.joinRoom(sess, project.ID)
	e.logger.Info("project opened",
		zap.String("conn_id", sess.ConnID),
		zap.String("project_id", project.ID),
		zap.Stringer("privilege", level),
	)
	e.send(sess, ProjectEvent{header: named(KindProject), Project: &project})
	return nil
}

// publishProject stores a client-built project with the sender as owner and
// moves the sender into its room.
func (e *Engine) publishProject(ctx context.Context, sess *Session, ev *PublishProjectEvent) error {
	project := *ev.Project
	if err := checkSelfContained(project); err != nil {
		return err
	}
	if err := e.projects.Create(ctx, project, sess.UserID); err != nil {
		return err
	}

	e.joinRoom(sess, project.ID)
	e.logger.Info("project published", zap.String("project_id", project.ID), zap.String("user_id", sess.UserID))
	e.send(sess, PublishedEvent{header: named(KindPublished), Passcode: project.ID})
	return nil
}

func (e *Engine) leaveProject(_ context.Context, sess *Session, _ *LeaveProjectEvent) error {
	e.leaveRoom(sess)
	return nil
}

// logout leaves the current room, revokes the connection's token and unbinds
// the identity. The connection stays open but every later event is refused.
func (e *Engine) logout(ctx context.Context, sess *Session, _ *LogoutEvent) error {
	if sess.inProject() {
		e.leaveRoom(sess)
	}
	if err := e.gate.Revoke(ctx, sess.JTI); err != nil {
		e.logger.Warn("revoke session on logout", zap.String("conn_id", sess.ConnID), zap.Error(err))
	}
	e.logger.Info("logged out", zap.String("conn_id", sess.ConnID), zap.String("user_id", sess.UserID))
	sess.UserID = ""
	sess.UserName = ""
	sess.JTI = ""
	return nil
}

// checkSelfContained requires a published project to carry every child as a
// full document and to reference nothing outside itself.
func checkSelfContained(project store.Project) error {
	codes := make(map[string]store.Code, len(project.Codes))
	for _, link := range project.Codes {
		code, ok := link.Document()
		if !ok {
			return unresolvedChild("code", link.ID())
		}
		codes[code.ID] = code
	}
	for _, code := range codes {
		if code.ParentID == "" {
			continue
		}
		if _, ok := codes[code.ParentID]; !ok || code.ParentID == code.ID {
			return invalidEvent(fmt.Sprintf("code %s has a parent outside the project", code.ID),
				map[string]any{"id": code.ID, "parent_id": code.ParentID})
		}
	}

	versions := make(map[string]bool)
	for _, link := range project.TextFiles {
		file, ok := link.Document()
		if !ok {
			return unresolvedChild("text_file", link.ID())
		}
		for _, versionLink := range file.CodingVersions {
			version, ok := versionLink.Document()
			if !ok {
				return unresolvedChild("coding_version", versionLink.ID())
			}
			for _, coding := range version.Codings {
				if _, ok := codes[coding.CodeID]; !ok {
					return documentNotFound("code", coding.CodeID)
				}
			}
			versions[version.ID] = true
		}
	}

	for _, link := range project.Notes {
		note, ok := link.Document()
		if !ok {
			return unresolvedChild("note", link.ID())
		}
		for versionID := range note.TextLines {
			if !versions[versionID] {
				return documentNotFound("coding_version", versionID)
			}
		}
	}
	return nil
}
