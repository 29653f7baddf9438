// Package realtime runs the collaborative editing protocol: it binds
// connections to identities, dispatches typed events to mutation handlers and
// fans the results out to everyone editing the same project.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"qdamono/server/internal/auth"
	"qdamono/server/internal/rbac"
	"qdamono/server/internal/store"
)

// Authenticator resolves connection credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
	Revoke(ctx context.Context, jti string) error
}

// ProjectAccess is the privilege-checked project accessor.
type ProjectAccess interface {
	Get(ctx context.Context, projectID, userID string, expand bool) (store.Project, rbac.Level, error)
	Create(ctx context.Context, project store.Project, userID string) error
}

type route struct {
	newEvent  func() Event
	handle    func(ctx context.Context, sess *Session, ev Event) error
	guards    []guard
	broadcast bool
}

type eventPtr[E any] interface {
	*E
	Event
}

// on adapts a typed handler into a route. The event type is taken from the
// handler's signature.
func on[E any, P eventPtr[E]](handle func(context.Context, *Session, P) error) route {
	return route{
		newEvent: func() Event { return P(new(E)) },
		handle: func(ctx context.Context, sess *Session, ev Event) error {
			return handle(ctx, sess, ev.(P))
		},
	}
}

func (r route) guardedBy(guards ...guard) route {
	r.guards = guards
	return r
}

// broadcastAfter echoes the event to the whole room once the handler
// succeeded.
func (r route) broadcastAfter() route {
	r.broadcast = true
	return r
}

type Engine struct {
	gate     Authenticator
	store    store.Store
	projects ProjectAccess
	rooms    *Rooms
	registry *Registry
	logger   *zap.Logger
	routes   map[Kind]route
}

func NewEngine(gate Authenticator, st store.Store, access ProjectAccess, logger *zap.Logger) *Engine {
	e := &Engine{
		gate:     gate,
		store:    st,
		projects: access,
		rooms:    NewRooms(logger),
		registry: NewRegistry(),
		logger:   logger,
	}
	e.routes = e.buildRoutes()
	return e
}

func (e *Engine) buildRoutes() map[Kind]route {
	return map[Kind]route{
		KindGetProject:     on(e.getProject).guardedBy(identityBound...),
		KindPublishProject: on(e.publishProject).guardedBy(identityBound...),
		KindLeaveProject:   on(e.leaveProject).guardedBy(projectBound...),
		KindLogout:         on(e.logout).guardedBy(identityBound...),

		KindCodeAdd:    on(e.codeAdd).guardedBy(projectBound...).broadcastAfter(),
		KindCodeRemove: on(e.codeRemove).guardedBy(projectBound...).broadcastAfter(),
		KindCodeUpdate: on(e.codeUpdate).guardedBy(projectBound...).broadcastAfter(),

		KindCodingAdd:    on(e.codingAdd).guardedBy(projectBound...).broadcastAfter(),
		KindCodingRemove: on(e.codingRemove).guardedBy(projectBound...).broadcastAfter(),

		KindCodingVersionAdd:    on(e.codingVersionAdd).guardedBy(projectBound...).broadcastAfter(),
		KindCodingVersionRemove: on(e.codingVersionRemove).guardedBy(projectBound...).broadcastAfter(),
		KindCodingVersionUpdate: on(e.codingVersionUpdate).guardedBy(projectBound...).broadcastAfter(),

		KindNoteAdd:            on(e.noteAdd).guardedBy(projectBound...).broadcastAfter(),
		KindNoteRemove:         on(e.noteRemove).guardedBy(projectBound...).broadcastAfter(),
		KindNoteUpdate:         on(e.noteUpdate).guardedBy(projectBound...).broadcastAfter(),
		KindNoteAddToLine:      on(e.noteAddToLine).guardedBy(projectBound...).broadcastAfter(),
		KindNoteRemoveFromLine: on(e.noteRemoveFromLine).guardedBy(projectBound...).broadcastAfter(),

		KindTextFileAdd:    on(e.textFileAdd).guardedBy(projectBound...).broadcastAfter(),
		KindTextFileRemove: on(e.textFileRemove).guardedBy(projectBound...).broadcastAfter(),
		KindTextFileUpdate: on(e.textFileUpdate).guardedBy(projectBound...).broadcastAfter(),
	}
}

// Registry exposes the live sessions.
func (e *Engine) Registry() *Registry { return e.registry }

// Rooms exposes room membership.
func (e *Engine) Rooms() *Rooms { return e.rooms }

// Connect authenticates a new connection. A missing or invalid credential
// refuses the connection and no session is created.
func (e *Engine) Connect(ctx context.Context, connID, token string, sink Sink) (*Session, error) {
	identity, err := e.gate.Authenticate(ctx, token)
	if err != nil {
		e.logger.Info("connection refused", zap.String("conn_id", connID), zap.Error(err))
		if errors.Is(err, auth.ErrUnauthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("authenticate connection: %w", err)
	}

	sess := &Session{
		ConnID:   connID,
		UserID:   identity.UserID,
		UserName: identity.UserName,
		JTI:      identity.JTI,
		sink:     sink,
	}
	e.registry.add(sess)
	connectionsActive.Inc()
	e.logger.Info("connection opened", zap.String("conn_id", connID), zap.String("user_id", identity.UserID))
	return sess, nil
}

// Disconnect leaves the session's room, if any, and discards the session.
func (e *Engine) Disconnect(_ context.Context, sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.inProject() {
		e.leaveRoom(sess)
	}
	e.registry.remove(sess.ConnID)
	connectionsActive.Dec()
	e.logger.Info("connection closed", zap.String("conn_id", sess.ConnID), zap.String("user_id", sess.UserID))
}

// Handle processes one inbound frame for sess. Failures are reported to the
// connection as an error frame and returned.
func (e *Engine) Handle(ctx context.Context, sess *Session, raw []byte) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	started := time.Now()
	kind, err := peekKind(raw)
	if err != nil {
		e.logger.Warn("undecodable frame", zap.String("conn_id", sess.ConnID), zap.ByteString("payload", raw), zap.Error(err))
		return e.fail(sess, "", false, err)
	}

	rt, known := e.routes[kind]
	if !known {
		return e.fail(sess, kind, false, invalidEvent(fmt.Sprintf("unknown event %q", kind), nil))
	}
	defer func() {
		eventDuration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
	}()

	ev := rt.newEvent()
	if err := decodeEvent(raw, ev); err != nil {
		e.logger.Error("invalid event payload",
			zap.String("conn_id", sess.ConnID),
			zap.String("event", string(kind)),
			zap.ByteString("payload", raw),
			zap.Error(err),
		)
		return e.fail(sess, kind, true, err)
	}

	for _, check := range rt.guards {
		if err := check(sess); err != nil {
			return e.fail(sess, kind, true, err)
		}
	}

	// The room is captured before the handler so leave and logout cannot
	// redirect the echo.
	projectID := sess.ProjectID
	if err := rt.handle(ctx, sess, ev); err != nil {
		return e.fail(sess, kind, true, err)
	}

	if rt.broadcast {
		frame, err := encodeFrame(ev)
		if err != nil {
			return e.fail(sess, kind, true, err)
		}
		e.rooms.Broadcast(projectID, frame)
	}
	eventsTotal.WithLabelValues(string(kind), "ok").Inc()
	e.logger.Debug("event handled",
		zap.String("conn_id", sess.ConnID),
		zap.String("event", string(kind)),
		zap.String("project_id", projectID),
	)
	return nil
}

func (e *Engine) fail(sess *Session, kind Kind, known bool, err error) error {
	eventErr := classify(err)
	eventsTotal.WithLabelValues(metricKind(kind, known), string(eventErr.Code)).Inc()

	fields := []zap.Field{
		zap.String("conn_id", sess.ConnID),
		zap.String("user_id", sess.UserID),
		zap.String("event", string(kind)),
		zap.String("code", string(eventErr.Code)),
		zap.Error(err),
	}
	if eventErr.Code == CodeInternal {
		e.logger.Error("event failed", fields...)
	} else {
		e.logger.Warn("event rejected", fields...)
	}

	e.send(sess, ErrorEvent{
		header:  named(KindError),
		Event:   kind,
		Code:    eventErr.Code,
		Message: eventErr.Message,
		Details: eventErr.Details,
	})
	return eventErr
}

// send delivers an event to the session's own connection only.
func (e *Engine) send(sess *Session, ev Event) {
	frame, err := encodeFrame(ev)
	if err != nil {
		e.logger.Error("encode frame", zap.String("conn_id", sess.ConnID), zap.Error(err))
		return
	}
	if !sess.sink.Send(frame) {
		framesDropped.Inc()
	}
}

// joinRoom moves the session into projectID's room, leaving its current room
// first.
func (e *Engine) joinRoom(sess *Session, projectID string) {
	if sess.inProject() {
		e.leaveRoom(sess)
	}
	sess.ProjectID = projectID
	e.rooms.Join(projectID, sess.ConnID, sess.UserName, sess.sink)
}

func (e *Engine) leaveRoom(sess *Session) {
	e.rooms.Leave(sess.ProjectID, sess.ConnID)
	sess.ProjectID = ""
}
