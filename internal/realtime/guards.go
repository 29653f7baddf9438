package realtime

// guard is a precondition on session state checked before a handler runs.
type guard func(sess *Session) error

func requireIdentity(sess *Session) error {
	if !sess.authenticated() {
		return sessionStateError("not authenticated")
	}
	return nil
}

func requireProject(sess *Session) error {
	if !sess.inProject() {
		return sessionStateError("no project joined")
	}
	return nil
}

// Guard chains, applied in order.
var (
	identityBound = []guard{requireIdentity}
	projectBound  = []guard{requireIdentity, requireProject}
)
