package rbac

import "encoding/json"

// Level is a user's access grade on a project. Higher levels grant more.
type Level int

const (
	LevelUnauthorized Level = 0
	LevelGuest        Level = 10
	LevelContributor  Level = 20
	LevelMaintainer   Level = 30
	LevelOwner        Level = 40
)

func (l Level) String() string {
	switch l {
	case LevelGuest:
		return "guest"
	case LevelContributor:
		return "contributor"
	case LevelMaintainer:
		return "maintainer"
	case LevelOwner:
		return "owner"
	default:
		return "unauthorized"
	}
}

// MarshalJSON writes the level as its name so clients never depend on the
// numeric scale.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// CanRead reports whether the level grants read access to a project.
func (l Level) CanRead() bool {
	return l >= LevelGuest
}

// Resolve picks the effective level from an explicit grant, if any. Without a
// grant a public project is readable by anyone as a guest.
func Resolve(explicit *Level, isPublic bool) Level {
	if explicit != nil {
		return Normalize(int(*explicit))
	}
	if isPublic {
		return LevelGuest
	}
	return LevelUnauthorized
}

// Normalize maps a stored numeric level onto the known scale, rounding down
// to the nearest defined level.
func Normalize(level int) Level {
	switch {
	case level >= int(LevelOwner):
		return LevelOwner
	case level >= int(LevelMaintainer):
		return LevelMaintainer
	case level >= int(LevelContributor):
		return LevelContributor
	case level >= int(LevelGuest):
		return LevelGuest
	default:
		return LevelUnauthorized
	}
}
