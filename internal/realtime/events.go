package realtime

import "qdamono/server/internal/store"

// Kind is the value of the "name" discriminator carried by every frame.
type Kind string

// Inbound kinds.
const (
	KindGetProject          Kind = "get_project"
	KindPublishProject      Kind = "publish_project"
	KindLeaveProject        Kind = "leave_project"
	KindLogout              Kind = "logout"
	KindCodeAdd             Kind = "code_add"
	KindCodeRemove          Kind = "code_remove"
	KindCodeUpdate          Kind = "code_update"
	KindCodingAdd           Kind = "coding_add"
	KindCodingRemove        Kind = "coding_remove"
	KindCodingVersionAdd    Kind = "coding_version_add"
	KindCodingVersionRemove Kind = "coding_version_remove"
	KindCodingVersionUpdate Kind = "coding_version_update"
	KindNoteAdd             Kind = "note_add"
	KindNoteRemove          Kind = "note_remove"
	KindNoteUpdate          Kind = "note_update"
	KindNoteAddToLine       Kind = "note_add_to_line"
	KindNoteRemoveFromLine  Kind = "note_remove_from_line"
	KindTextFileAdd         Kind = "text_file_add"
	KindTextFileRemove      Kind = "text_file_remove"
	KindTextFileUpdate      Kind = "text_file_update"
)

// Outbound-only kinds.
const (
	KindProject   Kind = "project"
	KindPublished Kind = "published"
	KindClients   Kind = "clients"
	KindError     Kind = "error"
)

// InboundKinds lists every kind a client may send.
func InboundKinds() []Kind {
	return []Kind{
		KindGetProject, KindPublishProject, KindLeaveProject, KindLogout,
		KindCodeAdd, KindCodeRemove, KindCodeUpdate,
		KindCodingAdd, KindCodingRemove,
		KindCodingVersionAdd, KindCodingVersionRemove, KindCodingVersionUpdate,
		KindNoteAdd, KindNoteRemove, KindNoteUpdate, KindNoteAddToLine, KindNoteRemoveFromLine,
		KindTextFileAdd, KindTextFileRemove, KindTextFileUpdate,
	}
}

// Event is a decoded frame.
type Event interface {
	Kind() Kind
}

type header struct {
	Name Kind `json:"name"`
}

func (h header) Kind() Kind { return h.Name }

func named(kind Kind) header { return header{Name: kind} }

type GetProjectEvent struct {
	header
	Passcode string `json:"passcode" validate:"required"`
}

type PublishProjectEvent struct {
	header
	Project *store.Project `json:"project" validate:"required"`
}

type LeaveProjectEvent struct {
	header
}

type LogoutEvent struct {
	header
}

type CodeAddEvent struct {
	header
	Code store.Code `json:"code"`
}

type CodeRemoveEvent struct {
	header
	CodeID string `json:"code_id" validate:"required"`
}

// Update events use pointer fields: nil leaves the stored value unchanged.

type CodeUpdateEvent struct {
	header
	CodeID    string  `json:"code_id" validate:"required"`
	CodeName  *string `json:"code_name,omitempty"`
	CodeColor *int    `json:"code_color,omitempty"`
}

type CodingAddEvent struct {
	header
	TextFileID      string       `json:"text_file_id" validate:"required"`
	CodingVersionID string       `json:"coding_version_id" validate:"required"`
	CodingLineIndex *int         `json:"coding_line_index,omitempty" validate:"omitempty,min=0"`
	Coding          store.Coding `json:"coding"`
}

type CodingRemoveEvent struct {
	header
	TextFileID      string       `json:"text_file_id" validate:"required"`
	CodingVersionID string       `json:"coding_version_id" validate:"required"`
	Coding          store.Coding `json:"coding"`
}

type CodingVersionAddEvent struct {
	header
	TextFileID    string              `json:"text_file_id" validate:"required"`
	CodingVersion store.CodingVersion `json:"coding_version"`
}

type CodingVersionRemoveEvent struct {
	header
	TextFileID      string `json:"text_file_id" validate:"required"`
	CodingVersionID string `json:"coding_version_id" validate:"required"`
}

type CodingVersionUpdateEvent struct {
	header
	TextFileID        string  `json:"text_file_id" validate:"required"`
	CodingVersionID   string  `json:"coding_version_id" validate:"required"`
	CodingVersionName *string `json:"coding_version_name,omitempty"`
}

type NoteAddEvent struct {
	header
	Note store.Note `json:"note"`
}

type NoteRemoveEvent struct {
	header
	NoteID string `json:"note_id" validate:"required"`
}

type NoteUpdateEvent struct {
	header
	NoteID string  `json:"note_id" validate:"required"`
	Title  *string `json:"title,omitempty"`
	Text   *string `json:"text,omitempty"`
}

type NoteAddToLineEvent struct {
	header
	NoteID          string `json:"note_id" validate:"required"`
	CodingVersionID string `json:"coding_version_id" validate:"required"`
	LineIndex       int    `json:"line_index" validate:"min=0"`
}

type NoteRemoveFromLineEvent struct {
	header
	NoteID          string `json:"note_id" validate:"required"`
	CodingVersionID string `json:"coding_version_id" validate:"required"`
	LineIndex       int    `json:"line_index" validate:"min=0"`
}

type TextFileAddEvent struct {
	header
	TextFile store.TextFile `json:"text_file"`
}

type TextFileRemoveEvent struct {
	header
	TextFileID string `json:"text_file_id" validate:"required"`
}

type TextFileUpdateEvent struct {
	header
	TextFileID   string  `json:"text_file_id" validate:"required"`
	TextFileName *string `json:"text_file_name,omitempty"`
	Text         *string `json:"text,omitempty"`
}

// ProjectEvent answers get_project. Project is null when the project is
// missing or not readable by the caller.
type ProjectEvent struct {
	header
	Project *store.Project `json:"project"`
}

type PublishedEvent struct {
	header
	Passcode string `json:"passcode"`
}

// ClientsEvent maps connection ids to user names for everyone in a room.
type ClientsEvent struct {
	header
	Clients map[string]string `json:"clients"`
}

type ErrorEvent struct {
	header
	Event   Kind           `json:"event,omitempty"`
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
