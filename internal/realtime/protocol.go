package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// peekKind reads only the discriminator of a raw frame.
func peekKind(raw []byte) (Kind, error) {
	var probe struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", invalidEvent("frame is not a JSON object", nil)
	}
	if probe.Name == nil || *probe.Name == "" {
		return "", invalidEvent("missing event name", nil)
	}
	return Kind(*probe.Name), nil
}

// decodeEvent fills ev from raw and validates it.
func decodeEvent(raw []byte, ev Event) error {
	if err := json.Unmarshal(raw, ev); err != nil {
		return invalidEvent(fmt.Sprintf("malformed %s payload", ev.Kind()), map[string]any{"error": err.Error()})
	}
	if err := validate.Struct(ev); err != nil {
		return invalidEvent(fmt.Sprintf("invalid %s payload", ev.Kind()), map[string]any{"fields": fieldErrors(err)})
	}
	return nil
}

func fieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return out
}

// encodeFrame serializes an outbound event.
func encodeFrame(ev Event) ([]byte, error) {
	frame, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", ev.Kind(), err)
	}
	return frame, nil
}
