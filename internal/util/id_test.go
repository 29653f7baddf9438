package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	plain := NewID("")
	if _, err := uuid.Parse(plain); err != nil {
		t.Fatalf("NewID(\"\") = %q, not a uuid: %v", plain, err)
	}

	prefixed := NewID("conn")
	if !strings.HasPrefix(prefixed, "conn_") {
		t.Fatalf("NewID(\"conn\") = %q, missing prefix", prefixed)
	}
	if NewID("conn") == prefixed {
		t.Fatal("NewID() returned the same id twice")
	}
}
