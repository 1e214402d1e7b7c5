package identity

import (
	"strings"
	"testing"
)

// TestNewID_Format проверяет формат выпускаемых идентификаторов.
func TestNewID_Format(t *testing.T) {
	issuer := NewUUIDIssuer(3)

	tests := []struct {
		kind   Kind
		prefix string
	}{
		{kind: KindUnit, prefix: "au-3-"},
		{kind: KindObjectGroup, prefix: "got-3-"},
		{kind: KindObjectVersion, prefix: "obj-3-"},
		{kind: KindTransaction, prefix: "tx-3-"},
		{kind: KindProject, prefix: "pr-3-"},
	}

	for _, tt := range tests {
		id := issuer.NewID(tt.kind)
		if !strings.HasPrefix(id, tt.prefix) {
			t.Errorf("идентификатор %q должен начинаться с %q", id, tt.prefix)
		}
	}
}

// TestNewID_Unique проверяет уникальность идентификаторов.
func TestNewID_Unique(t *testing.T) {
	issuer := NewUUIDIssuer(0)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := issuer.NewID(KindUnit)
		if seen[id] {
			t.Fatalf("повторный идентификатор: %s", id)
		}
		seen[id] = true
	}
}
