package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b Version
		want int
	}{
		{name: "equal", a: Version{Seq: 5}, b: Version{Seq: 5}, want: 0},
		{name: "seq dominates", a: Version{Seq: 4, Gen: 9}, b: Version{Seq: 5}, want: -1},
		{name: "gen breaks ties", a: Version{Seq: 5, Gen: 1}, b: Version{Seq: 5, Gen: 2}, want: -1},
		{name: "greater", a: Version{Seq: 6}, b: Version{Seq: 5, Gen: 9}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, tt.want < 0, tt.a.Less(tt.b))
		})
	}
}

func TestVersionSentinels(t *testing.T) {
	assert.True(t, Unbounded.IsUnbounded())
	assert.False(t, Unbounded.IsZero())
	assert.True(t, Version{}.IsZero())

	// Every ordinary version sorts before the unbounded sentinel.
	assert.True(t, Version{Seq: 1 << 62}.Less(Unbounded))
}

func TestConfigCompatibility(t *testing.T) {
	base := Config{
		Path:          "/tmp/a",
		EncryptionKey: []byte("k1"),
		SchemaVersion: 3,
	}

	tests := []struct {
		name      string
		next      Config
		wantField string
	}{
		{
			name: "identical",
			next: Config{EncryptionKey: []byte("k1"), SchemaVersion: 3},
		},
		{
			name: "unversioned matches any schema version",
			next: Config{EncryptionKey: []byte("k1"), SchemaVersion: NotVersioned},
		},
		{
			name:      "read-only mismatch",
			next:      Config{ReadOnly: true, EncryptionKey: []byte("k1"), SchemaVersion: 3},
			wantField: "read permissions",
		},
		{
			name:      "in-memory mismatch",
			next:      Config{InMemory: true, EncryptionKey: []byte("k1"), SchemaVersion: 3},
			wantField: "inMemory setting",
		},
		{
			name:      "key mismatch",
			next:      Config{EncryptionKey: []byte("k2"), SchemaVersion: 3},
			wantField: "encryption key",
		},
		{
			name:      "schema version mismatch",
			next:      Config{EncryptionKey: []byte("k1"), SchemaVersion: 4},
			wantField: "schema version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, ok := base.CompatibleWith(tt.next)
			if tt.wantField == "" {
				assert.True(t, ok)
				assert.Empty(t, field)
			} else {
				assert.False(t, ok)
				assert.Equal(t, tt.wantField, field)
			}
		})
	}
}

func TestSchemaTableIndex(t *testing.T) {
	s := Schema{
		{Name: "person", Properties: []Property{{Name: "name", Type: "string"}}},
		{Name: "dog"},
	}

	ndx, ok := s.TableIndex("dog")
	assert.True(t, ok)
	assert.Equal(t, uint32(1), ndx)

	_, ok = s.TableIndex("cat")
	assert.False(t, ok)

	assert.True(t, s.Equal(Schema{
		{Name: "person", Properties: []Property{{Name: "name", Type: "string"}}},
		{Name: "dog"},
	}))
	assert.False(t, s.Equal(s[:1]))
	assert.False(t, s.Equal(Schema{
		{Name: "person", Properties: []Property{{Name: "name", Type: "int"}}},
		{Name: "dog"},
	}))
}
