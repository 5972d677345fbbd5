package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTestRef(t *testing.T) {
	tests := []struct {
		nodeID string
		want   TestRef
	}{
		{"pkg/sub/foo_test.go::TestFoo", NewTestRef("pkg/sub", "foo_test.go", "TestFoo")},
		{"foo_test.go::TestFoo", NewTestRef(".", "foo_test.go", "TestFoo")},
		{"a/b.go::TestX::case", NewTestRef("a", "b.go", "TestX::case")},
		{"TestNoSeparator", NewTestRef(".", ".", "TestNoSeparator")},
	}

	for _, tt := range tests {
		t.Run(tt.nodeID, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTestRef(tt.nodeID))
		})
	}
}

func TestTestRefString(t *testing.T) {
	ref := NewTestRef("github.com/acme/pkg", "foo_test.go", "TestFoo")
	assert.Equal(t, "github.com/acme/pkg/foo_test.go::TestFoo", ref.String())
	assert.Equal(t, ref, ParseTestRef(ref.String()))
}

func TestRefsAreComparable(t *testing.T) {
	known := map[TestRef]struct{}{
		NewTestRef("m", "s", "t"): {},
	}
	_, ok := known[NewTestRef("m", "s", "t")]
	assert.True(t, ok)
	_, ok = known[NewTestRef("m", "s2", "t")]
	assert.False(t, ok)
}
