package slug

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Dr. Jane Doe":          "jane doe",
		"dr jane  doe, MBBS":    "jane doe",
		"Jane Doe MD":           "jane doe",
		"Dr. Ravi Kumar MS MCh": "ravi kumar",
		"  Amit  ":              "amit",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestForDoctor(t *testing.T) {
	id := uuid.MustParse("3f2a9c10-1111-2222-3333-444455556666")
	s := ForDoctor("Dr. Jane Doe, MBBS", id)

	assert.Equal(t, "dr-jane-doe-3f2a9c10", s)
	assert.False(t, strings.Contains(s, " "))
}

func TestForDoctor_SameNameDifferentID(t *testing.T) {
	a := ForDoctor("Jane Doe", uuid.New())
	b := ForDoctor("Jane Doe", uuid.New())
	assert.NotEqual(t, a, b)
}

func TestLooseMatch(t *testing.T) {
	assert.True(t, LooseMatch(FromLegacy("dr-jane-doe"), "Dr. Jane Doe"))
	assert.True(t, LooseMatch("jane", "Dr. Jane Doe"))
	assert.True(t, LooseMatch("dr. jane doe smith", "Jane Doe"))
	assert.False(t, LooseMatch("john", "Dr. Jane Doe"))
	assert.False(t, LooseMatch("", "Dr. Jane Doe"))
}
