package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientUnwrapsBoth(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := fmt.Errorf("query likes: %w", Transient(cause))

	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "unavailable", Code(err))
}

func TestCode(t *testing.T) {
	cases := map[string]error{
		"unauthenticated":  ErrUnauthenticated,
		"conflict":         fmt.Errorf("insert like: %w", ErrConflict),
		"not_found":        NotFound("post", "p1"),
		"invalid_argument": Invalid("content is empty"),
		"forbidden":        Forbidden("not the author"),
		"internal":         errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Code(err), err.Error())
	}
	assert.Equal(t, "", Code(nil))
	assert.Nil(t, Transient(nil))
}
