package sharing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHelpersWrapSentinels(t *testing.T) {
	assert.ErrorIs(t, notFoundf("entity %s", "p1"), ErrNotFound)
	assert.ErrorIs(t, alreadyExistsf("entity %s", "p1"), ErrAlreadyExists)
	assert.ErrorIs(t, invalidArgumentf("bad %s", "input"), ErrInvalidArgument)
	assert.ErrorIs(t, internalf("boom"), ErrInternal)

	err := notFoundf("entity %s in tenant %s", "p1", "tenant-a")
	assert.Equal(t, "entity p1 in tenant tenant-a: not found", err.Error())
}
