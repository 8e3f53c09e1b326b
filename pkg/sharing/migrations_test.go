package sharing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetMigrations_VersionsStrictlyIncreasing(t *testing.T) {
	migrations := GetMigrations()
	assert.NotEmpty(t, migrations)

	last := 0
	for _, m := range migrations {
		assert.Greater(t, m.Version, last)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
		last = m.Version
	}
}
