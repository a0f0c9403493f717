package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionsCompatible(t *testing.T) {
	assert.True(t, VersionsCompatible("", "anything"), "empty requirement disables the gate")
	assert.True(t, VersionsCompatible("1.2.0", "1.2.9"))
	assert.True(t, VersionsCompatible("v1.2.0", "1.2.3"))
	assert.False(t, VersionsCompatible("1.2.0", "1.3.0"))
	assert.False(t, VersionsCompatible("2.0.0", "1.0.0"))
	assert.False(t, VersionsCompatible("1.2.0", ""))
	assert.False(t, VersionsCompatible("1.2.0", "garbage"))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("group", "corp-team_1.prod"))
	assert.Error(t, ValidateName("group", ""))
	assert.Error(t, ValidateName("group", ".hidden"), "names must start alphanumeric")
	assert.Error(t, ValidateName("user", `alice"--`))
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobCreated.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobErrored.Terminal())
	assert.True(t, JobCancelled.Terminal())
}
