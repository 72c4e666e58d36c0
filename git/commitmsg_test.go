package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCommitMessage(t *testing.T) {
	tests := []struct {
		msg     string
		wantErr bool
	}{
		{msg: "chore(deploy): update bento image to v42"},
		{msg: "fix: handle empty manifests"},
		{msg: "feat(api)!: drop v1 endpoints\n\nBREAKING CHANGE: v1 is gone"},
		{msg: "updated images", wantErr: true},
		{msg: "wip: something", wantErr: true},
		{msg: "chore:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := ValidateCommitMessage(tt.msg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommitMessage)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDeployMessage(t *testing.T) {
	assert.Equal(t, "chore(deploy): update bento image to v7", DeployMessage("v7", "bento"))
	assert.Equal(t, "chore(deploy): update bento, frontend images to v7", DeployMessage("v7", "frontend", "bento"))
	assert.Equal(t, "chore(deploy): update images to v7", DeployMessage("v7"))

	for _, msg := range []string{DeployMessage("v1.0.3", "bento"), DeployMessage("v3", "bento", "frontend")} {
		assert.NoError(t, ValidateCommitMessage(msg))
	}
}
