package profile

import (
	"unicode/utf8"

	"github.com/lugatuic/passwd-webui/directory"
)

// MinPasswordLength is counted in characters, not bytes.
const MinPasswordLength = 8

const (
	MsgPasswordRequired = "Password is required!"
	MsgPasswordMismatch = "New password doesn't match the confirmation!"
	MsgPasswordTooShort = "New password must be at least 8 characters long!"
)

// Validate runs the checks that must pass before the directory is contacted.
func (r *UpdateRequest) Validate() error {
	if r.OldPassword == "" {
		return directory.Validation(MsgPasswordRequired)
	}
	if r.NewPassword != r.ConfirmPassword {
		return directory.Validation(MsgPasswordMismatch)
	}
	if r.NewPassword != "" && utf8.RuneCountInString(r.NewPassword) < MinPasswordLength {
		return directory.Validation(MsgPasswordTooShort)
	}
	return nil
}
