package auth

import (
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"

	"chat-relay/errors"
)

var validate = validator.New()

// AuthRequest carries the single credential of the protocol: a username.
type AuthRequest struct {
	Username string `validate:"required,min=3,max=20"`
}

// ValidateUsername enforces the registration rules: 3-20 characters,
// letters, digits and underscores only, no leading digit.
func ValidateUsername(username string) error {
	if err := validate.Struct(AuthRequest{Username: username}); err != nil {
		return fmt.Errorf("%w: must be 3-20 characters", errors.ErrInvalidUsername)
	}

	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return fmt.Errorf("%w: only letters, digits and underscores allowed", errors.ErrInvalidUsername)
		}
	}

	if unicode.IsDigit([]rune(username)[0]) {
		return fmt.Errorf("%w: must not start with a digit", errors.ErrInvalidUsername)
	}
	return nil
}
