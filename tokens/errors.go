package tokens

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrCodeInvalid = errors.New("invalid verification code")

const genericNetworkMessage = "authentication service unavailable"

// APIError is the single error type every non-2xx backend response is mapped
// to. Message carries the server-provided text when the body had one, or a
// generic network-failure message otherwise.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// IsSecondFactorRejection reports whether err is the backend refusing a
// submitted two-factor code, which keeps the challenge open for a retry.
func IsSecondFactorRejection(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 401 || apiErr.Status == 422
	}
	return errors.Is(err, ErrCodeInvalid)
}
