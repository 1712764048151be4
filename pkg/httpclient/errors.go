package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/authcore/pkg/errors"
)

// providerError is the RFC 6749 error body most identity providers return.
type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ParseResponseError consumes and closes a non-2xx response body and maps it to
// an error. 401/403 from a provider mean the presented grant is not accepted and
// become Unauthorized; everything else is an upstream failure.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", upstream, resp.StatusCode, err)
	}

	detail := string(body)
	var pe providerError
	if json.Unmarshal(body, &pe) == nil && pe.Error != "" {
		detail = pe.Error
		if pe.ErrorDescription != "" {
			detail += ": " + pe.ErrorDescription
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &apperrors.AppError{
			Code:    "UNAUTHORIZED",
			Message: "Authentication failed",
			Status:  http.StatusUnauthorized,
			Err:     fmt.Errorf("%s rejected credentials: %s: %w", upstream, detail, apperrors.ErrUnauthorized),
		}
	default:
		return fmt.Errorf("%s returned status %d: %s", upstream, resp.StatusCode, detail)
	}
}
