package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is an OAuth2 style error returned by the server.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// MFARequiredError signals the login requires a TOTP step up. The
// caller finishes the flow with VerifyMFA using the embedded token.
type MFARequiredError struct {
	MFAToken string
}

func (e *MFARequiredError) Error() string {
	return "mfa required"
}

// parseErrorResponse turns a non-2xx response body into a typed error.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var challenge struct {
		Error    string `json:"error"`
		MFAToken string `json:"mfa_token"`
	}
	if err := json.Unmarshal(body, &challenge); err == nil &&
		challenge.Error == "mfa_required" && challenge.MFAToken != "" {
		return &MFARequiredError{MFAToken: challenge.MFAToken}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        "server_error",
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
