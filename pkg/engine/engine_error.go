package engine

import (
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when the engine does not know the referenced
// channel, bridge or variable.
var ErrNotFound = errors.New("engine: no such resource")

// ErrEngineUnavailable is returned when the engine's control protocol cannot
// be reached at all. Callers map it to a 503-class response.
var ErrEngineUnavailable = errors.New("engine: unavailable")

// ErrorResponse describes the JSON the engine responds with when a control
// command fails.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toError(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(ErrEngineUnavailable, err.Error())
	}

	if resp.IsSuccess() {
		return nil
	}

	if resp.StatusCode() == 404 {
		return ErrNotFound
	}

	var errorResponse ErrorResponse
	if jsonErr := json.Unmarshal(resp.Body(), &errorResponse); jsonErr != nil {
		return fmt.Errorf("engine: (HTTP Status: %d) unable to parse json error response: %s", resp.StatusCode(), jsonErr)
	}

	return fmt.Errorf("engine: (HTTP Status: %d) %s: %s", resp.StatusCode(), errorResponse.Code, errorResponse.Message)
}
