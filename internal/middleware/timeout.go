package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

// Timeout bounds a handler's run time. The response is buffered, so it is
// meant for JSON routes rather than file transfers.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   "Request timed out",
		Code:    "REQUEST_TIMEOUT",
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
