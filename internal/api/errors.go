package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/unklstewy/skytrack/internal/activity"
	"github.com/unklstewy/skytrack/internal/mount"
	"github.com/unklstewy/skytrack/internal/target"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error    string            `json:"error"`
	Kind     string            `json:"kind"`
	Activity *activityResponse `json:"activity,omitempty"`
}

// classifyError maps a failure onto an HTTP status and a stable kind string.
// Resolution failures, motor faults and supersession stay distinguishable.
func classifyError(err error) (int, string) {
	var (
		re *target.ResolutionError
		mf *mount.MotorFault
	)
	switch {
	case errors.As(err, &re):
		switch re.Kind {
		case target.NotFound:
			return http.StatusNotFound, re.Kind.String()
		case target.InvalidInput:
			return http.StatusBadRequest, re.Kind.String()
		case target.Timeout:
			return http.StatusGatewayTimeout, re.Kind.String()
		default:
			return http.StatusServiceUnavailable, re.Kind.String()
		}
	case errors.As(err, &mf):
		return http.StatusBadGateway, "motor_fault"
	case errors.Is(err, activity.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, activity.ErrCancelled):
		return http.StatusConflict, "cancelled"
	case errors.Is(err, mount.ErrStopped):
		return http.StatusServiceUnavailable, "stopped"
	case errors.Is(err, mount.ErrUnknownActivity):
		return http.StatusNotFound, "unknown_activity"
	case errors.Is(err, mount.ErrNotActive):
		return http.StatusConflict, "not_active"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, activity.ErrNoStatus):
		return http.StatusInternalServerError, "no_status"
	}
	return http.StatusInternalServerError, "internal"
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind, msg string) {
	respondJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

// respondFailure classifies err and writes it, attaching the activity if any.
func respondFailure(w http.ResponseWriter, err error, act *activityResponse) {
	status, kind := classifyError(err)
	respondJSON(w, status, errorResponse{Error: err.Error(), Kind: kind, Activity: act})
}
