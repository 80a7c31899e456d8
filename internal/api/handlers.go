package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unklstewy/skytrack/internal/activity"
	"github.com/unklstewy/skytrack/internal/auth"
	"github.com/unklstewy/skytrack/internal/target"
)

// activityResponse is the JSON view of an activity.
type activityResponse struct {
	ID        uint64          `json:"id"`
	Kind      string          `json:"kind"`
	Target    string          `json:"target,omitempty"`
	Variant   string          `json:"variant,omitempty"`
	Steps     *activity.Steps `json:"steps,omitempty"`
	Status    string          `json:"status"`
	Milestone string          `json:"milestone,omitempty"`
	Error     string          `json:"error,omitempty"`
	Created   time.Time       `json:"created"`
	Events    []eventResponse `json:"events,omitempty"`
}

type eventResponse struct {
	Seq       int       `json:"seq"`
	Status    string    `json:"status"`
	Milestone string    `json:"milestone,omitempty"`
	Note      string    `json:"note,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// newActivityResponse snapshots act. Events are included when withEvents is set.
func newActivityResponse(act *activity.Activity, withEvents bool) *activityResponse {
	resp := &activityResponse{
		ID:      act.ID,
		Kind:    act.Kind.String(),
		Status:  act.Status().String(),
		Created: act.Created,
	}
	if act.Target != nil {
		resp.Target = act.Target.String()
		resp.Variant = act.Target.Variant()
	}
	if act.Kind == activity.CalibrateRelSteps {
		steps := act.Steps
		resp.Steps = &steps
	}
	if err := act.Err(); err != nil {
		resp.Error = err.Error()
	}

	for _, ev := range act.Channel().Events() {
		if ev.Milestone != "" {
			resp.Milestone = string(ev.Milestone)
		}
		if !withEvents {
			continue
		}
		e := eventResponse{
			Seq:       ev.Seq,
			Status:    ev.Status.String(),
			Milestone: string(ev.Milestone),
			Note:      ev.Note,
			Time:      ev.Time,
		}
		if ev.Err != nil {
			e.Error = ev.Err.Error()
		}
		resp.Events = append(resp.Events, e)
	}
	return resp
}

// commandResponse is returned by every control endpoint.
type commandResponse struct {
	Activity *activityResponse `json:"activity"`
	Resumed  *activityResponse `json:"resumed,omitempty"`
}

// awaitFinal drains act to its terminal event and writes the outcome.
func (s *Server) awaitFinal(w http.ResponseWriter, r *http.Request, act *activity.Activity, resumed *activity.Activity) {
	s.logCommand(r, act)
	ev, err := act.FinalStatus(r.Context())
	s.respondOutcome(w, act, resumed, ev, err)
}

// respondOutcome writes 200 for an activity that completed (or reached the
// awaited milestone) and the classified failure otherwise.
func (s *Server) respondOutcome(w http.ResponseWriter, act, resumed *activity.Activity, ev activity.Event, err error) {
	view := newActivityResponse(act, false)
	if err == nil && ev.Status == activity.Aborted {
		err = ev.Err
	} else if errors.Is(err, activity.ErrMilestoneMissed) && ev.Err != nil {
		err = ev.Err
	}
	if err != nil {
		s.log.Debug().Err(err).Uint64("activity", act.ID).Msg("command failed")
		respondFailure(w, err, view)
		return
	}

	resp := commandResponse{Activity: view}
	if resumed != nil {
		resp.Resumed = newActivityResponse(resumed, false)
	}
	respondJSON(w, http.StatusOK, resp)
}

// track submits t and either returns at once (202) or, with wait=slew,
// blocks until the slew has finished.
func (s *Server) track(w http.ResponseWriter, r *http.Request, t target.Target) {
	wait := r.URL.Query().Get("wait")
	if wait != "" && wait != "slew" {
		respondError(w, http.StatusBadRequest, target.InvalidInput.String(), "wait must be empty or \"slew\"")
		return
	}

	act := s.control.Track(t)
	s.logCommand(r, act)

	if wait == "" {
		respondJSON(w, http.StatusAccepted, commandResponse{Activity: newActivityResponse(act, false)})
		return
	}
	ev, err := act.WaitMilestone(r.Context(), activity.MilestoneSlewComplete)
	s.respondOutcome(w, act, nil, ev, err)
}

func (s *Server) logCommand(r *http.Request, act *activity.Activity) {
	s.log.Info().
		Str("user", caller(r)).
		Uint64("activity", act.ID).
		Str("command", act.String()).
		Msg("command submitted")
}

// fixedTarget parses the ra/dec/frame query parameters.
func fixedTarget(r *http.Request) (target.Target, error) {
	q := r.URL.Query()
	if q.Get("ra") == "" || q.Get("dec") == "" {
		return nil, &target.ResolutionError{Kind: target.InvalidInput, Target: "fixed", Err: errors.New("ra and dec are required")}
	}
	return target.NewFixed(q.Get("ra"), q.Get("dec"), q.Get("frame"))
}

// nameParam returns the required name query parameter.
func nameParam(r *http.Request, variant string) (string, error) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		return "", &target.ResolutionError{Kind: target.InvalidInput, Target: variant, Err: errors.New("name is required")}
	}
	return name, nil
}

// handleCalibrate syncs on a fixed RA/Dec
func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	t, err := fixedTarget(r)
	if err != nil {
		respondFailure(w, err, nil)
		return
	}
	s.awaitFinal(w, r, s.control.Calibrate(t), nil)
}

// handleCalibrateByName syncs on a catalog object
func (s *Server) handleCalibrateByName(w http.ResponseWriter, r *http.Request) {
	name, err := nameParam(r, "named")
	if err != nil {
		respondFailure(w, err, nil)
		return
	}
	s.awaitFinal(w, r, s.control.Calibrate(target.Named{Name: name}), nil)
}

// handleCalibrateSolarSystem syncs on the Sun, Moon or a planet
func (s *Server) handleCalibrateSolarSystem(w http.ResponseWriter, r *http.Request) {
	name, err := nameParam(r, "solar_system")
	if err != nil {
		respondFailure(w, err, nil)
		return
	}
	s.awaitFinal(w, r, s.control.Calibrate(target.SolarSystem{Body: name}), nil)
}

// handleBump applies a relative step correction. With sync (default true)
// tracking of the current target is re-issued before the bump is awaited.
func (s *Server) handleBump(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bearing, err := intParam(q.Get("bearing"))
	if err != nil {
		respondError(w, http.StatusBadRequest, target.InvalidInput.String(), fmt.Sprintf("bearing: %v", err))
		return
	}
	dec, err := intParam(q.Get("dec"))
	if err != nil {
		respondError(w, http.StatusBadRequest, target.InvalidInput.String(), fmt.Sprintf("dec: %v", err))
		return
	}
	resume, err := boolParam(q.Get("sync"), true)
	if err != nil {
		respondError(w, http.StatusBadRequest, target.InvalidInput.String(), fmt.Sprintf("sync: %v", err))
		return
	}

	bump, resumed := s.control.Bump(bearing, dec, resume)
	s.awaitFinal(w, r, bump, resumed)
}

// handleGoto tracks a fixed RA/Dec
func (s *Server) handleGoto(w http.ResponseWriter, r *http.Request) {
	t, err := fixedTarget(r)
	if err != nil {
		respondFailure(w, err, nil)
		return
	}
	s.track(w, r, t)
}

// handleGotoByName tracks a catalog object
func (s *Server) handleGotoByName(w http.ResponseWriter, r *http.Request) {
	name, err := nameParam(r, "named")
	if err != nil {
		respondFailure(w, err, nil)
		return
	}
	s.track(w, r, target.Named{Name: name})
}

// handleGotoMinorPlanet tracks an asteroid or comet
func (s *Server) handleGotoMinorPlanet(w http.ResponseWriter, r *http.Request) {
	name, err := nameParam(r, "minor_planet")
	if err != nil {
		respondFailure(w, err, nil)
		return
	}
	s.track(w, r, target.MinorPlanet{Designation: name})
}

// handleGotoSolarSystem tracks the Sun, Moon or a planet
func (s *Server) handleGotoSolarSystem(w http.ResponseWriter, r *http.Request) {
	name, err := nameParam(r, "solar_system")
	if err != nil {
		respondFailure(w, err, nil)
		return
	}
	s.track(w, r, target.SolarSystem{Body: name})
}

// handleCurrentTarget returns the target being tracked, if any
func (s *Server) handleCurrentTarget(w http.ResponseWriter, r *http.Request) {
	t := s.control.CurrentTarget()
	if t == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"tracking": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tracking": true,
		"target":   t.String(),
		"variant":  t.Variant(),
	})
}

// handleListActivities returns recent activities, newest first
func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r.URL.Query().Get("limit"), 50)
	if err != nil {
		respondError(w, http.StatusBadRequest, target.InvalidInput.String(), err.Error())
		return
	}

	acts := s.control.Activities(limit)
	resp := make([]*activityResponse, 0, len(acts))
	for _, act := range acts {
		resp = append(resp, newActivityResponse(act, false))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetActivity returns one activity with its status events
func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, target.InvalidInput.String(), "invalid activity id")
		return
	}
	act, ok := s.control.Activity(id)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown_activity", fmt.Sprintf("unknown activity %d", id))
		return
	}
	respondJSON(w, http.StatusOK, newActivityResponse(act, true))
}

// handleCancel aborts a pending or running activity
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, target.InvalidInput.String(), "invalid activity id")
		return
	}

	act, err := s.control.Cancel(id)
	if err != nil {
		var view *activityResponse
		if act != nil {
			view = newActivityResponse(act, false)
		}
		respondFailure(w, err, view)
		return
	}

	// A running activity reports its abort asynchronously
	ev, err := act.FinalStatus(r.Context())
	if err != nil {
		respondFailure(w, err, newActivityResponse(act, false))
		return
	}
	view := newActivityResponse(act, false)
	view.Status = ev.Status.String()
	respondJSON(w, http.StatusOK, commandResponse{Activity: view})
}

// handleHistory returns stored activity events
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotFound, "history_disabled", "activity history is not enabled")
		return
	}
	limit, err := limitParam(r.URL.Query().Get("limit"), 100)
	if err != nil {
		respondError(w, http.StatusBadRequest, target.InvalidInput.String(), err.Error())
		return
	}

	records, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read history")
		respondError(w, http.StatusInternalServerError, "internal", "failed to read history")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// handleHealth reports liveness and history database health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}

	if s.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.history.HealthCheck(ctx); err != nil {
			status = http.StatusServiceUnavailable
			resp["status"] = "degraded"
			resp["history"] = err.Error()
		} else {
			resp["history"] = "ok"
		}
	}
	respondJSON(w, status, resp)
}

// handleToken exchanges username/password for a bearer token
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.authSvc == nil {
		respondError(w, http.StatusNotFound, "auth_disabled", "authentication is not enabled")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, target.InvalidInput.String(), "invalid request body")
		return
	}

	token, claims, err := s.authSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"username":   claims.Username,
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt.Time,
	})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// boolParam accepts "", "true" and "false"; empty means bare.
func boolParam(s string, bare bool) (bool, error) {
	switch s {
	case "":
		return bare, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a valid boolean value", s)
}

func limitParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return n, nil
}
