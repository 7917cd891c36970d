package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rps-lan/internal/discovery"
	"github.com/DoyleJ11/rps-lan/internal/engine"
	"github.com/DoyleJ11/rps-lan/internal/session"
	"github.com/DoyleJ11/rps-lan/internal/types"
)

// Sessions is implemented by *session.Controller.
type Sessions interface {
	Host(ctx context.Context, totalRounds int) error
	Join(ctx context.Context, target discovery.HostRecord) error
	Submit(ctx context.Context, choice engine.Choice) error
	Chat(ctx context.Context, text string) error
	Disconnect(ctx context.Context) error
	State(ctx context.Context) (session.View, error)
	Search(ctx context.Context) ([]discovery.HostRecord, error)
}

var errBadRequest = errors.New("bad request body")

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, engine.ErrInvalidChoice):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, engine.ErrChoiceAlreadySubmitted), errors.Is(err, engine.ErrSessionComplete),
		errors.Is(err, engine.ErrInvalidRounds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, discovery.ErrConnectionRefused):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrControllerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, types.ServerMessage{Type: types.EvtError, Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func GetSession(s Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := s.State(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func HostSession(s Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.HostRequest
		if err := decode(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		if err := s.Host(r.Context(), req.TotalRounds); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func ListHosts(s Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hosts, err := s.Search(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, hosts)
	}
}

func JoinSession(s Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.JoinRequest
		if err := decode(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		if req.Address == "" || req.Port <= 0 || req.Port > 65535 {
			writeError(w, logger, errBadRequest)
			return
		}
		target := discovery.HostRecord{
			Address:     req.Address,
			Port:        req.Port,
			Username:    req.Username,
			TotalRounds: req.TotalRounds,
		}
		if err := s.Join(r.Context(), target); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func SubmitChoice(s Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ChoiceRequest
		if err := decode(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		c, err := engine.ParseChoice(req.Choice)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if err := s.Submit(r.Context(), c); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SendChat(s Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		if err := decode(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		if err := s.Chat(r.Context(), req.Text); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DisconnectSession(s Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Disconnect(r.Context()); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
