package repository

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/event"
	"github.com/xenking/orderdesk/internal/transport"
)

// Messages carried by api-error events.
const (
	MsgInvalidData  = "Invalid order data format"
	MsgNotFound     = "Resource not found"
	MsgNoResponse   = "No response from server"
	MsgRequestSetup = "Error setting up request"
)

// handleError inspects a failed backend call once and performs the side
// effects it calls for. It never changes err, which the caller returns.
func (r *Repository) handleError(ctx context.Context, err error) {
	var te *transport.Error
	if !errors.As(err, &te) {
		return
	}

	switch te.Kind {
	case transport.KindHTTP:
		r.lg.Error("API error",
			zap.String("method", te.Method),
			zap.String("path", te.Path),
			zap.Int("status", te.Status),
		)
		switch te.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			r.goBackground(ctx, "auth recovery", r.recoverAuth)
		case http.StatusBadRequest:
			r.events.Emit(event.APIErrorKind, event.APIError{Message: MsgInvalidData, Details: details(te.Body)})
		case http.StatusNotFound:
			r.events.Emit(event.APIErrorKind, event.APIError{Message: MsgNotFound, Details: details(te.Body)})
		}
	case transport.KindNetwork:
		r.lg.Error("No response received from server", zap.String("path", te.Path), zap.Error(te.Err))
		r.events.Emit(event.APIErrorKind, event.APIError{Message: MsgNoResponse})
	default:
		r.lg.Error("Error setting up request", zap.String("path", te.Path), zap.Error(te.Err))
		r.events.Emit(event.APIErrorKind, event.APIError{Message: MsgRequestSetup})
	}
}

// recoverAuth tries to refresh the credential and ends the session if that
// is impossible.
func (r *Repository) recoverAuth(ctx context.Context) error {
	if r.auth == nil {
		r.lg.Error("Authentication error and no token refresher configured, logging out")
		return r.endSession(ctx)
	}

	token, err := r.auth.RefreshToken(ctx)
	switch {
	case err != nil:
		r.lg.Error("Token refresh failed with error, logging out", zap.Error(err))
	case token == "":
		r.lg.Error("Token refresh failed, logging out")
	default:
		r.lg.Info("Token refreshed successfully")
		return nil
	}
	return r.endSession(ctx)
}

func (r *Repository) endSession(ctx context.Context) error {
	var logoutErr error
	if r.auth != nil {
		logoutErr = r.auth.Logout(ctx)
	}
	r.Reset()
	r.events.Emit(event.AuthError, nil)
	if logoutErr != nil {
		return errors.Wrap(logoutErr, "logout")
	}
	return nil
}

// details returns body as an event payload if it is valid JSON.
func details(body []byte) jx.Raw {
	if len(body) == 0 || !jx.Valid(body) {
		return nil
	}
	return jx.Raw(body)
}
