package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yektayar/gateway/internal/common/cnst"
	"github.com/yektayar/gateway/internal/common/errorx"
	"github.com/yektayar/gateway/internal/gateway/event"
	"github.com/yektayar/gateway/internal/session"
	"github.com/yektayar/gateway/pkg/utils"
	"go.uber.org/zap"
)

// Error texts sent to clients refused at the handshake. They match what the
// platform's clients already expect and never reveal store internals.
var (
	ErrTokenRequired  = errorx.New(errorx.CategoryAuth, "Authentication token required")
	ErrInvalidSession = errorx.New(errorx.CategoryAuth, "Invalid or expired session token")
	ErrAuthFailed     = errorx.New(errorx.CategoryAuth, "Authentication failed")
)

// Authenticator validates a connection attempt against the platform session
// store before any protocol upgrade happens.
type Authenticator struct {
	logger    *zap.Logger
	validator session.Validator
}

// NewAuthenticator creates a handshake authenticator
func NewAuthenticator(logger *zap.Logger, validator session.Validator) *Authenticator {
	return &Authenticator{
		logger:    logger.Named("gateway.handshake"),
		validator: validator,
	}
}

// Authenticate extracts the session token (query parameter first, then
// Authorization bearer header), validates it with exactly one store call and
// freezes the result into a SessionRecord. A non-nil error means the request
// must be refused with 401 before upgrading.
func (a *Authenticator) Authenticate(r *http.Request, protocol cnst.Protocol) (*event.SessionRecord, error) {
	token := extractToken(r)
	if token == "" {
		return nil, ErrTokenRequired
	}

	sess, err := a.validator.Validate(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			a.logger.Debug("handshake refused, unknown or expired session",
				zap.String("token", utils.MaskToken(token)),
				zap.String("protocol", string(protocol)))
			return nil, ErrInvalidSession
		}
		a.logger.Error("session store unavailable during handshake",
			zap.String("protocol", string(protocol)),
			zap.Error(err))
		return nil, ErrAuthFailed
	}

	prefix := "ws"
	if protocol == cnst.ProtocolSocketIO {
		prefix = "sio"
	}

	rec := &event.SessionRecord{
		SocketID:     utils.NewSocketID(prefix),
		SessionToken: sess.Token,
		UserID:       sess.UserID,
		IsLoggedIn:   sess.IsLoggedIn,
		Protocol:     protocol,
		Lang:         extractLang(r),
	}

	a.logger.Info("handshake accepted",
		zap.String("socket_id", rec.SocketID),
		zap.String("protocol", string(protocol)),
		zap.Bool("is_logged_in", rec.IsLoggedIn))

	return rec, nil
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func extractLang(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	if lang := r.Header.Get(cnst.XLang); lang != "" {
		return lang
	}
	return cnst.LangEN
}
