// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	"github.com/dalemusser/taskhub/internal/app/features/apierr"
	"github.com/dalemusser/taskhub/internal/app/store/audit"
	"github.com/dalemusser/taskhub/internal/app/system/auditlog"
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/dalemusser/taskhub/internal/app/system/authz"
	"go.uber.org/zap"
)

// Handler owns the sign-out endpoint.
type Handler struct {
	Log      *zap.Logger
	ErrLog   *apierr.ErrorLogger
	AuditLog *auditlog.Logger
}

// NewHandler constructs a logout Handler.
func NewHandler(errLog *apierr.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Log: logger, ErrLog: errLog, AuditLog: auditLog}
}

// HandleLogout clears the session.
// POST /logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)

	if err := auth.SignOut(w, r); err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}

	if ok {
		h.AuditLog.Log(r.Context(), audit.Event{
			ActorID:    &uid,
			EventType:  audit.EventLogout,
			EntityType: audit.EntityUser,
			EntityID:   &uid,
			Success:    true,
		})
	}

	apierr.WriteJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}
