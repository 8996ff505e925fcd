// internal/app/features/login/handler.go
package login

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/taskhub/internal/app/features/apierr"
	"github.com/dalemusser/taskhub/internal/app/store/audit"
	userstore "github.com/dalemusser/taskhub/internal/app/store/users"
	"github.com/dalemusser/taskhub/internal/app/system/auditlog"
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler owns the password sign-in endpoint.
type Handler struct {
	DB       *mongo.Database
	Log      *zap.Logger
	ErrLog   *apierr.ErrorLogger
	AuditLog *auditlog.Logger
}

// NewHandler constructs a login Handler.
func NewHandler(db *mongo.Database, errLog *apierr.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{DB: db, Log: logger, ErrLog: errLog, AuditLog: auditLog}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// HandleLogin authenticates email + password and starts a session.
// POST /login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.BadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		apierr.BadRequest(w, "email and password are required")
		return
	}

	u, err := userstore.New(h.DB).Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, userstore.ErrBadCredentials) {
			h.AuditLog.Log(r.Context(), audit.Event{
				EventType:     audit.EventLoginFailed,
				EntityType:    audit.EntityUser,
				Success:       false,
				FailureReason: "bad credentials",
				Details:       map[string]string{"email": req.Email},
			})
			apierr.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
			return
		}
		h.ErrLog.Render(w, r, err)
		return
	}

	sessUser := &auth.SessionUser{
		ID:    u.ID.Hex(),
		Name:  u.FullName,
		Email: u.Email,
		Role:  u.Role,
	}
	if err := auth.SignIn(w, r, sessUser); err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}

	h.AuditLog.Log(r.Context(), audit.Event{
		ActorID:    &u.ID,
		EventType:  audit.EventLoginSuccess,
		EntityType: audit.EntityUser,
		EntityID:   &u.ID,
		Success:    true,
	})

	apierr.WriteJSON(w, http.StatusOK, loginResponse{
		ID:    u.ID.Hex(),
		Name:  u.FullName,
		Email: u.Email,
		Role:  u.Role,
	})
}
