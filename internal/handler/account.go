package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/birthday-reminder/internal/auth"
	"github.com/sakif/birthday-reminder/internal/model"
	"github.com/sakif/birthday-reminder/internal/service"
)

// tokenCookie is the cookie RequireAuth falls back to when there is no
// Authorization header.
const tokenCookie = "token"

// AccountHandler serves registration, login, the user list and profiles.
type AccountHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

type registerRequest struct {
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	Birthday     *model.Birthday `json:"birthday"`
	ReminderDays *int            `json:"reminder_days"`
	Email        string          `json:"email"`
	DisplayName  string          `json:"display_name"`
	City         string          `json:"city"`
}

// HandleRegister handles POST /register.
// 201 on success, 400 for a missing/invalid birthday or field, 409 if the
// username is taken.
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	account, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Username:     req.Username,
		Password:     req.Password,
		Birthday:     req.Birthday,
		ReminderDays: req.ReminderDays,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		City:         req.City,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeMessage(w, http.StatusCreated, "user "+account.Username+" registered")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// HandleLogin handles POST /login. When JWT auth is configured the token is
// returned in the body and also set as an HttpOnly cookie.
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if result.Token != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     tokenCookie,
			Value:    result.Token,
			Path:     "/",
			MaxAge:   int(auth.DefaultTokenTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message: "login successful",
		Token:   result.Token,
	})
}

// HandleListUsers handles GET /users: every account keyed by username.
// Password hashes are never serialized.
func (h *AccountHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	users := make(map[string]model.Account, len(accounts))
	for _, a := range accounts {
		users[a.Username] = a
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGetProfile handles GET /profile/{username}.
func (h *AccountHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleUpdateProfile handles PUT /profile/{username}. The body is a map of
// fields to merge; see AccountService.UpdateProfile for the allow-list.
func (h *AccountHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := auth.CheckOwner(r.Context(), username); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var fields map[string]json.RawMessage
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if _, err := h.accounts.UpdateProfile(r.Context(), username, fields); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "profile updated")
}
