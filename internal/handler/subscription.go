package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/birthday-reminder/internal/auth"
	"github.com/sakif/birthday-reminder/internal/service"
)

// SubscriptionHandler serves /subscribe and /unsubscribe.
//
// Every domain failure of a subscription change is answered with 400,
// whatever its kind; auth failures keep their 401/403.
type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	logger        *slog.Logger
}

func NewSubscriptionHandler(subscriptions *service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

// HandleSubscribe handles POST /subscribe/{username}/{target}.
func (h *SubscriptionHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	username, target := chi.URLParam(r, "username"), chi.URLParam(r, "target")
	if err := auth.CheckOwner(r.Context(), username); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.subscriptions.Subscribe(r.Context(), username, target); err != nil {
		h.writeFailure(w, err)
		return
	}
	writeMessage(w, http.StatusOK, username+" subscribed to "+target)
}

// HandleUnsubscribe handles POST /unsubscribe/{username}/{target}.
func (h *SubscriptionHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	username, target := chi.URLParam(r, "username"), chi.URLParam(r, "target")
	if err := auth.CheckOwner(r.Context(), username); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.subscriptions.Unsubscribe(r.Context(), username, target); err != nil {
		h.writeFailure(w, err)
		return
	}
	writeMessage(w, http.StatusOK, username+" unsubscribed from "+target)
}

func (h *SubscriptionHandler) writeFailure(w http.ResponseWriter, err error) {
	_, errorType, message, ok := classify(err)
	if !ok {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errorType, Message: message})
}
