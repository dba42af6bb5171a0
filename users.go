package sessionauth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Paging limits for GET /users
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// UserHandlers serves profile reads and owner-or-admin profile writes
type UserHandlers struct {
	Store  Store
	Logger *slog.Logger
}

// HandleList returns a page of users
func (h *UserHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, authErr := parsePaging(r)
	if authErr != nil {
		writeAuthError(w, authErr)
		return
	}
	users, err := h.Store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.Logger.Error("list users failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":    users,
		"message": "Fetched users successfully",
	})
}

// HandleGet returns one user by id
func (h *UserHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUserByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	} else if err != nil {
		h.Logger.Error("get user failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch the user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":    user,
		"message": "Fetched the user successfully",
	})
}

// HandleUpdate applies a profile update. Only the user or an admin may do this.
func (h *UserHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if err := authorizeOwner(r, userID); err != nil {
		writeMessage(w, StatusCode(err), "Unauthorized to perform this action")
		return
	}

	var update UserUpdate
	if authErr := decodeBody(r, &update); authErr != nil {
		writeAuthError(w, authErr)
		return
	}
	if update.Name != nil && (*update.Name == "" || len([]rune(*update.Name)) > MaxNameLength) {
		writeAuthError(w, NewAuthError(ErrCodeInvalidName, "Name must be 1 to 30 characters", "name"))
		return
	}

	err := h.Store.UpdateUser(r.Context(), userID, &update)
	switch {
	case errors.Is(err, ErrNotFound):
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		h.Logger.Error("update user failed", "error", err, "user_id", userID)
		writeMessage(w, StatusCode(err), "Failed to update user information")
		return
	}
	writeMessage(w, http.StatusOK, "Update user information successfully")
}

// HandleDelete removes a user and everything it owns
func (h *UserHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if err := authorizeOwner(r, userID); err != nil {
		writeMessage(w, StatusCode(err), "Unauthorized to perform this action")
		return
	}

	err := h.Store.DeleteUser(r.Context(), userID)
	switch {
	case errors.Is(err, ErrNotFound):
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		h.Logger.Error("delete user failed", "error", err, "user_id", userID)
		writeMessage(w, http.StatusInternalServerError, "Failed to delete the user")
		return
	}
	h.Logger.Info("deleted user", "user_id", userID)
	writeMessage(w, http.StatusOK, "Delete the user successfully")
}

// authorizeOwner allows the user itself or an admin
func authorizeOwner(r *http.Request, userID string) error {
	current := UserFromContext(r.Context())
	if current == nil {
		return ErrUnauthenticated
	}
	if current.ID != userID && !current.IsAdmin() {
		return ErrUnauthorized
	}
	return nil
}

func parsePaging(r *http.Request) (limit, offset int, authErr *AuthError) {
	limit, offset = DefaultListLimit, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, NewAuthError(ErrCodeInvalidBody, "limit must be a positive integer", "limit")
		}
		limit = min(n, MaxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, NewAuthError(ErrCodeInvalidBody, "offset must be a non-negative integer", "offset")
		}
		offset = n
	}
	return limit, offset, nil
}
