package user

import (
	"encoding/json"
	"errors"
	"net/http"

	myMiddleware "friend-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrExists):
			http.Error(w, "username already exists", http.StatusConflict)
		case errors.Is(err, ErrInvalidRegistration):
			http.Error(w, "invalid registration", http.StatusBadRequest)
		default:
			http.Error(w, "registration failed", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"username": u.Username,
		"fullname": u.Fullname,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(res)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []User{}
	}
	json.NewEncoder(w).Encode(users)
}

// ListFriends returns the caller's friends with display names, optionally
// filtered with ?search= on the fullname.
func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	username := identity(r)
	if username == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := h.Service.FriendDetails(r.Context(), username, r.URL.Query().Get("search"))
	if err != nil {
		http.Error(w, "failed to load friends", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []RosterEntry{}
	}
	json.NewEncoder(w).Encode(entries)
}

func (h *Handler) AddFriend(w http.ResponseWriter, r *http.Request) {
	username := identity(r)
	if username == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	friend := chi.URLParam(r, "username")
	if friend == username {
		http.Error(w, "cannot add yourself", http.StatusBadRequest)
		return
	}

	if err := h.Service.AddFriend(r.Context(), username, friend); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "no such user", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to add friend", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	username := identity(r)
	if username == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.Service.RemoveFriend(r.Context(), username, chi.URLParam(r, "username")); err != nil {
		http.Error(w, "failed to remove friend", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddableUsers returns the sorted roster for the "add friends" page,
// optionally filtered with ?search= on the username.
func (h *Handler) AddableUsers(w http.ResponseWriter, r *http.Request) {
	username := identity(r)
	if username == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := h.Service.AddableUsers(r.Context(), username, r.URL.Query().Get("search"))
	if err != nil {
		http.Error(w, "failed to load users", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []RosterEntry{}
	}
	json.NewEncoder(w).Encode(entries)
}

func identity(r *http.Request) string {
	username, _ := r.Context().Value(myMiddleware.UsernameKey).(string)
	return username
}
