package demo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// LoginFunc authenticates a user
type LoginFunc func(ctx context.Context, name, password string) (bool, error)

// UserController serves the users API
type UserController struct {
	users *UserRepository
	login LoginFunc
}

// NewUserController creates a controller; login is normally the
// transactional use case
func NewUserController(users *UserRepository, login LoginFunc) *UserController {
	return &UserController{users: users, login: login}
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type loginResponse struct {
	User          string `json:"user"`
	Authenticated bool   `json:"authenticated"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes mounts the controller's handlers
func (c *UserController) Routes(r chi.Router) {
	r.Post("/login", c.handleLogin)
	r.Get("/{name}", c.handleShow)
}

func (c *UserController) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ok, err := c.login(r.Context(), req.User, req.Password)
	if err != nil {
		var invalid *InvalidUserError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "login failed"})
		return
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, loginResponse{User: req.User, Authenticated: ok})
}

func (c *UserController) handleShow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	exists, err := c.users.Exists(r.Context(), name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "lookup failed"})
		return
	}
	if !exists {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
