package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lugatuic/passwd-webui/profile"
)

// maxBodyBytes caps form and JSON request bodies.
const maxBodyBytes = 64 << 10

// LoginRequest carries the credentials of the login form.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SanitizeLogin trims the username. Passwords are used exactly as typed.
func SanitizeLogin(l *LoginRequest) error {
	if l == nil {
		return fmt.Errorf("nil login")
	}
	l.Username = strings.TrimSpace(l.Username)
	return nil
}

// SanitizeUpdate trims the non-secret fields of an update request.
func SanitizeUpdate(u *profile.UpdateRequest) error {
	if u == nil {
		return fmt.Errorf("nil update")
	}
	u.Username = strings.TrimSpace(u.Username)
	u.Surname = strings.TrimSpace(u.Surname)
	u.GivenName = strings.TrimSpace(u.GivenName)
	u.Mail = strings.TrimSpace(u.Mail)
	return nil
}

// ParseLoginForm reads the username/password fields of POST /.
func ParseLoginForm(w http.ResponseWriter, r *http.Request) (*LoginRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	l := &LoginRequest{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	return l, SanitizeLogin(l)
}

// ParseEditForm reads the fields of POST /edit.
func ParseEditForm(w http.ResponseWriter, r *http.Request) (*profile.UpdateRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	f := r.PostForm
	u := &profile.UpdateRequest{
		Username: f.Get("username"),
		Update: profile.Update{
			Surname:   f.Get("sn"),
			GivenName: f.Get("givenName"),
			Mail:      f.Get("mail"),
		},
		OldPassword:     f.Get("old-password"),
		NewPassword:     f.Get("new-password"),
		ConfirmPassword: f.Get("confirm-password"),
	}
	return u, SanitizeUpdate(u)
}

// DecodeJSON decodes a single JSON object from the request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}
