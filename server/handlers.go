package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/lugatuic/passwd-webui/directory"
	"github.com/lugatuic/passwd-webui/handlers"
	"github.com/lugatuic/passwd-webui/profile"
	"github.com/lugatuic/passwd-webui/web"
)

const msgUpdated = "Information changed successfully!"

type ProfileService interface {
	LoadProfile(ctx context.Context, username, password string) (*profile.Profile, error)
	UpdateProfile(ctx context.Context, req *profile.UpdateRequest) error
}

// Renderer writes an HTML page.
type Renderer interface {
	Render(w io.Writer, name string, p web.Page) error
}

// HandleIndex serves GET /.
func HandleIndex(rdr Renderer, w http.ResponseWriter, r *http.Request) error {
	return rdr.Render(w, web.PageIndex, web.Page{})
}

// HandleLogin serves POST /: authenticate and show the edit form.
func HandleLogin(svc ProfileService, rdr Renderer, w http.ResponseWriter, r *http.Request) error {
	login, err := handlers.ParseLoginForm(w, r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return rdr.Render(w, web.PageIndex, web.Page{Alerts: web.ErrorAlert("Invalid form submission.")})
	}

	p, err := svc.LoadProfile(r.Context(), login.Username, login.Password)
	if err != nil {
		return rdr.Render(w, web.PageIndex, web.Page{
			Username: login.Username,
			Alerts:   web.ErrorAlert(directory.UserMessage(err)),
		})
	}
	return rdr.Render(w, web.PageEdit, web.Page{Username: p.UID, Profile: p})
}

// HandleEdit serves POST /edit.
func HandleEdit(svc ProfileService, rdr Renderer, w http.ResponseWriter, r *http.Request) error {
	req, err := handlers.ParseEditForm(w, r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return rdr.Render(w, web.PageDone, web.Page{Alerts: web.ErrorAlert("Invalid form submission.")})
	}

	if err := svc.UpdateProfile(r.Context(), req); err != nil {
		return rdr.Render(w, web.PageDone, web.Page{
			Username: req.Username,
			Alerts:   web.ErrorAlert(directory.UserMessage(err)),
		})
	}
	return rdr.Render(w, web.PageDone, web.Page{Username: req.Username, Alerts: web.SuccessAlert(msgUpdated)})
}

// HandleLoadProfileJSON serves POST /api/v1/profile.
func HandleLoadProfileJSON(svc ProfileService, w http.ResponseWriter, r *http.Request) error {
	var login handlers.LoginRequest
	if err := handlers.DecodeJSON(w, r, &login); err != nil {
		return writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json", Kind: directory.KindValidation.String()})
	}
	if err := handlers.SanitizeLogin(&login); err != nil {
		return writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: directory.KindValidation.String()})
	}

	p, err := svc.LoadProfile(r.Context(), login.Username, login.Password)
	if err != nil {
		return writeError(w, err)
	}
	return writeJSON(w, http.StatusOK, p)
}

// HandleUpdateProfileJSON serves PUT /api/v1/profile.
func HandleUpdateProfileJSON(svc ProfileService, w http.ResponseWriter, r *http.Request) error {
	var req profile.UpdateRequest
	if err := handlers.DecodeJSON(w, r, &req); err != nil {
		return writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json", Kind: directory.KindValidation.String()})
	}
	if err := handlers.SanitizeUpdate(&req); err != nil {
		return writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: directory.KindValidation.String()})
	}

	if err := svc.UpdateProfile(r.Context(), &req); err != nil {
		return writeError(w, err)
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps an error kind to the JSON API status code.
func StatusFor(kind directory.Kind) int {
	switch kind {
	case directory.KindValidation:
		return http.StatusBadRequest
	case directory.KindAuth, directory.KindNotFound:
		return http.StatusUnauthorized
	case directory.KindConstraint:
		return http.StatusUnprocessableEntity
	case directory.KindConnect:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) error {
	kind := directory.KindOf(err)
	return writeJSON(w, StatusFor(kind), errorBody{Error: directory.UserMessage(err), Kind: kind.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
