package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *api) listDevices(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	devices, err := a.engine.ListDevices(r.Context(), current(r).ID, activeOnly)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "ok", newDeviceViews(devices))
}

func (a *api) revokeDevice(w http.ResponseWriter, r *http.Request) {
	found, err := a.engine.RevokeDevice(r.Context(), current(r).ID, chi.URLParam(r, "deviceID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !found {
		fail(w, http.StatusNotFound, "device not found")
		return
	}
	ok(w, "device revoked", nil)
}

type trustBody struct {
	Trusted *bool `json:"trusted" validate:"required"`
}

func (a *api) trustDevice(w http.ResponseWriter, r *http.Request) {
	var body trustBody
	if !decode(w, r, &body) {
		return
	}
	found, err := a.engine.TrustDevice(r.Context(), current(r).ID, chi.URLParam(r, "deviceID"), *body.Trusted)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !found {
		fail(w, http.StatusNotFound, "device not found")
		return
	}
	ok(w, "device updated", nil)
}

func (a *api) securityOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := a.engine.SecurityOverview(r.Context(), current(r).ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "ok", overview)
}
