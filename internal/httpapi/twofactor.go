package httpapi

import (
	"net/http"
)

type twoFactorMethodBody struct {
	Method string `json:"method" validate:"omitempty,oneof=email"`
}

type twoFactorCodeBody struct {
	Code   string `json:"code" validate:"required,numeric,min=4,max=10"`
	Method string `json:"method" validate:"omitempty,oneof=email"`
}

func (a *api) twoFactorStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.engine.TwoFactorStatus(r.Context(), current(r).ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "ok", status)
}

func (a *api) twoFactorSend(w http.ResponseWriter, r *http.Request) {
	var body twoFactorMethodBody
	if !decode(w, r, &body) {
		return
	}
	msg, err := a.engine.SendTwoFactorCode(r.Context(), current(r).ID, body.Method)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, msg, nil)
}

func (a *api) twoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var body twoFactorCodeBody
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.VerifyTwoFactorCode(r.Context(), current(r).ID, body.Code, body.Method); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "verification succeeded", nil)
}

func (a *api) twoFactorEnable(w http.ResponseWriter, r *http.Request) {
	var body twoFactorMethodBody
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.EnableTwoFactor(r.Context(), current(r).ID, body.Method); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "two-factor authentication enabled", nil)
}

func (a *api) twoFactorDisable(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.DisableTwoFactor(r.Context(), current(r).ID); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "two-factor authentication disabled", nil)
}
