package httpapi

import (
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
)

type loginBody struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

type loginData struct {
	AccountID         string                      `json:"account_id,omitempty"`
	Username          string                      `json:"username,omitempty"`
	Token             string                      `json:"token,omitempty"`
	TokenExpiry       int64                       `json:"token_expiry,omitempty"`
	PasswordWarning   *goGuard.PasswordPolicyInfo `json:"password_warning,omitempty"`
	Suspicious        *goGuard.SuspiciousCheck    `json:"suspicious,omitempty"`
	RemainingAttempts int                         `json:"remaining_attempts,omitempty"`
	RemainingMinutes  int                         `json:"remaining_minutes,omitempty"`
	ForceChange       bool                        `json:"force_change,omitempty"`
	ChangeToken       string                      `json:"change_token,omitempty"`
	TempToken         string                      `json:"temp_token,omitempty"`
	MaskedAddress     string                      `json:"masked_address,omitempty"`
	Method            string                      `json:"method,omitempty"`
}

func writeLogin(w http.ResponseWriter, res *goGuard.LoginResult) {
	status := http.StatusOK
	if res.Code == goGuard.LoginFailed {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, response{
		Code: int(res.Code),
		Msg:  res.Message,
		Data: loginData{
			AccountID:         res.AccountID,
			Username:          res.Username,
			Token:             res.Token,
			TokenExpiry:       res.TokenExpiry,
			PasswordWarning:   res.PasswordWarning,
			Suspicious:        res.Suspicious,
			RemainingAttempts: res.RemainingAttempts,
			RemainingMinutes:  res.RemainingMinutes,
			ForceChange:       res.ForceChange,
			ChangeToken:       res.ChangeToken,
			TempToken:         res.TempToken,
			MaskedAddress:     res.MaskedAddress,
			Method:            res.Method,
		},
	})
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !decode(w, r, &body) {
		return
	}
	res, err := a.engine.Login(r.Context(), goGuard.LoginRequest{
		Username:  body.Username,
		Password:  body.Password,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeLogin(w, res)
}

type loginVerifyBody struct {
	TempToken string `json:"temp_token" validate:"required"`
	Code      string `json:"code" validate:"required,numeric,min=4,max=10"`
}

func (a *api) loginVerify(w http.ResponseWriter, r *http.Request) {
	var body loginVerifyBody
	if !decode(w, r, &body) {
		return
	}
	res, err := a.engine.CompleteTwoFactorLogin(r.Context(), body.TempToken, body.Code, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeLogin(w, res)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	ok(w, "ok", newAccountView(current(r)))
}

type changePasswordBody struct {
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request) {
	var body changePasswordBody
	if !decode(w, r, &body) {
		return
	}
	res, err := a.engine.ChangePassword(r.Context(), goGuard.ChangePasswordRequest{
		AccountID:       current(r).ID,
		OldPassword:     body.OldPassword,
		NewPassword:     body.NewPassword,
		ConfirmPassword: body.ConfirmPassword,
	})
	if err != nil {
		if errors.Is(err, goGuard.ErrInvalidCredentials) {
			fail(w, http.StatusBadRequest, "current password is incorrect")
			return
		}
		a.writeError(w, r, err)
		return
	}
	ok(w, "password changed", map[string]any{"token": res.Token, "token_expiry": res.TokenExpiry})
}

type expiredPasswordBody struct {
	ChangeToken     string `json:"change_token" validate:"required"`
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// changeExpiredPassword serves accounts stopped at login code 2. No session
// is returned; the client signs in again with the new password.
func (a *api) changeExpiredPassword(w http.ResponseWriter, r *http.Request) {
	var body expiredPasswordBody
	if !decode(w, r, &body) {
		return
	}
	err := a.engine.ChangeExpiredPassword(r.Context(), body.ChangeToken, goGuard.ChangePasswordRequest{
		OldPassword:     body.OldPassword,
		NewPassword:     body.NewPassword,
		ConfirmPassword: body.ConfirmPassword,
	})
	if err != nil {
		if errors.Is(err, goGuard.ErrInvalidCredentials) {
			fail(w, http.StatusBadRequest, "current password is incorrect")
			return
		}
		a.writeError(w, r, err)
		return
	}
	ok(w, "password changed, please sign in again", nil)
}

func (a *api) passwordPolicy(w http.ResponseWriter, r *http.Request) {
	info, err := a.engine.PolicyInfo(r.Context(), current(r).ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "ok", info)
}
