package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	goGuard "github.com/MrEthical07/goGuard"
)

type createAccountBody struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user"`
}

func (a *api) createAccount(w http.ResponseWriter, r *http.Request) {
	var body createAccountBody
	if !decode(w, r, &body) {
		return
	}
	acct, err := a.engine.CreateAccount(r.Context(), goGuard.CreateAccountRequest{
		Username: body.Username,
		Password: body.Password,
		Email:    body.Email,
		Role:     goGuard.Role(body.Role),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Code: 0, Msg: "account created", Data: newAccountView(acct)})
}

func (a *api) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "accountID")
	if id == current(r).ID {
		fail(w, http.StatusConflict, "cannot delete the signed-in account")
		return
	}
	if err := a.engine.DeleteAccount(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "account deleted", nil)
}
