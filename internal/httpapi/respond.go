package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	goGuard "github.com/MrEthical07/goGuard"
)

const maxBodyBytes = 64 << 10

// response is the {code, msg, data} body every endpoint answers with. Code 0
// is success; non-zero codes mirror goGuard.LoginCode for the login
// endpoints and are 1 elsewhere.
type response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, msg string, data any) {
	writeJSON(w, http.StatusOK, response{Code: 0, Msg: msg, Data: data})
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Code: 1, Msg: msg})
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		fail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		fail(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" is "+fe.Tag())
	}
	return "invalid request: " + strings.Join(fields, ", ")
}

// writeError maps engine errors onto status codes. Backend failures are
// logged and answered without detail.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tfe *goGuard.TwoFactorError
	if errors.As(err, &tfe) {
		status := http.StatusBadRequest
		if errors.Is(err, goGuard.ErrTwoFactorRateLimited) {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, response{Code: 1, Msg: tfe.Error(), Data: map[string]int{"remaining_attempts": tfe.Remaining}})
		return
	}

	switch {
	case errors.Is(err, goGuard.ErrValidation),
		errors.Is(err, goGuard.ErrPasswordPolicy),
		errors.Is(err, goGuard.ErrPasswordMismatch),
		errors.Is(err, goGuard.ErrPasswordReuse),
		errors.Is(err, goGuard.ErrTwoFactorNoAddress):
		fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, goGuard.ErrInvalidCredentials),
		errors.Is(err, goGuard.ErrTwoFactorPending),
		errors.Is(err, goGuard.ErrChangeTokenInvalid):
		fail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, goGuard.ErrAccountNotFound),
		errors.Is(err, goGuard.ErrDeviceNotFound),
		errors.Is(err, goGuard.ErrIncidentNotFound):
		fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, goGuard.ErrAccountExists),
		errors.Is(err, goGuard.ErrLastAdministrator):
		fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, goGuard.ErrDeliveryFailed):
		fail(w, http.StatusBadGateway, "verification code could not be delivered")
	case errors.Is(err, goGuard.ErrStoreUnavailable),
		errors.Is(err, goGuard.ErrTwoFactorUnavailable),
		errors.Is(err, goGuard.ErrEngineNotReady):
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("backend unavailable")
		fail(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		fail(w, http.StatusInternalServerError, "internal server error")
	}
}
