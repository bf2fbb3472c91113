package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront/internal/domain/auth"
)

// Login serves POST /api/login with body {"email","password"}.
//
// Success answers 200 {"redirect","user"}. Missing credentials answer 400
// and every other failure 401, both as {"error"} with the message the login
// form would show.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var email, password string
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			email, err = d.Str()
		case "password":
			password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := h.login.Submit(r.Context(), email, password)
	h.loginAttempts.Add(r.Context(), 1, metric.WithAttributes(attribute.String("outcome", string(res.Outcome))))

	if res.Outcome != auth.OutcomeSuccess {
		code := http.StatusUnauthorized
		if res.Outcome == auth.OutcomeInvalid {
			code = http.StatusBadRequest
		}
		writeJSON(w, code, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("error", func(e *jx.Encoder) { e.Str(res.Error) })
			})
		})
		return
	}

	user := res.Session.User
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("redirect", func(e *jx.Encoder) { e.Str(res.Redirect) })
			e.Field("user", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(user.ID) })
					e.Field("email", func(e *jx.Encoder) { e.Str(user.Email) })
				})
			})
		})
	})
}
