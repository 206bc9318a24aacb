package api

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-playground/validator/v10"
	"github.com/meridianmc/meridian-core/internal/platform/httpx"
	"github.com/meridianmc/meridian-core/internal/shared"
)

const headerServerID = "X-Server-Id"

type handlers struct {
	deps     Dependencies
	validate *validator.Validate
}

// authenticate requires a bearer token matching the configured hash plus the
// calling server's identity header. The server id rides the request context
// so downstream writes can stamp their origin.
func (h *handlers) authenticate(next http.Handler) http.Handler {
	return h.withAuth(next)
}

func (h *handlers) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(h.deps.TokenHash), []byte(token)); err != nil {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		serverID := r.Header.Get(headerServerID)
		if serverID == "" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing "+headerServerID+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithServerID(r.Context(), serverID)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

// decodeValid decodes the JSON body into dst and runs struct validation.
func (h *handlers) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return "invalid field " + f.Field() + ": failed " + f.Tag()
	}
	return "invalid request"
}
