package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

type ctxKey int

const (
	ctxKeyGameID ctxKey = iota
)

// AdminCredentials guard the admin routes with HTTP basic auth.
type AdminCredentials struct {
	User         string
	PasswordHash string // bcrypt
}

func (c AdminCredentials) enabled() bool {
	return c.PasswordHash != ""
}

func (c AdminCredentials) verify(user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.User)) == 1
	// Always run bcrypt so a wrong user name costs the same as a wrong password.
	passOK := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
	return userOK && passOK
}

func adminAuthMiddleware(creds AdminCredentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, password, ok := r.BasicAuth()
			if !ok || !creds.verify(user, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="hiddencatch admin", charset="UTF-8"`)
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func gameIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "gameID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid game id")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyGameID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func gameIDFrom(r *http.Request) int64 {
	return r.Context().Value(ctxKeyGameID).(int64)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, strconv.ErrSyntax
	}
	return id, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
