package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/samber/oops"

	"github.com/jimiolaniyan/goaccounts/auth"
)

// meID is the path id that stands for the caller's own account.
const meID = "me"

var errBadRequest = errors.New("malformed request body")

// NewRouter wires the account routes. Protected routes go through gate.
// m may be nil.
func NewRouter(svc Service, gate *auth.Gate, cookies *auth.CookieCodec, m *Metrics) *httprouter.Router {
	router := httprouter.New()
	router.Handler(http.MethodPost, "/users", m.instrument("signup", SignupHandler(svc, cookies)))
	router.Handler(http.MethodPost, "/users/login", m.instrument("login", LoginHandler(svc, cookies)))
	router.Handler(http.MethodPost, "/users/logout", m.instrument("logout", gate.RequireAuth(LogoutHandler(svc, cookies))))
	router.Handler(http.MethodGet, "/users", m.instrument("list_accounts", gate.RequireAuth(ListAccountsHandler(svc))))
	// httprouter does not allow /users/me next to /users/:id, so "me" is an id value.
	router.Handler(http.MethodGet, "/users/:id", m.instrument("get_account", gate.RequireAuth(GetAccountHandler(svc))))
	router.Handler(http.MethodPut, "/users/:id", m.instrument("replace_account", gate.RequireAuth(ReplaceAccountHandler(svc))))
	router.Handler(http.MethodPatch, "/users/:id", m.instrument("update_account", gate.RequireAuth(UpdateAccountHandler(svc))))
	return router
}

func SignupHandler(svc Service, cookies *auth.CookieCodec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		req, err := decodeCredentialsRequest(r.Body)
		if err != nil {
			encodeError(r.Context(), err, w)
			return
		}

		info, token, err := svc.Signup(r.Context(), req)
		if err != nil {
			encodeError(r.Context(), err, w)
			return
		}

		if token != "" {
			if err := setSessionCookie(w, cookies, token); err != nil {
				slog.WarnContext(r.Context(), "account created without session cookie", "account_id", info.ID, "error", err)
			}
		}
		encodeJSON(r.Context(), w, http.StatusOK, info)
	})
}

func LoginHandler(svc Service, cookies *auth.CookieCodec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		req, err := decodeCredentialsRequest(r.Body)
		if err != nil {
			encodeError(r.Context(), err, w)
			return
		}

		info, token, err := svc.Login(r.Context(), req)
		if err != nil {
			encodeError(r.Context(), err, w)
			return
		}

		if err := setSessionCookie(w, cookies, token); err != nil {
			_ = svc.Logout(r.Context(), token)
			encodeError(r.Context(), err, w)
			return
		}
		encodeJSON(r.Context(), w, http.StatusOK, info)
	})
}

func LogoutHandler(svc Service, cookies *auth.CookieCodec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFromContext(r.Context())
		if err := svc.Logout(r.Context(), id.Token); err != nil {
			w.Header().Set("Content-Type", "application/json")
			encodeError(r.Context(), err, w)
			return
		}
		http.SetCookie(w, cookies.Expired())
		w.WriteHeader(http.StatusNoContent)
	})
}

func ListAccountsHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		infos, err := svc.ListAccounts(r.Context())
		if err != nil {
			encodeError(r.Context(), err, w)
			return
		}
		encodeJSON(r.Context(), w, http.StatusOK, infos)
	})
}

func GetAccountHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		info, err := svc.GetAccount(r.Context(), accountIDParam(r))
		if err != nil {
			encodeError(r.Context(), err, w)
			return
		}
		encodeJSON(r.Context(), w, http.StatusOK, info)
	})
}

func ReplaceAccountHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		req, err := decodeCredentialsRequest(r.Body)
		if err != nil {
			encodeError(r.Context(), err, w)
			return
		}

		info, err := svc.ReplaceAccount(r.Context(), accountIDParam(r), req)
		if err != nil {
			encodeError(r.Context(), err, w)
			return
		}
		encodeJSON(r.Context(), w, http.StatusOK, info)
	})
}

func UpdateAccountHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		req := updateAccountRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			encodeError(r.Context(), errBadRequest, w)
			return
		}

		info, err := svc.UpdateAccount(r.Context(), accountIDParam(r), req)
		if err != nil {
			encodeError(r.Context(), err, w)
			return
		}
		encodeJSON(r.Context(), w, http.StatusOK, info)
	})
}

// accountIDParam returns the :id path parameter, resolving "me" to the
// authenticated caller.
func accountIDParam(r *http.Request) string {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	if id == meID {
		identity, _ := auth.IdentityFromContext(r.Context())
		return identity.AccountID
	}
	return id
}

func setSessionCookie(w http.ResponseWriter, cookies *auth.CookieCodec, token string) error {
	c, err := cookies.Cookie(token)
	if err != nil {
		return err
	}
	http.SetCookie(w, c)
	return nil
}

var errorResponses = []struct {
	err    error
	status int
	code   string
}{
	{errBadRequest, http.StatusBadRequest, "BAD_REQUEST"},
	{ErrMissingUsername, http.StatusUnprocessableEntity, "MISSING_USERNAME"},
	{ErrMissingPassword, http.StatusUnprocessableEntity, "MISSING_PASSWORD"},
	{ErrInvalidUsername, http.StatusUnprocessableEntity, "INVALID_USERNAME"},
	{ErrInvalidPassword, http.StatusUnprocessableEntity, "INVALID_PASSWORD"},
	{ErrInvalidID, http.StatusUnprocessableEntity, "WRONG_ID_FORMAT"},
	{ErrNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{ErrExistingUsername, http.StatusConflict, "USERNAME_IN_USE"},
	{ErrWrongCredentials, http.StatusUnauthorized, "WRONG_CREDENTIALS"},
	{auth.ErrUnauthorized, http.StatusUnauthorized, "NOT_AUTHORIZED"},
}

// encodeError writes the status and a generic body for err. Errors without a
// mapping are logged and reported as INTERNAL_ERROR without their text.
func encodeError(ctx context.Context, err error, w http.ResponseWriter) {
	for _, er := range errorResponses {
		if errors.Is(err, er.err) {
			encodeJSON(ctx, w, er.status, map[string]string{"code": er.code, "message": er.err.Error()})
			return
		}
	}

	logError(ctx, "request failed", err)
	encodeJSON(ctx, w, http.StatusInternalServerError, map[string]string{"code": "INTERNAL_ERROR", "message": "internal error"})
}

func encodeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "encoding response", "error", err)
	}
}

// logError logs err with the domain and context attached by oops, if any.
func logError(ctx context.Context, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		slog.ErrorContext(ctx, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if domain := oopsErr.Domain(); domain != "" {
		attrs = append(attrs, "domain", domain)
	}
	if c := oopsErr.Context(); len(c) > 0 {
		attrs = append(attrs, "context", c)
	}
	slog.ErrorContext(ctx, msg, attrs...)
}

func decodeCredentialsRequest(body io.Reader) (credentialsRequest, error) {
	req := credentialsRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return credentialsRequest{}, errBadRequest
	}
	return req, nil
}
