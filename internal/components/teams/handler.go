package teams

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/api"
	"github.com/MahdiBaghbani/teamverify-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/http/middleware"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/http/ratelimit"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

const maxBodyBytes = 64 << 10

// Handler serves the team and invite routes over a Service.
type Handler struct {
	svc     *Service
	limiter *ratelimit.Limiter
	log     *slog.Logger
}

// NewHandler creates a Handler. limiter may be nil to disable per-client
// rate limiting on the invite routes.
func NewHandler(svc *Service, limiter *ratelimit.Limiter, log *slog.Logger) *Handler {
	return &Handler{svc: svc, limiter: limiter, log: logutil.NoopIfNil(log)}
}

// TeamsAPI is mounted at /api/teams.
type TeamsAPI struct{ router chi.Router }

// InvitesAPI is mounted at /api/invites.
type InvitesAPI struct{ router chi.Router }

var (
	_ service.Service = (*TeamsAPI)(nil)
	_ service.Service = (*InvitesAPI)(nil)
)

func (a *TeamsAPI) Handler() http.Handler { return a.router }
func (a *TeamsAPI) Prefix() string        { return "teams" }
func (a *TeamsAPI) Close() error          { return nil }

func (a *InvitesAPI) Handler() http.Handler { return a.router }
func (a *InvitesAPI) Prefix() string        { return "invites" }
func (a *InvitesAPI) Close() error          { return nil }

// Teams returns the captain-facing routes. All of them need a signed-in user.
func (h *Handler) Teams() *TeamsAPI {
	r := chi.NewRouter()
	r.Use(auth.RequireUser)
	r.Post("/", h.create)
	r.Get("/", h.listMine)
	r.Get("/{teamID}", h.getTeam)
	r.Post("/{teamID}/resend", h.resend)
	r.Post("/{teamID}/cancel", h.cancel)
	r.Post("/{teamID}/replace", h.replace)
	return &TeamsAPI{router: r}
}

// Invites returns the token routes. The landing page is public; issuing and
// verifying codes need the invited user to be signed in. With a limiter, all
// routes are counted per client address and the code routes also per user.
func (h *Handler) Invites() *InvitesAPI {
	r := chi.NewRouter()
	if h.limiter != nil {
		r.Use(h.limiter.Scope("invites"))
	}
	r.Get("/{token}", h.getByToken)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		if h.limiter != nil {
			r.Use(h.limiter.WithKeyFunc(userKey).Scope("invite-codes"))
		}
		r.Post("/{token}/code", h.issueCode)
		r.Post("/{token}/verify", h.verify)
	})
	return &InvitesAPI{router: r}
}

// userKey keys the code routes by account.
func userKey(r *http.Request) string {
	if u := auth.GetUserFromContext(r.Context()); u != nil {
		return "user:" + u.ID
	}
	return "ip:" + middleware.ClientIP(r)
}

func callerOf(r *http.Request) Caller {
	u := auth.GetUserFromContext(r.Context())
	if u == nil {
		return Caller{}
	}
	return Caller{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		api.WriteError(w, http.StatusRequestEntityTooLarge, api.ReasonBadRequest, "request body too large")
	case errors.Is(err, io.EOF):
		api.WriteBadRequest(w, api.ReasonBadRequest, "request body is required")
	default:
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
	}
	return false
}

var kindStatus = map[Kind]int{
	KindValidation:  http.StatusUnprocessableEntity,
	KindBadRequest:  http.StatusBadRequest,
	KindNotFound:    http.StatusNotFound,
	KindGone:        http.StatusGone,
	KindConflict:    http.StatusConflict,
	KindForbidden:   http.StatusForbidden,
	KindRateLimited: http.StatusTooManyRequests,
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	if st, ok := kindStatus[KindOf(err)]; ok {
		return st
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *Error
	if !errors.As(err, &de) {
		appctx.GetLogger(r.Context()).Error("request failed", "error", err)
		api.WriteInternalError(w, "internal error")
		return
	}

	d := api.ErrorDetail{
		ReasonCode:        de.Reason,
		Message:           de.Message,
		AttemptsRemaining: de.AttemptsRemaining,
	}
	if de.Kind == KindRateLimited && de.RetryAfter > 0 {
		secs := int(math.Ceil(de.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		d.RetryAfterSeconds = secs
	}
	api.WriteErrorDetail(w, StatusOf(err), d)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := h.svc.Create(r.Context(), callerOf(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListMyTeams(r.Context(), callerOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"teams": list})
}

func (h *Handler) getTeam(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetTeam(r.Context(), callerOf(r), chi.URLParam(r, "teamID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) resend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.Resend(r.Context(), callerOf(r), chi.URLParam(r, "teamID"), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	// The body is optional.
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.Cancel(r.Context(), callerOf(r), chi.URLParam(r, "teamID"), req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type replaceRequest struct {
	Email    string `json:"email"`
	NewEmail string `json:"new_email"`
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.Replace(r.Context(), callerOf(r), chi.URLParam(r, "teamID"), req.Email, req.NewEmail)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) getByToken(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) issueCode(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.IssueCode(r.Context(), callerOf(r), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyCode(r.Context(), callerOf(r), chi.URLParam(r, "token"), req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}
