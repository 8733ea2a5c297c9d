package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/intake-cli/internal/cascade"
	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/export"
	"github.com/sells-group/intake-cli/internal/intake"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/session"
	"github.com/sells-group/intake-cli/internal/store"
)

// apiServer holds the collaborators behind the HTTP surface.
type apiServer struct {
	store    store.Store
	sessions session.Provider
	orch     *intake.Orchestrator

	submitRate rate.Limit
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
}

func newAPIServer(st store.Store, sessions session.Provider, orch *intake.Orchestrator, serverCfg config.ServerConfig) *apiServer {
	perMin := serverCfg.SubmitRatePerMin
	if perMin <= 0 {
		perMin = 30
	}
	return &apiServer{
		store:      st,
		sessions:   sessions,
		orch:       orch,
		submitRate: rate.Limit(float64(perMin) / 60.0),
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (s *apiServer) routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/api/options", s.handleOptions)
	r.Get("/api/options/{collection}", s.handleCollectionOptions)
	r.Post("/api/contacts", s.handleSubmit)
	r.Get("/api/contacts", s.handleList)
	r.Get("/api/contacts/export", s.handleExport)
}

// bearerToken extracts the Authorization bearer token into the request
// context for the session provider to resolve.
func bearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
			r = r.WithContext(session.WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) limiterFor(token string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[token]
	if !ok {
		lim = rate.NewLimiter(s.submitRate, 5)
		s.limiters[token] = lim
	}
	return lim
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOptions returns every independent option set, loaded
// concurrently. A collection whose read failed comes back as an empty
// list rather than failing the whole response.
func (s *apiServer) handleOptions(w http.ResponseWriter, r *http.Request) {
	loader := cascade.New(s.store, nil)
	defer loader.Close()
	loader.Preload(r.Context())

	options := make(map[string][]model.ReferenceEntity, len(model.IndependentCollections))
	for _, c := range model.IndependentCollections {
		opts := loader.Options(c)
		if opts == nil {
			opts = []model.ReferenceEntity{}
		}
		options[string(c)] = opts
	}
	writeJSON(w, http.StatusOK, options)
}

func (s *apiServer) handleCollectionOptions(w http.ResponseWriter, r *http.Request) {
	collection := model.Collection(chi.URLParam(r, "collection"))
	if !collection.Valid() {
		writeError(w, http.StatusNotFound, "unknown collection")
		return
	}

	if collection.Parent() == "" {
		options, err := s.store.ListReferences(r.Context(), collection)
		if err != nil {
			zap.L().Error("options read failed", zap.String("collection", string(collection)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "options unavailable")
			return
		}
		writeJSON(w, http.StatusOK, options)
		return
	}

	parentRaw := r.URL.Query().Get("parent_id")
	if parentRaw == "" {
		// A dependent collection without a parent selection has no
		// options.
		writeJSON(w, http.StatusOK, []model.ReferenceEntity{})
		return
	}
	parentID, err := strconv.ParseInt(parentRaw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parent_id must be an integer")
		return
	}

	options, err := s.store.ListReferencesByParent(r.Context(), collection, parentID)
	if err != nil {
		zap.L().Error("options read failed", zap.String("collection", string(collection)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "options unavailable")
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromContext(r.Context())
	if token != "" && !s.limiterFor(token).Allow() {
		writeError(w, http.StatusTooManyRequests, "submission rate exceeded")
		return
	}

	var fields model.IntakeFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	contactID, err := s.orch.Submit(r.Context(), fields)
	if err != nil {
		s.writeSubmitError(w, contactID, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"contact_id": contactID})
}

// writeSubmitError maps the submission error taxonomy onto HTTP
// status codes. A profile failure after a committed contact is a
// partial success: the contact id is returned so the client does not
// resubmit the form.
func (s *apiServer) writeSubmitError(w http.ResponseWriter, contactID string, err error) {
	var (
		vErr       *intake.ValidationError
		dupErr     *intake.DuplicateEmailError
		authErr    *intake.NotAuthenticatedError
		profileErr *intake.ProfilePersistenceError
	)
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": vErr.Fields,
		})
	case errors.As(err, &dupErr):
		writeError(w, http.StatusConflict, dupErr.Error())
	case errors.As(err, &authErr):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, intake.ErrSubmitInFlight):
		writeError(w, http.StatusConflict, "a submission is already in progress")
	case errors.As(err, &profileErr):
		writeJSON(w, http.StatusMultiStatus, map[string]string{
			"contact_id": contactID,
			"warning":    "contact saved, investigator profile failed",
		})
	default:
		zap.L().Error("submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "submission failed")
	}
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.CurrentSession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	filter, err := listFilterFromQuery(r, sess.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := s.store.ListContacts(r.Context(), filter)
	if err != nil {
		zap.L().Error("list contacts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing unavailable")
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func listFilterFromQuery(r *http.Request, admin bool) (store.ContactFilter, error) {
	var filter store.ContactFilter
	q := r.URL.Query()

	// The review-status filter is an admin surface.
	if admin {
		if raw := q.Get("status"); raw != "" {
			status := model.RecordStatus(raw)
			if !status.Valid() {
				return filter, errors.New("unknown status")
			}
			filter.Status = status
		}
	}
	if raw := q.Get("country_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, errors.New("country_id must be an integer")
		}
		filter.CountryID = &id
	}
	filter.InvestigatorsOnly = q.Get("investigators_only") == "true"
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.CurrentSession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !sess.Admin {
		writeError(w, http.StatusForbidden, "export requires an admin session")
		return
	}

	details, err := s.store.ListContacts(r.Context(), store.ContactFilter{})
	if err != nil {
		zap.L().Error("export read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export unavailable")
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="contacts.csv"`)
		if err := export.WriteCSV(w, details); err != nil {
			zap.L().Error("csv export failed", zap.Error(err))
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="contacts.xlsx"`)
		if err := export.WriteXLSXTo(w, details); err != nil {
			zap.L().Error("xlsx export failed", zap.Error(err))
		}
	default:
		writeError(w, http.StatusBadRequest, "format must be csv or xlsx")
	}
}
