// Package api exposes the election core over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"trueballot/encryption"
	"trueballot/log"
	"trueballot/models"
	"trueballot/service"
	"trueballot/storage"
)

type contextKey int

const capabilityKey contextKey = iota

// Server wires the core services to the HTTP surface.
type Server struct {
	router     *chi.Mux
	authorizer service.Authorizer

	ceremony *service.KeyCeremonyService
	election *service.ElectionService
	tally    *service.TallyService
	state    *service.StateMachine
	reset    *service.ResetService
	audit    *service.AuditService
	store    *storage.Store
	metrics  *service.MetricsCollector
}

// Deps carries the constructed services the server depends on.
type Deps struct {
	Authorizer service.Authorizer
	Ceremony   *service.KeyCeremonyService
	Election   *service.ElectionService
	Tally      *service.TallyService
	State      *service.StateMachine
	Reset      *service.ResetService
	Audit      *service.AuditService
	Store      *storage.Store
	Metrics    *service.MetricsCollector
}

func NewServer(deps Deps) *Server {
	s := &Server{
		authorizer: deps.Authorizer,
		ceremony:   deps.Ceremony,
		election:   deps.Election,
		tally:      deps.Tally,
		state:      deps.State,
		reset:      deps.Reset,
		audit:      deps.Audit,
		store:      deps.Store,
		metrics:    deps.Metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		// Public voter surface.
		r.Post("/votes", s.handleCastVote)
		r.Get("/receipts/{voterID}/{positionID}", s.handleGetReceipt)
		r.Get("/verify/{hash}", s.handleVerifyReceipt)
		r.Get("/status", s.handleStatus)

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(s.requireTier(service.TierAdmin))
			r.Get("/audit", s.handleAuditTrail)
			r.Post("/directory/positions", s.handleAddPosition)
			r.Post("/directory/candidates", s.handleAddCandidate)
		})

		// Super admin surface.
		r.Group(func(r chi.Router) {
			r.Use(s.requireTier(service.TierSuperAdmin))
			r.Post("/ceremony", s.handleCeremony)
			r.Post("/tally", s.handleTally)
			r.Get("/results", s.handleResults)
			r.Post("/state", s.handleTransition)
			r.Post("/reset", s.handleReset)
		})
	})

	s.router = r
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// requireTier authenticates the bearer token and stores the resulting
// capability in the request context.
func (s *Server) requireTier(tier service.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			cap, err := s.authorizer.Authenticate(token)
			if err != nil || !cap.Allows(tier) {
				actor := cap.Actor
				if actor == "" {
					actor = "anonymous"
				}
				s.audit.Record(actor, service.ActionUnauthorizedAccess, r.URL.Path, nil)
				ErrUnauthorized.Write(w)
				return
			}
			ctx := context.WithValue(r.Context(), capabilityKey, cap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func capabilityFrom(ctx context.Context) service.Capability {
	cap, _ := ctx.Value(capabilityKey).(service.Capability)
	return cap
}

func httpWriteJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
}

// writeServiceError maps core errors onto the stable API error codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var stateErr *service.InvalidStateError
	var partialErr *service.PartialFailureError

	switch {
	case errors.Is(err, storage.ErrDuplicateVote):
		// Deliberately generic: no detail that would aid enumeration.
		ErrAlreadyVoted.Write(w)
	case errors.As(err, &stateErr):
		ErrInvalidState.WithErr(stateErr).Write(w)
	case errors.Is(err, service.ErrUnauthorized):
		ErrUnauthorized.Write(w)
	case errors.Is(err, service.ErrNoBallots):
		ErrNoBallots.Write(w)
	case errors.Is(err, encryption.ErrInvalidShard):
		ErrInvalidShards.Write(w)
	case errors.Is(err, service.ErrPublicKeyMissing):
		ErrElectionKeyMissing.Write(w)
	case errors.Is(err, service.ErrCandidateNotFound):
		ErrCandidateNotFound.Write(w)
	case errors.Is(err, encryption.ErrSealing):
		ErrElectionKeyMissing.WithErr(errors.New("sealing rejected the ballot")).Write(w)
	case errors.Is(err, storage.ErrNotFound):
		ErrReceiptNotFound.Write(w)
	case errors.As(err, &partialErr):
		ErrPartialReset.Write(w)
	default:
		log.Errorw("internal error", "error", err)
		ErrGenericInternal.Write(w)
	}
}

// --- handlers ---

type castVoteRequest struct {
	VoterID     string `json:"voter_id"`
	PositionID  string `json:"position_id"`
	CandidateID string `json:"candidate_id"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.Write(w)
		return
	}
	if req.VoterID == "" || req.PositionID == "" || req.CandidateID == "" {
		ErrMalformedParam.Write(w)
		return
	}
	receipt, err := s.election.CastSealedVote(r.Context(), req.VoterID, req.PositionID, req.CandidateID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, receipt)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	voterID := chi.URLParam(r, "voterID")
	positionID := chi.URLParam(r, "positionID")
	receipt, err := s.election.GetReceipt(r.Context(), voterID, positionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, receipt)
}

func (s *Server) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if hash == "" {
		ErrMalformedParam.Write(w)
		return
	}
	receipt, err := s.election.VerifyReceipt(r.Context(), hash)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, map[string]interface{}{
		"verified":     true,
		"position_id":  receipt.PositionID,
		"receipt_hash": receipt.ReceiptHash,
		"created_at":   receipt.CreatedAt,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.state.Current()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ballots, err := s.store.CountSealedBallots()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, map[string]interface{}{
		"status":         state,
		"sealed_ballots": ballots,
		"metrics":        s.metrics.GetMetrics(),
	})
}

func (s *Server) handleCeremony(w http.ResponseWriter, r *http.Request) {
	result, err := s.ceremony.RunCeremony(r.Context(), capabilityFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, result)
}

type tallyRequest struct {
	ShardA string `json:"shard_a"`
	ShardB string `json:"shard_b"`
	ShardC string `json:"shard_c"`
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	var req tallyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.Write(w)
		return
	}
	report, err := s.tally.ReconstructAndTally(r.Context(), capabilityFrom(r.Context()),
		req.ShardA, req.ShardB, req.ShardC)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, report)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	view, err := s.tally.LatestResults()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrResultsNotFound.Write(w)
			return
		}
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, view)
}

type transitionRequest struct {
	Status models.ElectionState `json:"status"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.Write(w)
		return
	}
	if err := s.state.Transition(r.Context(), capabilityFrom(r.Context()), req.Status); err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, map[string]string{"status": string(req.Status)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.reset.ResetElection(r.Context(), capabilityFrom(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, map[string]string{"status": string(models.StateNotStarted)})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	records, err := s.audit.List(0)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, records)
}

func (s *Server) handleAddPosition(w http.ResponseWriter, r *http.Request) {
	var position models.Position
	if err := json.NewDecoder(r.Body).Decode(&position); err != nil {
		ErrMalformedBody.Write(w)
		return
	}
	if position.ID == "" || position.Title == "" {
		ErrMalformedParam.Write(w)
		return
	}
	if err := s.store.PutPosition(position); err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, position)
}

func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	var candidate models.Candidate
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		ErrMalformedBody.Write(w)
		return
	}
	if candidate.ID == "" || candidate.Name == "" || candidate.PositionID == "" {
		ErrMalformedParam.Write(w)
		return
	}
	if err := s.store.PutCandidate(candidate); err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, candidate)
}
