package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/capitolworks/legis/internal/engine"
	"github.com/capitolworks/legis/internal/models"
	"github.com/capitolworks/legis/internal/service"
	"github.com/capitolworks/legis/internal/store"
)

type Server struct {
	service *service.Service
	store   store.Store
	now     func() time.Time
}

func New(svc *service.Service, st store.Store, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	return &Server{service: svc, store: st, now: now}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/bills", func(r chi.Router) {
		r.Post("/", s.handleSubmitBill)
		r.Get("/", s.handleListBills)
		r.Route("/{billID}", func(r chi.Router) {
			r.Get("/", s.handleGetBill)
			r.Get("/tally", s.handleGetTally)
			r.Get("/payments", s.handleListPayments)
			r.Post("/votes", s.handleCastVote)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/resolve", s.handleResolve)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": s.now().UTC(),
	}
	if err := s.store.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type submitBillRequest struct {
	Number         string                 `json:"number"`
	Chamber        models.Chamber         `json:"chamber"`
	PolicyArea     models.PolicyArea      `json:"policyArea"`
	Title          string                 `json:"title"`
	Summary        string                 `json:"summary"`
	SponsorID      string                 `json:"sponsorId"`
	CoSponsorIDs   []string               `json:"coSponsorIds"`
	DebateRefs     []string               `json:"debateRefs"`
	LobbyPositions []models.LobbyPosition `json:"lobbyPositions"`
	Effects        []models.PolicyEffect  `json:"effects"`
}

func (s *Server) handleSubmitBill(w http.ResponseWriter, r *http.Request) {
	var req submitBillRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	bill, err := s.service.SubmitBill(r.Context(), service.SubmitBillRequest{
		Number:         req.Number,
		Chamber:        req.Chamber,
		PolicyArea:     req.PolicyArea,
		Title:          req.Title,
		Summary:        req.Summary,
		SponsorID:      req.SponsorID,
		CoSponsorIDs:   req.CoSponsorIDs,
		DebateRefs:     req.DebateRefs,
		LobbyPositions: req.LobbyPositions,
		Effects:        req.Effects,
	}, s.now())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, bill)
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListBillsFilter{
		Status:    models.BillStatus(q.Get("status")),
		Chamber:   models.Chamber(q.Get("chamber")),
		SponsorID: q.Get("sponsor"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := parseInt(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := parseInt(v); err == nil {
			filter.Offset = n
		}
	}
	bills, err := s.service.ListBills(r.Context(), filter)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"bills": bills})
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	billID, ok := s.billID(w, r)
	if !ok {
		return
	}
	bill, err := s.service.GetBill(r.Context(), billID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bill)
}

func (s *Server) handleGetTally(w http.ResponseWriter, r *http.Request) {
	billID, ok := s.billID(w, r)
	if !ok {
		return
	}
	tally, err := s.service.GetTally(r.Context(), billID, s.now())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tally)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	billID, ok := s.billID(w, r)
	if !ok {
		return
	}
	payments, err := s.service.ListPayments(r.Context(), billID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

type castVoteRequest struct {
	VoterID    string           `json:"voterId"`
	Value      models.VoteValue `json:"value"`
	SeatWeight int              `json:"seatWeight"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	billID, ok := s.billID(w, r)
	if !ok {
		return
	}
	var req castVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	result, err := s.service.CastVote(r.Context(), billID, service.CastVoteRequest{
		VoterID:    req.VoterID,
		Value:      req.Value,
		SeatWeight: req.SeatWeight,
	}, s.now())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

type withdrawRequest struct {
	SponsorID string `json:"sponsorId"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	billID, ok := s.billID(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	bill, err := s.service.WithdrawBill(r.Context(), billID, req.SponsorID, s.now())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bill)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	billID, ok := s.billID(w, r)
	if !ok {
		return
	}
	status, err := s.service.ResolveIfExpired(r.Context(), billID, s.now())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": status})
}

func (s *Server) billID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "billID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid bill id")
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func parseInt(v string) (int, error) {
	return strconv.Atoi(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{"error": code, "message": msg})
}

// respondEngineError maps the engine taxonomy onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		respondError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch engErr.Kind {
	case engine.KindValidation:
		status = http.StatusUnprocessableEntity
	case engine.KindAuthorization:
		status = http.StatusForbidden
	case engine.KindState, engine.KindConflict:
		status = http.StatusConflict
	case engine.KindRateLimit:
		status = http.StatusTooManyRequests
	case engine.KindNotFound:
		status = http.StatusNotFound
	}
	respondError(w, status, engErr.Code, engErr.Message)
}
