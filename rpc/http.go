package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"otcd/core/events"
	"otcd/native/otc"
)

// Engine abstracts the settlement entry points the HTTP surface exposes.
type Engine interface {
	List(caller [20]byte, offerToken string, offerAmount *big.Int, takeToken string, takeAmount *big.Int) ([32]byte, error)
	Take(caller [20]byte, id [32]byte) error
	Cancel(caller [20]byte, id [32]byte) error
	AdjustFee(caller [20]byte, bps uint32) error
	Withdraw(caller [20]byte, assets []string) error
	GetOffer(id [32]byte) (*otc.Offer, error)
	ViewEarnedFees(asset string) (*big.Int, error)
	ViewContractBalance(asset string) (*big.Int, error)
	FeeRate() (uint32, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine Engine
	Events *events.Log
	Logger *slog.Logger
}

// Server encapsulates the HTTP API. Mutating calls are serialized with
// a mutex: the settlement engine expects a single logical thread per
// transaction, and the guard distinguishes re-entrant calls from
// concurrent ones.
type Server struct {
	engine Engine
	events *events.Log
	logger *slog.Logger

	mu     sync.Mutex
	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine: cfg.Engine,
		events: cfg.Events,
		logger: logger,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Route("/v1/otc", func(api chi.Router) {
		api.Post("/offers", s.createOffer)
		api.Get("/offers/{id}", s.getOffer)
		api.Post("/offers/{id}/take", s.takeOffer)
		api.Post("/offers/{id}/cancel", s.cancelOffer)
		api.Post("/fee", s.adjustFee)
		api.Get("/fee", s.getFeeRate)
		api.Post("/withdraw", s.withdraw)
		api.Get("/fees/{asset}", s.getEarnedFees)
		api.Get("/balance/{asset}", s.getContractBalance)
		api.Get("/events", s.listEvents)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type createOfferRequest struct {
	Caller      string `json:"caller"`
	OfferToken  string `json:"offerToken"`
	OfferAmount string `json:"offerAmount"`
	TakeToken   string `json:"takeToken"`
	TakeAmount  string `json:"takeAmount"`
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type adjustFeeRequest struct {
	Caller string `json:"caller"`
	FeeBps uint32 `json:"feeBps"`
}

type withdrawRequest struct {
	Caller string   `json:"caller"`
	Assets []string `json:"assets"`
}

type offerView struct {
	ID          string `json:"id"`
	Maker       string `json:"maker"`
	Taker       string `json:"taker,omitempty"`
	OfferToken  string `json:"offerToken"`
	OfferAmount string `json:"offerAmount"`
	TakeToken   string `json:"takeToken"`
	TakeAmount  string `json:"takeAmount"`
	FeeBps      uint32 `json:"feeBps"`
	ListedAt    int64  `json:"listedAt"`
	Status      string `json:"status"`
}

func newOfferView(o *otc.Offer) offerView {
	view := offerView{
		ID:          otc.FormatOfferID(o.ID),
		Maker:       otc.FormatAddress(o.Maker),
		OfferToken:  o.OfferToken,
		OfferAmount: o.OfferAmount.String(),
		TakeToken:   o.TakeToken,
		TakeAmount:  o.TakeAmount.String(),
		FeeBps:      o.FeeBps,
		ListedAt:    o.ListedAt,
		Status:      o.Status.String(),
	}
	if o.Taker != ([20]byte{}) {
		view.Taker = otc.FormatAddress(o.Taker)
	}
	return view
}

func (s *Server) createOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := otc.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	offerAmount, ok := new(big.Int).SetString(req.OfferAmount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid offerAmount")
		return
	}
	takeAmount, ok := new(big.Int).SetString(req.TakeAmount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid takeAmount")
		return
	}

	callID := uuid.New().String()
	s.mu.Lock()
	id, err := s.engine.List(caller, req.OfferToken, offerAmount, req.TakeToken, takeAmount)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("list rejected", "call_id", callID, "err", err)
		writeEngineError(w, err)
		return
	}
	s.logger.Info("offer listed", "call_id", callID, "offer_id", otc.FormatOfferID(id), "maker", otc.FormatAddress(caller))
	writeJSON(w, http.StatusCreated, map[string]string{"id": otc.FormatOfferID(id), "callId": callID})
}

func (s *Server) takeOffer(w http.ResponseWriter, r *http.Request) {
	s.settleOffer(w, r, "offer taken", s.engine.Take)
}

func (s *Server) cancelOffer(w http.ResponseWriter, r *http.Request) {
	s.settleOffer(w, r, "offer cancelled", s.engine.Cancel)
}

func (s *Server) settleOffer(w http.ResponseWriter, r *http.Request, action string, call func(caller [20]byte, id [32]byte) error) {
	id, err := otc.ParseOfferID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offer id")
		return
	}
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := otc.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	callID := uuid.New().String()
	s.mu.Lock()
	err = call(caller, id)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("settlement rejected", "call_id", callID, "offer_id", otc.FormatOfferID(id), "err", err)
		writeEngineError(w, err)
		return
	}
	s.logger.Info(action, "call_id", callID, "offer_id", otc.FormatOfferID(id), "caller", otc.FormatAddress(caller))
	writeJSON(w, http.StatusOK, map[string]string{"id": otc.FormatOfferID(id), "callId": callID})
}

func (s *Server) getOffer(w http.ResponseWriter, r *http.Request) {
	id, err := otc.ParseOfferID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offer id")
		return
	}
	offer, err := s.engine.GetOffer(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferView(offer))
}

func (s *Server) adjustFee(w http.ResponseWriter, r *http.Request) {
	var req adjustFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := otc.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	callID := uuid.New().String()
	s.mu.Lock()
	err = s.engine.AdjustFee(caller, req.FeeBps)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("fee adjustment rejected", "call_id", callID, "err", err)
		writeEngineError(w, err)
		return
	}
	s.logger.Info("fee adjusted", "call_id", callID, "fee_bps", req.FeeBps)
	writeJSON(w, http.StatusOK, map[string]any{"feeBps": req.FeeBps, "callId": callID})
}

func (s *Server) getFeeRate(w http.ResponseWriter, _ *http.Request) {
	rate, err := s.engine.FeeRate()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"feeBps": rate})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := otc.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	if len(req.Assets) == 0 {
		writeError(w, http.StatusBadRequest, "assets must not be empty")
		return
	}

	callID := uuid.New().String()
	s.mu.Lock()
	err = s.engine.Withdraw(caller, req.Assets)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("withdrawal rejected", "call_id", callID, "err", err)
		writeEngineError(w, err)
		return
	}
	s.logger.Info("fees withdrawn", "call_id", callID, "assets", req.Assets)
	writeJSON(w, http.StatusOK, map[string]any{"assets": req.Assets, "callId": callID})
}

func (s *Server) getEarnedFees(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	amount, err := s.engine.ViewEarnedFees(asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset, "amount": amount.String()})
}

func (s *Server) getContractBalance(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	amount, err := s.engine.ViewContractBalance(asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset, "amount": amount.String()})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []events.Entry{}})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries := s.events.List(r.URL.Query().Get("prefix"), limit)
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, otc.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, otc.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, otc.ErrBusy), errors.Is(err, otc.ErrNotOpen):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, otc.ErrInvalidAmount),
		errors.Is(err, otc.ErrFeeOutOfRange),
		errors.Is(err, otc.ErrUnknownAsset):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	}
}
