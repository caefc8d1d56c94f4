// Package api expõe as operações e consultas do nó via HTTP.
// A identidade do chamador vem dos headers X-Node-ID e X-Signer, preenchidos
// pela plataforma na frente do nó.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/market"
	"github.com/radieske/prediction-market-node/internal/oddscache"
	"github.com/radieske/prediction-market-node/internal/payout"
)

const (
	HeaderNode   = "X-Node-ID"
	HeaderSigner = "X-Signer"
)

// API liga o roteador à máquina de estados local, ao cache de odds remotas
// e ao inbox de pagamentos. Cache e Payouts são opcionais.
type API struct {
	Machine *market.Machine
	Cache   oddscache.Cache
	Payouts payout.Inbox
	Log     *zap.Logger
}

// OperationRequest é o corpo de POST /v1/operations
type OperationRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type OperationResponse struct {
	Type     string `json:"type"`
	Response uint64 `json:"response"`
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/operations", a.execute)

	r.Get("/v1/markets/count", a.marketCount)
	r.Get("/v1/markets/{id}", a.getMarket)
	r.Get("/v1/markets/{id}/winner", a.getWinner)
	r.Get("/v1/markets/{id}/outcomes/{outcome}/stakes", a.listStakes)
	r.Get("/v1/markets/{id}/outcomes/{outcome}/stakes/{node}", a.getStake)

	r.Get("/v1/oracles", a.listOracles)
	r.Get("/v1/subscribers", a.listSubscribers)

	r.Get("/v1/remote/{node}/markets/{id}/odds", a.getRemoteOdds)
	r.Get("/v1/payouts", a.listPayouts)
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor traduz o kind do erro de domínio para o status HTTP
func statusFor(err error) int {
	var opErr *market.Error
	if !errors.As(err, &opErr) {
		return http.StatusInternalServerError
	}
	switch opErr.Kind {
	case market.KindUnauthenticated:
		return http.StatusUnauthorized
	case market.KindUnauthorized:
		return http.StatusForbidden
	case market.KindMarketNotFound:
		return http.StatusNotFound
	case market.KindAlreadyResolved, market.KindMarketNotActive:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		if a.Log != nil {
			a.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func (a *API) execute(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	op, err := market.DecodeOperation(req.Type, req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller := market.Caller{
		Node:   market.NodeID(r.Header.Get(HeaderNode)),
		Signer: r.Header.Get(HeaderSigner),
	}
	resp, err := a.Machine.Execute(r.Context(), caller, op)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationResponse{Type: op.Name(), Response: resp})
}

func (a *API) marketCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.Machine.MarketCount(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": n})
}

func (a *API) getMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id", 64)
	if !ok {
		return
	}
	mk, err := a.Machine.Market(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mk)
}

func (a *API) getWinner(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id", 64)
	if !ok {
		return
	}
	if _, err := a.Machine.Market(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	outcome, resolved, err := a.Machine.WinningOutcome(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !resolved {
		writeError(w, http.StatusNotFound, "market not resolved")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marketId": id, "winningOutcome": outcome})
}

func (a *API) listStakes(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id", 64)
	if !ok {
		return
	}
	outcome, ok := uintParam(w, r, "outcome", 32)
	if !ok {
		return
	}
	stakes, err := a.Machine.Stakes(r.Context(), id, uint32(outcome))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if stakes == nil {
		stakes = []market.StakeRecord{}
	}
	writeJSON(w, http.StatusOK, stakes)
}

func (a *API) getStake(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id", 64)
	if !ok {
		return
	}
	outcome, ok := uintParam(w, r, "outcome", 32)
	if !ok {
		return
	}
	key := market.StakeKey{MarketID: id, Outcome: uint32(outcome), Node: market.NodeID(chi.URLParam(r, "node"))}
	amount, err := a.Machine.StakeOf(r.Context(), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, market.StakeRecord{Node: key.Node, Amount: amount})
}

func (a *API) listOracles(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.Machine.Oracles(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(nodes))
}

func (a *API) listSubscribers(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.Machine.Subscribers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(nodes))
}

// getRemoteOdds retorna a última odd recebida de outro nó para um mercado
func (a *API) getRemoteOdds(w http.ResponseWriter, r *http.Request) {
	if a.Cache == nil {
		writeError(w, http.StatusNotImplemented, "odds cache not configured")
		return
	}
	id, ok := uintParam(w, r, "id", 64)
	if !ok {
		return
	}
	e, found, err := a.Cache.Get(r.Context(), chi.URLParam(r, "node"), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no odds received")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) listPayouts(w http.ResponseWriter, r *http.Request) {
	if a.Payouts == nil {
		writeError(w, http.StatusNotImplemented, "payout inbox not configured")
		return
	}
	notices, err := a.Payouts.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if notices == nil {
		notices = []payout.Notice{}
	}
	writeJSON(w, http.StatusOK, notices)
}

func uintParam(w http.ResponseWriter, r *http.Request, name string, bits int) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, bits)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func orEmpty(nodes []market.NodeID) []market.NodeID {
	if nodes == nil {
		return []market.NodeID{}
	}
	return nodes
}
