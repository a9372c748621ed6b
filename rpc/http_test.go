package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"otcd/core/events"
	"otcd/core/state"
	"otcd/native/otc"
	"otcd/native/token"
	"otcd/storage"
)

const (
	ownerHex = "0x0000000000000000000000000000000000000002"
	makerHex = "0x0000000000000000000000000000000000000003"
	takerHex = "0x0000000000000000000000000000000000000004"
)

func newTestServer(t *testing.T) (*Server, *state.Manager) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	reg := token.NewRegistry()
	log := events.NewLog(0)

	custody, err := otc.ParseAddress("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	owner, err := otc.ParseAddress(ownerHex)
	require.NoError(t, err)
	maker, err := otc.ParseAddress(makerHex)
	require.NoError(t, err)
	taker, err := otc.ParseAddress(takerHex)
	require.NoError(t, err)

	apl, err := token.NewToken("APL", mgr)
	require.NoError(t, err)
	ban, err := token.NewToken("BAN", mgr)
	require.NoError(t, err)
	require.NoError(t, reg.Register("APL", apl))
	require.NoError(t, reg.Register("BAN", ban))
	require.NoError(t, apl.Mint(maker, big.NewInt(1_000_000)))
	require.NoError(t, ban.Mint(taker, big.NewInt(1_000_000)))
	require.NoError(t, apl.Approve(maker, big.NewInt(1_000_000), custody))
	require.NoError(t, ban.Approve(taker, big.NewInt(1_000_000), custody))

	eng := otc.NewEngine(custody, reg)
	eng.SetState(mgr)
	eng.SetEmitter(log)
	require.NoError(t, eng.Initialize(owner, 50))

	srv := New(Config{Engine: eng, Events: log, Logger: slog.Default()})
	return srv, mgr
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestOfferLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	recorder := doJSON(t, handler, http.MethodPost, "/v1/otc/offers", map[string]string{
		"caller":      makerHex,
		"offerToken":  "APL",
		"offerAmount": "10000",
		"takeToken":   "BAN",
		"takeAmount":  "5000",
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	offerID, _ := decodeBody(t, recorder)["id"].(string)
	require.NotEmpty(t, offerID)

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/offers/"+offerID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	view := decodeBody(t, recorder)
	require.Equal(t, "OPEN", view["status"])
	require.Equal(t, "10000", view["offerAmount"])
	require.NotContains(t, view, "taker")

	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/offers/"+offerID+"/take", map[string]string{"caller": takerHex})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/offers/"+offerID, nil)
	view = decodeBody(t, recorder)
	require.Equal(t, "EXECUTED", view["status"])
	require.Equal(t, takerHex, view["taker"])

	// Terminal offers cannot be re-settled.
	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/offers/"+offerID+"/take", map[string]string{"caller": takerHex})
	require.Equal(t, http.StatusConflict, recorder.Code)
	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/offers/"+offerID+"/cancel", map[string]string{"caller": makerHex})
	require.Equal(t, http.StatusConflict, recorder.Code)

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/fees/APL", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "50", decodeBody(t, recorder)["amount"])

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/balance/BAN", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "25", decodeBody(t, recorder)["amount"])
}

func TestCancelOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	recorder := doJSON(t, handler, http.MethodPost, "/v1/otc/offers", map[string]string{
		"caller":      makerHex,
		"offerToken":  "APL",
		"offerAmount": "10000",
		"takeToken":   "BAN",
		"takeAmount":  "5000",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	offerID, _ := decodeBody(t, recorder)["id"].(string)

	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/offers/"+offerID+"/cancel", map[string]string{"caller": takerHex})
	require.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/offers/"+offerID+"/cancel", map[string]string{"caller": makerHex})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/offers/"+offerID, nil)
	require.Equal(t, "CANCELLED", decodeBody(t, recorder)["status"])
}

func TestFeeAdministrationOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	recorder := doJSON(t, handler, http.MethodPost, "/v1/otc/fee", map[string]any{"caller": makerHex, "feeBps": 100})
	require.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/fee", map[string]any{"caller": ownerHex, "feeBps": 2_000})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/fee", map[string]any{"caller": ownerHex, "feeBps": 100})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/fee", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.EqualValues(t, 100, decodeBody(t, recorder)["feeBps"])
}

func TestWithdrawOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	recorder := doJSON(t, handler, http.MethodPost, "/v1/otc/offers", map[string]string{
		"caller":      makerHex,
		"offerToken":  "APL",
		"offerAmount": "10000",
		"takeToken":   "BAN",
		"takeAmount":  "5000",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	offerID, _ := decodeBody(t, recorder)["id"].(string)
	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/offers/"+offerID+"/take", map[string]string{"caller": takerHex})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/withdraw", map[string]any{"caller": makerHex, "assets": []string{"APL"}})
	require.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/withdraw", map[string]any{"caller": ownerHex, "assets": []string{"APL", "BAN"}})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/fees/APL", nil)
	require.Equal(t, "0", decodeBody(t, recorder)["amount"])

	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/withdraw", map[string]any{"caller": ownerHex, "assets": []string{}})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestEventReplayOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	recorder := doJSON(t, handler, http.MethodPost, "/v1/otc/offers", map[string]string{
		"caller":      makerHex,
		"offerToken":  "APL",
		"offerAmount": "10000",
		"takeToken":   "BAN",
		"takeAmount":  "5000",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/events?prefix=otc.offer.", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var payload struct {
		Events []events.Entry `json:"events"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Len(t, payload.Events, 1)
	require.Equal(t, otc.EventTypeOfferCreated, payload.Events[0].Type)

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/events?limit=bogus", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRequestValidationOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	recorder := doJSON(t, handler, http.MethodPost, "/v1/otc/offers", map[string]string{
		"caller":      "nope",
		"offerToken":  "APL",
		"offerAmount": "1",
		"takeToken":   "BAN",
		"takeAmount":  "1",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, handler, http.MethodPost, "/v1/otc/offers", map[string]string{
		"caller":      makerHex,
		"offerToken":  "APL",
		"offerAmount": "ten",
		"takeToken":   "BAN",
		"takeAmount":  "1",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/offers/zz", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, handler, http.MethodGet, "/v1/otc/offers/0x"+string(bytes.Repeat([]byte("a"), 64)), nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = doJSON(t, handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}
