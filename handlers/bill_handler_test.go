package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferreirogomes/rachaconta/handlers"
	"github.com/ferreirogomes/rachaconta/models"
	"github.com/ferreirogomes/rachaconta/services"
)

// stubEncoder serializa instruções de forma trivial para os testes de handler
// não dependerem de RPC.
type stubEncoder struct{}

func (stubEncoder) EncodeTransfer(ctx context.Context, instr models.TransferInstruction) ([]byte, error) {
	return []byte("tx:" + instr.From), nil
}

func (stubEncoder) EncodeBundle(ctx context.Context, plan models.TransferPlan) ([]byte, error) {
	return []byte("bundle:" + plan.BillID), nil
}

func newTestRouter() *chi.Mux {
	coord := &services.SigningCoordinator{Encoder: stubEncoder{}, Strategy: services.SignSequential}
	service := services.NewSettlementService(coord, &services.SubmissionTracker{}, nil)
	billHandler := handlers.NewBillHandler(service, nil)

	r := chi.NewRouter()
	r.Post("/bills/settle/prepare", billHandler.PrepareSettle)
	return r
}

func TestPrepareSettle(t *testing.T) {
	body := map[string]any{
		"title":    "Jantar",
		"total":    "3.000000000",
		"payer_id": "ana",
		"policy":   "equal",
		"participants": []map[string]any{
			{"id": "ana", "name": "Ana", "address": "addr-ana"},
			{"id": "bia", "name": "Bia", "address": "addr-bia"},
			{"id": "caio", "name": "Caio", "address": "addr-caio"},
		},
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/bills/settle/prepare", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.PrepareSettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Plan.Instructions, 2)
	assert.Len(t, resp.Transactions, 2)
	assert.Empty(t, resp.Bundle)
	// 3 SOL entre 3: um lamport de resto não existe, parcelas exatas.
	assert.Equal(t, uint64(1_000_000_000), resp.Plan.Instructions[0].Amount.Value)
}

// Split custom que não fecha é rejeitado com 422 antes de qualquer toque na
// ledger.
func TestPrepareSettleSplitInvalido(t *testing.T) {
	body := map[string]any{
		"title":    "Jantar",
		"total":    "10.00",
		"payer_id": "ana",
		"policy":   "custom",
		"participants": []map[string]any{
			{"id": "ana", "address": "addr-ana", "amount": "1.00"},
			{"id": "bia", "address": "addr-bia", "amount": "2.00"},
		},
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/bills/settle/prepare", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPrepareSettleTotalInvalido(t *testing.T) {
	body := map[string]any{
		"title":    "Jantar",
		"total":    "-5.00",
		"payer_id": "ana",
		"policy":   "equal",
		"participants": []map[string]any{
			{"id": "ana", "address": "addr-ana"},
		},
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/bills/settle/prepare", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
