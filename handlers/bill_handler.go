package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ferreirogomes/rachaconta/models"
	"github.com/ferreirogomes/rachaconta/services"
	"github.com/ferreirogomes/rachaconta/storage"
)

// BillHandler lida com requisições HTTP de contas: o fluxo de liquidação em
// duas etapas (prepare/complete, porque a carteira assina no cliente) e o
// histórico.
type BillHandler struct {
	Service *services.SettlementService
	DB      *storage.DB
}

// NewBillHandler cria uma nova instância do handler de contas.
func NewBillHandler(s *services.SettlementService, db *storage.DB) *BillHandler {
	return &BillHandler{Service: s, DB: db}
}

// ParticipantRequest é a entrada de um participante no corpo da requisição.
// Amount e Weight só importam conforme a política escolhida.
type ParticipantRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Amount  string `json:"amount,omitempty"` // valor decimal, ex: "33.34"
	Weight  uint64 `json:"weight,omitempty"` // percentual inteiro
}

// ItemRequest é a entrada de um item de conta itemizada.
type ItemRequest struct {
	Label     string   `json:"label"`
	Price     string   `json:"price"`
	Assignees []string `json:"assignees"`
}

// BillRequest é o corpo compartilhado das duas fases da liquidação.
type BillRequest struct {
	ID           string               `json:"id,omitempty"`
	Title        string               `json:"title"`
	Category     string               `json:"category"`
	Memo         string               `json:"memo"`
	Total        string               `json:"total"` // valor decimal, ex: "100.00"
	PayerID      string               `json:"payer_id"`
	Policy       string               `json:"policy"`
	Participants []ParticipantRequest `json:"participants"`
	Items        []ItemRequest        `json:"items,omitempty"`
}

// PrepareSettleResponse devolve o plano e as transações em Base64 para a
// carteira do usuário assinar.
type PrepareSettleResponse struct {
	Bill         models.Bill         `json:"bill"`
	Plan         models.TransferPlan `json:"plan"`
	Bundle       string              `json:"bundle,omitempty"`
	Transactions []string            `json:"transactions,omitempty"`
}

// CompleteSettleRequest traz de volta a conta, o plano e as transações
// assinadas. O fluxo é sem estado no servidor: tudo que a conclusão precisa
// vem na requisição.
type CompleteSettleRequest struct {
	Bill               BillRequest                  `json:"bill"`
	Instructions       []models.TransferInstruction `json:"instructions"`
	SignedBundle       string                       `json:"signed_bundle,omitempty"`
	SignedTransactions []string                     `json:"signed_transactions,omitempty"`
}

// PrepareSettle valida a conta, calcula o split e devolve as transações para
// assinatura.
// POST /bills/settle/prepare
func (h *BillHandler) PrepareSettle(w http.ResponseWriter, r *http.Request) {
	var req BillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bill, err := billFromRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	prepared, err := h.Service.PrepareSettlement(r.Context(), bill)
	if err != nil {
		http.Error(w, err.Error(), settlementErrorStatus(err))
		return
	}

	resp := PrepareSettleResponse{Bill: *bill, Plan: prepared.Plan}
	if len(prepared.Bundle) > 0 {
		resp.Bundle = base64.StdEncoding.EncodeToString(prepared.Bundle)
	}
	for _, tx := range prepared.Transactions {
		resp.Transactions = append(resp.Transactions, base64.StdEncoding.EncodeToString(tx))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CompleteSettle transmite as transações assinadas, acompanha a confirmação e
// grava o resultado no histórico.
// POST /bills/settle/complete
func (h *BillHandler) CompleteSettle(w http.ResponseWriter, r *http.Request) {
	var req CompleteSettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Instructions) == 0 {
		http.Error(w, "plano sem instruções", http.StatusBadRequest)
		return
	}

	bill, err := billFromRequest(req.Bill)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	signed, err := signedPlanFromRequest(bill.ID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Service.CompleteSettlement(r.Context(), bill, signed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.DB.SaveSettlement(r.Context(), bill, result); err != nil {
		// A liquidação já aconteceu na ledger; falha de histórico não pode
		// esconder o resultado do chamador.
		http.Error(w, fmt.Sprintf("liquidação concluída (%s) mas falha ao gravar histórico: %v", result.Outcome, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ListBills devolve o histórico de contas.
// GET /bills
func (h *BillHandler) ListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.DB.ListBills(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bills)
}

// GetBillByID devolve uma conta do histórico com suas transferências.
// GET /bills/{id}
func (h *BillHandler) GetBillByID(w http.ResponseWriter, r *http.Request) {
	billID := chi.URLParam(r, "id")
	if billID == "" {
		http.Error(w, "ID da conta é obrigatório", http.StatusBadRequest)
		return
	}

	bill, transfers, err := h.DB.GetBill(r.Context(), billID)
	if errors.Is(err, storage.ErrBillNotFound) {
		http.Error(w, "Conta não encontrada", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Bill      storage.BillRecord       `json:"bill"`
		Transfers []storage.TransferRecord `json:"transfers"`
	}{bill, transfers})
}

// billFromRequest converte o corpo JSON no agregado do domínio, parseando os
// valores decimais para ponto fixo. Float nunca entra no caminho do dinheiro.
func billFromRequest(req BillRequest) (*models.Bill, error) {
	total, err := models.ParseMoney(req.Total, models.SOL)
	if err != nil {
		return nil, fmt.Errorf("total inválido: %w", err)
	}

	bill := &models.Bill{
		ID:        req.ID,
		Title:     req.Title,
		Category:  req.Category,
		Memo:      req.Memo,
		Total:     total,
		PayerID:   req.PayerID,
		Policy:    models.SplitPolicy(req.Policy),
		CreatedAt: time.Now(),
	}
	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}

	for _, p := range req.Participants {
		participant := models.Participant{
			ID:      p.ID,
			Name:    p.Name,
			Address: p.Address,
			Weight:  p.Weight,
		}
		if p.Amount != "" {
			amount, err := models.ParseMoney(p.Amount, models.SOL)
			if err != nil {
				return nil, fmt.Errorf("valor do participante %s inválido: %w", p.ID, err)
			}
			participant.Amount = &amount
		}
		bill.Participants = append(bill.Participants, participant)
	}

	for _, it := range req.Items {
		price, err := models.ParseMoney(it.Price, models.SOL)
		if err != nil {
			return nil, fmt.Errorf("preço do item %q inválido: %w", it.Label, err)
		}
		bill.Items = append(bill.Items, models.Item{Label: it.Label, Price: price, Assignees: it.Assignees})
	}
	return bill, nil
}

// signedPlanFromRequest remonta o SignedPlan a partir dos Base64 assinados
// pela carteira.
func signedPlanFromRequest(billID string, req CompleteSettleRequest) (models.SignedPlan, error) {
	signed := models.SignedPlan{BillID: billID}
	signed.Transfers = make([]models.SignedTransfer, len(req.Instructions))
	for i, instr := range req.Instructions {
		signed.Transfers[i] = models.SignedTransfer{Instruction: instr}
	}

	if req.SignedBundle != "" {
		bundle, err := base64.StdEncoding.DecodeString(req.SignedBundle)
		if err != nil {
			return models.SignedPlan{}, fmt.Errorf("bundle assinado inválido: %w", err)
		}
		signed.Bundle = bundle
		return signed, nil
	}

	if len(req.SignedTransactions) != len(req.Instructions) {
		return models.SignedPlan{}, fmt.Errorf("esperadas %d transações assinadas, recebidas %d",
			len(req.Instructions), len(req.SignedTransactions))
	}
	for i, b64 := range req.SignedTransactions {
		tx, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return models.SignedPlan{}, fmt.Errorf("transação assinada %d inválida: %w", i, err)
		}
		signed.Transfers[i].SignedTx = tx
	}
	return signed, nil
}

// settlementErrorStatus mapeia erros do motor para códigos HTTP: validação é
// culpa do chamador, o resto é do servidor.
func settlementErrorStatus(err error) int {
	var mismatch *models.SplitMismatchError
	switch {
	case errors.As(err, &mismatch),
		errors.Is(err, models.ErrInvalidBill),
		errors.Is(err, models.ErrWeightSumInvalid),
		errors.Is(err, models.ErrItemTotalMismatch),
		errors.Is(err, models.ErrInvalidParticipant),
		errors.Is(err, models.ErrEmptyPlan):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
