package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ferreirogomes/rachaconta/models"
)

// ProgressFunc recebe avisos de progresso de uma liquidação em andamento para
// a UI exibir ("aguardando assinatura", "transmitindo", "confirmando n/m").
type ProgressFunc func(stage string, done, total int)

// Estágios reportados via ProgressFunc.
const (
	StageAwaitingSignature = "aguardando assinatura"
	StageBroadcasting      = "transmitindo"
	StageConfirming        = "confirmando"
)

// SettlementService executa o pipeline de liquidação de uma conta:
// Calculate -> Plan -> Sign -> Submit -> Confirm. Cada invocação é
// independente e não retém estado entre chamadas; o signatário é injetado por
// chamada (nenhuma carteira global no motor) e usado com exclusividade
// durante a etapa de assinatura.
type SettlementService struct {
	Coordinator *SigningCoordinator
	Tracker     *SubmissionTracker
	Directory   Directory
	Progress    ProgressFunc // opcional
}

// NewSettlementService monta o pipeline com os colaboradores dados.
func NewSettlementService(coord *SigningCoordinator, tracker *SubmissionTracker, dir Directory) *SettlementService {
	return &SettlementService{Coordinator: coord, Tracker: tracker, Directory: dir}
}

// Settle liquida a conta e devolve o relatório terminal. Erros de validação
// (forma da conta, split que não fecha, participante sem endereço) voltam como
// error antes de qualquer interação com a ledger; desfechos de assinatura e
// submissão voltam dentro do SettlementResult. Cancelamento via ctx antes do
// broadcast aborta sem nenhum efeito colateral; depois do broadcast a
// liquidação degrada para "esperar e reportar o que aconteceu", porque
// transferências aceitas pela rede são irreversíveis.
func (s *SettlementService) Settle(ctx context.Context, bill *models.Bill, signer Signer) (models.SettlementResult, error) {
	if err := ResolveSplit(bill); err != nil {
		return models.SettlementResult{}, err
	}

	plan, err := PlanTransfers(ctx, bill, s.Directory)
	if err != nil {
		return models.SettlementResult{}, err
	}

	s.progress(StageAwaitingSignature, 0, len(plan.Instructions))
	signed, err := s.Coordinator.SignPlan(ctx, plan, signer)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, models.ErrSigningTimedOut) {
			// Cancelamento do chamador antes de qualquer broadcast: aborto
			// limpo, nada saiu do processo.
			return models.SettlementResult{}, fmt.Errorf("liquidação cancelada: %w", ctx.Err())
		}
		return signingFailureResult(plan, err), nil
	}

	if err := ctx.Err(); err != nil {
		return models.SettlementResult{}, fmt.Errorf("liquidação cancelada: %w", err)
	}

	s.progress(StageBroadcasting, 0, len(plan.Instructions))
	result := s.Tracker.Submit(ctx, signed)
	s.progress(StageConfirming, confirmedCount(result), len(result.Transfers))

	s.markSettled(bill, result)
	log.Printf("liquidação da conta %s: %s", bill.ID, result.Outcome)
	return result, nil
}

// PreparedSettlement é a saída da primeira fase do fluxo em duas etapas: o
// plano e as transações serializadas para a carteira do usuário assinar no
// cliente. Bundle carrega a transação atômica única quando a estratégia é
// bundled; Transactions carrega uma por instrução no modo sequencial.
type PreparedSettlement struct {
	Plan         models.TransferPlan
	Bundle       []byte
	Transactions [][]byte
}

// PrepareSettlement valida, calcula o split, planeja e serializa as
// transações para assinatura fora do processo. Nada toca a ledger além da
// leitura de blockhash; nenhum estado fica retido para a fase de conclusão.
func (s *SettlementService) PrepareSettlement(ctx context.Context, bill *models.Bill) (PreparedSettlement, error) {
	if err := ResolveSplit(bill); err != nil {
		return PreparedSettlement{}, err
	}
	plan, err := PlanTransfers(ctx, bill, s.Directory)
	if err != nil {
		return PreparedSettlement{}, err
	}

	prepared := PreparedSettlement{Plan: plan}
	if s.Coordinator.Strategy == SignBundled {
		prepared.Bundle, err = s.Coordinator.Encoder.EncodeBundle(ctx, plan)
		if err != nil {
			return PreparedSettlement{}, fmt.Errorf("falha ao serializar bundle: %w", err)
		}
		return prepared, nil
	}
	prepared.Transactions = make([][]byte, len(plan.Instructions))
	for i, instr := range plan.Instructions {
		prepared.Transactions[i], err = s.Coordinator.Encoder.EncodeTransfer(ctx, instr)
		if err != nil {
			return PreparedSettlement{}, fmt.Errorf("falha ao serializar instrução %d: %w", i, err)
		}
	}
	return prepared, nil
}

// CompleteSettlement recebe o plano já assinado pela carteira do usuário,
// transmite e acompanha até o resultado terminal.
func (s *SettlementService) CompleteSettlement(ctx context.Context, bill *models.Bill, signed models.SignedPlan) (models.SettlementResult, error) {
	if len(signed.Transfers) == 0 {
		return models.SettlementResult{}, fmt.Errorf("plano assinado vazio: %w", models.ErrEmptyPlan)
	}
	if err := ctx.Err(); err != nil {
		return models.SettlementResult{}, fmt.Errorf("liquidação cancelada: %w", err)
	}

	s.progress(StageBroadcasting, 0, len(signed.Transfers))
	result := s.Tracker.Submit(ctx, signed)
	s.progress(StageConfirming, confirmedCount(result), len(result.Transfers))

	s.markSettled(bill, result)
	log.Printf("liquidação da conta %s: %s", bill.ID, result.Outcome)
	return result, nil
}

func (s *SettlementService) progress(stage string, done, total int) {
	if s.Progress != nil {
		s.Progress(stage, done, total)
	}
}

// markSettled grava a flag Settled dos participantes cujas transferências
// confirmaram — a única mutação que o rastreador faz no agregado.
func (s *SettlementService) markSettled(bill *models.Bill, result models.SettlementResult) {
	confirmedFrom := make(map[string]struct{})
	for _, o := range result.Transfers {
		if o.Status == models.TransferConfirmed {
			confirmedFrom[o.Instruction.From] = struct{}{}
		}
	}
	for i := range bill.Participants {
		p := &bill.Participants[i]
		if _, ok := confirmedFrom[p.Address]; ok {
			p.Settled = true
		}
		if p.ID == bill.PayerID && result.Succeeded() {
			p.Settled = true // a parcela do pagador nunca é cobrada
		}
	}
}

func confirmedCount(result models.SettlementResult) int {
	n := 0
	for _, o := range result.Transfers {
		if o.Status == models.TransferConfirmed {
			n++
		}
	}
	return n
}

// signingFailureResult converte uma falha de assinatura no relatório terminal:
// nada foi transmitido, então os status refletem só até onde a coleta de
// assinaturas chegou.
func signingFailureResult(plan models.TransferPlan, err error) models.SettlementResult {
	outcomes := make([]models.TransferOutcome, len(plan.Instructions))
	for i, instr := range plan.Instructions {
		outcomes[i] = models.TransferOutcome{Instruction: instr, Status: models.TransferNotAttempted}
	}

	outcome := models.SettlementFailed
	switch {
	case errors.Is(err, models.ErrSigningRejected):
		outcome = models.SettlementRejected
	case errors.Is(err, models.ErrSigningTimedOut):
		outcome = models.SettlementTimedOut
	}

	var partial *models.PartiallySignedError
	switch {
	case errors.As(err, &partial):
		// Assinatura sequencial: prefixo assinado, instrução da falha, resto
		// nunca oferecido ao signatário.
		for i := range partial.Signed {
			outcomes[i].Status = models.TransferSigned
		}
		if errors.Is(partial.Cause, models.ErrSigningRejected) {
			outcomes[partial.FailedIndex].Status = models.TransferSigningRejected
		}
	case errors.Is(err, models.ErrSigningRejected):
		// Bundle recusado: a recusa vale para a unidade atômica inteira.
		for i := range outcomes {
			outcomes[i].Status = models.TransferSigningRejected
		}
	}

	return models.SettlementResult{
		BillID:    plan.BillID,
		Outcome:   outcome,
		Transfers: outcomes,
		Err:       err.Error(),
	}
}
