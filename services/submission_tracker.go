package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ferreirogomes/rachaconta/models"
)

// SubmissionState é o estado de uma submissão do ponto de vista da ledger.
type SubmissionState string

const (
	SubmissionPending   SubmissionState = "pending"
	SubmissionConfirmed SubmissionState = "confirmed"
	SubmissionFailed    SubmissionState = "failed"
)

// SubmissionStatus é a resposta de consulta de status de uma submissão.
type SubmissionStatus struct {
	State      SubmissionState
	LedgerTxID string // preenchido quando State == SubmissionConfirmed
	Reason     string // motivo da falha quando State == SubmissionFailed
}

// LedgerClient é o cliente da rede da ledger consumido pelo rastreador.
// Broadcast devolve erros classificados como *models.SubmissionError para o
// rastreador distinguir transitório (retentável) de rejeição (terminal).
type LedgerClient interface {
	// SupportsAtomicGroup informa se a ledger aplica um bundle de
	// transferências de forma tudo-ou-nada.
	SupportsAtomicGroup() bool
	Broadcast(ctx context.Context, signedTx []byte) (string, error)
	GetStatus(ctx context.Context, submissionID string) (SubmissionStatus, error)
}

// SubmissionTracker transmite um plano assinado e acompanha a confirmação de
// cada instrução até um estado terminal ou até o prazo da tentativa.
type SubmissionTracker struct {
	Client LedgerClient
	// MaxBroadcastRetries limita as retentativas de broadcast por erro
	// transitório de rede. Rejeições da ledger nunca são retentadas.
	MaxBroadcastRetries uint64
	// InitialBackoff é o intervalo inicial do backoff exponencial, tanto do
	// broadcast quanto do polling de confirmação.
	InitialBackoff time.Duration
	// ConfirmDeadline limita a espera por confirmações. Expirado o prazo, as
	// instruções ainda pendentes ficam Unknown ("verificar mais tarde") — a
	// transferência pode confirmar depois e nunca reportamos falso negativo.
	ConfirmDeadline time.Duration
}

// Submit transmite o plano e devolve o resultado agregado da liquidação.
// Succeeded só quando TODAS as instruções confirmaram.
func (t *SubmissionTracker) Submit(ctx context.Context, plan models.SignedPlan) models.SettlementResult {
	if plan.Atomic() {
		return t.submitAtomic(ctx, plan)
	}
	return t.submitIndependent(ctx, plan)
}

// submitAtomic transmite o bundle como submissão única: a garantia atômica da
// ledger colapsa o modelo de falha para um desfecho só para a conta inteira.
func (t *SubmissionTracker) submitAtomic(ctx context.Context, plan models.SignedPlan) models.SettlementResult {
	subID, err := t.broadcast(ctx, plan.Bundle)
	if err != nil {
		outcome, status := classifyBroadcastFailure(err)
		return uniformResult(plan, outcome, status, "", err.Error())
	}

	confirmCtx, cancel := t.confirmContext(ctx)
	defer cancel()
	status, err := t.awaitConfirmation(confirmCtx, subID)
	switch {
	case err != nil:
		return uniformResult(plan, models.SettlementTimedOut, models.TransferUnknown, "",
			fmt.Sprintf("bundle %s: %v", subID, models.ErrConfirmationTimeout))
	case status.State == SubmissionConfirmed:
		return uniformResult(plan, models.SettlementSucceeded, models.TransferConfirmed, status.LedgerTxID, "")
	default:
		return uniformResult(plan, models.SettlementFailed, models.TransferFailed, "",
			fmt.Sprintf("bundle %s falhou na ledger: %s", subID, status.Reason))
	}
}

// submitIndependent transmite cada instrução separadamente e acompanha as
// confirmações em paralelo — uma espera pendente por instrução, todas
// reunidas antes de montar o resultado.
func (t *SubmissionTracker) submitIndependent(ctx context.Context, plan models.SignedPlan) models.SettlementResult {
	outcomes := make([]models.TransferOutcome, len(plan.Transfers))
	subIDs := make([]string, len(plan.Transfers))
	for i, st := range plan.Transfers {
		outcomes[i] = models.TransferOutcome{Instruction: st.Instruction}
		subID, err := t.broadcast(ctx, st.SignedTx)
		if err != nil {
			_, status := classifyBroadcastFailure(err)
			outcomes[i].Status = status
			log.Printf("broadcast da instrução %d (%s) falhou: %v", i, st.Instruction, err)
			continue
		}
		outcomes[i].Status = models.TransferSubmitted
		subIDs[i] = subID
	}

	confirmCtx, cancel := t.confirmContext(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(confirmCtx)
	for i := range outcomes {
		if outcomes[i].Status != models.TransferSubmitted {
			continue
		}
		g.Go(func() error {
			status, err := t.awaitConfirmation(gctx, subIDs[i])
			switch {
			case err != nil:
				outcomes[i].Status = models.TransferUnknown
			case status.State == SubmissionConfirmed:
				outcomes[i].Status = models.TransferConfirmed
				outcomes[i].LedgerTxID = status.LedgerTxID
			default:
				outcomes[i].Status = models.TransferFailed
			}
			return nil
		})
	}
	_ = g.Wait() // os workers só escrevem no próprio slot e nunca retornam erro

	return aggregate(plan.BillID, outcomes)
}

// confirmContext limita a espera por confirmações ao prazo configurado.
func (t *SubmissionTracker) confirmContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.ConfirmDeadline > 0 {
		return context.WithTimeout(ctx, t.ConfirmDeadline)
	}
	return context.WithCancel(ctx)
}

// broadcast transmite uma transação assinada retentando erros transitórios
// com backoff exponencial, um número limitado de vezes. Rejeições da ledger
// interrompem imediatamente.
func (t *SubmissionTracker) broadcast(ctx context.Context, signedTx []byte) (string, error) {
	var subID string
	op := func() error {
		id, err := t.Client.Broadcast(ctx, signedTx)
		if err != nil {
			var subErr *models.SubmissionError
			if errors.As(err, &subErr) && !subErr.Transient {
				return backoff.Permanent(err)
			}
			return err
		}
		subID = id
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(t.newBackoff(), t.MaxBroadcastRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return "", err
	}
	return subID, nil
}

// errStillPending sinaliza ao backoff que a submissão segue pendente.
var errStillPending = errors.New("submissão ainda pendente")

// awaitConfirmation consulta o status com backoff exponencial até um estado
// terminal ou até o contexto expirar (prazo de confirmação da tentativa).
func (t *SubmissionTracker) awaitConfirmation(ctx context.Context, subID string) (SubmissionStatus, error) {
	var final SubmissionStatus
	op := func() error {
		status, err := t.Client.GetStatus(ctx, subID)
		if err != nil {
			return err // erro de consulta é transitório; o prazo limita a insistência
		}
		if status.State == SubmissionPending {
			return errStillPending
		}
		final = status
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(t.newBackoff(), ctx)); err != nil {
		return SubmissionStatus{}, fmt.Errorf("submissão %s: %w", subID, models.ErrConfirmationTimeout)
	}
	return final, nil
}

func (t *SubmissionTracker) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if t.InitialBackoff > 0 {
		b.InitialInterval = t.InitialBackoff
	}
	b.MaxElapsedTime = 0 // o contexto manda no prazo
	return b
}

// classifyBroadcastFailure mapeia a falha de broadcast para o par
// (desfecho agregado, status da instrução).
func classifyBroadcastFailure(err error) (models.SettlementOutcome, models.TransferStatus) {
	var subErr *models.SubmissionError
	if errors.As(err, &subErr) && !subErr.Transient {
		return models.SettlementRejected, models.TransferRejected
	}
	return models.SettlementFailed, models.TransferFailed
}

// uniformResult monta um resultado em que toda instrução compartilha o mesmo
// status — o caso do bundle atômico.
func uniformResult(plan models.SignedPlan, outcome models.SettlementOutcome, status models.TransferStatus, ledgerTxID, errMsg string) models.SettlementResult {
	outcomes := make([]models.TransferOutcome, len(plan.Transfers))
	for i, st := range plan.Transfers {
		outcomes[i] = models.TransferOutcome{
			Instruction: st.Instruction,
			Status:      status,
			LedgerTxID:  ledgerTxID,
		}
	}
	return models.SettlementResult{
		BillID:    plan.BillID,
		Outcome:   outcome,
		Transfers: outcomes,
		Err:       errMsg,
	}
}

// aggregate reduz os desfechos individuais ao veredito da tentativa. Nunca
// promove confirmação parcial a Succeeded; transferências confirmadas jamais
// são revertidas — o resultado enumera exatamente o que entrou para o
// chamador reconciliar o resto.
func aggregate(billID string, outcomes []models.TransferOutcome) models.SettlementResult {
	var confirmed, unknown, rejected, failed int
	var problems []string
	for i, o := range outcomes {
		switch o.Status {
		case models.TransferConfirmed:
			confirmed++
		case models.TransferUnknown:
			unknown++
			problems = append(problems, fmt.Sprintf("instrução %d sem confirmação dentro do prazo", i))
		case models.TransferRejected:
			rejected++
			problems = append(problems, fmt.Sprintf("instrução %d rejeitada pela ledger", i))
		default:
			failed++
			problems = append(problems, fmt.Sprintf("instrução %d falhou", i))
		}
	}

	result := models.SettlementResult{BillID: billID, Transfers: outcomes}
	switch {
	case confirmed == len(outcomes):
		result.Outcome = models.SettlementSucceeded
	case confirmed > 0:
		result.Outcome = models.SettlementPartiallySucceeded
	case unknown > 0:
		result.Outcome = models.SettlementTimedOut
	case rejected > 0 && failed == 0:
		result.Outcome = models.SettlementRejected
	default:
		result.Outcome = models.SettlementFailed
	}
	if len(problems) > 0 {
		result.Err = strings.Join(problems, "; ")
	}
	return result
}
