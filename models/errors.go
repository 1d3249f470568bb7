package models

import (
	"errors"
	"fmt"
)

// Erros de aritmética monetária (§ Money).
var (
	ErrOverflow      = errors.New("overflow de magnitude monetária")
	ErrUnderflow     = errors.New("resultado monetário seria negativo")
	ErrAssetMismatch = errors.New("operação entre ativos distintos")
)

// Erros de validação de uma Bill. São sempre detectados antes de qualquer
// interação com a ledger e nunca são retentados automaticamente — o chamador
// corrige a entrada e tenta de novo.
var (
	ErrInvalidBill        = errors.New("conta inválida")
	ErrWeightSumInvalid   = errors.New("pesos percentuais não somam 100")
	ErrItemTotalMismatch  = errors.New("soma dos preços dos itens difere do total da conta")
	ErrInvalidParticipant = errors.New("participante sem endereço resolvível na ledger")
	ErrEmptyPlan          = errors.New("nenhuma transferência a liquidar")
)

// SplitMismatchError indica que os valores explícitos de um split Custom não
// somam o total da conta. Carrega os dois lados para a UI exibir a diferença.
type SplitMismatchError struct {
	Expected Money
	Actual   Money
}

func (e *SplitMismatchError) Error() string {
	return fmt.Sprintf("soma dos valores do split (%s) difere do total da conta (%s)",
		e.Actual.Display(), e.Expected.Display())
}

// Erros da etapa de assinatura (§ Signing Coordinator).
var (
	// ErrSigningRejected: o humano recusou explicitamente. Terminal — nunca
	// retentar nem re-exibir o prompt.
	ErrSigningRejected = errors.New("assinatura rejeitada pelo signatário")
	// ErrSigningTimedOut: o signatário não respondeu dentro do prazo. O
	// chamador pode re-exibir o prompt se quiser.
	ErrSigningTimedOut = errors.New("tempo esgotado aguardando assinatura")
)

// PartiallySignedError indica que a assinatura sequencial abortou no meio:
// as instruções de Signed foram assinadas, a de índice FailedIndex falhou com
// Cause e as seguintes nem chegaram a ser oferecidas ao signatário.
type PartiallySignedError struct {
	Signed      []SignedTransfer
	FailedIndex int
	Cause       error
}

func (e *PartiallySignedError) Error() string {
	return fmt.Sprintf("assinatura abortada na instrução %d após %d assinadas: %v",
		e.FailedIndex, len(e.Signed), e.Cause)
}

func (e *PartiallySignedError) Unwrap() error { return e.Cause }

// SubmissionError classifica falhas de broadcast. Transient=true indica erro
// de rede antes da aceitação, retentável com backoff; Transient=false indica
// rejeição pela própria ledger (transferência malformada, saldo insuficiente,
// referência vencida) — terminal, nunca retentada.
type SubmissionError struct {
	Transient bool
	Cause     error
}

func (e *SubmissionError) Error() string {
	if e.Transient {
		return fmt.Sprintf("falha transitória de broadcast: %v", e.Cause)
	}
	return fmt.Sprintf("transferência rejeitada pela ledger: %v", e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// ErrConfirmationTimeout: o prazo de confirmação desta tentativa expirou. Não
// é uma falha da transferência — ela pode confirmar depois; o resultado marca
// as instruções afetadas como Unknown, nunca como Failed.
var ErrConfirmationTimeout = errors.New("prazo de confirmação expirado")
