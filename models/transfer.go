package models

import "fmt"

// TransferInstruction é uma transferência atômica planejada: quem paga quem,
// quanto e em qual ativo. Invariantes mantidas pelo planejador: Amount > 0 e
// From != To (auto-transferências são elididas, nunca planejadas).
type TransferInstruction struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount Money  `json:"amount"`
}

func (t TransferInstruction) String() string {
	return fmt.Sprintf("%s -> %s (%s)", t.From, t.To, t.Amount.Display())
}

// TransferPlan é a sequência ordenada de instruções de uma única conta. Planos
// não sobrevivem à tentativa de liquidação que os criou.
type TransferPlan struct {
	BillID       string                `json:"bill_id"`
	Instructions []TransferInstruction `json:"instructions"`
}

// SignedTransfer é uma instrução já autorizada pelo seu remetente: os bytes
// assinados são opacos para o motor e só a ledger sabe decodificá-los.
type SignedTransfer struct {
	Instruction TransferInstruction `json:"instruction"`
	SignedTx    []byte              `json:"signed_tx"`
}

// SignedPlan é o plano inteiro assinado. Transfers preserva a ordem das
// instruções do plano; no modo sequencial cada entrada carrega sua própria
// transação assinada, no modo bundle Bundle carrega a transação atômica única
// e os SignedTx individuais ficam vazios.
type SignedPlan struct {
	BillID    string           `json:"bill_id"`
	Transfers []SignedTransfer `json:"transfers"`
	Bundle    []byte           `json:"bundle,omitempty"`
}

// Atomic informa se o plano foi assinado como grupo atômico.
func (p SignedPlan) Atomic() bool {
	return len(p.Bundle) > 0
}

// TransferStatus é o estado terminal (ou não alcançado) de uma instrução
// dentro de uma tentativa de liquidação.
type TransferStatus string

const (
	TransferNotAttempted    TransferStatus = "not_attempted"    // a tentativa abortou antes desta instrução
	TransferSigned          TransferStatus = "signed"           // assinada mas nunca transmitida
	TransferSigningRejected TransferStatus = "signing_rejected" // o signatário recusou esta instrução
	TransferSubmitted       TransferStatus = "submitted"        // transmitida, confirmação pendente
	TransferConfirmed       TransferStatus = "confirmed"        // incluída na ledger
	TransferFailed          TransferStatus = "failed"           // a ledger reportou falha definitiva
	TransferRejected        TransferStatus = "rejected"         // recusada no broadcast (malformada, sem saldo)
	TransferUnknown         TransferStatus = "unknown"          // prazo expirou; pode confirmar depois — verificar mais tarde
)

// SettlementOutcome é o veredito agregado de uma tentativa de liquidação.
type SettlementOutcome string

const (
	SettlementSucceeded          SettlementOutcome = "succeeded"
	SettlementPartiallySucceeded SettlementOutcome = "partially_succeeded"
	SettlementFailed             SettlementOutcome = "failed"
	SettlementRejected           SettlementOutcome = "rejected"
	SettlementTimedOut           SettlementOutcome = "timed_out"
)

// TransferOutcome é o resultado individual de uma instrução: status terminal e
// o id da transação na ledger quando houve inclusão.
type TransferOutcome struct {
	Instruction TransferInstruction `json:"instruction"`
	Status      TransferStatus      `json:"status"`
	LedgerTxID  string              `json:"ledger_tx_id,omitempty"`
}

// SettlementResult é o relatório terminal de settle: um desfecho agregado, o
// resultado de cada instrução na ordem do plano e uma descrição de erro
// quando aplicável. Succeeded exige TODAS as instruções confirmadas — nunca
// afirmamos sucesso com confirmação parcial.
type SettlementResult struct {
	BillID    string            `json:"bill_id"`
	Outcome   SettlementOutcome `json:"outcome"`
	Transfers []TransferOutcome `json:"transfers"`
	Err       string            `json:"error,omitempty"`
}

// Succeeded informa se todas as transferências confirmaram.
func (r SettlementResult) Succeeded() bool {
	return r.Outcome == SettlementSucceeded
}
