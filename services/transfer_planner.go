package services

import (
	"context"
	"fmt"

	"github.com/ferreirogomes/rachaconta/models"
)

// Directory resolve uma referência humana de participante para um endereço na
// ledger. Implementado pelo diretório de amigos; externo ao motor.
type Directory interface {
	Resolve(ctx context.Context, participantRef string) (string, error)
}

// PlanTransfers transforma uma conta validada e resolvida em uma sequência
// ordenada de instruções: cada participante não-pagador com valor devido
// positivo transfere sua parcela para o pagador, na ordem da lista. A parcela
// do próprio pagador não gera instrução (ninguém transfere para si mesmo) e
// parcelas zero são elididas. Cada plano cobre apenas a sua própria conta —
// netting entre contas é decisão do chamador, fora deste motor.
func PlanTransfers(ctx context.Context, bill *models.Bill, dir Directory) (models.TransferPlan, error) {
	payer, ok := bill.Participant(bill.PayerID)
	if !ok {
		return models.TransferPlan{}, fmt.Errorf("pagador %s: %w", bill.PayerID, models.ErrInvalidParticipant)
	}
	payerAddr, err := resolveAddress(ctx, dir, payer)
	if err != nil {
		return models.TransferPlan{}, err
	}

	plan := models.TransferPlan{BillID: bill.ID}
	for i := range bill.Participants {
		p := &bill.Participants[i]
		if p.ID == bill.PayerID || p.Owed.IsZero() {
			continue
		}
		addr, err := resolveAddress(ctx, dir, p)
		if err != nil {
			return models.TransferPlan{}, err
		}
		if addr == payerAddr {
			// Mesmo endereço do pagador sob outra referência: nada a mover.
			continue
		}
		plan.Instructions = append(plan.Instructions, models.TransferInstruction{
			From:   addr,
			To:     payerAddr,
			Amount: p.Owed,
		})
	}
	if len(plan.Instructions) == 0 {
		return models.TransferPlan{}, fmt.Errorf("conta %s: %w", bill.ID, models.ErrEmptyPlan)
	}
	return plan, nil
}

// resolveAddress usa o endereço já presente no participante ou consulta o
// diretório; referência não resolvível vira erro tipado, nunca substituição
// silenciosa de endereço.
func resolveAddress(ctx context.Context, dir Directory, p *models.Participant) (string, error) {
	if p.Address != "" {
		return p.Address, nil
	}
	if dir == nil {
		return "", fmt.Errorf("participante %s sem endereço e sem diretório: %w", p.ID, models.ErrInvalidParticipant)
	}
	addr, err := dir.Resolve(ctx, p.ID)
	if err != nil || addr == "" {
		return "", fmt.Errorf("participante %s: %w", p.ID, models.ErrInvalidParticipant)
	}
	p.Address = addr
	return addr, nil
}
