package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ferreirogomes/rachaconta/models"
)

// Signer é a capacidade externa de assinatura (carteira do usuário, possivelmente
// remota ou em hardware). Recebe os bytes da transação e o endereço do dono que
// deve autorizá-la; devolve os bytes com a assinatura aplicada. A latência é
// ilimitada até o deadline do contexto. O motor nunca vê chaves privadas.
type Signer interface {
	Sign(ctx context.Context, txBytes []byte, ownerAddress string) ([]byte, error)
}

// TransferEncoder serializa instruções na forma que a ledger espera para
// assinatura. Implementado pelo serviço da ledger (ex: transação Solana).
type TransferEncoder interface {
	// EncodeTransfer serializa uma instrução como transação independente.
	EncodeTransfer(ctx context.Context, instr models.TransferInstruction) ([]byte, error)
	// EncodeBundle serializa o plano inteiro como UMA transação atômica.
	EncodeBundle(ctx context.Context, plan models.TransferPlan) ([]byte, error)
}

// SigningStrategy seleciona como o plano é oferecido ao signatário. A escolha
// vem da capacidade da ledger, não deste motor.
type SigningStrategy int

const (
	// SignBundled oferece o plano como unidade atômica única: ou o bundle
	// inteiro sai assinado ou a liquidação é rejeitada.
	SignBundled SigningStrategy = iota
	// SignSequential oferece uma instrução por vez, um prompt pendente por
	// vez — atenção humana é um recurso serializado. Rejeição ou timeout
	// aborta as instruções restantes.
	SignSequential
)

// SigningCoordinator obtém assinaturas válidas para todas as instruções de um
// plano antes de qualquer broadcast. Uma rejeição humana explícita nunca é
// retentada; timeout é distinto de rejeição porque o chamador pode re-exibir
// o prompt após timeout mas jamais após recusa.
type SigningCoordinator struct {
	Encoder  TransferEncoder
	Strategy SigningStrategy
	// Timeout máximo por prompt de assinatura. Zero desabilita o limite
	// (fica valendo só o contexto do chamador).
	Timeout time.Duration
}

// SignPlan executa a estratégia configurada sobre o plano.
func (c *SigningCoordinator) SignPlan(ctx context.Context, plan models.TransferPlan, signer Signer) (models.SignedPlan, error) {
	if len(plan.Instructions) == 0 {
		return models.SignedPlan{}, fmt.Errorf("plano vazio: %w", models.ErrEmptyPlan)
	}
	switch c.Strategy {
	case SignBundled:
		return c.signBundled(ctx, plan, signer)
	default:
		return c.signSequential(ctx, plan, signer)
	}
}

// signBundled serializa o plano como transação única e colhe a assinatura de
// cada remetente distinto sobre ela, na ordem do plano, encadeando os bytes
// (cada carteira devolve a transação com mais uma assinatura aplicada).
// Qualquer recusa rejeita o bundle inteiro.
func (c *SigningCoordinator) signBundled(ctx context.Context, plan models.TransferPlan, signer Signer) (models.SignedPlan, error) {
	bundle, err := c.Encoder.EncodeBundle(ctx, plan)
	if err != nil {
		return models.SignedPlan{}, fmt.Errorf("falha ao serializar bundle: %w", err)
	}

	seen := make(map[string]struct{})
	for _, instr := range plan.Instructions {
		if _, done := seen[instr.From]; done {
			continue
		}
		seen[instr.From] = struct{}{}
		bundle, err = c.sign(ctx, signer, bundle, instr.From)
		if err != nil {
			return models.SignedPlan{}, err
		}
	}

	transfers := make([]models.SignedTransfer, len(plan.Instructions))
	for i, instr := range plan.Instructions {
		transfers[i] = models.SignedTransfer{Instruction: instr}
	}
	return models.SignedPlan{BillID: plan.BillID, Transfers: transfers, Bundle: bundle}, nil
}

// signSequential oferece uma instrução por vez. Na primeira falha devolve
// PartiallySignedError com o prefixo assinado; as instruções seguintes nunca
// chegam ao signatário.
func (c *SigningCoordinator) signSequential(ctx context.Context, plan models.TransferPlan, signer Signer) (models.SignedPlan, error) {
	signed := make([]models.SignedTransfer, 0, len(plan.Instructions))
	for i, instr := range plan.Instructions {
		txBytes, err := c.Encoder.EncodeTransfer(ctx, instr)
		if err != nil {
			return models.SignedPlan{}, fmt.Errorf("falha ao serializar instrução %d: %w", i, err)
		}
		signedTx, err := c.sign(ctx, signer, txBytes, instr.From)
		if err != nil {
			return models.SignedPlan{}, &models.PartiallySignedError{
				Signed:      signed,
				FailedIndex: i,
				Cause:       err,
			}
		}
		signed = append(signed, models.SignedTransfer{Instruction: instr, SignedTx: signedTx})
	}
	return models.SignedPlan{BillID: plan.BillID, Transfers: signed}, nil
}

// sign faz uma única chamada ao signatário sob o timeout configurado e
// normaliza o resultado: deadline vira ErrSigningTimedOut, recusa permanece
// ErrSigningRejected.
func (c *SigningCoordinator) sign(ctx context.Context, signer Signer, txBytes []byte, owner string) ([]byte, error) {
	signCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		signCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	signedTx, err := signer.Sign(signCtx, txBytes, owner)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSigningRejected):
			return nil, fmt.Errorf("remetente %s: %w", owner, models.ErrSigningRejected)
		case errors.Is(err, models.ErrSigningTimedOut),
			errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("remetente %s: %w", owner, models.ErrSigningTimedOut)
		default:
			return nil, fmt.Errorf("falha ao assinar para %s: %w", owner, err)
		}
	}
	return signedTx, nil
}
