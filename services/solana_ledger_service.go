package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/ferreirogomes/rachaconta/models"
)

// SolanaLedgerService implementa TransferEncoder e LedgerClient sobre a rede
// Solana. As transações são construídas aqui, assinadas fora (a carteira do
// usuário) e transmitidas já assinadas — o motor nunca toca chave privada.
type SolanaLedgerService struct {
	RPCClient *rpc.Client
}

// NewSolanaLedgerService cria o serviço apontando para o endpoint RPC dado.
func NewSolanaLedgerService(rpcEndpoint string) *SolanaLedgerService {
	return &SolanaLedgerService{RPCClient: rpc.New(rpcEndpoint)}
}

// SupportsAtomicGroup: uma transação Solana com várias instruções é aplicada
// tudo-ou-nada, então o plano inteiro pode ir como grupo atômico.
func (s *SolanaLedgerService) SupportsAtomicGroup() bool {
	return true
}

// EncodeTransfer constrói uma transação de transferência nativa independente
// para a instrução dada. O remetente é o fee payer da própria transação.
func (s *SolanaLedgerService) EncodeTransfer(ctx context.Context, instr models.TransferInstruction) ([]byte, error) {
	ix, from, err := buildTransferInstruction(instr)
	if err != nil {
		return nil, err
	}
	return s.buildTransaction(ctx, []solana.Instruction{ix}, from)
}

// EncodeBundle constrói UMA transação carregando todas as instruções do plano.
// O remetente da primeira instrução paga a taxa; todos os remetentes precisam
// assinar, o que o coordenador colhe encadeando as assinaturas.
func (s *SolanaLedgerService) EncodeBundle(ctx context.Context, plan models.TransferPlan) ([]byte, error) {
	if len(plan.Instructions) == 0 {
		return nil, fmt.Errorf("bundle vazio: %w", models.ErrEmptyPlan)
	}
	ixs := make([]solana.Instruction, 0, len(plan.Instructions))
	var feePayer solana.PublicKey
	for i, instr := range plan.Instructions {
		ix, from, err := buildTransferInstruction(instr)
		if err != nil {
			return nil, fmt.Errorf("instrução %d: %w", i, err)
		}
		if i == 0 {
			feePayer = from
		}
		ixs = append(ixs, ix)
	}
	return s.buildTransaction(ctx, ixs, feePayer)
}

// buildTransaction monta e serializa uma transação não assinada com blockhash
// recente.
func (s *SolanaLedgerService) buildTransaction(ctx context.Context, ixs []solana.Instruction, feePayer solana.PublicKey) ([]byte, error) {
	resp, err := s.RPCClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("falha ao obter blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(ixs, resp.Value.Blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("falha ao criar transação: %w", err)
	}

	serialized, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("falha ao serializar transação: %w", err)
	}
	return serialized, nil
}

// buildTransferInstruction converte uma TransferInstruction do plano em uma
// instrução de transferência do System Program. A magnitude do Money já está
// em lamports (ativo SOL com 9 casas).
func buildTransferInstruction(instr models.TransferInstruction) (solana.Instruction, solana.PublicKey, error) {
	from, err := solana.PublicKeyFromBase58(instr.From)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("endereço do remetente inválido: %w", err)
	}
	to, err := solana.PublicKeyFromBase58(instr.To)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("endereço do destinatário inválido: %w", err)
	}
	ix := system.NewTransferInstruction(instr.Amount.Value, from, to).Build()
	return ix, from, nil
}

// Broadcast transmite uma transação já assinada. Erros de RPC da ledger
// (transação malformada, saldo insuficiente, blockhash vencido) voltam como
// SubmissionError terminal; o resto é tratado como transitório de rede e o
// rastreador decide retentar.
func (s *SolanaLedgerService) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	tx, err := solana.TransactionFromBytes(signedTx)
	if err != nil {
		return "", &models.SubmissionError{Transient: false, Cause: fmt.Errorf("falha ao deserializar transação: %w", err)}
	}

	sig, err := s.RPCClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return "", &models.SubmissionError{Transient: false, Cause: err}
		}
		return "", &models.SubmissionError{Transient: true, Cause: err}
	}
	log.Printf("transação transmitida: %s", sig)
	return sig.String(), nil
}

// GetStatus consulta o estado de uma submissão pela assinatura da transação.
func (s *SolanaLedgerService) GetStatus(ctx context.Context, submissionID string) (SubmissionStatus, error) {
	sig, err := solana.SignatureFromBase58(submissionID)
	if err != nil {
		return SubmissionStatus{}, fmt.Errorf("id de submissão inválido %q: %w", submissionID, err)
	}

	resp, err := s.RPCClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return SubmissionStatus{}, fmt.Errorf("falha ao consultar status de %s: %w", submissionID, err)
	}
	if len(resp.Value) == 0 || resp.Value[0] == nil {
		// A rede ainda não conhece a assinatura: pendente.
		return SubmissionStatus{State: SubmissionPending}, nil
	}

	st := resp.Value[0]
	if st.Err != nil {
		return SubmissionStatus{State: SubmissionFailed, Reason: fmt.Sprintf("%v", st.Err)}, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return SubmissionStatus{State: SubmissionConfirmed, LedgerTxID: submissionID}, nil
	default:
		return SubmissionStatus{State: SubmissionPending}, nil
	}
}
