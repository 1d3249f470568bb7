package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ferreirogomes/rachaconta/models"
	"github.com/ferreirogomes/rachaconta/services"
)

// MockLedgerClient é uma implementação mock de services.LedgerClient.
type MockLedgerClient struct {
	mock.Mock
	atomic bool
}

func (m *MockLedgerClient) SupportsAtomicGroup() bool {
	return m.atomic
}

func (m *MockLedgerClient) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	args := m.Called(ctx, signedTx)
	return args.String(0), args.Error(1)
}

func (m *MockLedgerClient) GetStatus(ctx context.Context, submissionID string) (services.SubmissionStatus, error) {
	args := m.Called(ctx, submissionID)
	return args.Get(0).(services.SubmissionStatus), args.Error(1)
}

func newTracker(client services.LedgerClient) *services.SubmissionTracker {
	return &services.SubmissionTracker{
		Client:              client,
		MaxBroadcastRetries: 2,
		InitialBackoff:      time.Millisecond,
		ConfirmDeadline:     2 * time.Second,
	}
}

func signedPlan(n int) models.SignedPlan {
	plan := testPlan(n)
	signed := models.SignedPlan{BillID: plan.BillID}
	for i, instr := range plan.Instructions {
		signed.Transfers = append(signed.Transfers, models.SignedTransfer{
			Instruction: instr,
			SignedTx:    []byte{byte(i)},
		})
	}
	return signed
}

func confirmed(txID string) services.SubmissionStatus {
	return services.SubmissionStatus{State: services.SubmissionConfirmed, LedgerTxID: txID}
}

func TestSubmitTodasConfirmadas(t *testing.T) {
	client := new(MockLedgerClient)
	client.On("Broadcast", mock.Anything, []byte{0}).Return("sub-0", nil).Once()
	client.On("Broadcast", mock.Anything, []byte{1}).Return("sub-1", nil).Once()
	client.On("GetStatus", mock.Anything, "sub-0").Return(confirmed("tx-0"), nil)
	client.On("GetStatus", mock.Anything, "sub-1").Return(confirmed("tx-1"), nil)

	result := newTracker(client).Submit(context.Background(), signedPlan(2))

	assert.Equal(t, models.SettlementSucceeded, result.Outcome)
	require.Len(t, result.Transfers, 2)
	assert.Equal(t, models.TransferConfirmed, result.Transfers[0].Status)
	assert.Equal(t, "tx-0", result.Transfers[0].LedgerTxID)
	assert.Equal(t, models.TransferConfirmed, result.Transfers[1].Status)
}

// Submissão independente em que a instrução 2 de 3 falha: o resultado é
// PartiallySucceeded enumerando exatamente o que entrou — nunca Succeeded.
func TestSubmitFalhaParcial(t *testing.T) {
	client := new(MockLedgerClient)
	client.On("Broadcast", mock.Anything, []byte{0}).Return("sub-0", nil).Once()
	client.On("Broadcast", mock.Anything, []byte{1}).Return("sub-1", nil).Once()
	client.On("Broadcast", mock.Anything, []byte{2}).Return("sub-2", nil).Once()
	client.On("GetStatus", mock.Anything, "sub-0").Return(confirmed("tx-0"), nil)
	client.On("GetStatus", mock.Anything, "sub-1").Return(services.SubmissionStatus{
		State: services.SubmissionFailed, Reason: "saldo insuficiente",
	}, nil)
	client.On("GetStatus", mock.Anything, "sub-2").Return(confirmed("tx-2"), nil)

	result := newTracker(client).Submit(context.Background(), signedPlan(3))

	assert.Equal(t, models.SettlementPartiallySucceeded, result.Outcome)
	assert.Equal(t, models.TransferConfirmed, result.Transfers[0].Status)
	assert.Equal(t, models.TransferFailed, result.Transfers[1].Status)
	assert.Equal(t, models.TransferConfirmed, result.Transfers[2].Status)
	assert.NotEmpty(t, result.Err)
}

// Rejeição da ledger no broadcast é terminal: uma tentativa só, sem backoff.
func TestSubmitRejeicaoNaoRetentada(t *testing.T) {
	client := new(MockLedgerClient)
	client.On("Broadcast", mock.Anything, []byte{0}).Return("",
		&models.SubmissionError{Transient: false, Cause: errors.New("transferência malformada")})

	result := newTracker(client).Submit(context.Background(), signedPlan(1))

	assert.Equal(t, models.SettlementRejected, result.Outcome)
	assert.Equal(t, models.TransferRejected, result.Transfers[0].Status)
	client.AssertNumberOfCalls(t, "Broadcast", 1)
}

// Erro transitório de rede é retentado com backoff antes de desistir.
func TestSubmitTransitorioRetentado(t *testing.T) {
	client := new(MockLedgerClient)
	transient := &models.SubmissionError{Transient: true, Cause: errors.New("conexão recusada")}
	client.On("Broadcast", mock.Anything, []byte{0}).Return("", transient).Twice()
	client.On("Broadcast", mock.Anything, []byte{0}).Return("sub-0", nil).Once()
	client.On("GetStatus", mock.Anything, "sub-0").Return(confirmed("tx-0"), nil)

	result := newTracker(client).Submit(context.Background(), signedPlan(1))

	assert.Equal(t, models.SettlementSucceeded, result.Outcome)
	client.AssertNumberOfCalls(t, "Broadcast", 3)
}

func TestSubmitTransitorioEsgotado(t *testing.T) {
	client := new(MockLedgerClient)
	transient := &models.SubmissionError{Transient: true, Cause: errors.New("conexão recusada")}
	client.On("Broadcast", mock.Anything, []byte{0}).Return("", transient)

	result := newTracker(client).Submit(context.Background(), signedPlan(1))

	assert.Equal(t, models.SettlementFailed, result.Outcome)
	assert.Equal(t, models.TransferFailed, result.Transfers[0].Status)
	// tentativa original + MaxBroadcastRetries retentativas
	client.AssertNumberOfCalls(t, "Broadcast", 3)
}

// Prazo de confirmação expirado: a instrução fica Unknown ("verificar mais
// tarde"), nunca um falso Failed — ela ainda pode confirmar fora desta
// tentativa.
func TestSubmitPrazoDeConfirmacaoExpirado(t *testing.T) {
	client := new(MockLedgerClient)
	client.On("Broadcast", mock.Anything, []byte{0}).Return("sub-0", nil).Once()
	client.On("GetStatus", mock.Anything, "sub-0").Return(services.SubmissionStatus{
		State: services.SubmissionPending,
	}, nil)

	tracker := newTracker(client)
	tracker.ConfirmDeadline = 50 * time.Millisecond
	result := tracker.Submit(context.Background(), signedPlan(1))

	assert.Equal(t, models.SettlementTimedOut, result.Outcome)
	assert.Equal(t, models.TransferUnknown, result.Transfers[0].Status)
}

// Confirmações pendentes são acompanhadas em paralelo e todas reunidas antes
// de montar o resultado.
func TestSubmitConfirmacoesConcorrentes(t *testing.T) {
	client := new(MockLedgerClient)
	for i := 0; i < 4; i++ {
		client.On("Broadcast", mock.Anything, []byte{byte(i)}).Return("sub-"+string(rune('0'+i)), nil).Once()
	}
	// As duas primeiras consultas ficam pendentes antes de confirmar.
	client.On("GetStatus", mock.Anything, "sub-0").Return(services.SubmissionStatus{State: services.SubmissionPending}, nil).Once()
	client.On("GetStatus", mock.Anything, "sub-0").Return(confirmed("tx-0"), nil)
	client.On("GetStatus", mock.Anything, "sub-1").Return(services.SubmissionStatus{State: services.SubmissionPending}, nil).Once()
	client.On("GetStatus", mock.Anything, "sub-1").Return(confirmed("tx-1"), nil)
	client.On("GetStatus", mock.Anything, "sub-2").Return(confirmed("tx-2"), nil)
	client.On("GetStatus", mock.Anything, "sub-3").Return(confirmed("tx-3"), nil)

	result := newTracker(client).Submit(context.Background(), signedPlan(4))

	assert.Equal(t, models.SettlementSucceeded, result.Outcome)
	for i, o := range result.Transfers {
		assert.Equal(t, models.TransferConfirmed, o.Status, "instrução %d", i)
	}
}

func TestSubmitBundleAtomico(t *testing.T) {
	client := new(MockLedgerClient)
	client.atomic = true
	client.On("Broadcast", mock.Anything, []byte("bundle")).Return("sub-g", nil).Once()
	client.On("GetStatus", mock.Anything, "sub-g").Return(confirmed("tx-g"), nil)

	signed := signedPlan(3)
	signed.Bundle = []byte("bundle")
	result := newTracker(client).Submit(context.Background(), signed)

	// Um desfecho só para a conta inteira: tudo ou nada.
	assert.Equal(t, models.SettlementSucceeded, result.Outcome)
	require.Len(t, result.Transfers, 3)
	for _, o := range result.Transfers {
		assert.Equal(t, models.TransferConfirmed, o.Status)
		assert.Equal(t, "tx-g", o.LedgerTxID)
	}
	client.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestSubmitBundleAtomicoFalha(t *testing.T) {
	client := new(MockLedgerClient)
	client.atomic = true
	client.On("Broadcast", mock.Anything, []byte("bundle")).Return("sub-g", nil).Once()
	client.On("GetStatus", mock.Anything, "sub-g").Return(services.SubmissionStatus{
		State: services.SubmissionFailed, Reason: "saldo insuficiente",
	}, nil)

	signed := signedPlan(2)
	signed.Bundle = []byte("bundle")
	result := newTracker(client).Submit(context.Background(), signed)

	assert.Equal(t, models.SettlementFailed, result.Outcome)
	for _, o := range result.Transfers {
		assert.Equal(t, models.TransferFailed, o.Status)
	}
}

func TestSubmitBundleAtomicoPrazoExpirado(t *testing.T) {
	client := new(MockLedgerClient)
	client.atomic = true
	client.On("Broadcast", mock.Anything, []byte("bundle")).Return("sub-g", nil).Once()
	client.On("GetStatus", mock.Anything, "sub-g").Return(services.SubmissionStatus{
		State: services.SubmissionPending,
	}, nil)

	tracker := newTracker(client)
	tracker.ConfirmDeadline = 50 * time.Millisecond
	signed := signedPlan(1)
	signed.Bundle = []byte("bundle")
	result := tracker.Submit(context.Background(), signed)

	assert.Equal(t, models.SettlementTimedOut, result.Outcome)
	assert.Equal(t, models.TransferUnknown, result.Transfers[0].Status)
}
