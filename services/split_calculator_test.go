package services_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferreirogomes/rachaconta/models"
	"github.com/ferreirogomes/rachaconta/services"
)

var brl = models.Asset{Code: "BRL", Decimals: 2}

func money(cents uint64) models.Money {
	return models.NewMoney(cents, brl)
}

func newBill(totalCents uint64, policy models.SplitPolicy, participants ...models.Participant) *models.Bill {
	return &models.Bill{
		ID:           "bill-1",
		Title:        "Jantar",
		Total:        money(totalCents),
		PayerID:      participants[0].ID,
		Participants: participants,
		Policy:       policy,
	}
}

func sumOwed(t *testing.T, bill *models.Bill) uint64 {
	t.Helper()
	var sum uint64
	for _, p := range bill.Participants {
		assert.Equal(t, bill.Total.Asset, p.Owed.Asset)
		sum += p.Owed.Value
	}
	return sum
}

// Cenário do exemplo: 100.00 entre 3 no split igual -> {33.34, 33.33, 33.33},
// resto para o primeiro participante, soma exata.
func TestResolveSplitEqual(t *testing.T) {
	bill := newBill(10000, models.SplitEqual,
		models.Participant{ID: "ana"},
		models.Participant{ID: "bia"},
		models.Participant{ID: "caio"},
	)

	require.NoError(t, services.ResolveSplit(bill))

	assert.Equal(t, uint64(3334), bill.Participants[0].Owed.Value)
	assert.Equal(t, uint64(3333), bill.Participants[1].Owed.Value)
	assert.Equal(t, uint64(3333), bill.Participants[2].Owed.Value)
	assert.Equal(t, uint64(10000), sumOwed(t, bill))
}

func TestResolveSplitCustom(t *testing.T) {
	a := money(7000)
	b := money(3000)
	bill := newBill(10000, models.SplitCustom,
		models.Participant{ID: "ana", Amount: &a},
		models.Participant{ID: "bia", Amount: &b},
	)

	require.NoError(t, services.ResolveSplit(bill))
	assert.Equal(t, uint64(7000), bill.Participants[0].Owed.Value)
	assert.Equal(t, uint64(3000), bill.Participants[1].Owed.Value)
}

// Split custom que não fecha com o total falha com SplitMismatch e não
// resolve NENHUM participante — falha de validação nunca é meio aplicada.
func TestResolveSplitCustomMismatch(t *testing.T) {
	a := money(7000)
	b := money(2000)
	bill := newBill(10000, models.SplitCustom,
		models.Participant{ID: "ana", Amount: &a},
		models.Participant{ID: "bia", Amount: &b},
	)

	err := services.ResolveSplit(bill)
	var mismatch *models.SplitMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint64(10000), mismatch.Expected.Value)
	assert.Equal(t, uint64(9000), mismatch.Actual.Value)

	for _, p := range bill.Participants {
		assert.True(t, p.Owed.IsZero(), "participante %s não deveria ter sido resolvido", p.ID)
	}
}

// Cenário do exemplo: 50.00 com pesos {60, 25, 15} -> {30.00, 12.50, 7.50}.
func TestResolveSplitPercentage(t *testing.T) {
	bill := newBill(5000, models.SplitPercentage,
		models.Participant{ID: "ana", Weight: 60},
		models.Participant{ID: "bia", Weight: 25},
		models.Participant{ID: "caio", Weight: 15},
	)

	require.NoError(t, services.ResolveSplit(bill))

	assert.Equal(t, uint64(3000), bill.Participants[0].Owed.Value)
	assert.Equal(t, uint64(1250), bill.Participants[1].Owed.Value)
	assert.Equal(t, uint64(750), bill.Participants[2].Owed.Value)
	assert.Equal(t, uint64(5000), sumOwed(t, bill))
}

func TestResolveSplitPercentagePesosInvalidos(t *testing.T) {
	bill := newBill(5000, models.SplitPercentage,
		models.Participant{ID: "ana", Weight: 60},
		models.Participant{ID: "bia", Weight: 25},
	)

	err := services.ResolveSplit(bill)
	assert.ErrorIs(t, err, models.ErrWeightSumInvalid)
}

func TestResolveSplitItemized(t *testing.T) {
	bill := newBill(10000, models.SplitItemized,
		models.Participant{ID: "ana"},
		models.Participant{ID: "bia"},
		models.Participant{ID: "caio"},
	)
	bill.Items = []models.Item{
		{Label: "pizza", Price: money(6000), Assignees: []string{"ana", "bia", "caio"}},
		{Label: "vinho", Price: money(4000), Assignees: []string{"ana", "bia"}},
	}

	require.NoError(t, services.ResolveSplit(bill))

	// pizza: 2000 cada; vinho: 2000 para ana e bia.
	assert.Equal(t, uint64(4000), bill.Participants[0].Owed.Value)
	assert.Equal(t, uint64(4000), bill.Participants[1].Owed.Value)
	assert.Equal(t, uint64(2000), bill.Participants[2].Owed.Value)
	assert.Equal(t, uint64(10000), sumOwed(t, bill))
}

func TestResolveSplitItemizedComResto(t *testing.T) {
	bill := newBill(100, models.SplitItemized,
		models.Participant{ID: "ana"},
		models.Participant{ID: "bia"},
		models.Participant{ID: "caio"},
	)
	bill.Items = []models.Item{
		{Label: "entrada", Price: money(100), Assignees: []string{"ana", "bia", "caio"}},
	}

	require.NoError(t, services.ResolveSplit(bill))
	// 100 entre 3: resto de um centavo para o primeiro atribuído.
	assert.Equal(t, uint64(34), bill.Participants[0].Owed.Value)
	assert.Equal(t, uint64(33), bill.Participants[1].Owed.Value)
	assert.Equal(t, uint64(33), bill.Participants[2].Owed.Value)
}

func TestResolveSplitItemizedTotalDiferente(t *testing.T) {
	bill := newBill(10000, models.SplitItemized,
		models.Participant{ID: "ana"},
		models.Participant{ID: "bia"},
	)
	bill.Items = []models.Item{
		{Label: "pizza", Price: money(6000), Assignees: []string{"ana", "bia"}},
	}

	err := services.ResolveSplit(bill)
	assert.ErrorIs(t, err, models.ErrItemTotalMismatch)
}

func TestResolveSplitContaInvalida(t *testing.T) {
	bill := &models.Bill{Total: money(100), Policy: models.SplitEqual}
	assert.Error(t, services.ResolveSplit(bill)) // sem participantes

	bill = newBill(100, models.SplitEqual,
		models.Participant{ID: "ana"},
		models.Participant{ID: "ana"},
	)
	assert.Error(t, services.ResolveSplit(bill)) // id duplicado
}

// Propriedade central: para qualquer conta Equal com N>0 participantes, a
// soma dos valores resolvidos é o total e a diferença entre participantes é
// de no máximo uma unidade mínima.
func TestResolveSplitEqualPropriedade(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(15)
		participants := make([]models.Participant, n)
		for j := range participants {
			participants[j] = models.Participant{ID: string(rune('a' + j))}
		}
		total := uint64(1 + rng.Int63n(10_000_000))
		bill := newBill(total, models.SplitEqual, participants...)

		require.NoError(t, services.ResolveSplit(bill))
		assert.Equal(t, total, sumOwed(t, bill))

		minV, maxV := bill.Participants[0].Owed.Value, bill.Participants[0].Owed.Value
		for _, p := range bill.Participants {
			if p.Owed.Value < minV {
				minV = p.Owed.Value
			}
			if p.Owed.Value > maxV {
				maxV = p.Owed.Value
			}
		}
		assert.LessOrEqual(t, maxV-minV, uint64(1))
	}
}

// Propriedade: qualquer combinação de pesos somando 100 fecha exata,
// independente do arredondamento.
func TestResolveSplitPercentagePropriedade(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		weights := make([]uint64, n)
		remaining := uint64(100)
		for j := 0; j < n-1; j++ {
			w := uint64(rng.Int63n(int64(remaining + 1)))
			weights[j] = w
			remaining -= w
		}
		weights[n-1] = remaining

		participants := make([]models.Participant, n)
		for j := range participants {
			participants[j] = models.Participant{ID: string(rune('a' + j)), Weight: weights[j]}
		}
		total := uint64(1 + rng.Int63n(10_000_000))
		bill := newBill(total, models.SplitPercentage, participants...)

		require.NoError(t, services.ResolveSplit(bill))
		assert.Equal(t, total, sumOwed(t, bill), "pesos=%v total=%d", weights, total)
	}
}
