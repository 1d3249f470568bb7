package services

import (
	"fmt"

	"github.com/ferreirogomes/rachaconta/models"
)

// percentTotal é a soma exigida dos pesos de um split Percentage.
const percentTotal = 100

// ResolveSplit calcula quanto cada participante deve para a conta dada e
// preenche Participant.Owed. Invariante de todas as políticas: a soma dos
// valores resolvidos é EXATAMENTE igual ao total — nenhuma unidade mínima se
// perde nem se cria por arredondamento. Em caso de erro nenhum participante é
// resolvido.
func ResolveSplit(bill *models.Bill) error {
	if err := bill.Validate(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidBill, err)
	}

	var owed []models.Money
	var err error
	switch bill.Policy {
	case models.SplitEqual:
		owed, err = splitEqual(bill)
	case models.SplitCustom:
		owed, err = splitCustom(bill)
	case models.SplitPercentage:
		owed, err = splitPercentage(bill)
	case models.SplitItemized:
		owed, err = splitItemized(bill)
	default:
		return fmt.Errorf("política de split desconhecida: %q", bill.Policy)
	}
	if err != nil {
		return err
	}

	for i := range bill.Participants {
		bill.Participants[i].Owed = owed[i]
	}
	return nil
}

// splitEqual divide o total igualmente; o resto da divisão inteira vai uma
// unidade mínima por vez para os primeiros participantes na ordem da lista.
func splitEqual(bill *models.Bill) ([]models.Money, error) {
	weights := make([]uint64, len(bill.Participants))
	for i := range weights {
		weights[i] = 1
	}
	return models.Allocate(bill.Total, weights)
}

// splitCustom aceita os valores explícitos dos participantes sem nenhuma
// redistribuição; apenas valida que a soma bate exatamente com o total.
func splitCustom(bill *models.Bill) ([]models.Money, error) {
	owed := make([]models.Money, len(bill.Participants))
	sum := models.NewMoney(0, bill.Total.Asset)
	for i, p := range bill.Participants {
		if p.Amount == nil {
			return nil, fmt.Errorf("participante %s sem valor explícito no split custom", p.ID)
		}
		var err error
		sum, err = sum.Add(*p.Amount)
		if err != nil {
			return nil, fmt.Errorf("soma dos valores do split: %w", err)
		}
		owed[i] = *p.Amount
	}
	if !sum.Equals(bill.Total) {
		return nil, &models.SplitMismatchError{Expected: bill.Total, Actual: sum}
	}
	return owed, nil
}

// splitPercentage exige pesos somando exatamente 100 e aloca com a mesma regra
// de resto do split igual, ponderada pelos percentuais.
func splitPercentage(bill *models.Bill) ([]models.Money, error) {
	weights := make([]uint64, len(bill.Participants))
	var sum uint64
	for i, p := range bill.Participants {
		weights[i] = p.Weight
		sum += p.Weight
	}
	if sum != percentTotal {
		return nil, fmt.Errorf("%w: soma atual %d", models.ErrWeightSumInvalid, sum)
	}
	return models.Allocate(bill.Total, weights)
}

// splitItemized divide o preço de cada item igualmente entre os seus
// atribuídos (mesma regra de resto do split igual) e soma as parcelas de cada
// participante. A soma dos preços dos itens precisa bater com o total.
func splitItemized(bill *models.Bill) ([]models.Money, error) {
	priceSum := models.NewMoney(0, bill.Total.Asset)
	for _, it := range bill.Items {
		var err error
		priceSum, err = priceSum.Add(it.Price)
		if err != nil {
			return nil, fmt.Errorf("soma dos preços dos itens: %w", err)
		}
	}
	if !priceSum.Equals(bill.Total) {
		return nil, fmt.Errorf("%w: itens somam %s, total é %s",
			models.ErrItemTotalMismatch, priceSum.Display(), bill.Total.Display())
	}

	index := make(map[string]int, len(bill.Participants))
	for i, p := range bill.Participants {
		index[p.ID] = i
	}
	owed := make([]models.Money, len(bill.Participants))
	for i := range owed {
		owed[i] = models.NewMoney(0, bill.Total.Asset)
	}
	for _, it := range bill.Items {
		weights := make([]uint64, len(it.Assignees))
		for i := range weights {
			weights[i] = 1
		}
		shares, err := models.Allocate(it.Price, weights)
		if err != nil {
			return nil, fmt.Errorf("divisão do item %q: %w", it.Label, err)
		}
		for i, id := range it.Assignees {
			j := index[id] // Validate garante que o atribuído existe
			owed[j], err = owed[j].Add(shares[i])
			if err != nil {
				return nil, fmt.Errorf("acúmulo das parcelas de %s: %w", id, err)
			}
		}
	}
	return owed, nil
}
