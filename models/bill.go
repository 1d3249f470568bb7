package models

import (
	"errors"
	"fmt"
	"time"
)

// SplitPolicy define como o total de uma conta é dividido entre os
// participantes.
type SplitPolicy string

const (
	SplitEqual      SplitPolicy = "equal"      // divisão igual, resto para os primeiros da lista
	SplitCustom     SplitPolicy = "custom"     // cada participante informa seu valor exato
	SplitPercentage SplitPolicy = "percentage" // pesos percentuais somando 100
	SplitItemized   SplitPolicy = "itemized"   // itens com preço atribuídos a participantes
)

// Participant é uma pessoa dentro de uma conta. Owed é preenchido pelo
// calculador de split; Settled pelo rastreador de confirmação. Fora dessas
// duas etapas ninguém muta um participante.
type Participant struct {
	ID      string `json:"id"`      // referência estável (endereço ou apelido a resolver)
	Name    string `json:"name"`    // nome de exibição
	Address string `json:"address"` // endereço na ledger; vazio até a resolução pelo diretório
	// Entrada bruta conforme a política: valor explícito (Custom) ou peso
	// percentual (Percentage). Ignorada nas demais políticas.
	Amount *Money `json:"amount,omitempty"`
	Weight uint64 `json:"weight,omitempty"`

	Owed    Money `json:"owed"`    // valor devido, resolvido pelo split
	Settled bool  `json:"settled"` // transferência deste participante confirmada
}

// Item é uma linha de uma conta Itemized: um preço e os participantes que o
// dividem igualmente.
type Item struct {
	Label     string   `json:"label"`
	Price     Money    `json:"price"`
	Assignees []string `json:"assignees"` // IDs de participantes
}

// Bill é o agregado de uma única liquidação: total, quem pagou, quem deve e
// sob qual política. O chamador é dono da Bill durante o rascunho; o motor a
// toma emprestada por uma tentativa de liquidação e não retém nada entre
// chamadas.
type Bill struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Category     string        `json:"category"`
	Memo         string        `json:"memo"`
	Total        Money         `json:"total"`
	PayerID      string        `json:"payer_id"`
	Participants []Participant `json:"participants"`
	Policy       SplitPolicy   `json:"policy"`
	Items        []Item        `json:"items,omitempty"` // apenas para SplitItemized
	CreatedAt    time.Time     `json:"created_at"`
}

// Validate checa a forma da conta antes de qualquer cálculo: total positivo,
// participantes presentes e únicos, pagador entre eles, política conhecida.
// A invariante "soma dos valores resolvidos == total" é responsabilidade do
// calculador de split, não daqui.
func (b *Bill) Validate() error {
	if b.Total.IsZero() {
		return errors.New("conta com total zero")
	}
	if len(b.Participants) == 0 {
		return errors.New("conta sem participantes")
	}
	seen := make(map[string]struct{}, len(b.Participants))
	for _, p := range b.Participants {
		if p.ID == "" {
			return errors.New("participante sem identificador")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("identificador de participante duplicado: %s", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if _, ok := seen[b.PayerID]; !ok {
		return fmt.Errorf("pagador %s não está entre os participantes", b.PayerID)
	}
	switch b.Policy {
	case SplitEqual, SplitCustom, SplitPercentage:
	case SplitItemized:
		if len(b.Items) == 0 {
			return errors.New("conta itemizada sem itens")
		}
		for _, it := range b.Items {
			if len(it.Assignees) == 0 {
				return fmt.Errorf("item %q sem participantes atribuídos", it.Label)
			}
			for _, id := range it.Assignees {
				if _, ok := seen[id]; !ok {
					return fmt.Errorf("item %q atribuído a participante desconhecido %s", it.Label, id)
				}
			}
		}
	default:
		return fmt.Errorf("política de split desconhecida: %q", b.Policy)
	}
	return nil
}

// Participant devolve o participante com o ID dado, se existir.
func (b *Bill) Participant(id string) (*Participant, bool) {
	for i := range b.Participants {
		if b.Participants[i].ID == id {
			return &b.Participants[i], true
		}
	}
	return nil, false
}
