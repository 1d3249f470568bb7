package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Asset identifica o ativo de um valor monetário e a escala de ponto fixo
// (quantidade de casas decimais da unidade mínima).
type Asset struct {
	Code     string `json:"code"`     // Ex: "SOL", "BRL"
	Decimals uint32 `json:"decimals"` // Ex: 9 para lamports, 2 para centavos
}

// SOL é o ativo padrão da aplicação (1 SOL = 1e9 lamports).
var SOL = Asset{Code: "SOL", Decimals: 9}

// Money representa um valor monetário em ponto fixo: magnitude inteira na
// unidade mínima do ativo. Nunca usamos float para aritmética de dinheiro —
// decimal entra apenas no parse da entrada e na formatação da saída.
// Magnitudes negativas não existem neste tipo.
type Money struct {
	Value uint64 `json:"value"`
	Asset Asset  `json:"asset"`
}

// NewMoney cria um Money a partir da magnitude em unidades mínimas.
func NewMoney(value uint64, asset Asset) Money {
	return Money{Value: value, Asset: asset}
}

// ParseMoney converte uma string decimal (ex: "100.00") para Money na escala
// do ativo. Falha para valores negativos e para precisão além da unidade
// mínima do ativo.
func ParseMoney(s string, asset Asset) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("valor monetário inválido %q: %w", s, err)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("valor monetário %q: %w", s, ErrUnderflow)
	}
	scaled := d.Shift(int32(asset.Decimals))
	if !scaled.IsInteger() {
		return Money{}, fmt.Errorf("valor %q excede a precisão de %d casas do ativo %s", s, asset.Decimals, asset.Code)
	}
	if !scaled.BigInt().IsUint64() {
		return Money{}, fmt.Errorf("valor %q: %w", s, ErrOverflow)
	}
	return Money{Value: scaled.BigInt().Uint64(), Asset: asset}, nil
}

// IsZero informa se a magnitude é zero.
func (m Money) IsZero() bool {
	return m.Value == 0
}

// sameAsset valida que duas quantias são do mesmo ativo antes de qualquer
// comparação ou operação aritmética.
func (m Money) sameAsset(other Money) error {
	if m.Asset != other.Asset {
		return fmt.Errorf("%w: %s vs %s", ErrAssetMismatch, m.Asset.Code, other.Asset.Code)
	}
	return nil
}

// Add soma duas quantias do mesmo ativo. Falha com ErrOverflow se a soma
// estourar a magnitude.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameAsset(other); err != nil {
		return Money{}, err
	}
	if m.Value > math.MaxUint64-other.Value {
		return Money{}, fmt.Errorf("soma de %d e %d: %w", m.Value, other.Value, ErrOverflow)
	}
	return Money{Value: m.Value + other.Value, Asset: m.Asset}, nil
}

// Subtract subtrai other de m. Falha com ErrUnderflow se o resultado seria
// negativo — magnitudes negativas são inválidas por definição.
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameAsset(other); err != nil {
		return Money{}, err
	}
	if other.Value > m.Value {
		return Money{}, fmt.Errorf("subtração de %d de %d: %w", other.Value, m.Value, ErrUnderflow)
	}
	return Money{Value: m.Value - other.Value, Asset: m.Asset}, nil
}

// Equals compara duas quantias do mesmo ativo. Ativos distintos nunca são
// iguais nem comparáveis.
func (m Money) Equals(other Money) bool {
	return m.Asset == other.Asset && m.Value == other.Value
}

// Allocate divide total em len(weights) parcelas proporcionais aos pesos,
// garantindo que a soma das parcelas seja EXATAMENTE igual ao total. Cada
// parcela recebe floor(total*peso/somaPesos); o resto da divisão é
// distribuído uma unidade mínima por vez às primeiras posições na ordem da
// lista. A ordem é estável e visível ao chamador: a mesma entrada produz
// sempre a mesma alocação.
func Allocate(total Money, weights []uint64) ([]Money, error) {
	if len(weights) == 0 {
		return nil, errors.New("alocação exige ao menos um peso")
	}
	var weightSum uint64
	for _, w := range weights {
		if w > math.MaxUint64-weightSum {
			return nil, fmt.Errorf("soma dos pesos: %w", ErrOverflow)
		}
		weightSum += w
	}
	if weightSum == 0 {
		return nil, errors.New("todos os pesos são zero")
	}

	shares := make([]Money, len(weights))
	var allocated uint64
	for i, w := range weights {
		if w != 0 && total.Value > math.MaxUint64/w {
			return nil, fmt.Errorf("produto total*peso: %w", ErrOverflow)
		}
		share := total.Value * w / weightSum
		shares[i] = Money{Value: share, Asset: total.Asset}
		allocated += share
	}

	// O resto é sempre menor que len(weights) parcelas de uma unidade mínima.
	remainder := total.Value - allocated
	for i := 0; remainder > 0 && i < len(shares); i++ {
		if weights[i] == 0 {
			continue // quem não tem peso não recebe resto
		}
		shares[i].Value++
		remainder--
	}
	return shares, nil
}

// Display formata a quantia na escala humana do ativo, ex: "100.00 BRL".
func (m Money) Display() string {
	d := decimal.NewFromUint64(m.Value).Shift(-int32(m.Asset.Decimals))
	return fmt.Sprintf("%s %s", d.StringFixed(int32(m.Asset.Decimals)), m.Asset.Code)
}
