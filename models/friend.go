package models

import "time"

// Friend é um contato do diretório: um apelido humano associado a um endereço
// na ledger. O motor de liquidação só enxerga o diretório pela interface de
// resolução; este modelo pertence à camada de aplicação.
type Friend struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"` // endereço Solana em Base58
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
