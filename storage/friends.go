package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ferreirogomes/rachaconta/models"
)

// ErrFriendNotFound indica que a referência não bate com nenhum contato.
var ErrFriendNotFound = errors.New("amigo não encontrado no diretório")

// SaveFriend insere ou atualiza um contato (upsert por nome).
func (d *DB) SaveFriend(ctx context.Context, friend models.Friend) (models.Friend, error) {
	if friend.ID == "" {
		friend.ID = uuid.New().String()
	}
	if friend.CreatedAt.IsZero() {
		friend.CreatedAt = time.Now()
	}
	query := `INSERT INTO friends (id, name, address, created_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (name) DO UPDATE SET address = EXCLUDED.address`
	if _, err := d.ExecContext(ctx, query, friend.ID, friend.Name, friend.Address, friend.CreatedAt); err != nil {
		return models.Friend{}, fmt.Errorf("falha ao salvar amigo: %w", err)
	}
	return friend, nil
}

// GetFriend busca um contato pelo id.
func (d *DB) GetFriend(ctx context.Context, id string) (models.Friend, bool, error) {
	var friend models.Friend
	query := `SELECT id, name, address, created_at FROM friends WHERE id = $1`
	err := d.GetContext(ctx, &friend, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Friend{}, false, nil
	}
	if err != nil {
		return models.Friend{}, false, fmt.Errorf("falha ao buscar amigo: %w", err)
	}
	return friend, true, nil
}

// ListFriends devolve todos os contatos em ordem alfabética.
func (d *DB) ListFriends(ctx context.Context) ([]models.Friend, error) {
	friends := []models.Friend{}
	query := `SELECT id, name, address, created_at FROM friends ORDER BY name`
	if err := d.SelectContext(ctx, &friends, query); err != nil {
		return nil, fmt.Errorf("falha ao listar amigos: %w", err)
	}
	return friends, nil
}

// Resolve implementa services.Directory: converte uma referência humana (id
// ou nome do contato) no endereço na ledger. Referência sem endereço
// cadastrado volta ErrFriendNotFound — nunca substituímos endereço em
// silêncio.
func (d *DB) Resolve(ctx context.Context, participantRef string) (string, error) {
	var address string
	query := `SELECT address FROM friends WHERE id = $1 OR name = $1 LIMIT 1`
	err := d.GetContext(ctx, &address, query, participantRef)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("referência %q: %w", participantRef, ErrFriendNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("falha ao resolver referência %q: %w", participantRef, err)
	}
	if address == "" {
		return "", fmt.Errorf("contato %q sem endereço: %w", participantRef, ErrFriendNotFound)
	}
	return address, nil
}
