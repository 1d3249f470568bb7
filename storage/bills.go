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

// ErrBillNotFound indica que não há conta com o id dado no histórico.
var ErrBillNotFound = errors.New("conta não encontrada no histórico")

// BillRecord é a linha persistida de uma conta liquidada (ou tentada).
type BillRecord struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Category  string    `json:"category" db:"category"`
	Memo      string    `json:"memo" db:"memo"`
	Total     int64     `json:"total" db:"total"` // magnitude em unidades mínimas
	Asset     string    `json:"asset" db:"asset"`
	Payer     string    `json:"payer" db:"payer"`
	Policy    string    `json:"policy" db:"policy"`
	Outcome   string    `json:"outcome" db:"outcome"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TransferRecord é a linha persistida de uma transferência do plano.
type TransferRecord struct {
	ID         string `json:"id" db:"id"`
	BillID     string `json:"bill_id" db:"bill_id"`
	FromAddr   string `json:"from_addr" db:"from_addr"`
	ToAddr     string `json:"to_addr" db:"to_addr"`
	Amount     int64  `json:"amount" db:"amount"`
	Status     string `json:"status" db:"status"`
	LedgerTxID string `json:"ledger_tx_id" db:"ledger_tx_id"`
}

// SaveSettlement grava a conta e o resultado terminal de sua liquidação para
// a tela de histórico. A fonte de verdade continua sendo a ledger; este
// registro é rastreamento local.
func (d *DB) SaveSettlement(ctx context.Context, bill *models.Bill, result models.SettlementResult) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("falha ao abrir transação: %w", err)
	}
	defer tx.Rollback()

	billQuery := `INSERT INTO bills (id, title, category, memo, total, asset, payer, policy, outcome, created_at)
	              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	              ON CONFLICT (id) DO UPDATE SET outcome = EXCLUDED.outcome`
	_, err = tx.ExecContext(ctx, billQuery,
		bill.ID, bill.Title, bill.Category, bill.Memo,
		int64(bill.Total.Value), bill.Total.Asset.Code, bill.PayerID, string(bill.Policy),
		string(result.Outcome), bill.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("falha ao salvar conta: %w", err)
	}

	transferQuery := `INSERT INTO bill_transfers (id, bill_id, from_addr, to_addr, amount, status, ledger_tx_id)
	                  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, o := range result.Transfers {
		_, err = tx.ExecContext(ctx, transferQuery,
			uuid.New().String(), bill.ID,
			o.Instruction.From, o.Instruction.To, int64(o.Instruction.Amount.Value),
			string(o.Status), o.LedgerTxID,
		)
		if err != nil {
			return fmt.Errorf("falha ao salvar transferência da conta %s: %w", bill.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar gravação da conta %s: %w", bill.ID, err)
	}
	return nil
}

// ListBills devolve o histórico de contas, mais recentes primeiro.
func (d *DB) ListBills(ctx context.Context) ([]BillRecord, error) {
	bills := []BillRecord{}
	query := `SELECT id, title, category, memo, total, asset, payer, policy, outcome, created_at
	          FROM bills ORDER BY created_at DESC`
	if err := d.SelectContext(ctx, &bills, query); err != nil {
		return nil, fmt.Errorf("falha ao listar contas: %w", err)
	}
	return bills, nil
}

// GetBill devolve uma conta do histórico com suas transferências.
func (d *DB) GetBill(ctx context.Context, id string) (BillRecord, []TransferRecord, error) {
	var bill BillRecord
	err := d.GetContext(ctx, &bill,
		`SELECT id, title, category, memo, total, asset, payer, policy, outcome, created_at FROM bills WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return BillRecord{}, nil, fmt.Errorf("conta %s: %w", id, ErrBillNotFound)
	}
	if err != nil {
		return BillRecord{}, nil, fmt.Errorf("falha ao buscar conta %s: %w", id, err)
	}

	transfers := []TransferRecord{}
	err = d.SelectContext(ctx, &transfers,
		`SELECT id, bill_id, from_addr, to_addr, amount, status, ledger_tx_id FROM bill_transfers WHERE bill_id = $1`, id)
	if err != nil {
		return BillRecord{}, nil, fmt.Errorf("falha ao buscar transferências da conta %s: %w", id, err)
	}
	return bill, transfers, nil
}
