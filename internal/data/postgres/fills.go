package postgres

import (
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/fatih/structs"
	"gitlab.com/distributed_lab/kit/pgdb"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const fillsTable = "fills"

type fills struct {
	db *pgdb.DB
}

func NewFills(db *pgdb.DB) data.Fills {
	return fills{db: db}
}

func (q fills) Insert(fill data.Fill) error {
	if fill.CreatedAt.IsZero() {
		fill.CreatedAt = time.Now().UTC()
	}
	stmt := squirrel.Insert(fillsTable).SetMap(structs.Map(fill))
	err := q.db.Exec(stmt)
	return errors.Wrap(err, "failed to insert fill", logan.F{"order_hash": fill.OrderHash})
}

func (q fills) ByOrderHash(orderHash string) ([]data.Fill, error) {
	var result []data.Fill
	stmt := squirrel.Select("*").From(fillsTable).
		Where(squirrel.Eq{"order_hash": orderHash}).
		OrderBy("created_at DESC")

	err := q.db.Select(&result, stmt)
	return result, errors.Wrap(err, "failed to select fills", logan.F{"order_hash": orderHash})
}
