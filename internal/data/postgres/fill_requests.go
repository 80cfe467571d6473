package postgres

import (
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/fatih/structs"
	"github.com/google/uuid"
	"gitlab.com/distributed_lab/kit/pgdb"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const requestsTable = "fill_requests"

type fillRequests struct {
	db *pgdb.DB
}

func NewFillRequests(db *pgdb.DB) data.FillRequests {
	return fillRequests{db: db}
}

func (q fillRequests) Insert(req data.FillRequest) (data.FillRequest, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = data.RequestPending
	}
	now := time.Now().UTC()
	req.CreatedAt, req.UpdatedAt = now, now

	stmt := squirrel.Insert(requestsTable).SetMap(structs.Map(req))
	err := q.db.Exec(stmt)
	return req, errors.Wrap(err, "failed to insert fill request", logan.F{"order_hash": req.OrderHash})
}

func (q fillRequests) Claim(limit uint64, lease time.Duration) ([]data.FillRequest, error) {
	var result []data.FillRequest
	err := q.db.Select(&result, claimStmt(limit, lease, time.Now().UTC()))
	return result, errors.Wrap(err, "failed to claim pending fill requests", logan.F{"lease": lease.String()})
}

func claimStmt(limit uint64, lease time.Duration, now time.Time) squirrel.UpdateBuilder {
	claimable := squirrel.Or{
		squirrel.Eq{"status": data.RequestPending},
		squirrel.And{
			squirrel.Eq{"status": data.RequestProcessing},
			squirrel.Lt{"updated_at": now.Add(-lease)},
		},
	}

	pending := squirrel.Select("id").From(requestsTable).
		Where(claimable).
		OrderBy("created_at").
		Limit(limit).
		Suffix("FOR UPDATE SKIP LOCKED")

	return squirrel.Update(requestsTable).
		SetMap(map[string]interface{}{"status": data.RequestProcessing, "updated_at": now}).
		Where(squirrel.Expr("id IN (?)", pending)).
		Suffix("RETURNING *")
}

func (q fillRequests) Release(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	stmt := squirrel.Update(requestsTable).
		SetMap(map[string]interface{}{"status": data.RequestPending, "updated_at": time.Now().UTC()}).
		Where(squirrel.Eq{"id": ids, "status": data.RequestProcessing})
	err := q.db.Exec(stmt)
	return errors.Wrap(err, "failed to release fill requests", logan.F{"ids": ids})
}

func (q fillRequests) SetStatus(id string, status data.RequestStatus) error {
	stmt := squirrel.Update(requestsTable).
		SetMap(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).
		Where(squirrel.Eq{"id": id})
	err := q.db.Exec(stmt)
	return errors.Wrap(err, "failed to update fill request status", logan.F{"id": id})
}

func (q fillRequests) Get(id string) (*data.FillRequest, error) {
	var result data.FillRequest
	stmt := squirrel.Select("*").From(requestsTable).Where(squirrel.Eq{"id": id})

	if err := q.db.Get(&result, stmt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to select fill request", logan.F{"id": id})
	}

	return &result, nil
}
