package enrichment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresRepository keeps records in the enrichment_records table. The version column
// guards every save.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const (
	getRecordSQL = `select data, version from enrichment_records where key = $1`

	findRecordsSQL = `select key, data, version from enrichment_records where key = any($1)`

	insertRecordSQL = `insert into enrichment_records (key, kind, entity_id, data, version, last_updated)
values ($1, $2, $3, $4, 1, $5)
on conflict (key) do nothing`

	updateRecordSQL = `update enrichment_records
set data = $2, version = version + 1, last_updated = $3
where key = $1 and version = $4`

	deleteRecordSQL = `delete from enrichment_records where key = $1`
)

func (p *PostgresRepository) Get(ctx context.Context, key Key) (Record, error) {
	var data []byte
	var version int64
	err := p.pool.QueryRow(ctx, getRecordSQL, key.String()).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return decodeVersioned(data, version)
}

func (p *PostgresRepository) FindAll(ctx context.Context, keys []Key) (map[Key]Record, error) {
	raw := make([]string, len(keys))
	byString := make(map[string]Key, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
		byString[raw[i]] = k
	}

	rows, err := p.pool.Query(ctx, findRecordsSQL, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[Key]Record, len(keys))
	for rows.Next() {
		var k string
		var data []byte
		var version int64
		if err := rows.Scan(&k, &data, &version); err != nil {
			return nil, err
		}
		rec, err := decodeVersioned(data, version)
		if err != nil {
			return nil, err
		}
		out[byString[k]] = rec
	}
	return out, rows.Err()
}

func (p *PostgresRepository) Save(ctx context.Context, record Record) (Record, error) {
	saved := record
	saved.Version++
	data, err := json.Marshal(saved)
	if err != nil {
		return Record{}, err
	}

	var affected int64
	if record.Version == 0 {
		tag, err := p.pool.Exec(ctx, insertRecordSQL, record.Key.String(), string(record.Key.Kind), record.Key.ID, data, record.LastUpdatedAt)
		if err != nil {
			return Record{}, err
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := p.pool.Exec(ctx, updateRecordSQL, record.Key.String(), data, record.LastUpdatedAt, record.Version)
		if err != nil {
			return Record{}, err
		}
		affected = tag.RowsAffected()
	}

	if affected == 0 {
		return Record{}, ErrVersionConflict
	}
	return saved, nil
}

func (p *PostgresRepository) Delete(ctx context.Context, key Key) error {
	_, err := p.pool.Exec(ctx, deleteRecordSQL, key.String())
	return err
}

func decodeVersioned(data []byte, version int64) (Record, error) {
	rec, err := decodeRecord(data)
	if err != nil {
		return Record{}, err
	}
	rec.Version = version
	return rec, nil
}
