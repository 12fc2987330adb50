package store

import (
	"context"
	"time"

	"go.mau.fi/util/dbutil"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi"
)

// Cursor is a saved long-poll position.
type Cursor struct {
	Key       string
	TS        int64
	PTS       int64
	UpdatedAt time.Time
}

func (c *Cursor) Scan(row dbutil.Scannable) (*Cursor, error) {
	var updatedAt int64
	err := row.Scan(&c.Key, &c.TS, &c.PTS, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return c, nil
}

const (
	getCursorQuery = `SELECT cursor_key, ts, pts, updated_at FROM longpoll_cursor WHERE cursor_key=$1`
	putCursorQuery = `
		INSERT INTO longpoll_cursor (cursor_key, ts, pts, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (cursor_key) DO UPDATE SET ts=excluded.ts, pts=excluded.pts, updated_at=excluded.updated_at
	`
	deleteCursorQuery = `DELETE FROM longpoll_cursor WHERE cursor_key=$1`
)

type CursorQuery struct {
	*dbutil.QueryHelper[*Cursor]
}

var _ vkapi.CursorStore = (*CursorQuery)(nil)

func (q *CursorQuery) GetByKey(ctx context.Context, key string) (*Cursor, error) {
	return q.QueryOne(ctx, getCursorQuery, key)
}

func (q *CursorQuery) Put(ctx context.Context, cursor *Cursor) error {
	cursor.UpdatedAt = time.Now()
	return q.Exec(ctx, putCursorQuery, cursor.Key, cursor.TS, cursor.PTS, cursor.UpdatedAt.UnixMilli())
}

func (q *CursorQuery) Delete(ctx context.Context, key string) error {
	return q.Exec(ctx, deleteCursorQuery, key)
}

// GetCursor returns zeroes if nothing is saved under key.
func (q *CursorQuery) GetCursor(ctx context.Context, key string) (ts, pts int64, err error) {
	cursor, err := q.GetByKey(ctx, key)
	if err != nil || cursor == nil {
		return 0, 0, err
	}
	return cursor.TS, cursor.PTS, nil
}

func (q *CursorQuery) PutCursor(ctx context.Context, key string, ts, pts int64) error {
	return q.Put(ctx, &Cursor{Key: key, TS: ts, PTS: pts})
}
