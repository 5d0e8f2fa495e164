// Package outbox persists notifications in PostgreSQL so a separate worker
// can deliver them with retries that survive restarts.
package outbox

import (
	"context"
	"database/sql"

	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/notify"
)

const insertSQL = `INSERT INTO notification_outbox (user_id, title, body) VALUES ($1, $2, $3)`

// Notifier enqueues notifications instead of sending them.
type Notifier struct {
	db *sql.DB
}

func NewNotifier(db *sql.DB) *Notifier { return &Notifier{db: db} }

func (n *Notifier) Notify(ctx context.Context, userID string, msg notify.Message) error {
	if _, err := n.db.ExecContext(ctx, insertSQL, userID, msg.Title, msg.Body); err != nil {
		return model.WrapStorage("outbox.enqueue", err)
	}
	return nil
}
