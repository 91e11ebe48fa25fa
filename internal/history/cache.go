package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is the durable local store of chat turns, keyed by chat name. It
// backs the standalone-history variant where turns survive a reload.
type Cache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_name  TEXT NOT NULL,
	user_msg   TEXT NOT NULL,
	bot_reply  TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_chat ON turns(chat_name);
`

func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history.OpenCache: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history.OpenCache: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) AppendTurn(chatName string, t Turn) error {
	_, err := c.db.Exec(
		`INSERT INTO turns (chat_name, user_msg, bot_reply, created_at) VALUES (?, ?, ?, ?)`,
		chatName, t.User, t.Bot, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("history.AppendTurn: %w", err)
	}
	return nil
}

func (c *Cache) Turns(chatName string) ([]Turn, error) {
	rows, err := c.db.Query(
		`SELECT user_msg, bot_reply FROM turns WHERE chat_name = ? ORDER BY id ASC`,
		chatName,
	)
	if err != nil {
		return nil, fmt.Errorf("history.Turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.User, &t.Bot); err != nil {
			return nil, fmt.Errorf("history.Turns: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Cache) ChatNames() ([]string, error) {
	rows, err := c.db.Query(`SELECT DISTINCT chat_name FROM turns ORDER BY chat_name`)
	if err != nil {
		return nil, fmt.Errorf("history.ChatNames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("history.ChatNames: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (c *Cache) DeleteAll() error {
	if _, err := c.db.Exec(`DELETE FROM turns`); err != nil {
		return fmt.Errorf("history.DeleteAll: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
