package db

import (
	"database/sql"
	"errors"
)

// Config keys.
const (
	ConfigLastConversation = "last_conversation"
)

// GetConfig returns a config value, or "" when unset.
func GetConfig(db DBTX, key string) (string, error) {
	row := db.QueryRow("SELECT value FROM huddle_config WHERE key = ?", key)
	var value sql.NullString
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if !value.Valid {
		return "", nil
	}
	return value.String, nil
}

// SetConfig stores a config value.
func SetConfig(db DBTX, key, value string) error {
	_, err := db.Exec("INSERT OR REPLACE INTO huddle_config (key, value) VALUES (?, ?)", key, value)
	return err
}

func nullableValue[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
