package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the two tables this service owns.  Statements are idempotent
// so Migrate can run on every boot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email            VARCHAR(255)    NOT NULL,
		password_hash    VARCHAR(255)    NOT NULL,
		role             ENUM('admin','staff') NOT NULL DEFAULT 'staff',
		branch_id        BIGINT UNSIGNED NULL,
		display_name     VARCHAR(255)    NULL,
		theme_preference VARCHAR(32)     NOT NULL DEFAULT 'light',
		is_active        BOOLEAN         NOT NULL DEFAULT TRUE,
		created_at       DATETIME(3)     NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at       DATETIME(3)     NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_users_email (email),
		KEY idx_users_branch (branch_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token_hash CHAR(64)        NOT NULL PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		family_id  CHAR(26)        NOT NULL,
		state      ENUM('active','rotated','revoked') NOT NULL DEFAULT 'active',
		rotated_to CHAR(64)        NULL,
		created_at DATETIME(3)     NOT NULL,
		expires_at DATETIME(3)     NOT NULL,
		revoked_at DATETIME(3)     NULL,
		user_agent VARCHAR(255)    NOT NULL DEFAULT '',
		ip         VARCHAR(64)     NOT NULL DEFAULT '',
		KEY idx_refresh_user (user_id, state),
		KEY idx_refresh_family (family_id, state),
		KEY idx_refresh_expires (expires_at),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the users and refresh_tokens tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
