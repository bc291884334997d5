package members

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
)

// Repo stores members and the push tokens of their devices.
type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

type UpsertMember struct {
	FirebaseUID string
	Email       string
	DisplayName string
}

// EnsureMember returns the id of the member with the given Firebase uid,
// creating the member on first sight.
func (r *Repo) EnsureMember(ctx context.Context, m UpsertMember) (int64, error) {
	if m.FirebaseUID == "" {
		return 0, fmt.Errorf("firebase_uid required")
	}

	const q = `
insert into members (firebase_uid, email, display_name, updated_at)
values ($1, nullif($2,''), nullif($3,''), now())
on conflict (firebase_uid) do update
set
  email = coalesce(excluded.email, members.email),
  display_name = coalesce(excluded.display_name, members.display_name),
  updated_at = now()
returning id;
`
	var id int64
	if err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, q, m.FirebaseUID, m.Email, m.DisplayName).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// RegisterDevice binds an FCM token to a member. A token moves to the member
// that registered it last.
func (r *Repo) RegisterDevice(ctx context.Context, memberID int64, token string) error {
	if token == "" {
		return fmt.Errorf("fcm token required")
	}

	const q = `
insert into member_devices (member_id, fcm_token, updated_at)
values ($1, $2, now())
on conflict (fcm_token) do update
set member_id = excluded.member_id, updated_at = now();
`
	if _, err := postgres.Conn(ctx, r.db).ExecContext(ctx, q, memberID, token); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

func (r *Repo) DeviceTokens(ctx context.Context, memberID int64) ([]string, error) {
	const q = `select fcm_token from member_devices where member_id = $1 order by updated_at desc`
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, q, memberID)
	if err != nil {
		return nil, fmt.Errorf("device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *Repo) RemoveDeviceTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	const q = `delete from member_devices where fcm_token = any($1)`
	if _, err := postgres.Conn(ctx, r.db).ExecContext(ctx, q, tokens); err != nil {
		return fmt.Errorf("remove device tokens: %w", err)
	}
	return nil
}
