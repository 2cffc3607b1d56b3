package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"corelay/internal/domain"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InsertMessage(ctx context.Context, msg domain.Message) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO messages (id, from_phone, to_phone, recipient_phone, content, status, moderation_result, feedback, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, msg.ID, msg.FromPhone, msg.ToPhone, msg.RecipientPhone, msg.Content, string(msg.Status),
		nullIfEmpty(msg.ModerationResult), nullIfEmpty(msg.Feedback), msg.CreatedAt)
	return err
}

func (s *Store) GetMessage(ctx context.Context, id string) (domain.Message, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, from_phone, to_phone, recipient_phone, content, status,
		       COALESCE(moderation_result,''), COALESCE(feedback,''), created_at
		FROM messages WHERE id=$1
	`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return msg, true, nil
}

func (s *Store) ListMessages(ctx context.Context) ([]domain.Message, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, from_phone, to_phone, recipient_phone, content, status,
		       COALESCE(moderation_result,''), COALESCE(feedback,''), created_at
		FROM messages ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) UpdateMessageOutcome(ctx context.Context, id string, status domain.MessageStatus, moderationResult, feedback string) (domain.Message, bool, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE messages SET status=$2, moderation_result=$3, feedback=$4 WHERE id=$1
		RETURNING id, from_phone, to_phone, recipient_phone, content, status,
		          COALESCE(moderation_result,''), COALESCE(feedback,''), created_at
	`, id, string(status), nullIfEmpty(moderationResult), nullIfEmpty(feedback))
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return msg, true, nil
}

func (s *Store) InsertPair(ctx context.Context, pair domain.ParentPair) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO parent_pairs (id, phone1, phone2, created_at)
		VALUES ($1,$2,$3,$4)
	`, pair.ID, pair.Phone1, pair.Phone2, pair.CreatedAt)
	return err
}

func (s *Store) ListPairs(ctx context.Context) ([]domain.ParentPair, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, phone1, phone2, created_at FROM parent_pairs ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ParentPair{}
	for rows.Next() {
		var p domain.ParentPair
		if err := rows.Scan(&p.ID, &p.Phone1, &p.Phone2, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindPartnerPhone returns the other member of the oldest pair containing
// phone. Duplicate registrations are allowed; first match wins.
func (s *Store) FindPartnerPhone(ctx context.Context, phone string) (string, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT CASE WHEN phone1=$1 THEN phone2 ELSE phone1 END
		FROM parent_pairs WHERE phone1=$1 OR phone2=$1
		ORDER BY created_at ASC, id ASC LIMIT 1
	`, phone)
	var partner string
	if err := row.Scan(&partner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return partner, true, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var msg domain.Message
	var status string
	err := row.Scan(&msg.ID, &msg.FromPhone, &msg.ToPhone, &msg.RecipientPhone, &msg.Content,
		&status, &msg.ModerationResult, &msg.Feedback, &msg.CreatedAt)
	msg.Status = domain.MessageStatus(status)
	return msg, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
