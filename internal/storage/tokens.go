package storage

import (
	"context"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"availability-service/internal/apperr"
)

// TokenRepository keeps each user's Google OAuth token.
type TokenRepository struct {
	db DB
}

func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	q := `INSERT INTO calendar_tokens (user_id, token) VALUES ($1, $2)
	      ON CONFLICT (user_id) DO UPDATE SET token=EXCLUDED.token, updated_at=now()`
	if _, err := r.db.Exec(ctx, q, userID, raw); err != nil {
		return retrieval("storage.SaveToken", err)
	}
	return nil
}

func (r *TokenRepository) GetToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT token FROM calendar_tokens WHERE user_id=$1`, userID).Scan(&raw)
	if isNoRows(err) {
		return nil, apperr.NewNotFound("storage.GetToken", "calendar not connected")
	}
	if err != nil {
		return nil, retrieval("storage.GetToken", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInvariant, Op: "storage.GetToken", Message: "stored token is malformed", Err: err}
	}
	return &tok, nil
}
