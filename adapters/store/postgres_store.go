package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hermnet/hermnet/core"
)

// PostgresStore implements every store port on Postgres via gorm.
type PostgresStore struct {
	db *gorm.DB
}

type userRecord struct {
	ID        string    `gorm:"column:id_hash;primaryKey;size:64"`
	PublicKey string    `gorm:"column:public_key;not null"`
	PushToken string    `gorm:"column:push_token"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (userRecord) TableName() string { return "users" }

type dbChallenge struct {
	Nonce     string    `gorm:"column:challenge;primaryKey;size:64"`
	UserID    string    `gorm:"column:user_id;size:64;index;not null"`
	IssuedAt  time.Time `gorm:"column:issued_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;index;not null"`
}

func (dbChallenge) TableName() string { return "auth_challenges" }

type dbRevocation struct {
	Fingerprint string    `gorm:"column:token_hash;primaryKey;size:64"`
	ExpiresAt   time.Time `gorm:"column:expires_at;index;not null"`
	RevokedAt   time.Time `gorm:"column:revoked_at;not null"`
	Reason      string    `gorm:"column:reason"`
}

func (dbRevocation) TableName() string { return "token_blacklist" }

type dbRateBucket struct {
	Fingerprint   string    `gorm:"column:ip_hash;primaryKey;size:64"`
	Count         int       `gorm:"column:request_count;not null"`
	WindowResetAt time.Time `gorm:"column:reset_time;not null"`
}

func (dbRateBucket) TableName() string { return "rate_limit_buckets" }

type dbMessage struct {
	ID           string    `gorm:"column:id;primaryKey;size:36"`
	RecipientID  string    `gorm:"column:recipient_id;size:64;index;not null"`
	SenderIDHash string    `gorm:"column:sender_id_hash;size:64;not null"`
	Ciphertext   []byte    `gorm:"column:encrypted_blob;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;index;not null"`
}

func (dbMessage) TableName() string { return "mailbox" }

// NewPostgresStore opens the database and migrates the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&userRecord{}, &dbChallenge{}, &dbRevocation{}, &dbRateBucket{}, &dbMessage{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// CreateUser inserts a user, failing if the id is taken.
func (s *PostgresStore) CreateUser(ctx context.Context, user core.User) error {
	rec := userRecord{
		ID:        user.ID,
		PublicKey: user.PublicKey,
		PushToken: user.PushToken,
		CreatedAt: user.CreatedAt,
	}
	err := s.db.WithContext(ctx).Create(&rec).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return core.ErrUserExists
	}
	return err
}

// FindUserByID looks up a user by id.
func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (core.User, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).First(&rec, "id_hash = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, err
	}
	return core.User{
		ID:        rec.ID,
		PublicKey: rec.PublicKey,
		PushToken: rec.PushToken,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// UserExists reports whether the id is registered.
func (s *PostgresStore) UserExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&userRecord{}).Where("id_hash = ?", id).Count(&count).Error
	return count > 0, err
}

// SaveChallenge stores a challenge keyed by nonce.
func (s *PostgresStore) SaveChallenge(ctx context.Context, challenge core.Challenge) error {
	rec := dbChallenge{
		Nonce:     challenge.Nonce,
		UserID:    challenge.UserID,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

// TakeChallenge removes and returns the challenge inside one transaction,
// locking the row so concurrent takes cannot both win.
func (s *PostgresStore) TakeChallenge(ctx context.Context, nonce string) (core.Challenge, error) {
	var rec dbChallenge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&rec, "challenge = ?", nonce).Error; err != nil {
			return err
		}
		return tx.Delete(&dbChallenge{}, "challenge = ?", nonce).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Challenge{}, core.ErrChallengeNotFound
		}
		return core.Challenge{}, err
	}
	return core.Challenge{
		Nonce:     rec.Nonce,
		UserID:    rec.UserID,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// DeleteChallengesByUser removes every challenge owned by the user.
func (s *PostgresStore) DeleteChallengesByUser(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Delete(&dbChallenge{}, "user_id = ?", userID).Error
}

// DeleteChallengesExpiredBefore purges challenges past their expiry.
func (s *PostgresStore) DeleteChallengesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&dbChallenge{}, "expires_at < ?", cutoff)
	return res.RowsAffected, res.Error
}

// SaveRevocation records a denylist entry.
func (s *PostgresStore) SaveRevocation(ctx context.Context, rec core.RevokedToken) error {
	row := dbRevocation{
		Fingerprint: rec.Fingerprint,
		ExpiresAt:   rec.ExpiresAt,
		RevokedAt:   rec.RevokedAt,
		Reason:      rec.Reason,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// FindRevocation looks up a denylist entry by fingerprint.
func (s *PostgresStore) FindRevocation(ctx context.Context, fingerprint string) (core.RevokedToken, bool, error) {
	var rec dbRevocation
	err := s.db.WithContext(ctx).First(&rec, "token_hash = ?", fingerprint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.RevokedToken{}, false, nil
		}
		return core.RevokedToken{}, false, err
	}
	return core.RevokedToken{
		Fingerprint: rec.Fingerprint,
		ExpiresAt:   rec.ExpiresAt,
		RevokedAt:   rec.RevokedAt,
		Reason:      rec.Reason,
	}, true, nil
}

// DeleteRevocationsExpiredBefore purges stale denylist entries.
func (s *PostgresStore) DeleteRevocationsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&dbRevocation{}, "expires_at < ?", cutoff)
	return res.RowsAffected, res.Error
}

// IncrementBucket runs the whole fetch-reset-increment as one upsert so
// concurrent requests for the same fingerprint cannot lose updates.
func (s *PostgresStore) IncrementBucket(ctx context.Context, fingerprint string, window time.Duration, now time.Time) (core.RateBucket, error) {
	reset := now.Add(window)

	var rec dbRateBucket
	row := s.db.WithContext(ctx).Raw(`
		INSERT INTO rate_limit_buckets (ip_hash, request_count, reset_time)
		VALUES (?, 1, ?)
		ON CONFLICT (ip_hash) DO UPDATE SET
			request_count = CASE
				WHEN rate_limit_buckets.reset_time <= ? THEN 1
				ELSE rate_limit_buckets.request_count + 1
			END,
			reset_time = CASE
				WHEN rate_limit_buckets.reset_time <= ? THEN ?
				ELSE rate_limit_buckets.reset_time
			END
		RETURNING request_count, reset_time`,
		fingerprint, reset, now, now, reset).Row()

	if err := row.Scan(&rec.Count, &rec.WindowResetAt); err != nil {
		return core.RateBucket{}, fmt.Errorf("failed to update rate bucket: %w", err)
	}

	return core.RateBucket{
		Fingerprint:   fingerprint,
		Count:         rec.Count,
		WindowResetAt: rec.WindowResetAt,
	}, nil
}

// SaveMessage stores a mailbox entry.
func (s *PostgresStore) SaveMessage(ctx context.Context, msg core.Message) error {
	rec := dbMessage{
		ID:           msg.ID,
		RecipientID:  msg.RecipientID,
		SenderIDHash: msg.SenderIDHash,
		Ciphertext:   msg.Ciphertext,
		CreatedAt:    msg.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// ListMessagesByRecipient returns the recipient's messages, newest first.
func (s *PostgresStore) ListMessagesByRecipient(ctx context.Context, recipientID string) ([]core.Message, error) {
	var recs []dbMessage
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	msgs := make([]core.Message, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, core.Message{
			ID:           rec.ID,
			RecipientID:  rec.RecipientID,
			SenderIDHash: rec.SenderIDHash,
			Ciphertext:   rec.Ciphertext,
			CreatedAt:    rec.CreatedAt,
		})
	}
	return msgs, nil
}

// DeleteMessagesOlderThan removes messages created before the cutoff.
func (s *PostgresStore) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&dbMessage{}, "created_at < ?", cutoff)
	return res.RowsAffected, res.Error
}
