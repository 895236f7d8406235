package drivers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	phonecall "github.com/drewburns/ai-phonecall"
	"github.com/drewburns/ai-phonecall/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements session.Store on a SQL table. Turns are kept as a
// JSON document in one column so a save is a single-row replace.
type GormStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

type sessionRow struct {
	CallID     string `gorm:"primaryKey;size:128"`
	FromNumber string `gorm:"size:64"`
	ToNumber   string `gorm:"size:64"`
	State      string `gorm:"size:32"`
	TurnsJSON  string `gorm:"type:text"`
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  int64 `gorm:"index"` // unix milliseconds
}

func (sessionRow) TableName() string { return "call_sessions" }

// NewGormStore migrates the call_sessions table and returns a store on db.
func NewGormStore(db *gorm.DB, ttl time.Duration) (*GormStore, error) {
	if db == nil {
		return nil, session.ErrInvalidConfig
	}
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate call_sessions: %w", err)
	}
	return &GormStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Create implements session.Store.
func (s *GormStore) Create(ctx context.Context, data *session.CallSession) error {
	if data.CallID == "" {
		return session.ErrEmptyCallID
	}

	next := data.Clone()
	now := s.now().UTC()
	next.CreatedAt = now
	next.UpdatedAt = now
	next.Version = 1

	row, err := s.rowFromSession(next, now)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	*data = *next
	return nil
}

// Load implements session.Store.
func (s *GormStore) Load(ctx context.Context, callID string) (*session.CallSession, error) {
	if callID == "" {
		return nil, session.ErrEmptyCallID
	}

	var row sessionRow
	err := s.db.WithContext(ctx).Where("call_id = ?", callID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.New(callID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	now := s.now().UTC()
	if row.ExpiresAt <= now.UnixMilli() {
		return session.New(callID), nil
	}

	data, err := row.toSession()
	if err != nil {
		return nil, err
	}

	// Refresh TTL on read
	_ = s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("call_id = ? AND version = ?", callID, row.Version).
		Update("expires_at", now.Add(s.ttl).UnixMilli()).Error

	return data, nil
}

// Save implements session.Store.
// The version check and the write happen in one conditional statement, so
// two writers holding the same version cannot both succeed.
func (s *GormStore) Save(ctx context.Context, data *session.CallSession) error {
	if data.CallID == "" {
		return session.ErrEmptyCallID
	}

	next := data.Clone()
	now := s.now().UTC()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.Version = data.Version + 1
	next.UpdatedAt = now

	row, err := s.rowFromSession(next, now)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if data.Version == 0 {
			// An expired row still occupies the key.
			if err := tx.Where("call_id = ? AND expires_at <= ?", data.CallID, now.UnixMilli()).
				Delete(&sessionRow{}).Error; err != nil {
				return err
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return session.ErrVersionConflict
			}
			return nil
		}

		res := tx.Model(&sessionRow{}).
			Where("call_id = ? AND version = ? AND expires_at > ?", data.CallID, data.Version, now.UnixMilli()).
			Updates(map[string]any{
				"from_number": row.FromNumber,
				"to_number":   row.ToNumber,
				"state":       row.State,
				"turns_json":  row.TurnsJSON,
				"version":     row.Version,
				"updated_at":  row.UpdatedAt,
				"expires_at":  row.ExpiresAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return session.ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("save session: %w", err)
	}

	*data = *next
	return nil
}

// Clear implements session.Store.
func (s *GormStore) Clear(ctx context.Context, callID string) error {
	if err := s.db.WithContext(ctx).Where("call_id = ?", callID).Delete(&sessionRow{}).Error; err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close implements session.Store.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) rowFromSession(data *session.CallSession, now time.Time) (sessionRow, error) {
	turns := data.Turns
	if turns == nil {
		turns = phonecall.History{}
	}
	encoded, err := json.Marshal(turns)
	if err != nil {
		return sessionRow{}, fmt.Errorf("marshal turns: %w", err)
	}
	return sessionRow{
		CallID:     data.CallID,
		FromNumber: data.From,
		ToNumber:   data.To,
		State:      string(data.State),
		TurnsJSON:  string(encoded),
		Version:    data.Version,
		CreatedAt:  data.CreatedAt,
		UpdatedAt:  data.UpdatedAt,
		ExpiresAt:  now.Add(s.ttl).UnixMilli(),
	}, nil
}

func (r sessionRow) toSession() (*session.CallSession, error) {
	turns := phonecall.History{}
	if r.TurnsJSON != "" {
		if err := json.Unmarshal([]byte(r.TurnsJSON), &turns); err != nil {
			return nil, fmt.Errorf("unmarshal turns: %w", err)
		}
	}
	return &session.CallSession{
		CallID:    r.CallID,
		From:      r.FromNumber,
		To:        r.ToNumber,
		State:     session.State(r.State),
		Turns:     turns,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

var _ session.Store = (*GormStore)(nil)
