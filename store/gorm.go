package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"player-economy/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore backs every collection with Postgres through gorm.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// AutoMigrate creates or updates the users, levels and redemption tables.
func (s *GormStore) AutoMigrate() error {
	return s.DB.AutoMigrate(
		&models.PlayerRecord{},
		&models.LevelDefinition{},
		&models.ExternalRedemption{},
	)
}

func (s *GormStore) FetchPlayer(ctx context.Context, id string) (models.PlayerRecord, error) {
	var rec models.PlayerRecord
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("fetch player %s: %w", id, err)
	}
	return rec, nil
}

func (s *GormStore) CreatePlayer(ctx context.Context, rec models.PlayerRecord) (bool, error) {
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("create player %s: %w", rec.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) PersistPlayer(ctx context.Context, rec models.PlayerRecord) error {
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("persist player %s: %w", rec.ID, err)
	}
	return nil
}

func (s *GormStore) UpdatePlayer(ctx context.Context, id string, patch PlayerPatch, pre Precondition) (models.PlayerRecord, error) {
	var out models.PlayerRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cols := patch.Columns()
		cols["version"] = gorm.Expr("version + 1")

		q := tx.Model(&models.PlayerRecord{}).Where("id = ?", id)
		if pre.Check {
			q = q.Where("version = ?", pre.Version)
		}
		res := q.Updates(cols)
		if res.Error != nil {
			if patch.WalletAddress != nil && isUniqueViolation(res.Error) {
				return ErrWalletInUse
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.PlayerRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		return tx.Where("id = ?", id).First(&out).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrWalletInUse) {
			return out, err
		}
		return out, fmt.Errorf("update player %s: %w", id, err)
	}
	return out, nil
}

// isUniqueViolation matches both gorm's translated error and a raw postgres 23505.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *GormStore) FindPlayerByWallet(ctx context.Context, address string) (models.PlayerRecord, error) {
	var rec models.PlayerRecord
	if address == "" {
		return rec, ErrNotFound
	}
	if err := s.DB.WithContext(ctx).Where("wallet_address = ?", address).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("find player by wallet: %w", err)
	}
	return rec, nil
}

func (s *GormStore) FetchLevel(ctx context.Context, id int) (models.LevelDefinition, error) {
	var lvl models.LevelDefinition
	if err := s.DB.WithContext(ctx).First(&lvl, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lvl, ErrNotFound
		}
		return lvl, fmt.Errorf("fetch level %d: %w", id, err)
	}
	return lvl, nil
}

func (s *GormStore) ListLevels(ctx context.Context) ([]models.LevelDefinition, error) {
	var levels []models.LevelDefinition
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return levels, nil
}

func (s *GormStore) UpsertLevels(ctx context.Context, levels []models.LevelDefinition) error {
	if len(levels) == 0 {
		return nil
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "slug", "reward", "energy_cost", "payload", "updated_at",
		}),
	}).Create(&levels).Error
	if err != nil {
		return fmt.Errorf("upsert %d level(s): %w", len(levels), err)
	}
	return nil
}

func (s *GormStore) RecordRedemption(ctx context.Context, r models.ExternalRedemption) (bool, error) {
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tx_hash"}}, DoNothing: true}).
		Create(&r)
	if res.Error != nil {
		return false, fmt.Errorf("record redemption %s: %w", r.TxHash, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) PendingRedemptions(ctx context.Context, limit int) ([]models.ExternalRedemption, error) {
	var rows []models.ExternalRedemption
	q := s.DB.WithContext(ctx).Where("credited = ?", false).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pending redemptions: %w", err)
	}
	return rows, nil
}

func (s *GormStore) MarkRedemptionCredited(ctx context.Context, id, playerID string, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.ExternalRedemption{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"credited":    true,
			"credited_at": at,
			"player_id":   playerID,
		})
	if res.Error != nil {
		return fmt.Errorf("mark redemption %s credited: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
