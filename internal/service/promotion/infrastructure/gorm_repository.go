// internal/service/promotion/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/promotion/domain"
)

// PromotionModel 是活动的数据库模型。
type PromotionModel struct {
	ID              uint64 `gorm:"primaryKey"`
	Name            string `gorm:"size:128;not null"`
	Type            string `gorm:"size:32;not null"`
	ThresholdAmount int64  `gorm:"not null"`
	DiscountAmount  int64  `gorm:"not null;default:0"`
	DiscountPercent int    `gorm:"not null;default:0"`
	EligibilityExpr string `gorm:"size:512"`
	StartAt         time.Time
	EndAt           time.Time
	Enabled         bool `gorm:"index;not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (PromotionModel) TableName() string { return "promotions" }

// GormPromotionRepository 是 domain.Repository 的 GORM 实现。
type GormPromotionRepository struct {
	db *gorm.DB
}

func NewGormPromotionRepository(db *gorm.DB) *GormPromotionRepository {
	return &GormPromotionRepository{db: db}
}

func (r *GormPromotionRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&PromotionModel{})
}

func (r *GormPromotionRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Promotion, error) {
	var models []PromotionModel
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND start_at <= ? AND end_at > ?", true, now, now).
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "promotion: list active")
	}
	promos := make([]domain.Promotion, 0, len(models))
	for _, m := range models {
		promos = append(promos, domain.Promotion{
			ID:              m.ID,
			Name:            m.Name,
			Type:            domain.DiscountType(m.Type),
			ThresholdAmount: m.ThresholdAmount,
			DiscountAmount:  m.DiscountAmount,
			DiscountPercent: m.DiscountPercent,
			EligibilityExpr: m.EligibilityExpr,
			StartAt:         m.StartAt,
			EndAt:           m.EndAt,
			Enabled:         m.Enabled,
		})
	}
	return promos, nil
}
