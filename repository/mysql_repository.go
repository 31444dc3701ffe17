package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Purchase 판매된 좌석의 영속 기록
type Purchase struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	MatchID   int64     `gorm:"column:match_id;not null;uniqueIndex:uk_purchase_seat"`
	SectionID string    `gorm:"column:section_id;size:64;not null;uniqueIndex:uk_purchase_seat"`
	RowNumber string    `gorm:"column:row_number;size:64;not null;uniqueIndex:uk_purchase_seat"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	Grade     string    `gorm:"column:grade;size:32;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Purchase) TableName() string {
	return "purchases"
}

func (p *Purchase) Seat() SeatKey {
	return SeatKey{MatchID: p.MatchID, SectionID: p.SectionID, RowNumber: p.RowNumber}
}

type MySQLRepository struct {
	DB *gorm.DB
}

func NewMySQLRepository(db *gorm.DB) *MySQLRepository {
	return &MySQLRepository{
		DB: db,
	}
}

func (r *MySQLRepository) Migrate() error {
	return r.DB.AutoMigrate(&Purchase{})
}

// SavePurchase: 중복 좌석은 OnConflict(DoNothing)로 무시해서 SEAT_SOLD 재전달에도 안전하게 저장.
// 새로 insert 되었는지 여부를 반환
func (r *MySQLRepository) SavePurchase(p *Purchase) (bool, error) {
	result := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *MySQLRepository) ExistsPurchase(seat SeatKey) (bool, error) {
	var count int64
	err := r.DB.Model(&Purchase{}).
		Where("match_id = ? AND section_id = ? AND row_number = ?", seat.MatchID, seat.SectionID, seat.RowNumber).
		Count(&count).Error
	return count > 0, err
}

// DeletePurchase: 해당 유저의 좌석 기록만 삭제 (없으면 에러 아님)
func (r *MySQLRepository) DeletePurchase(seat SeatKey, userID int64) error {
	result := r.DB.Unscoped().
		Where("match_id = ? AND section_id = ? AND row_number = ? AND user_id = ?",
			seat.MatchID, seat.SectionID, seat.RowNumber, userID).
		Delete(&Purchase{})
	if result.Error != nil {
		return fmt.Errorf("delete purchase seat[%s] user[%d]: %w", seat, userID, result.Error)
	}
	return nil
}
