// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormActionRecord 行动记录模型
type GormActionRecord struct {
	gorm.Model
	SessionID     string `gorm:"index;not null"`
	ParticipantID string `gorm:"index;not null"`
	Speaker       string `gorm:"not null"`
	Action        string `gorm:"type:text;not null"`
	Outcome       string `gorm:"not null"`
	Story         string `gorm:"type:text"`
	Error         string `gorm:"type:text"`
}

func (GormActionRecord) TableName() string { return "action_records" }

// GormTradeRecord 交易记录模型
type GormTradeRecord struct {
	gorm.Model
	SessionID     string  `gorm:"index;not null"`
	ParticipantID string  `gorm:"index;not null"`
	Side          string  `gorm:"not null"`
	Qty           int64   `gorm:"not null"`
	Price         float64 `gorm:"not null"`
	Cash          string  `gorm:"type:numeric;not null"`
	Shares        int64   `gorm:"not null"`
	Outcome       string  `gorm:"not null"`
}

func (GormTradeRecord) TableName() string { return "trade_records" }

func NewGormActionRecord(r ActionRecord) *GormActionRecord {
	m := &GormActionRecord{
		SessionID:     r.SessionID,
		ParticipantID: r.ParticipantID,
		Speaker:       r.Speaker,
		Action:        r.Action,
		Outcome:       r.Outcome,
		Story:         r.Story,
		Error:         r.Error,
	}
	m.CreatedAt = r.CreatedAt
	return m
}

func NewGormTradeRecord(r TradeRecord) *GormTradeRecord {
	m := &GormTradeRecord{
		SessionID:     r.SessionID,
		ParticipantID: r.ParticipantID,
		Side:          r.Side,
		Qty:           r.Qty,
		Price:         r.Price,
		Cash:          r.Cash,
		Shares:        r.Shares,
		Outcome:       r.Outcome,
	}
	m.CreatedAt = r.CreatedAt
	return m
}
