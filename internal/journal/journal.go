// Package journal persists order actions and reconciliation cycles to
// Postgres. Every method on a nil *Journal is a no-op so callers never
// branch on whether persistence is configured, and journal failures never
// feed back into trading decisions.
package journal

import (
	"time"

	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/pkg/conn"
)

type OrderRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	Symbol        string `gorm:"index"`
	OrderID       string
	ClientOrderID string
	Action        string `gorm:"index"` // place / cancel / replace
	Side          string
	Type          string
	Price         string
	Quantity      float64
	ReduceOnly    bool
	CreatedAt     time.Time
}

type CycleRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Symbol      string `gorm:"index"`
	Result      string // ok / skipped / paused / error
	OpenOrders  int
	Desired     int
	Canceled    int
	Placed      int
	Position    float64
	DurationMS  int64
	RateLimited bool
	CreatedAt   time.Time
}

type Journal struct {
	client *conn.Client
	db     *gorm.DB
}

// Open connects and migrates the journal tables.
func Open(opt conn.Option) (*Journal, error) {
	client, err := conn.New(opt)
	if err != nil {
		return nil, err
	}

	db := client.DB()
	if err := db.AutoMigrate(&OrderRecord{}, &CycleRecord{}); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Journal{client: client, db: db}, nil
}

func (j *Journal) RecordOrder(rec OrderRecord) {
	if j == nil || j.db == nil {
		return
	}

	rec.CreatedAt = time.Now()
	if err := j.db.Create(&rec).Error; err != nil {
		logs.Warnf("journal order record failed, err: %v", err)
	}
}

func (j *Journal) RecordCycle(rec CycleRecord) {
	if j == nil || j.db == nil {
		return
	}

	rec.CreatedAt = time.Now()
	if err := j.db.Create(&rec).Error; err != nil {
		logs.Warnf("journal cycle record failed, err: %v", err)
	}
}

func (j *Journal) Close() error {
	if j == nil || j.client == nil {
		return nil
	}
	return j.client.Close()
}
