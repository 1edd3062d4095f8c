package journal

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/glowe/dartviz/internal/influx"
	"github.com/glowe/dartviz/pkg/core"
)

// Sink persists batches of visualized throws.
type Sink interface {
	Write(ctx context.Context, batch []core.Visualized) error
	Close() error
}

// ThrowRecord is one journaled marker.
type ThrowRecord struct {
	ID         uint      `gorm:"primarykey"`
	Time       time.Time `gorm:"index"`
	EntityID   int       `gorm:"index"`
	Value      int
	Multiplier int
	Points     int
	Radius     float64
	Angle      float64
	Source     string `gorm:"size:32"`
	Raw        datatypes.JSON
}

// TableName overrides the default gorm table name.
func (ThrowRecord) TableName() string {
	return "throw_journal"
}

// NewThrowRecord converts a visualized throw to its row.
func NewThrowRecord(v core.Visualized) ThrowRecord {
	rec := ThrowRecord{
		Time:       v.Time,
		EntityID:   v.EntityID,
		Value:      v.Value,
		Multiplier: v.Multiplier,
		Points:     v.Value * v.Multiplier,
		Radius:     v.Radius,
		Angle:      v.Angle,
		Source:     v.Source,
		Raw:        datatypes.JSON("null"),
	}
	if len(v.Raw) > 0 {
		rec.Raw = datatypes.JSON(v.Raw)
	}
	return rec
}

// GormSink writes throws to a relational database.
type GormSink struct {
	db *gorm.DB
}

// NewGormSink migrates the journal table and returns a sink.
func NewGormSink(db *gorm.DB) (*GormSink, error) {
	if err := db.AutoMigrate(&ThrowRecord{}); err != nil {
		return nil, fmt.Errorf("migrate throw journal: %w", err)
	}
	return &GormSink{db: db}, nil
}

// Write inserts the batch in one transaction.
func (s *GormSink) Write(ctx context.Context, batch []core.Visualized) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]ThrowRecord, len(batch))
	for i, v := range batch {
		rows[i] = NewThrowRecord(v)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return fmt.Errorf("insert %d throws: %w", len(rows), err)
	}
	return nil
}

// Close is a no-op; the database manager owns the connection.
func (s *GormSink) Close() error {
	return nil
}

// InfluxSink writes throws as points.
type InfluxSink struct {
	m *influx.Manager
}

// NewInfluxSink wraps a connected manager.
func NewInfluxSink(m *influx.Manager) *InfluxSink {
	return &InfluxSink{m: m}
}

// Write converts each throw to a point and flushes.
func (s *InfluxSink) Write(_ context.Context, batch []core.Visualized) error {
	for _, v := range batch {
		if err := s.m.WritePoint(influx.ThrowPoint(v)); err != nil {
			return err
		}
	}
	return s.m.Flush()
}

// Close flushes and closes the manager.
func (s *InfluxSink) Close() error {
	return s.m.Close()
}
