package quality

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beadswarm/beads/storage"
	"github.com/beadswarm/beads/types"
)

// Engine is the quality engine's storage contract: snapshot history
// plus the singleton baseline the regression rules compare against.
type Engine interface {
	RecordSnapshot(ctx context.Context, s *Snapshot) (*Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	GetLatestSnapshot(ctx context.Context, taskID string) (*Snapshot, error)
	GetTaskSnapshots(ctx context.Context, taskID string) ([]*Snapshot, error)
	GetBaseline(ctx context.Context) (*Snapshot, error)
	SetBaseline(ctx context.Context, id string) error
}

// GormEngine is the default Engine implementation, backed by
// storage.Engine's quality_snapshots / quality_baseline tables.
type GormEngine struct {
	engine *storage.Engine
	clock  types.Clock
	logger *zap.Logger
}

// NewGormEngine constructs a GormEngine.
func NewGormEngine(engine *storage.Engine, logger *zap.Logger) *GormEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := engine.Clock()
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &GormEngine{engine: engine, clock: clock, logger: logger.With(zap.String("component", "quality_engine"))}
}

var _ Engine = (*GormEngine)(nil)

func (e *GormEngine) RecordSnapshot(ctx context.Context, s *Snapshot) (*Snapshot, error) {
	if s.ID == "" {
		s.ID = types.NewToken()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = e.clock.Now().UTC()
	}
	row := toModel(s)
	if err := e.engine.DB().WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrapErr(err)
	}
	return fromModel(row), nil
}

func (e *GormEngine) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	var row storage.QualitySnapshotModel
	err := e.engine.DB().WithContext(ctx).First(&row, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound, "snapshot not found")
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return fromModel(&row), nil
}

func (e *GormEngine) GetLatestSnapshot(ctx context.Context, taskID string) (*Snapshot, error) {
	var row storage.QualitySnapshotModel
	err := e.engine.DB().WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("timestamp desc").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound, "no snapshots for task")
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return fromModel(&row), nil
}

func (e *GormEngine) GetTaskSnapshots(ctx context.Context, taskID string) ([]*Snapshot, error) {
	var rows []storage.QualitySnapshotModel
	err := e.engine.DB().WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("timestamp asc").
		Find(&rows).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return fromModels(rows), nil
}

func (e *GormEngine) GetBaseline(ctx context.Context) (*Snapshot, error) {
	var baseline storage.QualityBaselineModel
	err := e.engine.DB().WithContext(ctx).First(&baseline, "id = ?", 1).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound, "no baseline set")
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return e.GetSnapshot(ctx, baseline.SnapshotID)
}

// SetBaseline clears the previous baseline's flag and points the
// singleton row at the new snapshot, atomically.
func (e *GormEngine) SetBaseline(ctx context.Context, id string) error {
	return e.engine.Transaction(ctx, func(tx *gorm.DB) error {
		var target storage.QualitySnapshotModel
		if err := tx.First(&target, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.NewError(types.ErrNotFound, "snapshot not found")
			}
			return err
		}

		if err := tx.Model(&storage.QualitySnapshotModel{}).Where("is_baseline = ?", true).Update("is_baseline", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&storage.QualitySnapshotModel{}).Where("id = ?", id).Update("is_baseline", true).Error; err != nil {
			return err
		}

		var existing storage.QualityBaselineModel
		err := tx.First(&existing, "id = ?", 1).Error
		switch err {
		case nil:
			return tx.Model(&storage.QualityBaselineModel{}).Where("id = ?", 1).Update("snapshot_id", id).Error
		case gorm.ErrRecordNotFound:
			return tx.Create(&storage.QualityBaselineModel{ID: 1, SnapshotID: id}).Error
		default:
			return err
		}
	})
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*types.Error); ok {
		return err
	}
	return types.NewError(types.ErrConnection, "quality engine operation failed").WithCause(err)
}
