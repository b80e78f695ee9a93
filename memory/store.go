package memory

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beadswarm/beads/config"
	"github.com/beadswarm/beads/internal/cache"
	"github.com/beadswarm/beads/storage"
	"github.com/beadswarm/beads/types"
)

const defaultSearchLimit = 10

// Store is the memory store ("CASS") contract.
type Store interface {
	Store(ctx context.Context, m *Memory) (*Memory, error)
	Get(ctx context.Context, id string) (*Memory, error)
	Update(ctx context.Context, m *Memory) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]*Memory, error)
	RecordAccess(ctx context.Context, id string) error
	SemanticSearch(ctx context.Context, query []float64, opts SearchOptions) ([]SearchResult, error)
	SemanticSearchByText(ctx context.Context, text string, opts SearchOptions) ([]SearchResult, error)
	Compact(ctx context.Context, threshold float64) (int, error)
	AdaptiveCompact(ctx context.Context) (int, error)
	GetByType(ctx context.Context, t Type, limit, offset int) ([]*Memory, error)
	GetStats(ctx context.Context) (*Stats, error)
	BackfillEmbeddings(ctx context.Context, batchSize int) (int, error)
}

// GormStore is the default Memory Store implementation, backed by
// storage.Engine's memories table.
type GormStore struct {
	engine     *storage.Engine
	cfg        config.MemoryConfig
	provider   Provider
	queryCache *cache.QueryCache
	clock      types.Clock
	logger     *zap.Logger
	dimension  atomic.Int64 // learned embedding dimension, 0 = unset
}

// NewGormStore constructs a GormStore. provider defaults to NoneProvider
// if nil.
func NewGormStore(engine *storage.Engine, cfg config.MemoryConfig, provider Provider, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if provider == nil {
		provider = NoneProvider{}
	}
	clock := engine.Clock()
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &GormStore{
		engine:     engine,
		cfg:        cfg,
		provider:   provider,
		queryCache: cache.NewQueryCache(cfg.QueryCacheSize, cfg.QueryCacheTTL, clock, logger),
		clock:      clock,
		logger:     logger.With(zap.String("component", "memory_store")),
	}
}

var _ Store = (*GormStore)(nil)

func (s *GormStore) expectedDimension() int {
	if s.cfg.Dimension > 0 {
		return s.cfg.Dimension
	}
	return int(s.dimension.Load())
}

func (s *GormStore) checkAndLearnDimension(v []float64) error {
	if len(v) == 0 {
		return nil
	}
	want := s.expectedDimension()
	if want > 0 && len(v) != want {
		return types.Newf(types.ErrValidation, "embedding dimension mismatch: got %d want %d", len(v), want)
	}
	if want == 0 {
		s.dimension.Store(int64(len(v)))
	}
	return nil
}

func (s *GormStore) Store(ctx context.Context, m *Memory) (*Memory, error) {
	if strings.TrimSpace(m.Content) == "" {
		return nil, types.NewError(types.ErrValidation, "content is required")
	}
	if m.Importance < 0 || m.Importance > 1 {
		return nil, types.NewError(types.ErrValidation, "importance must be in [0,1]")
	}
	if err := s.checkAndLearnDimension(m.Embedding); err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = types.NewMemoryID()
	}
	if m.Type == "" {
		m.Type = TypeGeneral
	}
	now := s.clock.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.LastAccessed.IsZero() {
		m.LastAccessed = now
	}

	row := toModel(m)
	if err := s.engine.DB().WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrapErr(err)
	}

	if s.cfg.MaxEntries > 0 {
		var total int64
		if err := s.engine.DB().WithContext(ctx).Model(&storage.MemoryModel{}).Count(&total).Error; err == nil {
			if float64(total) >= 0.8*float64(s.cfg.MaxEntries) {
				if _, err := s.AdaptiveCompact(ctx); err != nil {
					s.logger.Warn("adaptive compaction failed", zap.Error(err))
				}
			}
		}
	}

	return fromModel(row), nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*Memory, error) {
	var row storage.MemoryModel
	err := s.engine.DB().WithContext(ctx).First(&row, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound, "memory not found")
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return fromModel(&row), nil
}

func (s *GormStore) Update(ctx context.Context, m *Memory) error {
	if err := s.checkAndLearnDimension(m.Embedding); err != nil {
		return err
	}
	res := s.engine.DB().WithContext(ctx).Model(&storage.MemoryModel{}).Where("id = ?", m.ID).Updates(toModel(m))
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "memory not found")
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.engine.DB().WithContext(ctx).Where("id = ?", id).Delete(&storage.MemoryModel{})
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "memory not found")
	}
	return nil
}

func (s *GormStore) applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if f.AgentID != "" {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	if f.TaskID != "" {
		q = q.Where("task_id = ?", f.TaskID)
	}
	if f.WorkspaceID != "" {
		q = q.Where("workspace_id = ?", f.WorkspaceID)
	}
	return q
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]*Memory, error) {
	q := s.applyFilter(s.engine.DB().WithContext(ctx).Model(&storage.MemoryModel{}), f).Order("created_at asc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var rows []storage.MemoryModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := fromModels(rows)
	if f.Tag != "" {
		filtered := out[:0]
		for _, m := range out {
			for _, tag := range m.Tags {
				if tag == f.Tag {
					filtered = append(filtered, m)
					break
				}
			}
		}
		out = filtered
	}
	return out, nil
}

func (s *GormStore) RecordAccess(ctx context.Context, id string) error {
	now := s.clock.Now().UTC()
	res := s.engine.DB().WithContext(ctx).Model(&storage.MemoryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": now,
		})
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "memory not found")
	}
	return nil
}

// SemanticSearch scans eligible rows in bounded batches, maintaining a
// top-K window, so search memory stays bounded by the batch size.
func (s *GormStore) SemanticSearch(ctx context.Context, query []float64, opts SearchOptions) ([]SearchResult, error) {
	if len(query) == 0 {
		return nil, types.NewError(types.ErrValidation, "query vector is required")
	}
	k := opts.Limit
	if k <= 0 {
		k = defaultSearchLimit
	}
	batchSize := s.cfg.SearchBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	base := s.engine.DB().WithContext(ctx).Model(&storage.MemoryModel{}).
		Where("embedding IS NOT NULL AND embedding != ''")
	if opts.Type != "" {
		base = base.Where("type = ?", string(opts.Type))
	}
	if opts.AgentID != "" {
		base = base.Where("agent_id = ?", opts.AgentID)
	}
	if opts.TaskID != "" {
		base = base.Where("task_id = ?", opts.TaskID)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, wrapErr(err)
	}

	var top []SearchResult
	var scanned int64
	var offset int

	for {
		var rows []storage.MemoryModel
		err := base.Session(&gorm.Session{}).Order("id asc").Limit(batchSize).Offset(offset).Find(&rows).Error
		if err != nil {
			return nil, wrapErr(err)
		}
		if len(rows) == 0 {
			break
		}
		for i := range rows {
			mem := fromModel(&rows[i])
			sim := cosineSimilarity(query, mem.Embedding)
			score := scoreOf(sim, mem.Importance, opts.WeightByImportance)
			top = insertTopK(top, SearchResult{Memory: mem, Score: score}, k)
		}
		scanned += int64(len(rows))
		offset += len(rows)

		if offset >= int(total) {
			break
		}
		if float64(scanned) >= 0.5*float64(total) && len(top) >= k && top[k-1].Score > s.cfg.EarlyTerminationSimilarity {
			break
		}
	}

	return top, nil
}

func insertTopK(top []SearchResult, candidate SearchResult, k int) []SearchResult {
	top = append(top, candidate)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > k {
		top = top[:k]
	}
	return top
}

// SemanticSearchByText embeds text via the configured provider and
// delegates to SemanticSearch. Without an available provider, or on a
// provider failure, it falls back to a case-insensitive substring scan
// over content.
func (s *GormStore) SemanticSearchByText(ctx context.Context, text string, opts SearchOptions) ([]SearchResult, error) {
	if s.provider.IsAvailable() {
		if vec, ok := s.queryCache.Get(text); ok {
			return s.SemanticSearch(ctx, vec, opts)
		}
		emb, err := s.provider.Generate(ctx, text)
		if err != nil {
			s.logger.Warn("embedding provider failed, falling back to text search", zap.Error(err))
			return s.textSearch(ctx, text, opts)
		}
		s.queryCache.Put(text, emb.Vector)
		return s.SemanticSearch(ctx, emb.Vector, opts)
	}
	return s.textSearch(ctx, text, opts)
}

func (s *GormStore) textSearch(ctx context.Context, text string, opts SearchOptions) ([]SearchResult, error) {
	q := s.engine.DB().WithContext(ctx).Model(&storage.MemoryModel{}).
		Where("content LIKE ?", "%"+text+"%")
	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
	}
	if opts.AgentID != "" {
		q = q.Where("agent_id = ?", opts.AgentID)
	}
	if opts.TaskID != "" {
		q = q.Where("task_id = ?", opts.TaskID)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	q = q.Order("created_at desc").Limit(limit)

	var rows []storage.MemoryModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := make([]SearchResult, len(rows))
	for i := range rows {
		out[i] = SearchResult{Memory: fromModel(&rows[i]), Score: 1.0}
	}
	return out, nil
}

func unprotectedTypes() []string {
	all := []Type{
		TypeCodebaseKnowledge, TypeAgentLearning, TypePatternRecognition,
		TypeConversationHist, TypeDecisionRationale, TypeRegressionPattern,
		TypeSuccessfulFix, TypeGeneral,
	}
	out := make([]string, 0, len(all))
	for _, t := range all {
		if !protectedFromCompaction[t] {
			out = append(out, string(t))
		}
	}
	return out
}

// Compact removes every unprotected entry with importance below
// threshold.
func (s *GormStore) Compact(ctx context.Context, threshold float64) (int, error) {
	res := s.engine.DB().WithContext(ctx).
		Where("type IN ? AND importance < ?", unprotectedTypes(), threshold).
		Delete(&storage.MemoryModel{})
	if res.Error != nil {
		return 0, wrapErr(res.Error)
	}
	return int(res.RowsAffected), nil
}

// AdaptiveCompact removes the lowest-importance unprotected entries
// until the store is at or below 80% of MaxEntries. A disabled
// MaxEntries (<=0) is a no-op.
func (s *GormStore) AdaptiveCompact(ctx context.Context) (int, error) {
	if s.cfg.MaxEntries <= 0 {
		return 0, nil
	}
	var total int64
	if err := s.engine.DB().WithContext(ctx).Model(&storage.MemoryModel{}).Count(&total).Error; err != nil {
		return 0, wrapErr(err)
	}
	targetMax := int64(0.8 * float64(s.cfg.MaxEntries))
	if total <= targetMax {
		return 0, nil
	}
	toRemove := total - targetMax

	var ids []string
	err := s.engine.DB().WithContext(ctx).Model(&storage.MemoryModel{}).
		Where("type IN ?", unprotectedTypes()).
		Order("importance asc").
		Limit(int(toRemove)).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, wrapErr(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.engine.DB().WithContext(ctx).Where("id IN ?", ids).Delete(&storage.MemoryModel{}).Error; err != nil {
		return 0, wrapErr(err)
	}
	return len(ids), nil
}

func (s *GormStore) GetByType(ctx context.Context, t Type, limit, offset int) ([]*Memory, error) {
	return s.List(ctx, Filter{Type: t, Limit: limit, Offset: offset})
}

func (s *GormStore) GetStats(ctx context.Context) (*Stats, error) {
	var rows []storage.MemoryModel
	if err := s.engine.DB().WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	st := &Stats{ByType: make(map[Type]int64)}
	for i := range rows {
		st.Total++
		st.ByType[Type(rows[i].Type)]++
		if rows[i].Embedding != "" {
			st.WithVector++
		}
	}
	return st, nil
}

// BackfillEmbeddings generates embeddings for up to batchSize memories
// that currently lack one.
func (s *GormStore) BackfillEmbeddings(ctx context.Context, batchSize int) (int, error) {
	if !s.provider.IsAvailable() {
		return 0, types.NewError(types.ErrExternalUnavailable, "no embedding provider configured")
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	var rows []storage.MemoryModel
	err := s.engine.DB().WithContext(ctx).
		Where("embedding IS NULL OR embedding = ''").
		Order("created_at asc").
		Limit(batchSize).
		Find(&rows).Error
	if err != nil {
		return 0, wrapErr(err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	texts := make([]string, len(rows))
	for i := range rows {
		texts[i] = rows[i].Content
	}
	embeddings, err := s.provider.GenerateBatch(ctx, texts)
	if err != nil {
		return 0, types.NewError(types.ErrExternalUnavailable, "embedding backfill failed").WithCause(err)
	}

	updated := 0
	for i := range rows {
		if i >= len(embeddings) || embeddings[i] == nil {
			continue
		}
		if err := s.checkAndLearnDimension(embeddings[i].Vector); err != nil {
			s.logger.Warn("skipping backfilled embedding with bad dimension", zap.String("id", rows[i].ID), zap.Error(err))
			continue
		}
		err := s.engine.DB().WithContext(ctx).Model(&storage.MemoryModel{}).
			Where("id = ?", rows[i].ID).
			Update("embedding", marshalFloats(embeddings[i].Vector)).Error
		if err != nil {
			return updated, wrapErr(err)
		}
		updated++
	}
	return updated, nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*types.Error); ok {
		return err
	}
	return types.NewError(types.ErrConnection, "memory store operation failed").WithCause(err)
}
