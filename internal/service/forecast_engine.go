package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/cache"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/forecast"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository"
)

// FeatureExtractor builds the feature vector of one entity.
type FeatureExtractor interface {
	Extract(
		entityID string,
		history []domain.SalesObservation,
		snapshot *domain.ContextSnapshot,
		profile *domain.EntityProfile,
		asOf time.Time,
	) (domain.FeatureVector, error)
}

// Dependencies are the collaborators of a ForecastEngine. Extractor, Model
// and Cache are optional and default to the configured implementations.
type Dependencies struct {
	History   repository.HistoryRepository
	Sales     repository.SalesWriter
	Results   repository.ResultStore
	Accuracy  repository.AccuracyStore
	Cache     *cache.ResultCache
	Extractor FeatureExtractor
	Model     forecast.Model
}

// ForecastEngine turns prediction requests into cached, persisted
// PredictionResults and reconciles them against observed sales.
type ForecastEngine struct {
	history   repository.HistoryRepository
	sales     repository.SalesWriter
	results   repository.ResultStore
	accuracy  repository.AccuracyStore
	cache     *cache.ResultCache
	extractor FeatureExtractor
	model     forecast.Model
	fallback  forecast.Model
	policy    *forecast.SupplyPolicy

	historyWindowDays    int
	accuracyWindow       int
	defaultModelAccuracy float64

	requests singleflight.Group
	now      func() time.Time
	newID    func() string
}

// NewForecastEngine wires an engine from configuration and collaborators.
func NewForecastEngine(cfg *config.Config, deps Dependencies) (*ForecastEngine, error) {
	if deps.History == nil || deps.Results == nil || deps.Accuracy == nil {
		return nil, errors.New("forecast engine: history, results and accuracy stores are required")
	}

	model := deps.Model
	if model == nil {
		var err error
		if model, err = forecast.NewModel(cfg.Forecast); err != nil {
			return nil, err
		}
	}

	extractor := deps.Extractor
	if extractor == nil {
		extractor = forecast.NewFeatureExtractor()
	}

	resultCache := deps.Cache
	if resultCache == nil {
		resultCache = cache.NewResultCache(cfg.Cache, nil)
	}

	return &ForecastEngine{
		history:              deps.History,
		sales:                deps.Sales,
		results:              deps.Results,
		accuracy:             deps.Accuracy,
		cache:                resultCache,
		extractor:            extractor,
		model:                model,
		fallback:             forecast.NewNaiveAverage(cfg.Forecast),
		policy:               forecast.NewSupplyPolicy(cfg.Policy),
		historyWindowDays:    cfg.Forecast.HistoryWindowDays,
		accuracyWindow:       cfg.Accuracy.Window,
		defaultModelAccuracy: cfg.Accuracy.DefaultModelAccuracy,
		now:                  time.Now,
		newID:                uuid.NewString,
	}, nil
}

// Cache exposes the engine's result cache.
func (e *ForecastEngine) Cache() *cache.ResultCache {
	return e.cache
}

// ParseRequest validates raw request fields. A zero asOf means now.
func (e *ForecastEngine) ParseRequest(entityID, horizon string, asOf time.Time) (domain.PredictionRequest, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return domain.PredictionRequest{}, fmt.Errorf("%w: sto_id is required", domain.ErrInvalidInput)
	}
	h, ok := domain.ParseHorizon(horizon)
	if !ok {
		return domain.PredictionRequest{}, fmt.Errorf("%w: unsupported horizon %q", domain.ErrInvalidInput, horizon)
	}
	if asOf.IsZero() {
		asOf = e.now()
	}
	return domain.PredictionRequest{EntityID: entityID, Horizon: h, AsOf: asOf.UTC()}, nil
}

// Generate returns the forecast and supply recommendation for req.
//
// When the result could not be persisted, Generate returns the valid result
// together with an error wrapping domain.ErrPersistenceFailure. Such a result
// is not cached: the next call for the same inputs computes and saves again.
func (e *ForecastEngine) Generate(ctx context.Context, req domain.PredictionRequest) (*domain.PredictionResult, error) {
	req, err := e.ParseRequest(req.EntityID, string(req.Horizon), req.AsOf)
	if err != nil {
		return nil, err
	}

	// Features depend on as_of only through its calendar day, so requests for
	// the same day share one load + extract.
	flightKey := strings.Join([]string{
		req.EntityID,
		string(req.Horizon),
		domain.TruncateDay(req.AsOf).Format("2006-01-02"),
		strconv.FormatUint(e.cache.Generation(req.EntityID), 10),
	}, "|")

	detached := context.WithoutCancel(ctx)
	ch := e.requests.DoChan(flightKey, func() (interface{}, error) {
		result, err := e.generate(detached, req)
		return result, err
	})

	select {
	case res := <-ch:
		result, _ := res.Val.(*domain.PredictionResult)
		return result, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *ForecastEngine) generate(ctx context.Context, req domain.PredictionRequest) (*domain.PredictionResult, error) {
	logger := log.With().Str("entity_id", req.EntityID).Str("horizon", string(req.Horizon)).Logger()

	// 1. Load raw records
	window := domain.WindowEndingAt(req.AsOf, e.historyWindowDays)
	history, err := e.history.GetSalesHistory(ctx, req.EntityID, window)
	if err != nil {
		return nil, fmt.Errorf("load sales history: %w", err)
	}
	snapshot, err := e.history.GetContext(ctx, req.EntityID)
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}
	profile, err := e.history.GetProfile(ctx, req.EntityID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	var flags []string
	if len(history) == 0 {
		flags = append(flags, domain.FlagHistoryUnavailable)
	}
	if snapshot == nil {
		flags = append(flags, domain.FlagContextUnavailable)
	}
	if profile == nil {
		flags = append(flags, domain.FlagProfileUnavailable)
	}
	if len(flags) > 0 {
		logger.Info().Strs("data_flags", flags).Msg("forecast inputs missing, using defaults")
	}

	// 2. Extract features
	features, err := e.extractor.Extract(req.EntityID, history, snapshot, profile, req.AsOf)
	if err != nil {
		if errors.Is(err, domain.ErrComputeFailure) {
			logger.Error().Err(err).Msg("feature extraction failed")
		}
		return nil, err
	}

	// 3. Model + policy, cached by feature fingerprint
	key := cache.NewKey(req.EntityID, req.Horizon, features)
	if len(flags) > 0 {
		key.Fingerprint += "+" + strings.Join(flags, ",")
	}
	logger = logger.With().Str("cache_key", key.String()).Logger()

	result, err := e.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*domain.PredictionResult, error) {
		return e.compute(ctx, req, features, profile, flags)
	})
	switch {
	case err == nil:
	case result != nil && errors.Is(err, domain.ErrPersistenceFailure):
		logger.Warn().Err(err).Str("prediction_id", result.ID).Msg("prediction not persisted")
	case errors.Is(err, domain.ErrComputeFailure):
		logger.Error().Err(err).Msg("forecast computation failed")
		return nil, err
	default:
		return nil, err
	}
	return result, err
}

// compute evaluates the model and policy and persists the result.
func (e *ForecastEngine) compute(
	ctx context.Context,
	req domain.PredictionRequest,
	features domain.FeatureVector,
	profile *domain.EntityProfile,
	flags []string,
) (*domain.PredictionResult, error) {
	model := e.model
	if !forecast.HasHistory(features) {
		model = e.fallback
	}

	f, err := model.Predict(features)
	if err != nil {
		return nil, err
	}

	sales := f.For(req.Horizon)
	rec := e.policy.Recommend(sales, f.Confidence, features.Get(domain.FeatureTrend, 0), profile)

	result := &domain.PredictionResult{
		ID:              e.newID(),
		EntityID:        req.EntityID,
		Horizon:         req.Horizon,
		PredictionDate:  domain.TruncateDay(req.AsOf).AddDate(0, 0, 1),
		PredictedSales:  sales,
		PredictedSupply: rec.PredictedSupply,
		Confidence:      f.Confidence,
		RiskLevel:       rec.RiskLevel,
		Action:          rec.Action,
		ModelVersion:    model.Version(),
		FeaturesUsed:    features.Clone(),
		DataFlags:       flags,
		GeneratedAt:     e.now().UTC(),
	}

	if err := e.results.Save(ctx, result); err != nil {
		return result, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	return result, nil
}

// RecordSales stores new observations and invalidates the cached predictions
// of every entity they belong to.
func (e *ForecastEngine) RecordSales(ctx context.Context, observations []domain.SalesObservation) (int, error) {
	if e.sales == nil {
		return 0, errors.New("forecast engine: no sales writer configured")
	}
	if len(observations) == 0 {
		return 0, nil
	}

	entities := make(map[string]struct{})
	for i := range observations {
		obs := &observations[i]
		obs.EntityID = strings.TrimSpace(obs.EntityID)
		switch {
		case obs.EntityID == "":
			return 0, fmt.Errorf("%w: observation %d has no sto_id", domain.ErrInvalidInput, i)
		case obs.Date.IsZero():
			return 0, fmt.Errorf("%w: observation %d has no date", domain.ErrInvalidInput, i)
		case obs.Quantity < 0 || math.IsNaN(obs.Quantity) || math.IsInf(obs.Quantity, 0):
			return 0, fmt.Errorf("%w: observation %d has invalid quantity %v", domain.ErrInvalidInput, i, obs.Quantity)
		}
		obs.Date = domain.TruncateDay(obs.Date)
		entities[obs.EntityID] = struct{}{}
	}

	n, err := e.sales.AppendSales(ctx, observations)
	if err != nil {
		return 0, fmt.Errorf("append sales: %w", err)
	}

	var invalidateErrs []error
	for id := range entities {
		if err := e.InvalidateEntity(ctx, id); err != nil {
			invalidateErrs = append(invalidateErrs, err)
		}
	}

	log.Info().Int("observations", n).Int("entities", len(entities)).Msg("sales recorded")
	return n, errors.Join(invalidateErrs...)
}

// InvalidateEntity drops every cached prediction of entityID.
func (e *ForecastEngine) InvalidateEntity(ctx context.Context, entityID string) error {
	if err := e.cache.InvalidateEntity(ctx, entityID); err != nil {
		log.Warn().Err(err).Str("entity_id", entityID).Msg("cache invalidation incomplete")
		return err
	}
	return nil
}

// History returns the latest stored predictions of entityID, newest first.
func (e *ForecastEngine) History(ctx context.Context, entityID string, limit int) ([]*domain.PredictionResult, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, fmt.Errorf("%w: sto_id is required", domain.ErrInvalidInput)
	}
	return e.results.ListByEntity(ctx, entityID, limit)
}

// ReconcileAccuracy compares the stored prediction for period with the sales
// observed in it, appends an AccuracyRecord and refreshes the entity's model
// accuracy. It returns the most recent records, newest first. When no
// prediction was stored for the period the records are returned unchanged.
func (e *ForecastEngine) ReconcileAccuracy(ctx context.Context, entityID string, period domain.Period) ([]*domain.AccuracyRecord, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, fmt.Errorf("%w: sto_id is required", domain.ErrInvalidInput)
	}
	if !period.Horizon.Valid() {
		return nil, fmt.Errorf("%w: unsupported horizon %q", domain.ErrInvalidInput, period.Horizon)
	}
	if period.Start.IsZero() {
		return nil, fmt.Errorf("%w: period start is required", domain.ErrInvalidInput)
	}
	period = period.Normalize()

	now := e.now()
	if now.Before(period.End()) {
		return nil, fmt.Errorf("%w: period %s/%s has not ended", domain.ErrInvalidInput,
			period.Horizon, period.Start.Format("2006-01-02"))
	}

	exists, err := e.history.EntityExists(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("check entity: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: sto %s", domain.ErrNotFound, entityID)
	}

	logger := log.With().
		Str("entity_id", entityID).
		Str("horizon", string(period.Horizon)).
		Time("period_start", period.Start).
		Logger()

	prediction, err := e.results.FindBy(ctx, entityID, period)
	if err != nil {
		return nil, fmt.Errorf("find prediction: %w", err)
	}
	if prediction == nil {
		logger.Debug().Msg("no stored prediction for period")
		return e.recentAccuracy(ctx, entityID)
	}
	existing, err := e.accuracy.FindByPrediction(ctx, prediction.ID)
	if err != nil {
		return nil, fmt.Errorf("find accuracy record: %w", err)
	}
	if existing != nil {
		logger.Debug().Str("prediction_id", prediction.ID).Msg("prediction already reconciled")
		return e.recentAccuracy(ctx, entityID)
	}

	observations, err := e.history.GetSalesHistory(ctx, entityID, domain.Window{From: period.Start, To: period.End()})
	if err != nil {
		return nil, fmt.Errorf("load actual sales: %w", err)
	}
	var actual float64
	for _, obs := range observations {
		actual += obs.Quantity
	}

	record := &domain.AccuracyRecord{
		ID:               e.newID(),
		EntityID:         entityID,
		Horizon:          period.Horizon,
		PeriodStart:      period.Start,
		PredictionID:     prediction.ID,
		PredictedSales:   prediction.PredictedSales,
		ActualSales:      actual,
		AbsolutePctError: AbsolutePercentageError(prediction.PredictedSales, actual),
		ComputedAt:       now.UTC(),
	}
	if err := e.accuracy.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("append accuracy record: %w", err)
	}

	recent, err := e.recentAccuracy(ctx, entityID)
	if err != nil {
		return nil, err
	}

	rollup := &domain.ModelAccuracy{
		EntityID:    entityID,
		Accuracy:    RollupAccuracy(recent),
		SampleSize:  len(recent),
		LastUpdated: now.UTC(),
	}
	if err := e.accuracy.SaveModelAccuracy(ctx, rollup); err != nil {
		return nil, fmt.Errorf("save model accuracy: %w", err)
	}

	logger.Info().
		Float64("ape", record.AbsolutePctError).
		Float64("model_accuracy", rollup.Accuracy).
		Msg("prediction reconciled")
	return recent, nil
}

func (e *ForecastEngine) recentAccuracy(ctx context.Context, entityID string) ([]*domain.AccuracyRecord, error) {
	recent, err := e.accuracy.Recent(ctx, entityID, e.accuracyWindow)
	if err != nil {
		return nil, fmt.Errorf("load accuracy records: %w", err)
	}
	return recent, nil
}

// ModelAccuracy returns the rolled-up accuracy of entityID, or the configured
// default when nothing was reconciled yet.
func (e *ForecastEngine) ModelAccuracy(ctx context.Context, entityID string) (*domain.ModelAccuracy, error) {
	acc, err := e.accuracy.GetModelAccuracy(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return &domain.ModelAccuracy{EntityID: entityID, Accuracy: e.defaultModelAccuracy}, nil
	}
	return acc, nil
}

// AbsolutePercentageError returns |predicted-actual|/actual*100. With no
// actual sales it is 0 for a zero prediction and 100 otherwise.
func AbsolutePercentageError(predicted, actual float64) float64 {
	if actual == 0 {
		if predicted == 0 {
			return 0
		}
		return 100
	}
	return math.Abs(predicted-actual) / actual * 100
}

// RollupAccuracy is 1 - mean(APE)/100, clamped to [0, 1].
func RollupAccuracy(records []*domain.AccuracyRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.AbsolutePctError
	}
	acc := 1 - (sum/float64(len(records)))/100
	return math.Min(1, math.Max(0, acc))
}
