package analysis

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/core-tools/hsu-governor/pkg/errors"
	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
)

// ResourceForecast is the predicted usage of one resource at the horizon
type ResourceForecast struct {
	Current    float64 `json:"current"`
	Predicted  float64 `json:"predicted"`
	Confidence float64 `json:"confidence"`

	// Importances shows which resources drove this forecast, normalized
	// to sum to one. Empty until the model is trained.
	Importances map[resourcequota.ResourceType]float64 `json:"importances,omitempty"`
}

// ResourcePrediction is a full cross-resource forecast
type ResourcePrediction struct {
	GeneratedAt    time.Time                                        `json:"generated_at"`
	Horizon        time.Duration                                    `json:"horizon"`
	TrainedSamples int                                              `json:"trained_samples"`
	Forecasts      map[resourcequota.ResourceType]*ResourceForecast `json:"forecasts"`
}

// ScaleRecommendation flags one resource whose forecast reaches the
// scaling threshold
type ScaleRecommendation struct {
	ID         string                     `json:"id"`
	Resource   resourcequota.ResourceType `json:"resource"`
	Current    float64                    `json:"current"`
	Predicted  float64                    `json:"predicted"`
	Threshold  float64                    `json:"threshold"`
	Confidence float64                    `json:"confidence"`
	Message    string                     `json:"message"`
}

// ScaleAssessment is the outcome of a scaling check
type ScaleAssessment struct {
	ShouldScale     bool                   `json:"should_scale"`
	GeneratedAt     time.Time              `json:"generated_at"`
	Recommendations []*ScaleRecommendation `json:"recommendations"`
}

// maxPredictSteps caps horizon iteration so a misconfigured horizon
// cannot spin the predictor
const maxPredictSteps = 3600

// PredictiveScaler forecasts future usage with one linear model per
// resource, each fed the full cross-resource feature vector so that
// correlated resources inform each other's forecasts. Models train on
// snapshots of sample history and predict by iterating one sampling step
// at a time up to the horizon.
type PredictiveScaler struct {
	mutex          sync.RWMutex
	minSamples     int
	sampleInterval time.Duration
	logger         logging.Logger

	models         map[resourcequota.ResourceType]*linearModel
	trainedSamples int
}

// NewPredictiveScaler creates an untrained scaler. minSamples gates
// training; sampleInterval converts prediction horizons into model steps.
func NewPredictiveScaler(minSamples int, sampleInterval time.Duration, logger logging.Logger) *PredictiveScaler {
	if minSamples <= 0 {
		minSamples = 100
	}
	if sampleInterval <= 0 {
		sampleInterval = time.Second
	}
	return &PredictiveScaler{
		minSamples:     minSamples,
		sampleInterval: sampleInterval,
		logger:         logger,
		models:         make(map[resourcequota.ResourceType]*linearModel),
	}
}

// featuresOf flattens a sample into the canonical feature vector, with
// zero standing in for absent readings
func featuresOf(usage *resourcequota.ResourceUsage) []float64 {
	types := resourcequota.ResourceTypes()
	features := make([]float64, len(types))
	for i, resourceType := range types {
		value, present := usage.Value(resourceType)
		if present {
			features[i] = value
		}
	}
	return features
}

// Retrain fits fresh models from a chronological run of samples. Fewer
// samples than the training gate is a no-op. Per-resource fit failures
// are reported but do not block the other resources; previously trained
// models for failed resources are kept.
func (ps *PredictiveScaler) Retrain(rows []resourcequota.ResourceUsage) error {
	if len(rows) < ps.minSamples {
		ps.logger.Debugf("Skipping retrain: %d samples, need %d", len(rows), ps.minSamples)
		return nil
	}

	featureRows := make([][]float64, len(rows))
	for i := range rows {
		featureRows[i] = featuresOf(&rows[i])
	}

	types := resourcequota.ResourceTypes()
	trained := make(map[resourcequota.ResourceType]*linearModel, len(types))
	collection := errors.NewErrorCollection()

	for k, resourceType := range types {
		if !resourcePresent(rows, resourceType) {
			continue
		}

		// One-step-ahead targets: predict the next sample's value from
		// the current feature vector
		inputs := featureRows[:len(featureRows)-1]
		targets := make([]float64, len(rows)-1)
		for i := 1; i < len(rows); i++ {
			targets[i-1] = featureRows[i][k]
		}

		model, err := fitLinearModel(inputs, targets)
		if err != nil {
			collection.Add(errors.NewAnalysisError(
				fmt.Sprintf("failed to train %s model", resourceType), err))
			continue
		}
		trained[resourceType] = model
	}

	ps.mutex.Lock()
	for resourceType, model := range trained {
		ps.models[resourceType] = model
	}
	ps.trainedSamples = len(rows)
	ps.mutex.Unlock()

	return collection.ToError()
}

func resourcePresent(rows []resourcequota.ResourceUsage, resourceType resourcequota.ResourceType) bool {
	for i := range rows {
		if _, present := rows[i].Value(resourceType); present {
			return true
		}
	}
	return false
}

// Trained reports whether at least one model has been fitted
func (ps *PredictiveScaler) Trained() bool {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()
	return len(ps.models) > 0
}

// TrainedSamples returns the size of the last training set
func (ps *PredictiveScaler) TrainedSamples() int {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()
	return ps.trainedSamples
}

// Predict forecasts usage at the horizon by iterating the one-step models
// from the current sample. Untrained resources hold their current value
// with zero confidence; predictions are clamped to non-negative values.
func (ps *PredictiveScaler) Predict(current *resourcequota.ResourceUsage, horizon time.Duration) *ResourcePrediction {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	if horizon <= 0 {
		horizon = ps.sampleInterval
	}
	steps := int(horizon / ps.sampleInterval)
	if steps < 1 {
		steps = 1
	}
	if steps > maxPredictSteps {
		steps = maxPredictSteps
	}

	types := resourcequota.ResourceTypes()
	state := featuresOf(current)

	if len(ps.models) > 0 {
		for step := 0; step < steps; step++ {
			next := make([]float64, len(state))
			copy(next, state)
			for k, resourceType := range types {
				model, ok := ps.models[resourceType]
				if !ok {
					continue
				}
				predicted := model.predict(state)
				if predicted < 0 {
					predicted = 0
				}
				next[k] = predicted
			}
			state = next
		}
	}

	prediction := &ResourcePrediction{
		GeneratedAt:    current.Timestamp,
		Horizon:        horizon,
		TrainedSamples: ps.trainedSamples,
		Forecasts:      make(map[resourcequota.ResourceType]*ResourceForecast),
	}

	for k, resourceType := range types {
		currentValue, present := current.Value(resourceType)
		if !present {
			continue
		}
		forecast := &ResourceForecast{
			Current:   currentValue,
			Predicted: state[k],
		}
		if model, ok := ps.models[resourceType]; ok {
			forecast.Confidence = model.confidence
			forecast.Importances = ps.importancesFor(model)
		}
		prediction.Forecasts[resourceType] = forecast
	}

	return prediction
}

func (ps *PredictiveScaler) importancesFor(model *linearModel) map[resourcequota.ResourceType]float64 {
	result := make(map[resourcequota.ResourceType]float64)
	for k, resourceType := range resourcequota.ResourceTypes() {
		if k < len(model.importances) && model.importances[k] > 0 {
			result[resourceType] = model.importances[k]
		}
	}
	return result
}

// ShouldScale checks the forecast against the quota's scaling thresholds.
// A resource is flagged when its predicted usage reaches the configured
// share of the hard limit. The scaling threshold is independent of the
// violation thresholds.
func (ps *PredictiveScaler) ShouldScale(current *resourcequota.ResourceUsage, quota *resourcequota.ResourceQuota, horizon time.Duration) *ScaleAssessment {
	prediction := ps.Predict(current, horizon)

	assessment := &ScaleAssessment{
		GeneratedAt: prediction.GeneratedAt,
	}

	for _, resourceType := range resourcequota.ResourceTypes() {
		hardLimit, governed := quota.Limit(resourceType)
		if !governed {
			continue
		}
		forecast, ok := prediction.Forecasts[resourceType]
		if !ok {
			continue
		}

		threshold := hardLimit * (quota.EffectiveScalePercent() / 100.0)
		if forecast.Predicted < threshold {
			continue
		}

		assessment.Recommendations = append(assessment.Recommendations, &ScaleRecommendation{
			ID:         uuid.New().String(),
			Resource:   resourceType,
			Current:    forecast.Current,
			Predicted:  forecast.Predicted,
			Threshold:  threshold,
			Confidence: forecast.Confidence,
			Message: fmt.Sprintf("%s predicted to reach %.1f within %v, scaling threshold is %.1f of limit %.1f",
				resourceType, forecast.Predicted, prediction.Horizon, threshold, hardLimit),
		})
	}

	assessment.ShouldScale = len(assessment.Recommendations) > 0
	return assessment
}
