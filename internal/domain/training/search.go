package training

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/okian/retention/internal/domain/evaluation"
	"github.com/okian/retention/internal/domain/feature"
	"github.com/okian/retention/internal/domain/gbm"
	"github.com/okian/retention/pkg/metrics"
)

// SearchSpace bounds the hyperparameters sampled by each trial.
type SearchSpace struct {
	MinIterations   int
	MaxIterations   int
	MinLearningRate float64
	MaxLearningRate float64
	MinDepth        int
	MaxDepth        int
	// L2 regularization is sampled log-uniformly.
	MinL2 float64
	MaxL2 float64
	// Half the trials fit on all rows; the other half sample a row share
	// between MinSubsample and 1.
	MinSubsample float64
	MinLeafSize  int
	MaxLeafSize  int
}

// DefaultSearchSpace mirrors the ranges the production model was tuned on.
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		MinIterations:   100,
		MaxIterations:   1000,
		MinLearningRate: 0.01,
		MaxLearningRate: 0.5,
		MinDepth:        2,
		MaxDepth:        8,
		MinL2:           1e-8,
		MaxL2:           10,
		MinSubsample:    0.1,
		MinLeafSize:     1,
		MaxLeafSize:     20,
	}
}

// sample draws one configuration.
func (s SearchSpace) sample(rng *rand.Rand, seed int64, earlyStopping int) gbm.Params {
	p := gbm.Params{
		Iterations:          s.MinIterations + rng.Intn(s.MaxIterations-s.MinIterations+1),
		LearningRate:        s.MinLearningRate + rng.Float64()*(s.MaxLearningRate-s.MinLearningRate),
		Depth:               s.MinDepth + rng.Intn(s.MaxDepth-s.MinDepth+1),
		L2LeafReg:           math.Exp(math.Log(s.MinL2) + rng.Float64()*(math.Log(s.MaxL2)-math.Log(s.MinL2))),
		Subsample:           1,
		MinLeafSize:         s.MinLeafSize + rng.Intn(s.MaxLeafSize-s.MinLeafSize+1),
		Seed:                seed,
		EarlyStoppingRounds: earlyStopping,
	}
	if rng.Intn(2) == 1 {
		p.Subsample = s.MinSubsample + rng.Float64()*(1-s.MinSubsample)
	}
	return p
}

// Trial is the outcome of one search trial.
type Trial struct {
	Index         int
	Params        gbm.Params
	Score         float64
	BestIteration int
	Err           error
}

// tuneSet is one positional tune-train / tune-validation view.
type tuneSet struct {
	cols   []feature.Column
	trainX [][]feature.Value
	trainY []float64
	valX   [][]feature.Value
	valY   []float64
}

// search runs the trials concurrently. Trials share only read-only data and
// write to their own result slot.
func (t *Trainer) search(ctx context.Context, ts tuneSet) ([]Trial, error) {
	trials := make([]Trial, t.cfg.Trials)
	truth := evaluation.Binarize(ts.valY)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Parallelism)
	for i := range trials {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(t.cfg.Seed + int64(i)))
			p := t.cfg.Space.sample(rng, t.cfg.Seed, t.cfg.EarlyStoppingRounds)
			trials[i] = Trial{Index: i, Params: p, Score: math.Inf(-1)}

			m, err := gbm.Fit(gctx, ts.cols, ts.trainX, ts.trainY, p, &gbm.EvalSet{X: ts.valX, Y: ts.valY})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				trials[i].Err = err
				metrics.RecordSearchTrial("error")
				return nil
			}
			probs, err := m.PredictBatch(ts.valX)
			if err != nil {
				trials[i].Err = err
				metrics.RecordSearchTrial("error")
				return nil
			}
			sel, err := evaluation.SearchThreshold(probs, truth, t.cfg.Grid, 0)
			if err != nil {
				trials[i].Err = err
				metrics.RecordSearchTrial("error")
				return nil
			}
			trials[i].Score = sel.Metrics.MacroF1
			trials[i].BestIteration = m.BestIteration
			metrics.RecordSearchTrial("ok")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trials, nil
}

// bestTrial returns the highest-scoring successful trial; ties go to the
// lower index.
func bestTrial(trials []Trial) (Trial, bool) {
	best, ok := Trial{Score: math.Inf(-1)}, false
	for _, tr := range trials {
		if tr.Err != nil {
			continue
		}
		if !ok || tr.Score > best.Score {
			best, ok = tr, true
		}
	}
	return best, ok
}

func sortImportance(imp []FeatureImportance) {
	sort.SliceStable(imp, func(i, j int) bool { return imp[i].Importance > imp[j].Importance })
}
