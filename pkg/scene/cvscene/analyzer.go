// Package cvscene implements scene.Pipeline on OpenCV.
//
// Each frame is fed to a MOG2 background model. The foreground mask is
// scored on a chunk grid to pick the scene state, and its external
// contours are tracked across frames to produce significant moments.
package cvscene

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-framegate/pkg/scene"
)

// MOG2 parameters. Shadows are detected so they can be thresholded out.
const (
	historyFrames  = 500
	varThreshold   = 16
	shadowCutoff   = 200
	morphKernelDim = 3
)

// Analyzer is an OpenCV-backed scene analyzer bound to one frame size.
type Analyzer struct {
	cfg scene.AnalyzerConfig

	mu      sync.Mutex // Protects the OpenCV state
	mog     gocv.BackgroundSubtractorMOG2
	mask    gocv.Mat
	kernel  gocv.Mat
	tracker *tracker
	states  *classifier
	closed  bool
}

// New creates an analyzer for cfg. It implements scene.Factory.
func New(cfg scene.AnalyzerConfig) (scene.Pipeline, error) {
	return NewAnalyzer(cfg)
}

// NewAnalyzer is New returning the concrete type.
func NewAnalyzer(cfg scene.AnalyzerConfig) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{
		cfg:     cfg,
		mog:     gocv.NewBackgroundSubtractorMOG2WithParams(historyFrames, varThreshold, true),
		mask:    gocv.NewMat(),
		kernel:  gocv.GetStructuringElement(gocv.MorphRect, image.Pt(morphKernelDim, morphKernelDim)),
		tracker: newTracker(cfg),
		states:  newClassifier(cfg),
	}, nil
}

// ProcessFrame implements scene.Pipeline.
func (a *Analyzer) ProcessFrame(pix []byte) (scene.Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return scene.Analysis{}, fmt.Errorf("cvscene: analyzer closed")
	}
	if len(pix) != a.cfg.Pixels() {
		return scene.Analysis{}, fmt.Errorf("%w: got %d bytes, want %d", scene.ErrFrameSize, len(pix), a.cfg.Pixels())
	}

	frame, err := gocv.NewMatFromBytes(a.cfg.Height, a.cfg.Width, gocv.MatTypeCV8UC1, pix)
	if err != nil {
		return scene.Analysis{}, fmt.Errorf("cvscene: wrap frame: %w", err)
	}
	defer frame.Close()

	a.mog.Apply(frame, &a.mask)
	gocv.Threshold(a.mask, &a.mask, shadowCutoff, 255, gocv.ThresholdBinary)
	gocv.MorphologyEx(a.mask, &a.mask, gocv.MorphOpen, a.kernel)

	ratio := occupancy(a.mask.ToBytes(), a.cfg.Width, a.cfg.Height, a.cfg.ChunkSize, a.cfg.AnomalyThreshold)
	state := a.states.next(ratio)

	blobs, started, ended := a.tracker.update(a.contours())

	analysis := scene.Analysis{
		State:   state,
		Report:  scene.NoReport{},
		Tracked: blobs,
	}
	if state == scene.Disturbed && len(started)+len(ended) > 0 {
		analysis.Report = scene.SignificantMoments{New: started, Completed: ended}
	}
	return analysis, nil
}

// contours extracts foreground blobs at least MinBlobSize pixels in area.
func (a *Analyzer) contours() []detection {
	pv := gocv.FindContours(a.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer pv.Close()

	var dets []detection
	for i := 0; i < pv.Size(); i++ {
		c := pv.At(i)
		area := gocv.ContourArea(c)
		if int(area) < a.cfg.MinBlobSize {
			continue
		}
		r := gocv.BoundingRect(c)
		dets = append(dets, detection{
			cx:   float64(r.Min.X+r.Max.X) / 2,
			cy:   float64(r.Min.Y+r.Max.Y) / 2,
			area: int(area),
		})
	}
	return dets
}

// Reset implements scene.Pipeline. The background model is rebuilt and
// tracking history is dropped, so the analyzer calibrates again.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.mog.Close()
	a.mog = gocv.NewBackgroundSubtractorMOG2WithParams(historyFrames, varThreshold, true)
	a.tracker.reset()
	a.states.reset()
}

// Close implements scene.Pipeline.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.mog.Close()
	a.mask.Close()
	a.kernel.Close()
	return nil
}

// Config returns the configuration the analyzer was built with.
func (a *Analyzer) Config() scene.AnalyzerConfig {
	return a.cfg
}
