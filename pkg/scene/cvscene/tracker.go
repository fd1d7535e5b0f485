package cvscene

import (
	"math"
	"sort"

	"github.com/teslashibe/go-framegate/pkg/scene"
)

// detection is a foreground contour found in one frame.
type detection struct {
	cx, cy float64
	area   int
}

type track struct {
	id          uint64
	cx, cy      float64
	area        int
	age         int
	significant bool
}

// tracker associates detections across frames by nearest centroid and
// reports when tracks become significant (reach persistAge) or end.
type tracker struct {
	maxDist    float64
	sizeDev    float64
	persistAge int

	nextID uint64
	tracks []*track
}

func newTracker(cfg scene.AnalyzerConfig) *tracker {
	return &tracker{
		maxDist:    float64(cfg.ChunkSize * 2),
		sizeDev:    cfg.SizeDeviation,
		persistAge: cfg.PersistenceAge,
	}
}

type pair struct {
	track, det int
	dist       float64
}

// update advances every track by one frame.
func (t *tracker) update(dets []detection) (blobs []scene.Blob, started, ended []scene.Moment) {
	var pairs []pair
	for ti, tr := range t.tracks {
		for di, d := range dets {
			dist := math.Hypot(tr.cx-d.cx, tr.cy-d.cy)
			if dist > t.maxDist || !t.similar(tr.area, d.area) {
				continue
			}
			pairs = append(pairs, pair{track: ti, det: di, dist: dist})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dist < pairs[j].dist })

	trackUsed := make([]bool, len(t.tracks))
	detUsed := make([]bool, len(dets))
	for _, p := range pairs {
		if trackUsed[p.track] || detUsed[p.det] {
			continue
		}
		trackUsed[p.track] = true
		detUsed[p.det] = true

		tr := t.tracks[p.track]
		d := dets[p.det]
		tr.cx, tr.cy, tr.area = d.cx, d.cy, d.area
		tr.age++
	}

	live := t.tracks[:0]
	for i, tr := range t.tracks {
		if !trackUsed[i] {
			if tr.significant {
				ended = append(ended, tr.moment())
			}
			continue
		}
		live = append(live, tr)
	}
	t.tracks = live

	for i, d := range dets {
		if detUsed[i] {
			continue
		}
		t.nextID++
		t.tracks = append(t.tracks, &track{id: t.nextID, cx: d.cx, cy: d.cy, area: d.area, age: 1})
	}

	for _, tr := range t.tracks {
		if !tr.significant && tr.age >= t.persistAge {
			tr.significant = true
			started = append(started, tr.moment())
		}
		blobs = append(blobs, scene.Blob{
			ID:   tr.id,
			X:    int(math.Round(tr.cx)),
			Y:    int(math.Round(tr.cy)),
			Area: tr.area,
			Age:  tr.age,
		})
	}
	return blobs, started, ended
}

// similar applies the size-deviation filter relative to the tracked area.
func (t *tracker) similar(tracked, seen int) bool {
	if tracked <= 0 {
		return true
	}
	dev := math.Abs(float64(seen-tracked)) / float64(tracked)
	return dev <= t.sizeDev
}

func (t *tracker) reset() {
	t.tracks = nil
	t.nextID = 0
}

func (tr *track) moment() scene.Moment {
	return scene.Moment{ObjectID: tr.id, Age: tr.age, Area: tr.area}
}
