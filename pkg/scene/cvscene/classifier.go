package cvscene

import "github.com/teslashibe/go-framegate/pkg/scene"

// classifier turns per-frame chunk occupancy into a scene state.
// The first warmup frames are Calibrating, and the frame after warmup
// takes its target state directly. From then on every state change,
// into or out of Disturbed, must hold for confirm consecutive frames.
// Once Disturbed, the target stays Disturbed until occupancy falls
// below exit.
type classifier struct {
	warmup  int
	confirm int
	entry   float64
	exit    float64

	frames    int
	state     scene.State
	candidate scene.State
	streak    int
}

func newClassifier(cfg scene.AnalyzerConfig) *classifier {
	return &classifier{
		warmup:  cfg.PersistenceAge,
		confirm: max(cfg.ConfirmationFrames, 1),
		entry:   cfg.DisturbanceEntry,
		exit:    cfg.DisturbanceExit,
		state:   scene.Calibrating,
	}
}

func (c *classifier) next(ratio float64) scene.State {
	c.frames++
	if c.frames <= c.warmup {
		return c.state
	}

	target := c.target(ratio)
	switch {
	case c.state == scene.Calibrating:
		c.state = target
		c.streak = 0
	case target == c.state:
		c.streak = 0
	case target == c.candidate && c.streak > 0:
		c.streak++
	default:
		c.candidate = target
		c.streak = 1
	}
	if c.streak >= c.confirm {
		c.state = target
		c.streak = 0
	}
	return c.state
}

func (c *classifier) target(ratio float64) scene.State {
	switch {
	case ratio >= c.entry:
		return scene.Disturbed
	case c.state == scene.Disturbed && ratio >= c.exit:
		return scene.Disturbed
	case ratio >= c.exit:
		return scene.Volatile
	default:
		return scene.Stable
	}
}

func (c *classifier) reset() {
	c.frames = 0
	c.state = scene.Calibrating
	c.candidate = scene.Calibrating
	c.streak = 0
}
