package videoqc

import (
	"context"
	"fmt"
)

// MockAnalyzer returns a fixed frame-analysis verdict so pipelines can run
// without a vision backend.
type MockAnalyzer struct {
	// Reply overrides the default passing verdict when set.
	Reply string
}

// AnalyzeFrames implements FrameAnalyzer.
func (m MockAnalyzer) AnalyzeFrames(_ context.Context, _ [][]byte, _ string, _ string) (string, error) {
	if m.Reply != "" {
		return m.Reply, nil
	}
	return `{"score": 9.0, "issues": [], "suggestions": []}`, nil
}

// MockSampler fabricates frame payloads without decoding the clip.
type MockSampler struct{}

// SampleFrames implements FrameSampler.
func (MockSampler) SampleFrames(_ context.Context, path string, count int) ([][]byte, error) {
	frames := make([][]byte, count)
	for i := range frames {
		frames[i] = fmt.Appendf(nil, "frame %d of %s", i, path)
	}
	return frames, nil
}

// MockProbe reports clean metrics for any clip.
type MockProbe struct {
	// Metrics overrides the default in-tolerance metrics when set.
	Metrics *VideoMetrics
}

// Probe implements MetricsProbe.
func (m MockProbe) Probe(_ context.Context, _ string) (*VideoMetrics, error) {
	if m.Metrics != nil {
		return m.Metrics, nil
	}
	return &VideoMetrics{DurationSeconds: 8.0, MotionQuality: 0.9, VisualClarity: 0.9}, nil
}
