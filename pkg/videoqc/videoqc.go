// Package videoqc implements the video-quality instantiation of the
// refinement loop. Generated clips are judged along three weighted
// dimensions: anatomy (multimodal frame analysis for limb and morphing
// errors), consistency (character match against reference images), and
// technical (deterministic duration/motion/clarity checks). Failing clips are
// regenerated with a refined prompt; a lenient floor avoids over-iterating on
// diminishing returns.
package videoqc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/storyloom/storyloom/pkg/candidate"
	"github.com/storyloom/storyloom/pkg/refine"
)

// Scoring dimensions and their weights.
const (
	DimAnatomy     = "anatomy"
	DimConsistency = "consistency"
	DimTechnical   = "technical"
)

// Weights sum to 1.0; anatomy dominates because anatomical defects are the
// most jarring failure mode in generated video.
var Dimensions = []refine.Dimension{
	{Name: DimAnatomy, Weight: 0.40},
	{Name: DimConsistency, Weight: 0.35},
	{Name: DimTechnical, Weight: 0.25},
}

// Session defaults for video validation.
const (
	DefaultThreshold        = 8.0
	DefaultLenientThreshold = 6.5
	DefaultMaxIterations    = 3 // first generation plus two regenerations
)

// CharacterReference ties a character to its canonical reference image.
type CharacterReference struct {
	Name        string `json:"name"`
	ImagePath   string `json:"image_path"`
	Description string `json:"description"`
}

// VideoMetrics are the measurable properties of one clip. Extraction
// (ffprobe, frame differencing) lives behind MetricsProbe.
type VideoMetrics struct {
	DurationSeconds float64 `json:"duration_seconds"`
	MotionQuality   float64 `json:"motion_quality"` // 0-1
	VisualClarity   float64 `json:"visual_clarity"` // 0-1
}

// MetricsProbe measures a video file.
type MetricsProbe interface {
	Probe(ctx context.Context, path string) (*VideoMetrics, error)
}

// FrameSampler extracts encoded frames from a video for multimodal analysis.
type FrameSampler interface {
	SampleFrames(ctx context.Context, path string, count int) ([][]byte, error)
}

// Task is the payload of one scene's video validation session.
type Task struct {
	SceneNumber      int
	SceneDescription string
	Prompt           string // initial generation prompt
	References       []CharacterReference
	ExpectedDuration float64
}

// NewTaskSpec builds the refinement task for one video clip. The lenient
// threshold and unfixable short-circuit are enabled for this instantiation.
func NewTaskSpec(task *Task, maxIterations int) *refine.TaskSpec {
	if maxIterations < 1 {
		maxIterations = DefaultMaxIterations
	}
	if task.ExpectedDuration <= 0 {
		task.ExpectedDuration = 8.0
	}
	return &refine.TaskSpec{
		Name:             fmt.Sprintf("video-scene-%d", task.SceneNumber),
		Payload:          task,
		Threshold:        DefaultThreshold,
		LenientThreshold: DefaultLenientThreshold,
		MaxIterations:    maxIterations,
		Dimensions:       Dimensions,
		FailOnUnfixable:  true,
	}
}

// Candidate wraps one generated clip as a refinement artifact.
type Candidate struct {
	candidate.Meta
	Path        string
	SceneNumber int
	Prompt      string // prompt that generated this clip
}

type candidateBody struct {
	Path        string `json:"path"`
	SceneNumber int    `json:"scene_number"`
	Prompt      string `json:"prompt"`
}

// NewCandidate creates a first-version video candidate.
func NewCandidate(path string, sceneNumber int, prompt string) *Candidate {
	return &Candidate{
		Meta:        candidate.NewMeta(candidate.KindVideo, marshalBody(path, sceneNumber, prompt)),
		Path:        path,
		SceneNumber: sceneNumber,
		Prompt:      prompt,
	}
}

// Regenerated creates the next version of this candidate for a new clip.
func (c *Candidate) Regenerated(path, prompt string) *Candidate {
	return &Candidate{
		Meta:        c.Meta.NextVersion(marshalBody(path, c.SceneNumber, prompt)),
		Path:        path,
		SceneNumber: c.SceneNumber,
		Prompt:      prompt,
	}
}

func marshalBody(path string, sceneNumber int, prompt string) string {
	body, err := json.Marshal(candidateBody{Path: path, SceneNumber: sceneNumber, Prompt: prompt})
	if err != nil {
		// Marshal of plain strings cannot fail; keep the candidate usable.
		return fmt.Sprintf(`{"path":%q,"scene_number":%d}`, path, sceneNumber)
	}
	return string(body)
}
