package videoqc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/storyloom/storyloom/pkg/adapter"
	"github.com/storyloom/storyloom/pkg/candidate"
	"github.com/storyloom/storyloom/pkg/refine"
	"github.com/storyloom/storyloom/pkg/story"
)

const frameSampleCount = 4

const anatomyInstruction = `You are a strict video quality inspector for AI-generated animation.
Examine the frames for anatomical defects: extra or missing limbs, deformed
or fused hands, extra fingers, distorted faces, body parts morphing between
frames, impossible poses.

Respond with JSON:
{
  "score": <0-10, 10 = no anatomical defects>,
  "issues": [
    {"message": "<defect>", "severity": "minor|major|critical", "unfixable": <true if no prompt change could repair it>}
  ],
  "suggestions": ["<prompt change that would reduce the defect>"]
}`

const consistencyInstruction = `You are a character-consistency inspector for AI-generated animation.
The first images are canonical character references; the rest are frames from
a generated clip. Check that every character in the frames matches its
reference: same face, body shape, colors, clothing, and proportions, stable
across frames.

Respond with JSON:
{
  "score": <0-10, 10 = perfect match to references>,
  "issues": [
    {"message": "<mismatch>", "severity": "minor|major|critical", "unfixable": <true if no prompt change could repair it>}
  ],
  "suggestions": ["<prompt change that would improve the match>"]
}`

// frameVerdict is the JSON shape both vision judges expect back.
type frameVerdict struct {
	Score  float64 `json:"score"`
	Issues []struct {
		Message   string `json:"message"`
		Severity  string `json:"severity"`
		Unfixable bool   `json:"unfixable"`
	} `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// AnatomyJudge scores a clip for anatomical defects by sampling frames and
// asking a multimodal model to inspect them.
type AnatomyJudge struct {
	Analyzer FrameAnalyzer
	Sampler  FrameSampler
	Logger   func(format string, args ...any)
}

// NewAnatomyJudge creates an anatomy judge.
func NewAnatomyJudge(analyzer FrameAnalyzer, sampler FrameSampler) *AnatomyJudge {
	return &AnatomyJudge{Analyzer: analyzer, Sampler: sampler, Logger: log.Printf}
}

// Name returns the judge identifier.
func (j *AnatomyJudge) Name() string {
	return DimAnatomy
}

// Judge implements refine.Judge.
func (j *AnatomyJudge) Judge(ctx context.Context, cand candidate.Candidate, spec *refine.TaskSpec) (*refine.Verdict, error) {
	video, task, err := unpack(cand, spec, DimAnatomy)
	if err != nil {
		return nil, err
	}

	frames, err := j.Sampler.SampleFrames(ctx, video.Path, frameSampleCount)
	if err != nil {
		return nil, fmt.Errorf("sample frames from %s: %w", video.Path, err)
	}

	contextJSON := fmt.Sprintf(`{"scene_number": %d, "scene_description": %q}`,
		task.SceneNumber, task.SceneDescription)
	reply, err := j.Analyzer.AnalyzeFrames(ctx, frames, anatomyInstruction, contextJSON)
	if err != nil {
		return nil, fmt.Errorf("anatomy analysis: %w", err)
	}

	verdict, err := parseFrameVerdict(reply, DimAnatomy)
	if err != nil {
		return nil, &adapter.AdapterError{Temporary: true, Err: err}
	}
	j.log("[videoqc] anatomy score %.1f for %s", verdict.Scores[DimAnatomy], video.Path)
	return verdict, nil
}

func (j *AnatomyJudge) log(format string, args ...any) {
	if j.Logger != nil {
		j.Logger(format, args...)
	}
}

// ConsistencyJudge checks generated frames against the task's character
// reference images.
type ConsistencyJudge struct {
	Analyzer FrameAnalyzer
	Sampler  FrameSampler
	Logger   func(format string, args ...any)
}

// NewConsistencyJudge creates a consistency judge.
func NewConsistencyJudge(analyzer FrameAnalyzer, sampler FrameSampler) *ConsistencyJudge {
	return &ConsistencyJudge{Analyzer: analyzer, Sampler: sampler, Logger: log.Printf}
}

// Name returns the judge identifier.
func (j *ConsistencyJudge) Name() string {
	return DimConsistency
}

// Judge implements refine.Judge. Reference images are sent ahead of the
// sampled frames so the model can compare against them. With no references
// the dimension scores a neutral full mark.
func (j *ConsistencyJudge) Judge(ctx context.Context, cand candidate.Candidate, spec *refine.TaskSpec) (*refine.Verdict, error) {
	video, task, err := unpack(cand, spec, DimConsistency)
	if err != nil {
		return nil, err
	}

	if len(task.References) == 0 {
		return &refine.Verdict{Scores: map[string]float64{DimConsistency: refine.MaxScore}}, nil
	}

	images := make([][]byte, 0, len(task.References)+frameSampleCount)
	names := make([]string, 0, len(task.References))
	for _, ref := range task.References {
		data, err := os.ReadFile(ref.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("read reference image for %s: %w", ref.Name, err)
		}
		images = append(images, data)
		names = append(names, ref.Name)
	}

	frames, err := j.Sampler.SampleFrames(ctx, video.Path, frameSampleCount)
	if err != nil {
		return nil, fmt.Errorf("sample frames from %s: %w", video.Path, err)
	}
	images = append(images, frames...)

	namesJSON, _ := json.Marshal(names)
	contextJSON := fmt.Sprintf(`{"scene_number": %d, "reference_count": %d, "characters": %s}`,
		task.SceneNumber, len(task.References), namesJSON)
	reply, err := j.Analyzer.AnalyzeFrames(ctx, images, consistencyInstruction, contextJSON)
	if err != nil {
		return nil, fmt.Errorf("consistency analysis: %w", err)
	}

	verdict, err := parseFrameVerdict(reply, DimConsistency)
	if err != nil {
		return nil, &adapter.AdapterError{Temporary: true, Err: err}
	}
	j.log("[videoqc] consistency score %.1f for %s", verdict.Scores[DimConsistency], video.Path)
	return verdict, nil
}

func (j *ConsistencyJudge) log(format string, args ...any) {
	if j.Logger != nil {
		j.Logger(format, args...)
	}
}

func unpack(cand candidate.Candidate, spec *refine.TaskSpec, judge string) (*Candidate, *Task, error) {
	video, ok := cand.(*Candidate)
	if !ok {
		return nil, nil, fmt.Errorf("%s judge: unexpected candidate %T", judge, cand)
	}
	task, ok := spec.Payload.(*Task)
	if !ok {
		return nil, nil, fmt.Errorf("%s judge: unexpected payload %T", judge, spec.Payload)
	}
	return video, task, nil
}

func parseFrameVerdict(reply, dimension string) (*refine.Verdict, error) {
	raw, err := story.ExtractJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("%s verdict: %w", dimension, err)
	}
	var fv frameVerdict
	if err := json.Unmarshal([]byte(raw), &fv); err != nil {
		return nil, fmt.Errorf("%s verdict: %w", dimension, err)
	}
	if fv.Score < refine.MinScore || fv.Score > refine.MaxScore {
		return nil, fmt.Errorf("%s verdict: score %.1f out of range", dimension, fv.Score)
	}

	verdict := &refine.Verdict{
		Scores:      map[string]float64{dimension: fv.Score},
		Suggestions: fv.Suggestions,
	}
	for _, issue := range fv.Issues {
		severity := refine.Severity(issue.Severity)
		switch severity {
		case refine.SeverityMinor, refine.SeverityMajor, refine.SeverityCritical:
		default:
			severity = refine.SeverityMajor
		}
		verdict.Issues = append(verdict.Issues, refine.Issue{
			Category:  dimension,
			Severity:  severity,
			Message:   issue.Message,
			Unfixable: issue.Unfixable,
		})
	}
	return verdict, nil
}
