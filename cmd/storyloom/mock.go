package main

import (
	"encoding/json"
	"fmt"

	"github.com/storyloom/storyloom/pkg/scene"
)

// Canned replies for --mock runs. Each is schema-valid and scores above the
// session threshold, so the full produce/judge loop runs without API keys.

const mockStoryReply = `{
  "characters": [
    {
      "name": "Pip",
      "sex": "Male",
      "voice": "Squeaky",
      "description": "A small russet fox with oversized ears and a knitted red scarf"
    },
    {
      "name": "Willow",
      "sex": "Female",
      "voice": "High-pitched",
      "description": "A gentle fawn with white-dappled fur and a crown of daisies"
    }
  ],
  "setting": "A sunlit forest clearing beside a chattering brook, late spring",
  "plot": "A gust of wind steals Pip's beloved scarf. Too proud to ask for help, he chases it alone and gets tangled in brambles. Willow frees him, and together they follow the scarf downstream and fish it from the brook. Pip learns that asking for help is its own kind of bravery."
}`

const mockStoryCritique = `{
  "score": 8.4,
  "strengths": ["Visually distinct characters", "Clear three-act arc"],
  "weaknesses": ["The brook setting could carry more color detail"],
  "suggestions": ["Describe the light changing as the chase moves downstream"]
}`

const mockSceneCritique = `{
  "criteria_scores": {
    "visual_flow": 8.5,
    "narrative_coherence": 8.4,
    "character_usage": 8.3,
    "pacing": 8.2,
    "prompt_quality": 8.6,
    "style_fit": 8.5
  },
  "issues": [],
  "strengths": ["Each prompt stands alone"],
  "weaknesses": ["Scene transitions lean on the scarf motif"],
  "suggestions": ["Vary the camera distance between adjacent scenes"]
}`

// mockSceneReply builds a valid scene list of exactly count scenes, since the
// producer rejects any other count.
func mockSceneReply(count int) string {
	list := scene.List{}
	for i := 1; i <= count; i++ {
		list.Scenes = append(list.Scenes, scene.Scene{
			Number:          i,
			Title:           fmt.Sprintf("Chase, part %d", i),
			Description:     fmt.Sprintf("Pip follows his windblown scarf past the brook's bend %d.", i),
			DurationSeconds: 8.0,
			Characters:      []string{"Pip"},
			VisualPrompt:    fmt.Sprintf("Watercolor forest clearing, a small russet fox with oversized ears chasing a red scarf on the wind, shot %d, soft morning light.", i),
		})
	}
	data, err := json.Marshal(list)
	if err != nil {
		return ""
	}
	return string(data)
}
