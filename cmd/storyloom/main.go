package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/storyloom/storyloom/pkg/adapter"
	"github.com/storyloom/storyloom/pkg/config"
	"github.com/storyloom/storyloom/pkg/refine"
	"github.com/storyloom/storyloom/pkg/scene"
	"github.com/storyloom/storyloom/pkg/story"
	"github.com/storyloom/storyloom/pkg/trace"
	"github.com/storyloom/storyloom/pkg/videoqc"
)

var (
	rolesFile string
	mockFlag  bool
	jsonFlag  bool
	traceDir  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "storyloom",
		Short: "Iterative story-to-video generation with quality refinement",
		Long: `Storyloom turns a one-line idea into a children's story, a scene
	breakdown, and quality-validated video clips. Every stage runs a
	produce/judge/refine loop: a model drafts, a critic scores, and the
	draft is reworked until it clears the quality bar or the iteration
	budget runs out.`,
	}

	rootCmd.PersistentFlags().StringVar(&rolesFile, "roles", "", "path to role routing file")
	rootCmd.PersistentFlags().BoolVar(&mockFlag, "mock", false, "use the mock adapter for all roles")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "emit results as JSON")
	rootCmd.PersistentFlags().StringVar(&traceDir, "trace-dir", "", "write session traces under this directory")

	rootCmd.AddCommand(storyCmd())
	rootCmd.AddCommand(scenesCmd())
	rootCmd.AddCommand(videosCmd())
	rootCmd.AddCommand(modelsCmd())
	return rootCmd
}

func storyCmd() *cobra.Command {
	var styleFlag string
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "story [idea]",
		Short: "Generate a story from an idea",
		Long: `Drafts a short story for the given idea and refines it until the
	critic's score clears the quality bar.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, adapters, err := setup()
			if err != nil {
				return err
			}

			spec := story.NewTaskSpec(args[0], styleFlag, pick(maxIterations, cfg.Sessions.StoryMaxIterations))
			producer := story.NewProducer(roleAdapter(cfg, adapters, config.RoleStoryProducer, mockStoryReply))
			critic := story.NewCritic(roleAdapter(cfg, adapters, config.RoleStoryCritic, mockStoryCritique))

			ctrl := refine.NewController(producer, critic)
			_, finish, err := withTrace(cfg, ctrl, spec.Name)
			if err != nil {
				return err
			}
			res, err := ctrl.Run(context.Background(), spec)
			finish(res)
			if err != nil {
				return err
			}

			return printResult(res, func() error {
				st := res.Candidate.(*story.Candidate)
				fmt.Printf("Setting: %s\n\nPlot:\n%s\n", st.Story.Setting, st.Story.Plot)
				fmt.Printf("\nCharacters:\n")
				for _, ch := range st.Story.Characters {
					fmt.Printf("  - %s (%s, %s voice): %s\n", ch.Name, ch.Sex, ch.Voice, ch.Description)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&styleFlag, "style", "watercolor children's book", "visual and narrative style")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration budget (0 = default)")
	return cmd
}

func scenesCmd() *cobra.Command {
	var styleFlag string
	var countFlag int
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "scenes [story.json]",
		Short: "Break an accepted story into video-ready scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read story file: %w", err)
			}
			var st story.Story
			if err := json.Unmarshal(data, &st); err != nil {
				return fmt.Errorf("parse story file: %w", err)
			}
			if err := st.Validate(); err != nil {
				return fmt.Errorf("story file: %w", err)
			}

			cfg, adapters, err := setup()
			if err != nil {
				return err
			}

			count := pick(countFlag, cfg.Sessions.SceneCount)
			if count < 1 {
				count = scene.DefaultSceneCount
			}
			spec := scene.NewTaskSpec(st, styleFlag, count, pick(maxIterations, cfg.Sessions.SceneMaxIterations))
			producer := scene.NewProducer(roleAdapter(cfg, adapters, config.RoleSceneProducer, mockSceneReply(count)))
			critic := scene.NewCritic(roleAdapter(cfg, adapters, config.RoleSceneCritic, mockSceneCritique))

			ctrl := refine.NewController(producer, critic)
			_, finish, err := withTrace(cfg, ctrl, spec.Name)
			if err != nil {
				return err
			}
			res, err := ctrl.Run(context.Background(), spec)
			finish(res)
			if err != nil {
				return err
			}

			return printResult(res, func() error {
				list := res.Candidate.(*scene.Candidate).List
				for _, sc := range list.Scenes {
					fmt.Printf("Scene %d: %s (%.1fs)\n  %s\n  prompt: %s\n",
						sc.Number, sc.Title, sc.DurationSeconds, sc.Description, sc.VisualPrompt)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&styleFlag, "style", "watercolor children's book", "visual and narrative style")
	cmd.Flags().IntVar(&countFlag, "count", 0, "number of scenes (0 = default)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration budget (0 = default)")
	return cmd
}

func videosCmd() *cobra.Command {
	var generateCmd string
	var outDir string
	var refsFile string
	var maxIterations int
	var concurrency int

	cmd := &cobra.Command{
		Use:   "videos [scenes.json]",
		Short: "Generate and quality-validate clips for a scene breakdown",
		Long: `Renders each scene with the external generation command, scores the
	clips for anatomy, character consistency, and technical quality, and
	regenerates failing clips with a refined prompt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read scenes file: %w", err)
			}
			var list scene.List
			if err := json.Unmarshal(data, &list); err != nil {
				return fmt.Errorf("parse scenes file: %w", err)
			}
			if len(list.Scenes) == 0 {
				return fmt.Errorf("scenes file has no scenes")
			}

			var refs []videoqc.CharacterReference
			if refsFile != "" {
				refData, err := os.ReadFile(refsFile)
				if err != nil {
					return fmt.Errorf("read references file: %w", err)
				}
				if err := json.Unmarshal(refData, &refs); err != nil {
					return fmt.Errorf("parse references file: %w", err)
				}
			}

			cfg, adapters, err := setup()
			if err != nil {
				return err
			}
			if cfg.GoogleAPIKey == "" && !mockFlag {
				return fmt.Errorf("video validation needs a google API key for frame analysis")
			}

			generator, err := videoqc.NewCommandGenerator(generateCmd, outDir)
			if err != nil {
				return err
			}

			var analyzer videoqc.FrameAnalyzer
			var sampler videoqc.FrameSampler = &videoqc.FFmpegSampler{}
			var probe videoqc.MetricsProbe = &videoqc.FFProbe{}
			if mockFlag {
				analyzer = videoqc.MockAnalyzer{}
				sampler = videoqc.MockSampler{}
				probe = videoqc.MockProbe{}
			} else {
				visionTarget := cfg.Roles.Target(config.RoleVision)
				analyzer, err = videoqc.NewGeminiAnalyzer(context.Background(), cfg.GoogleAPIKey, visionTarget.Model)
				if err != nil {
					return err
				}
			}

			validator := videoqc.NewValidator(generator, analyzer, sampler, probe)
			if !mockFlag {
				refinerTarget := cfg.Roles.Target(config.RoleRefiner)
				if a, ok := adapters[refinerTarget.Adapter]; ok {
					validator.Refiner = videoqc.NewPromptRefiner(a, refinerTarget.Model)
				}
			}
			validator.MaxIterations = pick(maxIterations, cfg.Sessions.VideoMaxIterations)
			validator.Concurrency = pick(concurrency, cfg.Sessions.VideoConcurrency)

			tasks := make([]*videoqc.Task, 0, len(list.Scenes))
			for _, sc := range list.Scenes {
				tasks = append(tasks, &videoqc.Task{
					SceneNumber:      sc.Number,
					SceneDescription: sc.Description,
					Prompt:           sc.VisualPrompt,
					References:       sceneRefs(refs, sc.Characters),
					ExpectedDuration: pickFloat(sc.DurationSeconds, cfg.Sessions.ExpectedDuration),
				})
			}

			report, err := validator.ValidateAll(context.Background(), tasks)
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(report)
			}
			for _, sr := range report.Scenes {
				fmt.Printf("scene %d: %s score %.1f after %d iterations  %s\n",
					sr.SceneNumber, sr.Outcome, sr.Score, sr.Iterations, sr.Path)
			}
			fmt.Printf("%d passed, %d failed, %d infra failures, average %.1f\n",
				report.Passed, report.Failed, report.Infra, report.AverageScore)
			if !report.AllPassed() {
				return fmt.Errorf("quality validation did not pass all scenes")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&generateCmd, "generate-cmd", "", "shell command that renders STORYLOOM_PROMPT to STORYLOOM_OUT (required)")
	cmd.Flags().StringVar(&outDir, "out", "clips", "directory for generated clips")
	cmd.Flags().StringVar(&refsFile, "refs", "", "JSON file of character reference images")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "per-scene iteration budget (0 = default)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel scene sessions (0 = default)")
	_ = cmd.MarkFlagRequired("generate-cmd")
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List adapters, their models, and key status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, adapters, err := setup()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADAPTER\tMODELS\tSTATUS")
			for _, name := range []string{"anthropic", "openai", "google", "mock"} {
				a, ok := adapters[name]
				if !ok {
					fmt.Fprintf(w, "%s\t\tno key\n", name)
					continue
				}
				status := "ready"
				if name != "mock" && !cfg.HasAdapter(name) {
					status = "no key"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, formatList(a.Models()), status)
			}
			return w.Flush()
		},
	}
}

func setup() (*config.Config, map[string]adapter.Adapter, error) {
	var cfg *config.Config
	var err error
	if rolesFile != "" {
		cfg, err = config.LoadWithRoleFile(rolesFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	adapters, err := createAdapters(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create adapters: %w", err)
	}
	return cfg, adapters, nil
}

func createAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	adapters["mock"] = adapter.NewMockAdapter()

	return adapters, nil
}

// roleAdapter resolves the adapter and model for a role. With --mock, or when
// the configured adapter has no key, the role runs on a mock adapter whose
// canned reply parses like a real one.
func roleAdapter(cfg *config.Config, adapters map[string]adapter.Adapter, role, mockReply string) (adapter.Adapter, string) {
	if mockFlag {
		return adapter.NewMockAdapterWithResponses(nil, mockReply), "mock-1"
	}
	target := cfg.Roles.Target(role)
	if a, ok := adapters[target.Adapter]; ok {
		return a, target.Model
	}
	return adapter.NewMockAdapterWithResponses(nil, mockReply), "mock-1"
}

// withTrace attaches a trace writer to the controller when --trace-dir or
// the config asks for one. The returned finish records the final outcome.
func withTrace(cfg *config.Config, ctrl *refine.Controller, task string) (*trace.Writer, func(*refine.Result), error) {
	dir := traceDir
	if dir == "" {
		dir = cfg.Sessions.TraceDir
	}
	if dir == "" {
		return nil, func(*refine.Result) {}, nil
	}

	writer, err := trace.NewWriter(dir, uuid.NewString()[:8], task)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace writer: %w", err)
	}
	ctrl.Observer = writer.Observe
	return writer, func(res *refine.Result) {
		if res != nil {
			if err := writer.Finish(res); err != nil {
				fmt.Fprintf(os.Stderr, "failed to finalize trace: %v\n", err)
			}
		}
	}, nil
}

func printResult(res *refine.Result, pretty func() error) error {
	if jsonFlag {
		return printJSON(res)
	}
	fmt.Printf("outcome: %s  score: %.1f  iterations: %d\n", res.Outcome, res.Score, len(res.History))
	if res.Reason != "" {
		fmt.Printf("reason: %s\n", res.Reason)
	}
	if res.Candidate == nil {
		return fmt.Errorf("no candidate produced")
	}
	fmt.Println()
	if err := pretty(); err != nil {
		return err
	}
	if !res.Accepted() {
		return fmt.Errorf("session finished %s", res.Outcome)
	}
	return nil
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// sceneRefs filters the reference set to the characters appearing in a scene.
func sceneRefs(refs []videoqc.CharacterReference, characters []string) []videoqc.CharacterReference {
	if len(refs) == 0 || len(characters) == 0 {
		return nil
	}
	var out []videoqc.CharacterReference
	for _, ref := range refs {
		for _, name := range characters {
			if ref.Name == name {
				out = append(out, ref)
				break
			}
		}
	}
	return out
}

func pick(flag, configured int) int {
	if flag > 0 {
		return flag
	}
	return configured
}

func pickFloat(flag, configured float64) float64 {
	if flag > 0 {
		return flag
	}
	return configured
}

func formatList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	result := items[0]
	for i := 1; i < len(items); i++ {
		result += ", " + items[i]
	}
	return result
}
