package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trendscribe/internal/app"
	"trendscribe/internal/config"
	"trendscribe/internal/util"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/events"
	"trendscribe/pkg/pipeline"
	"trendscribe/pkg/prompt"
	"trendscribe/pkg/trends"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the fallback keyword catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, category := range trends.Categories() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", category, strings.Join(trends.SeedFor(category), ", "))
		}
		return nil
	},
}

var keywordsQuery trends.Query

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Select keywords for a category and location",
	Long:  `Runs the keyword selector against the configured trend provider and prints the selection as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := util.LoggerFromContext(cmd.Context())
		var rdb *redis.Client
		if cfg.TrendCache == "redis" {
			client, err := app.OpenRedis(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer client.Close()
			rdb = client
		}
		selector := app.NewSelector(cfg, app.NewTrendSource(cfg, logger), rdb, app.NewGenerator(cfg, logger))
		sel := selector.Select(cmd.Context(), keywordsQuery)

		out := map[string]any{
			"source":   sel.Source,
			"keywords": sel.Keywords,
		}
		if sel.Err != nil {
			out["providerError"] = sel.Err.Error()
		}
		return printJSON(cmd, out)
	},
}

var relatedCategory, relatedLocation string

var relatedCmd = &cobra.Command{
	Use:   "related",
	Short: "List topics related to a category",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := util.LoggerFromContext(cmd.Context())
		res := app.NewRelatedFinder(app.NewTrendSource(cfg, logger)).Find(cmd.Context(), relatedCategory, relatedLocation)
		out := map[string]any{
			"keyword": res.Keyword,
			"source":  res.Source,
			"topics":  res.Topics,
		}
		if res.Err != nil {
			out["providerError"] = res.Err.Error()
		}
		return printJSON(cmd, out)
	},
}

var (
	promptReq      pipeline.Request
	promptType     string
	promptKeywords []string
	promptFallback bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Render a generation prompt from flags",
	Long:  `Validates the flags like the server does and prints the prompt that would be sent to the model. No network calls are made.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		promptReq.Type = domain.ProjectType(promptType)
		req, err := pipeline.Validate(promptReq)
		if err != nil {
			return err
		}
		keywords := make([]domain.Keyword, 0, len(promptKeywords))
		for _, term := range promptKeywords {
			if term = strings.TrimSpace(term); term != "" {
				keywords = append(keywords, domain.Keyword{Term: term, Region: req.Location})
			}
		}
		var text string
		if promptFallback {
			text, err = prompt.Fallback(req.Type, req.Title, req.PromptParams(), keywords)
		} else {
			text, err = prompt.Build(req.Type, req.PromptParams(), keywords)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a user access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		verifier, err := app.NewVerifier(cfg)
		if err != nil {
			return err
		}
		token, err := verifier.Issue(args[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Project event utilities",
}

var (
	tailFrom  string
	tailCount int64
)

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow project events from the Redis stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("events tail requires redisAddr")
		}
		client, err := app.OpenRedis(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		stream, err := events.NewRedisStreamPublisher(client, events.RedisStreamConfig{Stream: cfg.EventsStream})
		if err != nil {
			return err
		}

		lastID := tailFrom
		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			batch, next, err := stream.Read(cmd.Context(), lastID, tailCount, 5*time.Second)
			if err != nil {
				if cmd.Context().Err() != nil {
					return nil
				}
				return err
			}
			for _, ev := range batch {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			lastID = next
		}
	},
}

func init() {
	f := keywordsCmd.Flags()
	f.StringVar(&keywordsQuery.Category, "category", "", "product category")
	f.StringVar(&keywordsQuery.Location, "location", "", "country name or code")
	f.StringVar(&keywordsQuery.Language, "language", "en", "content language")
	f.IntVar(&keywordsQuery.WindowHours, "hours", 0, "trend window in hours (0 uses the configured default)")

	f = relatedCmd.Flags()
	f.StringVar(&relatedCategory, "category", "", "product category")
	f.StringVar(&relatedLocation, "location", "", "country name or code")

	f = promptCmd.Flags()
	f.StringVar(&promptType, "type", string(domain.ProjectDraft), "draft, modify or image-prompt")
	f.StringVar(&promptReq.Title, "title", "", "project title")
	f.StringVar(&promptReq.Location, "location", "", "target location")
	f.StringVar(&promptReq.Language, "language", "en", "content language")
	f.StringVar(&promptReq.Tone, "tone", "professional", "tone: "+strings.Join(pipeline.Tones(), ", "))
	f.StringVar(&promptReq.Category, "category", "", "product category")
	f.StringVar(&promptReq.ContentIntent, "intent", "", "content intent for drafts")
	f.StringVar(&promptReq.DesiredLength, "length", "", "desired length for drafts")
	f.StringVar(&promptReq.OriginalContent, "original", "", "original content for modify")
	f.StringVar((*string)(&promptReq.ModificationType), "modification", "", "elaborate, summarize or rephrase")
	f.StringVar(&promptReq.BaseContent, "base", "", "base content for image prompts")
	f.StringVar(&promptReq.VisualStyle, "style", "", "visual style for image prompts")
	f.StringSliceVar(&promptKeywords, "keywords", nil, "trending keywords, comma separated")
	f.BoolVar(&promptFallback, "fallback", false, "render the template fallback text instead of the model prompt")

	eventsTailCmd.Flags().StringVar(&tailFrom, "from", "$", "stream id to start after (0 for the beginning)")
	eventsTailCmd.Flags().Int64Var(&tailCount, "count", 100, "max events per read")
	eventsCmd.AddCommand(eventsTailCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
