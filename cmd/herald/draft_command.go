package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"herald/internal/compose"
	"herald/internal/config"
	"herald/internal/feeds"
	"herald/internal/queue"
	"herald/internal/services/llm"
)

type draftOptions struct {
	source      string
	pick        int
	list        bool
	guidance    string
	remix       string
	instruction string
	split       bool
	schedule    scheduleFlags
}

func newDraftCommand(ctx *commandContext) *cobra.Command {
	var opts draftOptions
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Draft a post from a feed item with the LLM, optionally scheduling it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			if opts.list {
				items, err := collectFeedItems(cmd.Context(), cfg, logger, opts.source)
				if err != nil {
					return err
				}
				printFeedItems(cmd, items)
				return nil
			}

			if err := cfg.ValidateDrafting(); err != nil {
				return err
			}
			client := newLLMClient(cfg)

			draft := compose.Draft{}
			if strings.TrimSpace(opts.remix) != "" {
				if strings.TrimSpace(opts.instruction) == "" {
					return errors.New("--remix needs --instruction describing the rewrite")
				}
				result, err := client.Remix(cmd.Context(), opts.remix, opts.instruction)
				if err != nil {
					return err
				}
				draft.Parts = []string{result.Text}
				draft.Note = result.Reason
			} else {
				items, err := collectFeedItems(cmd.Context(), cfg, logger, opts.source)
				if err != nil {
					return err
				}
				if opts.pick < 1 || opts.pick > len(items) {
					return fmt.Errorf("--pick %d out of range (%d feed items available)", opts.pick, len(items))
				}
				item := items[opts.pick-1]
				result, err := client.Draft(cmd.Context(), item, opts.guidance)
				if err != nil {
					return err
				}
				draft.Parts = []string{result.Text}
				draft.Source = &item
				draft.Note = result.Reason
			}

			printDraft(cmd, draft)
			if !opts.wantsSchedule() {
				return nil
			}
			return scheduleDraft(cmd, ctx, draft, opts)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "all", "Feed source to draft from: rss, jetstream, or all")
	cmd.Flags().IntVar(&opts.pick, "pick", 1, "Which feed item to draft from (1 is the newest)")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List available feed items and exit")
	cmd.Flags().StringVar(&opts.guidance, "guidance", "", "Extra guidance for the drafting model")
	cmd.Flags().StringVar(&opts.remix, "remix", "", "Rewrite this text instead of drafting from a feed")
	cmd.Flags().StringVar(&opts.instruction, "instruction", "", "How to rewrite the --remix text")
	cmd.Flags().BoolVar(&opts.split, "split", false, "Split the draft into a numbered thread before scheduling")
	opts.schedule.register(cmd)
	return cmd
}

func (o draftOptions) wantsSchedule() bool {
	return o.schedule.at != "" || o.schedule.date != "" || o.schedule.clock != ""
}

func newLLMClient(cfg *config.Config) *llm.Client {
	settings := cfg.GetLLM()
	return llm.NewClient(llm.Config{
		APIKey:         settings.APIKey,
		BaseURL:        settings.BaseURL,
		Model:          settings.Model,
		Referer:        settings.Referer,
		Title:          settings.Title,
		TimeoutSeconds: settings.TimeoutSeconds,
	})
}

func collectFeedItems(ctx context.Context, cfg *config.Config, logger *slog.Logger, source string) ([]feeds.Item, error) {
	var sources []feeds.Source
	source = strings.ToLower(strings.TrimSpace(source))
	if (source == "rss" || source == "all") && len(cfg.Feeds.RSSURLs) > 0 {
		sources = append(sources, feeds.NewRSS(cfg.Feeds.RSSURLs, nil, cfg.FeedTimeout()))
	}
	if (source == "jetstream" || source == "all") && cfg.Feeds.JetstreamURL != "" {
		sources = append(sources, feeds.NewJetstream(cfg.Feeds.JetstreamURL, cfg.Feeds.JetstreamDIDs, cfg.Feeds.MaxItems, cfg.FeedTimeout(), logger))
	}
	switch source {
	case "rss", "jetstream", "all":
	default:
		return nil, fmt.Errorf("--source: unsupported value %q (expected rss, jetstream, or all)", source)
	}
	if len(sources) == 0 {
		return nil, errors.New("no feed sources configured; set feeds.rss_urls or feeds.jetstream_url")
	}
	items, err := feeds.Collect(ctx, logger, cfg.Feeds.MaxItems, sources...)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.New("feeds returned no items")
	}
	return items, nil
}

func printFeedItems(cmd *cobra.Command, items []feeds.Item) {
	rows := make([][]string, 0, len(items))
	for i, item := range items {
		published := ""
		if !item.Published.IsZero() {
			published = item.Published.UTC().Format(queue.DisplayTimeLayout)
		}
		title := item.Title
		if title == "" {
			title = item.Summary
		}
		rows = append(rows, []string{fmt.Sprint(i + 1), item.Source, published, title})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
		{header: "#", right: true},
		{header: "Source"},
		{header: "Published"},
		{header: "Title", maxWidth: 60},
	}, rows))
}

func printDraft(cmd *cobra.Command, draft compose.Draft) {
	out := cmd.OutOrStdout()
	if draft.Source != nil {
		fmt.Fprintf(out, "Source: %s %s\n", draft.Source.Source, draft.Source.Link)
	}
	text := draft.Text()
	fmt.Fprintf(out, "Draft (%d/%d):\n%s\n", queue.TextLength(text), queue.TextLimit, text)
	if draft.Note != "" {
		fmt.Fprintf(out, "Why: %s\n", draft.Note)
	}
}

func scheduleDraft(cmd *cobra.Command, ctx *commandContext, draft compose.Draft, opts draftOptions) error {
	start, err := opts.schedule.start()
	if err != nil {
		return err
	}
	if draft.Image, err = opts.schedule.imageURI(); err != nil {
		return err
	}
	session := compose.NewSession()
	if err := session.Begin(draft); err != nil {
		return err
	}
	if opts.split {
		if err := session.Split(compose.SplitOptions{Number: true}); err != nil {
			return err
		}
	}
	posts, err := session.Schedule(start)
	if err != nil {
		return err
	}
	return ctx.withRepository(func(_ *config.Config, repo *queue.Repository) error {
		if _, err := session.Commit(cmd.Context(), repo); err != nil {
			return err
		}
		reportScheduled(cmd, posts)
		return nil
	})
}
