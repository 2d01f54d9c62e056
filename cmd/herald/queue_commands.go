package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/api"
	"herald/internal/compose"
	"herald/internal/config"
	"herald/internal/queue"
	"herald/internal/schedule"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit the scheduled post queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueThreadCommand(ctx))
	queueCmd.AddCommand(newQueueDeleteCommand(ctx))
	queueCmd.AddCommand(newQueueDueCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued posts by schedule time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRepository(func(_ *config.Config, repo *queue.Repository) error {
				snap, err := repo.Load(cmd.Context())
				if err != nil {
					return err
				}
				items := api.FromPosts(snap.Posts, time.Now())
				if statusFilter = strings.TrimSpace(statusFilter); statusFilter != "" {
					filtered := make([]api.QueueItem, 0, len(items))
					for _, item := range items {
						if item.Status == statusFilter {
							filtered = append(filtered, item)
						}
					}
					items = filtered
				}
				if jsonOut {
					if items == nil {
						items = []api.QueueItem{}
					}
					return writeJSON(cmd, api.QueueListResponse{Items: items})
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderQueueTable(items))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print posts as JSON")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show posts with this status (due, pending, invalid)")
	return cmd
}

func renderQueueTable(items []api.QueueItem) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		thread := ""
		if item.ThreadID != "" {
			thread = fmt.Sprintf("%s %d/%d", shortID(item.ThreadID), item.ThreadIndex, item.ThreadSize)
		}
		rows = append(rows, []string{
			shortID(item.ID),
			queue.DisplayScheduleTime(item.ScheduleTime),
			item.Status,
			thread,
			yesNo(item.ImageType != ""),
			item.Text,
		})
	}
	return renderTable([]column{
		{header: "ID"},
		{header: "Scheduled"},
		{header: "Status"},
		{header: "Thread"},
		{header: "Image"},
		{header: "Text", maxWidth: 48},
	}, rows)
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one post by id or unique id prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRepository(func(_ *config.Config, repo *queue.Repository) error {
				snap, err := repo.Load(cmd.Context())
				if err != nil {
					return err
				}
				post, err := queue.Resolve(snap.Posts, args[0])
				if err != nil {
					return err
				}
				var item api.QueueItem
				for _, candidate := range api.FromPosts(snap.Posts, time.Now()) {
					if candidate.ID == post.ID {
						item = candidate
					}
				}
				if jsonOut {
					return writeJSON(cmd, api.QueueItemResponse{Item: item})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:        %s\n", item.ID)
				fmt.Fprintf(out, "Scheduled: %s\n", queue.DisplayScheduleTime(item.ScheduleTime))
				fmt.Fprintf(out, "Status:    %s\n", item.Status)
				fmt.Fprintf(out, "Length:    %d/%d\n", item.Length, queue.TextLimit)
				if item.ThreadID != "" {
					fmt.Fprintf(out, "Thread:    %s (part %d of %d)\n", item.ThreadID, item.ThreadIndex, item.ThreadSize)
				}
				if item.ImageType != "" {
					fmt.Fprintf(out, "Image:     %s, ~%d bytes\n", item.ImageType, item.ImageBytes)
				}
				if item.Problem != "" {
					fmt.Fprintf(out, "Problem:   %s\n", item.Problem)
				}
				fmt.Fprintf(out, "\n%s\n", item.Text)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the post as JSON")
	return cmd
}

// scheduleFlags are the shared ways to say when a post goes out.
type scheduleFlags struct {
	at    string
	date  string
	clock string
	image string
}

func (f *scheduleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.at, "at", "", "Schedule time as RFC 3339 (e.g. 2025-06-01T14:05:00Z)")
	cmd.Flags().StringVar(&f.date, "date", "", "Schedule date as YYYY-MM-DD (UTC), used with --time")
	cmd.Flags().StringVar(&f.clock, "time", "", "Schedule clock time as \"HH:MM AM|PM\" (UTC), used with --date")
	cmd.Flags().StringVar(&f.image, "image", "", "Attach an image file to the first post")
}

func (f *scheduleFlags) start() (time.Time, error) {
	at := strings.TrimSpace(f.at)
	switch {
	case at != "" && (f.date != "" || f.clock != ""):
		return time.Time{}, errors.New("use either --at or --date/--time, not both")
	case at != "":
		return queue.ParseScheduleTime(at)
	case f.date != "" && f.clock != "":
		return compose.ParseAt(f.date, f.clock)
	case f.date != "" || f.clock != "":
		return time.Time{}, errors.New("--date and --time must be given together")
	default:
		return time.Time{}, errors.New("a schedule time is required (--at or --date/--time)")
	}
}

func (f *scheduleFlags) imageURI() (string, error) {
	return loadImage(f.image)
}

// loadImage reads an image file into a data URI. An empty path yields "".
func loadImage(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s does not look like an image (detected %s)", path, mediaType)
	}
	return queue.EncodeDataURI(mediaType, data), nil
}

func commitPosts(ctx context.Context, repo *queue.Repository, posts []queue.Post) error {
	_, err := repo.Mutate(ctx, func(current []queue.Post) ([]queue.Post, error) {
		return append(current, posts...), nil
	})
	return err
}

func reportScheduled(cmd *cobra.Command, posts []queue.Post) {
	out := cmd.OutOrStdout()
	if len(posts) == 1 {
		fmt.Fprintf(out, "Scheduled post %s for %s\n", shortID(posts[0].ID), queue.DisplayScheduleTime(posts[0].ScheduleTime))
		return
	}
	fmt.Fprintf(out, "Scheduled thread %s (%d posts) starting %s\n",
		shortID(posts[0].Thread()), len(posts), queue.DisplayScheduleTime(posts[0].ScheduleTime))
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var flags scheduleFlags
	var split bool
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Schedule a single post",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := flags.start()
			if err != nil {
				return err
			}
			image, err := flags.imageURI()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			parts := []string{text}
			if split && queue.TextLength(queue.NormalizeText(text)) > queue.TextLimit {
				parts = compose.SplitThread(text, compose.SplitOptions{Number: true})
			}
			posts, err := compose.Thread(parts, start, image)
			if err != nil {
				return err
			}
			return ctx.withRepository(func(_ *config.Config, repo *queue.Repository) error {
				if err := commitPosts(cmd.Context(), repo, posts); err != nil {
					return err
				}
				reportScheduled(cmd, posts)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&split, "split", false, "Split text over the length limit into a numbered thread")
	return cmd
}

func newQueueThreadCommand(ctx *commandContext) *cobra.Command {
	var flags scheduleFlags
	var number bool
	var fromText string
	cmd := &cobra.Command{
		Use:   "thread [part...]",
		Short: "Schedule a thread, one argument per part or --text to split automatically",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := flags.start()
			if err != nil {
				return err
			}
			image, err := flags.imageURI()
			if err != nil {
				return err
			}
			parts := args
			if strings.TrimSpace(fromText) != "" {
				if len(args) > 0 {
					return errors.New("give parts as arguments or --text, not both")
				}
				parts = compose.SplitThread(fromText, compose.SplitOptions{Number: number})
			}
			if len(parts) < 2 {
				return errors.New("a thread needs at least two parts; use `herald queue add` for one post")
			}
			posts, err := compose.Thread(parts, start, image)
			if err != nil {
				return err
			}
			return ctx.withRepository(func(_ *config.Config, repo *queue.Repository) error {
				if err := commitPosts(cmd.Context(), repo, posts); err != nil {
					return err
				}
				reportScheduled(cmd, posts)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&fromText, "text", "", "Long text to split into thread parts")
	cmd.Flags().BoolVar(&number, "number", true, "Append i/N to split parts")
	return cmd
}

func newQueueDeleteCommand(ctx *commandContext) *cobra.Command {
	var wholeThread bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a post by id or unique id prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRepository(func(_ *config.Config, repo *queue.Repository) error {
				var removed []queue.Post
				_, err := repo.Mutate(cmd.Context(), func(posts []queue.Post) ([]queue.Post, error) {
					target, err := queue.Resolve(posts, args[0])
					if err != nil {
						return nil, err
					}
					removed = []queue.Post{target}
					if wholeThread && target.IsThreaded() {
						removed = queue.ThreadMembers(posts, target.Thread())
					}
					ids := make([]string, len(removed))
					for i, p := range removed {
						ids[i] = p.ID
					}
					return queue.Without(posts, queue.IDSet(ids...)), nil
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d post(s)\n", len(removed))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&wholeThread, "thread", false, "Delete every member of the post's thread")
	return cmd
}

func newQueueDueCommand(ctx *commandContext) *cobra.Command {
	var nowFlag string
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Preview which posts the next run would publish",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if strings.TrimSpace(nowFlag) != "" {
				parsed, err := queue.ParseScheduleTime(nowFlag)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				now = parsed
			}
			return ctx.withRepository(func(_ *config.Config, repo *queue.Repository) error {
				snap, err := repo.Load(cmd.Context())
				if err != nil {
					return err
				}
				plan := schedule.Select(snap.Posts, now)
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				if len(plan.Units) == 0 {
					fmt.Fprintln(out, renderStatusLine("Due", statusInfo, "nothing due at "+now.Format(queue.DisplayTimeLayout), colorize))
				}
				rows := make([][]string, 0, len(plan.Units))
				for _, unit := range plan.Units {
					kind := "post"
					if unit.IsThread() {
						kind = fmt.Sprintf("thread (%d)", len(unit.Posts))
					}
					rows = append(rows, []string{
						kind,
						unit.At.Format(queue.DisplayTimeLayout),
						shortID(strings.Join(unit.IDs(), ",")),
						unit.Posts[0].Text,
					})
				}
				if len(rows) > 0 {
					fmt.Fprintln(out, renderTable([]column{
						{header: "Unit"},
						{header: "Scheduled"},
						{header: "Posts"},
						{header: "First post", maxWidth: 48},
					}, rows))
				}
				fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d group(s) not yet due", plan.Pending), colorize))
				for _, w := range plan.Warnings {
					fmt.Fprintln(out, renderStatusLine("Invalid", statusWarn, w.Error(), colorize))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "Evaluate at this RFC 3339 instant instead of the current time")
	return cmd
}
