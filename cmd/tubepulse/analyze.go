package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tubepulse/tubepulse/pkg/models"
	"github.com/tubepulse/tubepulse/pkg/youtube"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		file        string
		video       string
		maxComments int
		batch       bool
		insights    bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [comment...]",
		Short: "Analyze comments given as arguments, a file (one per line) or a YouTube video",
		Long: `Analyze comments for sentiment, themes and controversy.

Comments are analyzed one by one unless --batch or --insights is set; a --video is
always reported as a batch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			a.restoreCaches(ctx)
			defer a.persistCaches(context.WithoutCancel(ctx))

			var (
				comments []string
				rec      *models.VideoRecord
			)
			switch {
			case video != "":
				if a.videos == nil {
					return errors.New("youtube api key is not configured")
				}
				if maxComments <= 0 {
					maxComments = cfg.YouTube.MaxComments
				}
				rec, err = a.videos.FetchVideo(ctx, video, maxComments)
				if err != nil {
					return err
				}
				comments = youtube.CleanComments(rec.Comments)
			case file != "":
				comments, err = readLines(file)
				if err != nil {
					return err
				}
			default:
				comments = args
			}
			if len(comments) == 0 {
				return errors.New("no comments to analyze")
			}

			if !batch && !insights && rec == nil {
				outcomes := a.service.AnalyzeComments(ctx, comments)
				if asJSON {
					return printJSON(outcomes)
				}
				return printOutcomes(comments, outcomes)
			}

			report := a.service.FullAnalysis(ctx, comments, insights)
			report.Video = rec
			if asJSON {
				return printJSON(report)
			}
			return printReport(report)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read comments from a file, one per line (- for stdin)")
	cmd.Flags().StringVar(&video, "video", "", "analyze the comments of a YouTube video link")
	cmd.Flags().IntVar(&maxComments, "max-comments", 0, "maximum comments to fetch with --video")
	cmd.Flags().BoolVar(&batch, "batch", false, "print the batch aggregate instead of per-comment results")
	cmd.Flags().BoolVar(&insights, "insights", false, "also generate creator insights (implies --batch)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func readLines(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open comments: %w", err)
		}
		defer f.Close()
		r = f
	}

	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}
	return youtube.CleanComments(lines), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOutcomes(comments []string, outcomes []models.Outcome) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMMENT\tSENTIMENT\tCONTROVERSY\tTHEMES")
	for i, out := range outcomes {
		text := []rune(comments[i])
		if len(text) > 40 {
			text = append(text[:37], '.', '.', '.')
		}
		switch out.Kind() {
		case models.OutcomeSuccess:
			fmt.Fprintf(w, "%s\t%+.2f\t%d\t%s\n", string(text),
				out.Result.SentimentScore, out.Result.ControversyLevel, strings.Join(out.Result.TopThemes, ", "))
		case models.OutcomeError:
			fmt.Fprintf(w, "%s\t-\t-\t%s: %s\n", string(text), out.Error.ErrorType, out.Error.Message)
		}
	}
	return w.Flush()
}

func printReport(r models.Report) error {
	if r.Error != nil {
		return fmt.Errorf("%s: %s", r.Error.ErrorType, r.Error.Message)
	}
	if r.Video != nil {
		fmt.Printf("Video:       %s (%s) by %s, %d views\n", r.Video.Title, r.Video.VideoID, r.Video.Channel, r.Video.Views)
	}
	fmt.Printf("Comments:    %d (%d analyzed)\n", r.CommentCount, len(r.IndividualAnalyses))
	fmt.Printf("Sentiment:   %+.3f\n", r.SentimentAnalysis.AvgSentiment)
	fmt.Printf("Controversy: %.2f\n\n", r.SentimentAnalysis.AvgControversy)

	freq := r.SentimentAnalysis.ThemeFrequency
	themes := make([]string, 0, len(freq))
	for t := range freq {
		themes = append(themes, t)
	}
	sort.Slice(themes, func(i, j int) bool {
		if freq[themes[i]] != freq[themes[j]] {
			return freq[themes[i]] > freq[themes[j]]
		}
		return themes[i] < themes[j]
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THEME\tCOUNT")
	for _, t := range themes {
		fmt.Fprintf(w, "%s\t%d\n", t, freq[t])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if r.Insights != "" {
		fmt.Printf("\nInsights\n%s\n", r.Insights)
	}
	return nil
}
