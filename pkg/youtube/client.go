// Package youtube fetches video metadata and top-level comments from the YouTube Data
// API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/tubepulse/tubepulse/pkg/faults"
	"github.com/tubepulse/tubepulse/pkg/models"
)

var (
	ErrInvalidURL    = errors.New("youtube: invalid URL")
	ErrVideoNotFound = errors.New("youtube: video not found")
	ErrNoAPIKey      = errors.New("youtube: api key required")
)

const pageSize = 100

// Client reads videos and comments.
type Client struct {
	service *youtube.Service
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// NewClient creates a Client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	o := clientOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	apiOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if o.endpoint != "" {
		apiOpts = append(apiOpts, option.WithEndpoint(o.endpoint))
	}
	if o.httpClient != nil {
		apiOpts = append(apiOpts, option.WithHTTPClient(o.httpClient))
	}

	service, err := youtube.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Client{service: service, logger: o.logger}, nil
}

// FetchVideo resolves link, reads the video's metadata and up to maxComments top-level
// comments. Videos with comments disabled return the comments collected so far.
func (c *Client) FetchVideo(ctx context.Context, link string, maxComments int) (*models.VideoRecord, error) {
	id, err := ExtractVideoID(link)
	if err != nil {
		return nil, err
	}

	rec, err := c.videoDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	if maxComments > 0 {
		comments, err := c.topLevelComments(ctx, id, maxComments)
		if err != nil {
			return nil, err
		}
		rec.Comments = comments
	}

	c.logger.Info("video fetched",
		zap.String("video_id", id),
		zap.Int("comments", len(rec.Comments)),
	)
	return rec, nil
}

func (c *Client) videoDetails(ctx context.Context, id string) (*models.VideoRecord, error) {
	resp, err := c.service.Videos.List([]string{"snippet", "statistics"}).
		Id(id).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("fetch video %s: %w", id, apiFault(err))
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, id)
	}

	item := resp.Items[0]
	rec := &models.VideoRecord{VideoID: id, Comments: []string{}}
	if item.Snippet != nil {
		rec.Title = item.Snippet.Title
		rec.Channel = item.Snippet.ChannelTitle
		rec.PublishedAt = item.Snippet.PublishedAt
	}
	if item.Statistics != nil {
		rec.Views = item.Statistics.ViewCount
	}
	return rec, nil
}

func (c *Client) topLevelComments(ctx context.Context, id string, limit int) ([]string, error) {
	comments := make([]string, 0, min(limit, pageSize))
	pageToken := ""

	for len(comments) < limit {
		call := c.service.CommentThreads.List([]string{"snippet"}).
			VideoId(id).
			MaxResults(int64(min(pageSize, limit-len(comments)))).
			TextFormat("plainText").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusForbidden {
				c.logger.Warn("comments unavailable", zap.String("video_id", id), zap.Error(err))
				return comments, nil
			}
			return nil, fmt.Errorf("fetch comments for %s: %w", id, apiFault(err))
		}

		for _, thread := range resp.Items {
			if text := commentText(thread); text != "" {
				comments = append(comments, text)
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || len(resp.Items) == 0 {
			break
		}
	}

	if len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

func commentText(thread *youtube.CommentThread) string {
	if thread.Snippet == nil || thread.Snippet.TopLevelComment == nil || thread.Snippet.TopLevelComment.Snippet == nil {
		return ""
	}
	sn := thread.Snippet.TopLevelComment.Snippet
	text := strings.TrimSpace(sn.TextDisplay)
	if text == "" {
		text = strings.TrimSpace(sn.TextOriginal)
	}
	return text
}

// apiFault tags quota and auth failures with the shared fault sentinels.
func apiFault(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", faults.ErrRateLimited, err)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", faults.ErrUnauthenticated, err)
	case http.StatusForbidden:
		for _, item := range gerr.Errors {
			if item.Reason == "quotaExceeded" || item.Reason == "rateLimitExceeded" {
				return fmt.Errorf("%w: %w", faults.ErrRateLimited, err)
			}
		}
		return fmt.Errorf("%w: %w", faults.ErrPermissionDenied, err)
	}
	return err
}
