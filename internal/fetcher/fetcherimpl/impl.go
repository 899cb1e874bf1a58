package fetcherimpl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/fetcher"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	pkgerrors "github.com/ousepachn/insta-media-sync/pkg/errors"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"github.com/ousepachn/insta-media-sync/pkg/pacer"
	"github.com/ousepachn/insta-media-sync/pkg/retry"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

type APIClient struct {
	http      *http.Client
	host      string
	baseURL   string
	apiKey    string
	pagePacer pacer.Pacer
	logger    logger.Logger
}

var _ fetcher.Client = (*APIClient)(nil)

func New(opts Opts) *APIClient {
	return &APIClient{
		http:      &http.Client{Timeout: 60 * time.Second},
		host:      opts.Config.Fetcher.APIHost,
		baseURL:   "https://" + opts.Config.Fetcher.APIHost,
		apiKey:    opts.Config.Fetcher.APIKey,
		pagePacer: pacer.NewFixedInterval(opts.Config.Fetcher.PageDelay),
		logger:    opts.Logger.WithComponent("Fetcher"),
	}
}

// postsResponse is the envelope the scraping API wraps a page of posts in.
type postsResponse struct {
	Data struct {
		Items []domain.RawPost `json:"items"`
	} `json:"data"`
	PaginationToken string `json:"pagination_token"`
}

func (c *APIClient) FetchPosts(ctx context.Context, username string, maxCount int) ([]domain.RawPost, error) {
	c.logger.Info("Fetching posts", "username", username, "max_count", maxCount)

	var (
		all   []domain.RawPost
		token string
	)

	for len(all) < maxCount {
		if err := c.pagePacer.Wait(ctx); err != nil {
			return nil, pkgerrors.Wrap(err, "fetch cancelled")
		}

		page, err := c.fetchPage(ctx, username, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrFetchFailed, err)
		}

		all = append(all, page.Data.Items...)

		token = page.PaginationToken
		if token == "" || len(page.Data.Items) == 0 {
			break
		}
	}

	if len(all) > maxCount {
		all = all[:maxCount]
	}
	c.logger.Info("Fetched posts", "username", username, "count", len(all))
	return all, nil
}

func (c *APIClient) fetchPage(ctx context.Context, username, token string) (*postsResponse, error) {
	q := url.Values{}
	q.Set("username_or_id_or_url", username)
	if token != "" {
		q.Set("pagination_token", token)
	}
	endpoint := fmt.Sprintf("%s/v1.2/posts?%s", c.baseURL, q.Encode())

	var page postsResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("x-rapidapi-key", c.apiKey)
		req.Header.Set("x-rapidapi-host", c.host)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(fmt.Errorf("unknown username"))
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("api returned status %d", resp.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("api returned status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		page = postsResponse{}
		return json.Unmarshal(body, &page)
	}

	if err := retry.Do(ctx, c.logger, "FetchPostsPage", operation, retry.DefaultConfig()); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *APIClient) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	var data []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("download returned status %d", resp.StatusCode)
		}

		data, err = io.ReadAll(resp.Body)
		return err
	}

	if err := retry.Do(ctx, c.logger, "DownloadMedia", operation, retry.DefaultConfig()); err != nil {
		return nil, err
	}
	return data, nil
}
