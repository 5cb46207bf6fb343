package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"questlog/internal/apperr"
	"questlog/internal/config"
	"questlog/internal/metrics"
)

const (
	// IGDB 限流为每秒 4 个请求
	catalogRequestsPerSecond = 4
	catalogSearchPageSize    = 20
	catalogMaxPageSize       = 100
	catalogDefaultPageSize   = 10

	// 类型列表很少变化
	genreCacheTTL = 24 * time.Hour

	placeholderCover = "https://placehold.co/150x200?text=No+Image"
)

// 只展示正式游戏、重制版和扩展包等，排除 DLC 之类的子条目
const catalogGameFilter = `game_type = (0,4,8,9,10) & cover != null & version_parent = null & first_release_date != null`

type Named struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type InvolvedCompany struct {
	Company   Named `json:"company"`
	Developer bool  `json:"developer"`
	Publisher bool  `json:"publisher"`
}

type Cover struct {
	URL string `json:"url"`
}

// Game is a catalog entry as returned by IGDB, plus a resolved cover URL.
type Game struct {
	ID                int64             `json:"id"`
	Name              string            `json:"name"`
	Summary           string            `json:"summary,omitempty"`
	Cover             *Cover            `json:"cover,omitempty"`
	CoverURL          string            `json:"coverUrl"`
	FirstReleaseDate  int64             `json:"first_release_date,omitempty"`
	AggregatedRating  float64           `json:"aggregated_rating,omitempty"`
	TotalRatingCount  int64             `json:"total_rating_count,omitempty"`
	Platforms         []Named           `json:"platforms,omitempty"`
	Genres            []Named           `json:"genres,omitempty"`
	InvolvedCompanies []InvolvedCompany `json:"involved_companies,omitempty"`
}

type SearchResult struct {
	Games []Game `json:"games"`
	Count int    `json:"count"`
}

// CatalogClient talks to the IGDB v4 API. Tokens come from a client-credentials token source
// that refreshes itself when they expire.
type CatalogClient struct {
	http     *http.Client
	baseURL  string
	clientID string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]byte]
	retries  uint64
	log      *zap.Logger

	newBackOff func() backoff.BackOff

	genreMu    sync.Mutex
	genres     []Named
	genreIndex map[string]int64
	genresAt   time.Time
}

func NewCatalogClient(ctx context.Context, cfg config.CatalogConfig, log *zap.Logger) *CatalogClient {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	base := &http.Client{Timeout: cfg.Timeout}
	httpClient := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	httpClient.Timeout = cfg.Timeout

	log = log.Named("catalog")
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "igdb",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		IsSuccessful: func(err error) bool {
			// 4xx 是调用方的问题，不算上游故障
			var statusErr *catalogStatusError
			return err == nil || (errors.As(err, &statusErr) && statusErr.status < 500 && statusErr.status != http.StatusTooManyRequests)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CatalogBreakerState.Set(float64(to))
		},
	})

	return &CatalogClient{
		http:     httpClient,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		clientID: cfg.ClientID,
		limiter:  rate.NewLimiter(rate.Limit(catalogRequestsPerSecond), catalogRequestsPerSecond),
		breaker:  breaker,
		retries:  3,
		log:      log,

		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

type catalogStatusError struct {
	status int
	body   string
}

func (e *catalogStatusError) Error() string {
	return fmt.Sprintf("igdb returned %d: %s", e.status, e.body)
}

// query posts an apicalypse body to endpoint and decodes the JSON response into out.
func (c *CatalogClient) query(ctx context.Context, endpoint, body string, out any) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), c.retries),
		ctx,
	)

	var payload []byte
	err := backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		data, err := c.breaker.Execute(func() ([]byte, error) {
			return c.do(ctx, endpoint, body)
		})
		if err != nil {
			var statusErr *catalogStatusError
			if errors.As(err, &statusErr) && statusErr.status < 500 && statusErr.status != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			if errors.Is(err, gobreaker.ErrOpenState) {
				return backoff.Permanent(err)
			}
			c.log.Debug("Retrying catalog request", zap.String("endpoint", endpoint), zap.Error(err))
			return err
		}
		payload = data
		return nil
	}, policy)
	if err != nil {
		return fmt.Errorf("query %s: %w", endpoint, err)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *CatalogClient) do(ctx context.Context, endpoint, body string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &catalogStatusError{status: resp.StatusCode, body: string(data)}
	}
	return data, nil
}

// sanitizeTerm 去掉会破坏 apicalypse 字符串字面量的字符
func sanitizeTerm(term string) string {
	term = strings.NewReplacer(`"`, "", `\`, "", ";", " ").Replace(term)
	return strings.TrimSpace(term)
}

// Search finds games by name. The page of games and the total count are fetched concurrently.
func (c *CatalogClient) Search(ctx context.Context, term string, offset int) (*SearchResult, error) {
	term = sanitizeTerm(term)
	if term == "" {
		return nil, apperr.InvalidInput("search term is required")
	}
	if offset < 0 {
		offset = 0
	}
	where := fmt.Sprintf(`search "%s"; where %s & total_rating_count > 0;`, term, catalogGameFilter)

	var result SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body := fmt.Sprintf(`fields id, name, cover.url, first_release_date, involved_companies.company.name, involved_companies.developer, involved_companies.publisher; %s limit %d; offset %d;`,
			where, catalogSearchPageSize, offset)
		return c.query(gctx, "games", body, &result.Games)
	})
	g.Go(func() error {
		var count struct {
			Count int `json:"count"`
		}
		if err := c.query(gctx, "games/count", where, &count); err != nil {
			return err
		}
		result.Count = count.Count
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, c.upstreamError(err)
	}

	resolveCovers(result.Games)
	if result.Games == nil {
		result.Games = []Game{}
	}
	return &result, nil
}

// Game returns the details of one game.
func (c *CatalogClient) Game(ctx context.Context, id uint) (*Game, error) {
	body := fmt.Sprintf(`fields name, summary, cover.url, aggregated_rating, first_release_date, platforms.name, genres.name, involved_companies.company.name, involved_companies.developer, involved_companies.publisher; where id = %d;`, id)

	var games []Game
	if err := c.query(ctx, "games", body, &games); err != nil {
		return nil, c.upstreamError(err)
	}
	if len(games) == 0 {
		return nil, apperr.NotFound("game", id)
	}
	resolveCovers(games)
	return &games[0], nil
}

// NewReleases lists games released during the last 30 days, most rated first.
func (c *CatalogClient) NewReleases(ctx context.Context, limit, offset int) ([]Game, error) {
	limit, offset = clampPage(limit, offset)

	now := time.Now().Unix()
	monthAgo := now - int64(30*24*time.Hour/time.Second)
	body := fmt.Sprintf(`fields id, name, cover.url, first_release_date; where %s & first_release_date > %d & first_release_date <= %d; sort total_rating_count desc; limit %d; offset %d;`,
		catalogGameFilter, monthAgo, now, limit, offset)

	var games []Game
	if err := c.query(ctx, "games", body, &games); err != nil {
		return nil, c.upstreamError(err)
	}
	resolveCovers(games)
	if games == nil {
		games = []Game{}
	}
	return games, nil
}

// BrowseQuery filters Browse. Genre matches a genre, theme or game mode name; "" and "all" mean
// no filter. IDs restricts the result to the given games.
type BrowseQuery struct {
	Genre  string
	IDs    []uint
	Limit  int
	Offset int
}

// Browse lists catalog games, most rated first.
func (c *CatalogClient) Browse(ctx context.Context, q BrowseQuery) ([]Game, error) {
	limit, offset := clampPage(q.Limit, q.Offset)
	filters := []string{catalogGameFilter}

	if len(q.IDs) > 0 {
		ids := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = strconv.FormatUint(uint64(id), 10)
		}
		filters = append(filters, fmt.Sprintf("id = (%s)", strings.Join(ids, ",")))
	}

	if genre := strings.ToLower(strings.TrimSpace(q.Genre)); genre != "" && genre != "all" {
		id, ok, err := c.genreID(ctx, genre)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []Game{}, nil
		}
		// genres、themes、game_modes 是三张独立的表，任一匹配即可
		filters = append(filters, fmt.Sprintf("(genres = (%d) | themes = (%d) | game_modes = (%d))", id, id, id))
	}

	body := fmt.Sprintf(`fields id, name, cover.url, first_release_date, total_rating_count; where %s; sort total_rating_count desc; limit %d; offset %d;`,
		strings.Join(filters, " & "), limit, offset)

	var games []Game
	if err := c.query(ctx, "games", body, &games); err != nil {
		return nil, c.upstreamError(err)
	}
	resolveCovers(games)
	if games == nil {
		games = []Game{}
	}
	return games, nil
}

// Genres lists genres, themes and game modes as one list, de-duplicated by name
// (case-insensitive, first occurrence wins). The list is cached for a day.
func (c *CatalogClient) Genres(ctx context.Context) ([]Named, error) {
	c.genreMu.Lock()
	if c.genres != nil && time.Since(c.genresAt) < genreCacheTTL {
		list := slices.Clone(c.genres)
		c.genreMu.Unlock()
		return list, nil
	}
	c.genreMu.Unlock()

	endpoints := []string{"genres", "themes", "game_modes"}
	parts := make([][]Named, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range endpoints {
		g.Go(func() error {
			return c.query(gctx, endpoint, "fields id, name; sort name asc; limit 500;", &parts[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, c.upstreamError(err)
	}

	merged := []Named{}
	index := map[string]int64{}
	for _, part := range parts {
		for _, n := range part {
			key := strings.ToLower(strings.TrimSpace(n.Name))
			if key == "" {
				continue
			}
			if _, dup := index[key]; dup {
				continue
			}
			index[key] = n.ID
			merged = append(merged, n)
		}
	}

	c.genreMu.Lock()
	c.genres, c.genreIndex, c.genresAt = merged, index, time.Now()
	c.genreMu.Unlock()
	return slices.Clone(merged), nil
}

func (c *CatalogClient) genreID(ctx context.Context, name string) (int64, bool, error) {
	if _, err := c.Genres(ctx); err != nil {
		return 0, false, err
	}
	c.genreMu.Lock()
	defer c.genreMu.Unlock()
	id, ok := c.genreIndex[name]
	return id, ok, nil
}

// clampPage 默认每页 10 条，最多 100 条
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = catalogDefaultPageSize
	}
	return min(limit, catalogMaxPageSize), max(offset, 0)
}

func (c *CatalogClient) upstreamError(err error) error {
	c.log.Error("Catalog request failed", zap.Error(err))
	return apperr.Upstream("error querying the game catalog", err)
}

// resolveCovers 把缩略图地址换成大封面，没有封面时使用占位图
func resolveCovers(games []Game) {
	for i := range games {
		if games[i].Cover != nil && games[i].Cover.URL != "" {
			games[i].CoverURL = strings.Replace(games[i].Cover.URL, "t_thumb", "t_cover_big", 1)
		} else {
			games[i].CoverURL = placeholderCover
		}
	}
}
