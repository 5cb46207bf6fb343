package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"questlog/internal/apperr"
	"questlog/internal/config"
)

// fakeIGDB 模拟 Twitch 的 token 接口和 IGDB 的查询接口
type fakeIGDB struct {
	*httptest.Server
	tokens atomic.Int32
	calls  atomic.Int32
	bodies chan string
	handle func(w http.ResponseWriter, r *http.Request, body string)
}

func newFakeIGDB(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body string)) *fakeIGDB {
	t.Helper()
	f := &fakeIGDB{handle: handle, bodies: make(chan string, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		f.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v4/", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "client-id", r.Header.Get("Client-ID"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		body, _ := io.ReadAll(r.Body)
		select {
		case f.bodies <- string(body):
		default:
		}
		f.handle(w, r, string(body))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestCatalog(t *testing.T, f *fakeIGDB) *CatalogClient {
	t.Helper()
	c := NewCatalogClient(context.Background(), config.CatalogConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     f.URL + "/token",
		BaseURL:      f.URL + "/v4/",
		Timeout:      5 * time.Second,
	}, zap.NewNop())
	c.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return c
}

func TestCatalogSearch(t *testing.T) {
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		switch r.URL.Path {
		case "/v4/games":
			assert.Contains(t, body, `search "zelda";`)
			assert.Contains(t, body, "limit 20; offset 40;")
			_, _ = io.WriteString(w, `[
				{"id": 1, "name": "Zelda", "cover": {"url": "//images.igdb.com/t_thumb/co1.jpg"}},
				{"id": 2, "name": "Zelda II"}
			]`)
		case "/v4/games/count":
			assert.NotContains(t, body, "limit")
			_, _ = io.WriteString(w, `{"count": 57}`)
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestCatalog(t, f)

	res, err := c.Search(context.Background(), `  zel"da; `, 40)
	require.NoError(t, err)
	assert.Equal(t, 57, res.Count)
	require.Len(t, res.Games, 2)
	assert.Equal(t, "//images.igdb.com/t_cover_big/co1.jpg", res.Games[0].CoverURL)
	assert.Equal(t, placeholderCover, res.Games[1].CoverURL)

	// token 只申请一次
	assert.EqualValues(t, 1, f.tokens.Load())
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestCatalogSearchRequiresTerm(t *testing.T) {
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		t.Fatalf("unexpected call to %s", r.URL.Path)
	})
	c := newTestCatalog(t, f)

	_, err := c.Search(context.Background(), ` "" `, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCatalogGame(t *testing.T) {
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if strings.Contains(body, "where id = 404;") {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		assert.Contains(t, body, "where id = 1942;")
		_, _ = io.WriteString(w, `[{
			"id": 1942, "name": "The Witcher 3", "summary": "Geralt",
			"genres": [{"id": 12, "name": "RPG"}],
			"involved_companies": [{"company": {"id": 908, "name": "CD Projekt RED"}, "developer": true}]
		}]`)
	})
	c := newTestCatalog(t, f)

	game, err := c.Game(context.Background(), 1942)
	require.NoError(t, err)
	assert.Equal(t, "The Witcher 3", game.Name)
	assert.Equal(t, "RPG", game.Genres[0].Name)
	assert.True(t, game.InvolvedCompanies[0].Developer)
	assert.Equal(t, placeholderCover, game.CoverURL)

	_, err = c.Game(context.Background(), 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCatalogRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[{"id": 7, "name": "Hades"}]`)
	})
	c := newTestCatalog(t, f)

	games, err := c.NewReleases(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Hades", games[0].Name)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestCatalogDoesNotRetryClientErrors(t *testing.T) {
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `[{"title": "Syntax Error"}]`)
	})
	c := newTestCatalog(t, f)

	_, err := c.NewReleases(context.Background(), 5, 0)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestCatalogNewReleasesClampsPage(t *testing.T) {
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = io.WriteString(w, `[]`)
	})
	c := newTestCatalog(t, f)

	games, err := c.NewReleases(context.Background(), 1000, -3)
	require.NoError(t, err)
	assert.Empty(t, games)
	assert.NotNil(t, games)

	body := <-f.bodies
	assert.Contains(t, body, "limit 100; offset 0;")
	assert.Contains(t, body, "sort total_rating_count desc;")
}

// genreTables 三张类型表里有重名条目
func genreTables(w http.ResponseWriter, r *http.Request) bool {
	switch r.URL.Path {
	case "/v4/genres":
		_, _ = io.WriteString(w, `[{"id": 12, "name": "Role-playing (RPG)"}, {"id": 31, "name": "Adventure"}]`)
	case "/v4/themes":
		_, _ = io.WriteString(w, `[{"id": 1, "name": "Action"}, {"id": 17, "name": "Fantasy"}, {"id": 99, "name": "adventure"}]`)
	case "/v4/game_modes":
		_, _ = io.WriteString(w, `[{"id": 2, "name": "Multiplayer"}, {"id": 5, "name": ""}]`)
	default:
		return false
	}
	return true
}

func TestCatalogGenresMergedAndCached(t *testing.T) {
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		assert.Contains(t, body, "limit 500;")
		if !genreTables(w, r) {
			http.NotFound(w, r)
		}
	})
	c := newTestCatalog(t, f)

	genres, err := c.Genres(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(genres))
	for _, g := range genres {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"Role-playing (RPG)", "Adventure", "Action", "Fantasy", "Multiplayer"}, names)
	assert.EqualValues(t, 3, f.calls.Load())

	// 缓存命中，不再请求上游；调用方修改返回值不影响缓存
	genres[0].Name = "changed"
	again, err := c.Genres(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Role-playing (RPG)", again[0].Name)
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestCatalogBrowseByGenre(t *testing.T) {
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if genreTables(w, r) {
			return
		}
		assert.Equal(t, "/v4/games", r.URL.Path)
		assert.Contains(t, body, "(genres = (17) | themes = (17) | game_modes = (17))")
		assert.Contains(t, body, "id = (3,4)")
		assert.Contains(t, body, "sort total_rating_count desc; limit 10; offset 5;")
		_, _ = io.WriteString(w, `[{"id": 3, "name": "Elden Ring", "total_rating_count": 900}]`)
	})
	c := newTestCatalog(t, f)

	games, err := c.Browse(context.Background(), BrowseQuery{Genre: " FANTASY ", IDs: []uint{3, 4}, Offset: 5})
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Elden Ring", games[0].Name)
	assert.Equal(t, placeholderCover, games[0].CoverURL)
}

func TestCatalogBrowseUnknownGenre(t *testing.T) {
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if !genreTables(w, r) {
			t.Errorf("unexpected query to %s", r.URL.Path)
		}
	})
	c := newTestCatalog(t, f)

	games, err := c.Browse(context.Background(), BrowseQuery{Genre: "sports"})
	require.NoError(t, err)
	assert.NotNil(t, games)
	assert.Empty(t, games)
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestCatalogBrowseAllSkipsGenreLookup(t *testing.T) {
	f := newFakeIGDB(t, func(w http.ResponseWriter, r *http.Request, body string) {
		assert.Equal(t, "/v4/games", r.URL.Path)
		assert.NotContains(t, body, "genres =")
		assert.NotContains(t, body, "id = (")
		_, _ = io.WriteString(w, `[]`)
	})
	c := newTestCatalog(t, f)

	_, err := c.Browse(context.Background(), BrowseQuery{Genre: "all", Limit: 500})
	require.NoError(t, err)
	assert.Contains(t, <-f.bodies, "limit 100;")
	assert.EqualValues(t, 1, f.calls.Load())
}
