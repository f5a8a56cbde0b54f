package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tegridy/internal/config"
	"tegridy/internal/models"
	"tegridy/internal/repository"
	"tegridy/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTimeout = 5000 // ms, bcrypt makes auth endpoints slow

// newTestServer wires a Server against an in-memory sqlite database,
// bypassing NewServerWithDeps so tests do not re-register Prometheus
// collectors. rdb may be nil to exercise the degraded no-Redis mode.
func newTestServer(t *testing.T, rdb *redis.Client) (*Server, *fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Episode{},
		&models.Character{},
		&models.Comment{},
		&models.Vote{},
	))

	userRepo := repository.NewUserRepository(db)
	episodeRepo := repository.NewEpisodeRepository(db)
	characterRepo := repository.NewCharacterRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	voteRepo := repository.NewVoteRepository(db)

	s := &Server{
		config:        &config.Config{JWTSecret: "test-secret", Port: "0"},
		db:            db,
		redis:         rdb,
		userRepo:      userRepo,
		episodeRepo:   episodeRepo,
		characterRepo: characterRepo,
		commentRepo:   commentRepo,
		voteRepo:      voteRepo,
	}
	s.commentService = service.NewCommentService(
		commentRepo, voteRepo, episodeRepo.Exists, characterRepo.Exists, nil)
	s.catalogService = service.NewCatalogService(episodeRepo, characterRepo)
	s.userService = service.NewUserService(userRepo)

	app := fiber.New()
	s.SetupRoutes(app)
	return s, app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, testTimeout)
	require.NoError(t, err)

	var parsed map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	_ = resp.Body.Close()
	return resp, parsed
}

func signupUser(t *testing.T, app *fiber.App, username string) string {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", fiber.Map{
		"username": username,
		"email":    username + "@example.com",
		"password": "RespectMyAuthoritah1!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "signup body: %v", body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func seedEpisode(t *testing.T, db *gorm.DB, slug string, season, number int) *models.Episode {
	t.Helper()
	episode := &models.Episode{
		Slug:   slug,
		Title:  "Episode " + slug,
		Season: season,
		Number: number,
	}
	require.NoError(t, db.Create(episode).Error)
	return episode
}

func TestSignupAndLogin(t *testing.T) {
	_, app, _ := newTestServer(t, nil)

	t.Run("Signup rejects weak password", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", fiber.Map{
			"username": "kenny",
			"email":    "kenny@example.com",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	token := signupUser(t, app, "stan")

	t.Run("Duplicate email rejected", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", fiber.Map{
			"username": "stan2",
			"email":    "stan@example.com",
			"password": "RespectMyAuthoritah1!",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Login with wrong password", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "stan@example.com",
			"password": "WrongPassword1!WrongPassword",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Login with unknown email gives same status", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "nobody@example.com",
			"password": "RespectMyAuthoritah1!",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Login succeeds", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "stan@example.com",
			"password": "RespectMyAuthoritah1!",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, body["token"])
	})

	t.Run("Profile requires auth", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/api/users/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Profile with token", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/api/users/me", token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "stan", body["username"])
	})
}

func TestEpisodeEndpoints(t *testing.T) {
	_, app, db := newTestServer(t, nil)
	seedEpisode(t, db, "scott-tenorman-must-die", 5, 4)
	seedEpisode(t, db, "make-love-not-warcraft", 10, 8)

	t.Run("List", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/api/episodes", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		episodes, _ := body["episodes"].([]any)
		assert.Len(t, episodes, 2)
	})

	t.Run("List filtered by season", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/api/episodes?season=10", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		episodes, _ := body["episodes"].([]any)
		assert.Len(t, episodes, 1)
	})

	t.Run("Get by slug", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/api/episodes/make-love-not-warcraft", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(10), body["season"])
	})

	t.Run("Unknown slug", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/api/episodes/no-such-episode", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Create requires auth", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/episodes", "", fiber.Map{
			"slug": "new-one", "title": "New One", "season": 1, "number": 1,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Create with auth", func(t *testing.T) {
		token := signupUser(t, app, "butters")
		resp, body := doJSON(t, app, http.MethodPost, "/api/episodes", token, fiber.Map{
			"slug": "imaginationland", "title": "Imaginationland", "season": 11, "number": 10,
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "imaginationland", body["slug"])
	})
}

func TestCommentEndpoints(t *testing.T) {
	_, app, db := newTestServer(t, nil)
	seedEpisode(t, db, "casa-bonita", 7, 11)

	authorToken := signupUser(t, app, "cartman")
	otherToken := signupUser(t, app, "kyle")

	t.Run("Create requires auth", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/episodes/casa-bonita/comments", "", fiber.Map{
			"content": "anonymous hot take",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Create rejects empty content", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/episodes/casa-bonita/comments", authorToken, fiber.Map{
			"content": "   ",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Create on unknown episode", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/episodes/no-such-slug/comments", authorToken, fiber.Map{
			"content": "lost comment",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	var rootID float64
	t.Run("Create top-level comment", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/api/episodes/casa-bonita/comments", authorToken, fiber.Map{
			"content": "Best episode ever",
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		rootID, _ = body["id"].(float64)
		assert.NotZero(t, rootID)
		user, _ := body["user"].(map[string]any)
		assert.Equal(t, "cartman", user["username"])
	})

	t.Run("Create reply", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/api/episodes/casa-bonita/comments", otherToken, fiber.Map{
			"content":   "Totally agree",
			"parent_id": rootID,
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, rootID, body["parent_id"])
	})

	t.Run("List shows nested reply", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/api/episodes/casa-bonita/comments", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		comments, _ := body["comments"].([]any)
		assert.Len(t, comments, 1)
		root, _ := comments[0].(map[string]any)
		replies, _ := root["replies"].([]any)
		assert.Len(t, replies, 1)
	})

	t.Run("Tree mirrors list for shallow threads", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/api/episodes/casa-bonita/comments/tree", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		comments, _ := body["comments"].([]any)
		assert.Len(t, comments, 1)
	})

	t.Run("Invalid sort rejected", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/api/episodes/casa-bonita/comments?sort=spicy", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Vote toggle cycle", func(t *testing.T) {
		path := fmt.Sprintf("/api/comments/%d/vote", int(rootID))

		resp, body := doJSON(t, app, http.MethodPost, path, otherToken, fiber.Map{"type": "like"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "like", body["user_vote"])
		assert.Equal(t, float64(1), body["likes"])

		resp, body = doJSON(t, app, http.MethodPost, path, otherToken, fiber.Map{"type": "like"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "none", body["user_vote"])
		assert.Equal(t, float64(0), body["likes"])

		resp, body = doJSON(t, app, http.MethodPost, path, otherToken, fiber.Map{"type": "dislike"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "dislike", body["user_vote"])
		assert.Equal(t, float64(1), body["dislikes"])
	})

	t.Run("Vote rejects bad type", func(t *testing.T) {
		path := fmt.Sprintf("/api/comments/%d/vote", int(rootID))
		resp, _ := doJSON(t, app, http.MethodPost, path, otherToken, fiber.Map{"type": "meh"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Authenticated listing carries user_vote", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/api/episodes/casa-bonita/comments", otherToken, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		comments, _ := body["comments"].([]any)
		root, _ := comments[0].(map[string]any)
		assert.Equal(t, "dislike", root["user_vote"])
	})

	t.Run("Delete by non-author forbidden", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodDelete, fmt.Sprintf("/api/comments/%d", int(rootID)), otherToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Delete by author removes subtree", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodDelete, fmt.Sprintf("/api/comments/%d", int(rootID)), authorToken, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&models.Comment{}).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})
}

func TestWSTicketFlow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	_, app, _ := newTestServer(t, rdb)
	token := signupUser(t, app, "timmy")

	t.Run("Issue requires auth", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/ws/ticket", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	var ticket string
	t.Run("Issue stores ticket in Redis", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/api/ws/ticket", token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		ticket, _ = body["ticket"].(string)
		require.NotEmpty(t, ticket)
		assert.Equal(t, float64(30), body["expires_in"])

		key := fmt.Sprintf("ws_ticket:%s", ticket)
		exists, err := rdb.Exists(context.Background(), key).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})

	t.Run("Ticket authenticates and is single-use", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/me?ticket="+ticket, nil)
		resp, err := app.Test(req, testTimeout)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()

		key := fmt.Sprintf("ws_ticket:%s", ticket)
		exists, err := rdb.Exists(context.Background(), key).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), exists, "ticket should be consumed on first use")

		req2 := httptest.NewRequest(http.MethodGet, "/api/users/me?ticket="+ticket, nil)
		resp2, err := app.Test(req2, testTimeout)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
		_ = resp2.Body.Close()
	})

	t.Run("Invalid ticket fails hard on WS path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/ws/comments/episode/1?ticket=bogus", nil)
		resp, err := app.Test(req, testTimeout)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("Logout blacklists JTI", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/logout", token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp2, _ := doJSON(t, app, http.MethodGet, "/api/users/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
	})
}

func TestHealthEndpoints(t *testing.T) {
	_, app, _ := newTestServer(t, nil)

	t.Run("Liveness", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/health/live", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "up", body["status"])
	})

	t.Run("Readiness without Redis stays healthy", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		checks, _ := body["checks"].(map[string]any)
		assert.Equal(t, "healthy", checks["database"])
		assert.Equal(t, "unavailable", checks["redis"])
	})
}
