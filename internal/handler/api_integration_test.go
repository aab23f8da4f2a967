package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Baaaki/component-review/internal/handler"
	"github.com/Baaaki/component-review/internal/metrics"
	"github.com/Baaaki/component-review/internal/middleware"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/router"
	"github.com/Baaaki/component-review/internal/service"
	"github.com/Baaaki/component-review/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type APIIntegrationTestSuite struct {
	suite.Suite
	testDB *testutil.TestDatabase
	db     *gorm.DB
	router *gin.Engine

	admin *models.User
	coach *models.User
	dev   *models.User
}

// SetupTest builds the whole HTTP stack over a fresh database
func (s *APIIntegrationTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.testDB = testutil.SetupTestDatabase(s.T())
	s.db = s.testDB.DB

	users := repository.NewUserRepository(s.db)
	components := repository.NewComponentRepository(s.db)
	reviews := repository.NewReviewRepository(s.db)
	notifications := repository.NewNotificationRepository(s.db)
	resets := repository.NewPasswordResetRepository(s.db)
	audits := repository.NewAuditRepository(s.db)

	m := metrics.New()
	recorder := service.NewAuditRecorder(audits, nil, m)
	notifier := service.NewNotifier(users, notifications, nil, m)
	authService := service.NewAuthService(s.db, users, resets, recorder, nil, "test-secret-key", time.Hour, time.Hour, "http://localhost:3000")
	componentService := service.NewComponentService(s.db, components, reviews, notifications, recorder, notifier, nil, m)
	reviewService := service.NewReviewService(reviews, components, notifier)
	notificationService := service.NewNotificationService(notifications, nil)
	userService := service.NewUserService(s.db, users, components, reviews, notifications, resets, audits, recorder, nil)
	auditService := service.NewAuditService(s.db, audits, recorder)

	s.router = router.New(router.Deps{
		Auth:           authService,
		Metrics:        m,
		AllowedOrigins: "http://localhost:3000",

		AuthHandler:         handler.NewAuthHandler(authService, false, time.Hour),
		ComponentHandler:    handler.NewComponentHandler(componentService),
		ReviewHandler:       handler.NewReviewHandler(reviewService),
		NotificationHandler: handler.NewNotificationHandler(notificationService, nil),
		AdminHandler:        handler.NewAdminHandler(userService),
		AuditHandler:        handler.NewAuditHandler(auditService),
	})

	s.admin = testutil.CreateUser(s.T(), s.db, "admin", models.RoleAdmin)
	s.coach = testutil.CreateUser(s.T(), s.db, "coach", models.RoleCoach)
	s.dev = testutil.CreateUser(s.T(), s.db, "dev", models.RoleDeveloper)
}

func (s *APIIntegrationTestSuite) TearDownTest() {
	s.testDB.Teardown(s.T())
}

func (s *APIIntegrationTestSuite) do(method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var payload map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &payload)
	return w, payload
}

func (s *APIIntegrationTestSuite) login(user *models.User) string {
	w, body := s.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    user.Email,
		"password": testutil.DefaultPassword,
	}, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	token, _ := body["access"].(string)
	s.Require().NotEmpty(token)
	return token
}

func (s *APIIntegrationTestSuite) TestRegisterSetsCookie() {
	w, body := s.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "newuser",
		"email":    "newuser@example.com",
		"password": "SecurePass123",
	}, "")
	s.Require().Equal(http.StatusCreated, w.Code)

	user := body["user"].(map[string]interface{})
	s.Equal("newuser", user["username"])
	s.Equal("developer", user["role"])
	s.NotEmpty(body["access"])

	var tokenCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.TokenCookie {
			tokenCookie = cookie
		}
	}
	s.Require().NotNil(tokenCookie)
	s.True(tokenCookie.HttpOnly)
	s.Equal(http.SameSiteLaxMode, tokenCookie.SameSite)
}

func (s *APIIntegrationTestSuite) TestRegisterInvalidInput() {
	testCases := []struct {
		name    string
		reqBody map[string]string
	}{
		{"short username", map[string]string{"username": "ab", "email": "x@example.com", "password": "Pass123456"}},
		{"invalid email", map[string]string{"username": "testuser", "email": "invalid-email", "password": "Pass123456"}},
		{"short password", map[string]string{"username": "testuser", "email": "x@example.com", "password": "short"}},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			w, body := s.do(http.MethodPost, "/api/auth/register", tc.reqBody, "")
			s.Equal(http.StatusBadRequest, w.Code)
			s.Equal("validation_error", body["kind"])
		})
	}
}

func (s *APIIntegrationTestSuite) TestLoginFailuresLookAlike() {
	w1, b1 := s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": s.dev.Email, "password": "WrongPass123"}, "")
	w2, b2 := s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "ghost@example.com", "password": "WrongPass123"}, "")

	s.Equal(http.StatusUnauthorized, w1.Code)
	s.Equal(http.StatusUnauthorized, w2.Code)
	s.Equal(b1["error"], b2["error"])
	s.Equal("unauthorized", b1["kind"])
}

func (s *APIIntegrationTestSuite) TestCookieAuthenticatesMe() {
	w, _ := s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": s.dev.Email, "password": testutil.DefaultPassword}, "")
	s.Require().Equal(http.StatusOK, w.Code)

	req, _ := http.NewRequest(http.MethodGet, "/api/auth/me", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	me := httptest.NewRecorder()
	s.router.ServeHTTP(me, req)
	s.Equal(http.StatusOK, me.Code)

	w, _ = s.do(http.MethodGet, "/api/auth/me", nil, "")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *APIIntegrationTestSuite) TestComponentWorkflowOverHTTP() {
	devToken := s.login(s.dev)
	coachToken := s.login(s.coach)

	w, body := s.do(http.MethodPost, "/api/components", map[string]string{
		"name":        "Primary Button",
		"description": "Call to action",
		"category":    "BUTTON",
		"code":        "<button>Go</button>",
	}, devToken)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Equal("draft", body["status"])
	id := body["id"].(string)

	// drafts are invisible to the public and to coaches
	w, _ = s.do(http.MethodGet, "/api/components/"+id, nil, "")
	s.Equal(http.StatusNotFound, w.Code)

	// coaches cannot decide a draft
	w, body = s.do(http.MethodPost, "/api/components/"+id+"/review", map[string]string{"action": "approve"}, coachToken)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("state_conflict", body["kind"])

	w, _ = s.do(http.MethodPost, "/api/components/"+id+"/submit", nil, devToken)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, body = s.do(http.MethodPost, "/api/components/"+id+"/submit", nil, devToken)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("state_conflict", body["kind"])

	// developers cannot review
	w, body = s.do(http.MethodPost, "/api/components/"+id+"/review", map[string]string{"action": "approve"}, devToken)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("forbidden", body["kind"])

	w, body = s.do(http.MethodPost, "/api/components/"+id+"/review", map[string]string{"action": "approve"}, coachToken)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	component := body["component"].(map[string]interface{})
	s.Equal("approved", component["status"])

	w, _ = s.do(http.MethodGet, "/api/components/"+id, nil, "")
	s.Equal(http.StatusOK, w.Code)

	req, _ := http.NewRequest(http.MethodGet, "/api/components?category=button", nil)
	list := httptest.NewRecorder()
	s.router.ServeHTTP(list, req)
	s.Require().Equal(http.StatusOK, list.Code)
	var items []map[string]interface{}
	s.Require().NoError(json.Unmarshal(list.Body.Bytes(), &items))
	s.Len(items, 1)

	w, body = s.do(http.MethodGet, "/api/notifications/unread/count", nil, devToken)
	s.Equal(http.StatusOK, w.Code)
	s.EqualValues(1, body["unread_count"])

	w, body = s.do(http.MethodGet, "/api/notifications?page_size=1", nil, devToken)
	s.Require().Equal(http.StatusOK, w.Code)
	s.EqualValues(1, body["count"])
	s.EqualValues(1, body["page_size"])
	s.Len(body["results"], 1)

	w, _ = s.do(http.MethodGet, "/api/notifications?page=first", nil, devToken)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APIIntegrationTestSuite) TestReviewsOverHTTP() {
	c := testutil.CreateComponent(s.T(), s.db, s.dev, "Card", models.StatusApproved)
	coachToken := s.login(s.coach)
	path := "/api/components/" + c.ID.String() + "/reviews"

	w, _ := s.do(http.MethodPost, path, map[string]interface{}{"rating": 6}, coachToken)
	s.Equal(http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, path, map[string]interface{}{"rating": 5, "comment": "solid"}, coachToken)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w, body := s.do(http.MethodPost, path, map[string]interface{}{"rating": 4}, coachToken)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("state_conflict", body["kind"])

	w, body = s.do(http.MethodGet, path, nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.EqualValues(1, body["count"])
	s.EqualValues(5, body["average_rating"])
}

func (s *APIIntegrationTestSuite) TestAdminAndAuditRoutes() {
	adminToken := s.login(s.admin)
	coachToken := s.login(s.coach)

	w, _ := s.do(http.MethodGet, "/api/admin/users", nil, coachToken)
	s.Equal(http.StatusForbidden, w.Code)

	w, body := s.do(http.MethodPatch, "/api/admin/users/"+s.dev.ID.String()+"/role", map[string]string{"role": "admin"}, adminToken)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("state_conflict", body["kind"])

	w, _ = s.do(http.MethodPatch, "/api/admin/users/"+s.dev.ID.String()+"/role", map[string]string{"role": "coach"}, adminToken)
	s.Equal(http.StatusOK, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/admin/users/"+s.admin.ID.String(), nil, adminToken)
	s.Equal(http.StatusForbidden, w.Code)

	w, body = s.do(http.MethodGet, "/api/audit/logs?action=role_changed&date_to="+time.Now().UTC().Format("2006-01-02"), nil, adminToken)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.EqualValues(1, body["count"])

	w, body = s.do(http.MethodGet, "/api/audit/logs?date_from=yesterday", nil, adminToken)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("validation_error", body["kind"])

	w, _ = s.do(http.MethodDelete, "/api/audit/cleanup?days=29", nil, adminToken)
	s.Equal(http.StatusBadRequest, w.Code)

	w, body = s.do(http.MethodDelete, "/api/audit/cleanup", nil, adminToken)
	s.Require().Equal(http.StatusOK, w.Code)
	s.EqualValues(90, body["days"])

	w, body = s.do(http.MethodGet, "/api/audit/stats", nil, adminToken)
	s.Require().Equal(http.StatusOK, w.Code)
	s.NotZero(body["total_logs"])
}

func (s *APIIntegrationTestSuite) TestCategoriesAndMetrics() {
	req, _ := http.NewRequest(http.MethodGet, "/api/categories", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Require().Equal(http.StatusOK, w.Code)
	var categories []map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &categories))
	s.Len(categories, 4)

	req, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "go_goroutines")
}

func TestAPIIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(APIIntegrationTestSuite))
}
