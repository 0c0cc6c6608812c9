package citizenreports_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/apps/citizenreports"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/database"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/live"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/media"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const (
	secret     = "test-secret"
	town       = "springfield"
	staffEmail = "works@springfield.gov"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type apiClient struct {
	app *fiber.App
}

type call struct {
	method string
	path   string
	body   any
	token  string
	appID  string
	form   *multipart.Writer
	raw    *bytes.Buffer
}

func (a apiClient) do(c call) (int, map[string]any) {
	var body io.Reader
	contentType := ""
	switch {
	case c.form != nil:
		Expect(c.form.Close()).To(Succeed())
		body = c.raw
		contentType = c.form.FormDataContentType()
	case c.body != nil:
		b, err := json.Marshal(c.body)
		Expect(err).NotTo(HaveOccurred())
		body = bytes.NewReader(b)
		contentType = fiber.MIMEApplicationJSON
	}

	req := httptest.NewRequest(c.method, c.path, body)
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	if c.appID == "" {
		c.appID = town
	}
	req.Header.Set("X-App-ID", c.appID)
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}

	resp, err := a.app.Test(req, 5000)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	out := map[string]any{}
	if len(raw) > 0 {
		Expect(json.Unmarshal(raw, &out)).To(Succeed(), string(raw))
	}
	return resp.StatusCode, out
}

func token(appID, email, role string) (string, uuid.UUID) {
	id := uuid.New()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    id.String(),
		"email":  email,
		"app_id": appID,
		"role":   role,
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	signed, err := t.SignedString([]byte(secret))
	Expect(err).NotTo(HaveOccurred())
	return signed, id
}

func upload(field, filename string, content []byte, fields map[string]string) call {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		Expect(w.WriteField(k, v)).To(Succeed())
	}
	part, err := w.CreateFormFile(field, filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(content)
	Expect(err).NotTo(HaveOccurred())
	return call{form: w, raw: buf}
}

var _ = Describe("Report routes", func() {
	var (
		api      apiClient
		db       *gorm.DB
		hub      *live.Hub
		citizen  string
		staff    string
		reportID string
		mediaDir string
	)

	uploads := func() []string {
		var names []string
		entries, _ := os.ReadDir(filepath.Join(mediaDir, town))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names
	}

	file := func(title string) string {
		status, body := api.do(call{method: http.MethodPost, path: "/api/p/reports", body: map[string]string{"title": title}})
		Expect(status).To(Equal(fiber.StatusCreated))
		return body["id"].(string)
	}

	BeforeEach(func() {
		var err error
		db, err = database.OpenSQLite("file::memory:")
		Expect(err).NotTo(HaveOccurred())
		Expect(database.MigrateShared(db)).To(Succeed())

		cfg := &config.Config{
			JWTSecret:        secret,
			GovernmentEmails: staffEmail,
			TrendingMin:      10,
			TrendingFraction: 0.1,
			StatsTimezone:    "UTC",
			LiveHeartbeat:    time.Second,
		}

		registry := tenant.NewRegistry()
		registry.Register(&tenant.AppConfig{AppID: town, Name: "Springfield"})
		registry.Register(&tenant.AppConfig{AppID: "shelbyville", Name: "Shelbyville"})

		hub = live.NewHub(16)
		ctx, cancel := context.WithCancel(context.Background())
		mediaDir = GinkgoT().TempDir()
		store := media.NewLocalStore(mediaDir, "/media", 1<<10)
		plugin := citizenreports.New(ctx, hub, store)
		Expect(database.MigrateModels(db, plugin.Models())).To(Succeed())

		app := fiber.New()
		app.Use(middleware.TenantMiddleware(registry))
		public := app.Group("/api/p", middleware.OptionalAuth(cfg))
		staffRoutes := app.Group("/api/staff", middleware.JWTProtected(cfg), middleware.GovernmentRequired(db, cfg))
		plugin.RegisterRoutes(public, db, cfg)
		plugin.RegisterStaffRoutes(staffRoutes, db, cfg)
		api = apiClient{app: app}

		citizen, _ = token(town, "resident@example.com", models.RoleCitizen)
		staff, _ = token(town, staffEmail, models.RoleCitizen)

		DeferCleanup(func() {
			cancel()
			Expect(hub.Close()).To(Succeed())
			sqlDB, err := db.DB()
			Expect(err).NotTo(HaveOccurred())
			Expect(sqlDB.Close()).To(Succeed())
		})

		reportID = file("Illegal dumping")
	})

	Describe("filing", func() {
		It("accepts anonymous reports as pending", func() {
			status, body := api.do(call{method: http.MethodGet, path: "/api/p/reports/" + reportID})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["title"]).To(Equal("Illegal dumping"))
			Expect(body["status"]).To(Equal("pending"))
			Expect(body["resolution_date"]).To(BeNil())
			Expect(body["up_votes"]).To(BeEquivalentTo(0))
		})

		It("requires a tenant", func() {
			c := call{method: http.MethodPost, path: "/api/p/reports", body: map[string]string{"title": "x"}, appID: "nowhere"}
			status, _ := api.do(c)
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects a missing title", func() {
			status, body := api.do(call{method: http.MethodPost, path: "/api/p/reports", body: map[string]string{"title": " "}})
			Expect(status).To(Equal(fiber.StatusBadRequest))
			Expect(body["message"]).To(ContainSubstring("title"))
		})

		It("stores an attached photo", func() {
			c := upload("image", "bin.png", pngHeader, map[string]string{"title": "Overflowing bin", "priority": "HIGH"})
			c.method, c.path = http.MethodPost, "/api/p/reports"
			status, body := api.do(c)
			Expect(status).To(Equal(fiber.StatusCreated))
			Expect(body["image_url"]).To(HavePrefix("/media/springfield/"))
			Expect(body["priority"]).To(Equal("high"))
		})

		It("removes the photo of a report that was rejected", func() {
			c := upload("image", "bin.png", pngHeader, map[string]string{"title": "   "})
			c.method, c.path = http.MethodPost, "/api/p/reports"
			status, _ := api.do(c)
			Expect(status).To(Equal(fiber.StatusBadRequest))
			Expect(uploads()).To(BeEmpty())

			c = upload("image", "bin.png", pngHeader, map[string]string{"title": "Bin", "priority": "urgent"})
			c.method, c.path = http.MethodPost, "/api/p/reports"
			status, _ = api.do(c)
			Expect(status).To(Equal(fiber.StatusBadRequest))
			Expect(uploads()).To(BeEmpty())
		})

		It("never deletes an image it did not upload", func() {
			c := upload("image", "bin.png", pngHeader, map[string]string{"title": "Bin"})
			c.method, c.path = http.MethodPost, "/api/p/reports"
			status, body := api.do(c)
			Expect(status).To(Equal(fiber.StatusCreated))
			kept := body["image_url"].(string)

			status, _ = api.do(call{method: http.MethodPost, path: "/api/p/reports", body: map[string]string{"title": " ", "image_url": kept}})
			Expect(status).To(Equal(fiber.StatusBadRequest))
			Expect(uploads()).To(ConsistOf(filepath.Base(kept)))
		})

		It("refuses photos that are not images", func() {
			c := upload("image", "notes.png", []byte("just some text"), map[string]string{"title": "Bin"})
			c.method, c.path = http.MethodPost, "/api/p/reports"
			status, _ := api.do(c)
			Expect(status).To(Equal(fiber.StatusUnsupportedMediaType))
		})

		It("refuses oversized photos", func() {
			big := append(append([]byte{}, pngHeader...), make([]byte, 2048)...)
			c := upload("image", "bin.png", big, map[string]string{"title": "Bin"})
			c.method, c.path = http.MethodPost, "/api/p/reports"
			status, _ := api.do(c)
			Expect(status).To(Equal(fiber.StatusRequestEntityTooLarge))
		})
	})

	Describe("reading", func() {
		It("returns 404 for unknown reports and 400 for malformed ids", func() {
			status, _ := api.do(call{method: http.MethodGet, path: "/api/p/reports/" + uuid.NewString()})
			Expect(status).To(Equal(fiber.StatusNotFound))

			status, _ = api.do(call{method: http.MethodGet, path: "/api/p/reports/not-a-uuid"})
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})

		It("hides reports from other tenants", func() {
			status, _ := api.do(call{method: http.MethodGet, path: "/api/p/reports/" + reportID, appID: "shelbyville"})
			Expect(status).To(Equal(fiber.StatusNotFound))
		})

		It("pages and filters the list", func() {
			file("Broken bin")
			file("Oil spill")

			status, body := api.do(call{method: http.MethodGet, path: "/api/p/reports?limit=2&page=2"})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["total"]).To(BeEquivalentTo(3))
			Expect(body["reports"]).To(HaveLen(1))

			status, body = api.do(call{method: http.MethodGet, path: "/api/p/reports?search=oil"})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["total"]).To(BeEquivalentTo(1))

			status, body = api.do(call{method: http.MethodGet, path: "/api/p/reports?sort=title&order=asc"})
			Expect(status).To(Equal(fiber.StatusOK))
			first := body["reports"].([]any)[0].(map[string]any)
			Expect(first["title"]).To(Equal("Broken bin"))
		})

		DescribeTable("rejects bad list parameters",
			func(query string, want int) {
				status, _ := api.do(call{method: http.MethodGet, path: "/api/p/reports?" + query})
				Expect(status).To(Equal(want))
			},
			Entry("unknown tab", "tab=hot", fiber.StatusBadRequest),
			Entry("unknown sort", "sort=votes", fiber.StatusBadRequest),
			Entry("unknown order", "order=sideways", fiber.StatusBadRequest),
			Entry("unknown status", "status=archived", fiber.StatusBadRequest),
			Entry("mine while anonymous", "mine=true", fiber.StatusUnauthorized),
		)

		It("lists only the caller's reports with mine", func() {
			status, _ := api.do(call{method: http.MethodPost, path: "/api/p/reports", token: citizen, body: map[string]string{"title": "Mine"}})
			Expect(status).To(Equal(fiber.StatusCreated))

			status, body := api.do(call{method: http.MethodGet, path: "/api/p/reports?mine=true", token: citizen})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["total"]).To(BeEquivalentTo(1))
		})

		It("serves stats and an empty trending list", func() {
			status, body := api.do(call{method: http.MethodGet, path: "/api/p/reports/stats"})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["total"]).To(BeEquivalentTo(1))
			Expect(body["pending"]).To(BeEquivalentTo(1))

			status, body = api.do(call{method: http.MethodGet, path: "/api/p/reports/trending"})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["reports"]).To(BeEmpty())
		})
	})

	Describe("voting", func() {
		votePath := func() string { return "/api/p/reports/" + reportID + "/vote" }

		It("requires sign-in", func() {
			status, _ := api.do(call{method: http.MethodPost, path: votePath(), body: map[string]string{"vote_type": "up"}})
			Expect(status).To(Equal(fiber.StatusUnauthorized))
		})

		It("rejects invalid tokens", func() {
			status, _ := api.do(call{method: http.MethodPost, path: votePath(), token: "garbage", body: map[string]string{"vote_type": "up"}})
			Expect(status).To(Equal(fiber.StatusUnauthorized))
		})

		It("rejects tokens issued for another tenant", func() {
			foreign, _ := token("shelbyville", "resident@example.com", models.RoleCitizen)
			status, _ := api.do(call{method: http.MethodPost, path: votePath(), token: foreign, body: map[string]string{"vote_type": "up"}})
			Expect(status).To(Equal(fiber.StatusForbidden))
		})

		It("switches the caller's vote", func() {
			status, body := api.do(call{method: http.MethodPost, path: votePath(), token: citizen, body: map[string]string{"vote_type": "up"}})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["up_votes"]).To(BeEquivalentTo(1))

			status, body = api.do(call{method: http.MethodPost, path: votePath(), token: citizen, body: map[string]string{"vote_type": "down"}})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["up_votes"]).To(BeEquivalentTo(0))
			Expect(body["down_votes"]).To(BeEquivalentTo(1))
			Expect(body["user_vote"]).To(Equal("down"))

			status, body = api.do(call{method: http.MethodGet, path: "/api/p/reports/" + reportID, token: citizen})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["down_votes"]).To(BeEquivalentTo(1))
			Expect(body["user_vote"]).To(Equal("down"))
		})

		It("rejects unknown vote types", func() {
			status, _ := api.do(call{method: http.MethodPost, path: votePath(), token: citizen, body: map[string]string{"vote_type": "meh"}})
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("discussion", func() {
		It("posts and lists messages", func() {
			path := "/api/p/reports/" + reportID + "/messages"
			status, _ := api.do(call{method: http.MethodPost, path: path, body: map[string]string{"body": "hi"}})
			Expect(status).To(Equal(fiber.StatusUnauthorized))

			status, body := api.do(call{method: http.MethodPost, path: path, token: citizen, body: map[string]string{"body": "Still there"}})
			Expect(status).To(Equal(fiber.StatusCreated))
			Expect(body["body"]).To(Equal("Still there"))

			status, body = api.do(call{method: http.MethodGet, path: path})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["messages"]).To(HaveLen(1))
		})

		It("counts comments on the report", func() {
			status, _ := api.do(call{method: http.MethodPost, path: "/api/p/reports/" + reportID + "/comments", token: citizen, body: map[string]string{"body": "Seen it"}})
			Expect(status).To(Equal(fiber.StatusCreated))

			_, body := api.do(call{method: http.MethodGet, path: "/api/p/reports/" + reportID})
			Expect(body["comment_count"]).To(BeEquivalentTo(1))
		})

		It("rejects unknown live kinds and unknown reports", func() {
			status, _ := api.do(call{method: http.MethodGet, path: "/api/p/reports/" + reportID + "/live?kinds=photo"})
			Expect(status).To(Equal(fiber.StatusBadRequest))

			status, _ = api.do(call{method: http.MethodGet, path: "/api/p/reports/" + uuid.NewString() + "/live"})
			Expect(status).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("staff", func() {
		statusPath := func() string { return "/api/staff/reports/" + reportID + "/status" }

		It("keeps citizens out", func() {
			status, _ := api.do(call{method: http.MethodPut, path: statusPath(), token: citizen, body: map[string]string{"status": "in_progress"}})
			Expect(status).To(Equal(fiber.StatusForbidden))

			status, _ = api.do(call{method: http.MethodPut, path: statusPath(), body: map[string]string{"status": "in_progress"}})
			Expect(status).To(Equal(fiber.StatusUnauthorized))
		})

		It("moves a report through its lifecycle", func() {
			status, body := api.do(call{method: http.MethodPut, path: statusPath(), token: staff, body: map[string]string{"status": "in_progress"}})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["status"]).To(Equal("in_progress"))

			status, body = api.do(call{method: http.MethodPut, path: statusPath(), token: staff, body: map[string]string{"status": "resolved"}})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["resolution_date"]).NotTo(BeNil())

			status, _ = api.do(call{method: http.MethodPut, path: statusPath(), token: staff, body: map[string]string{"status": "pending"}})
			Expect(status).To(Equal(fiber.StatusConflict))

			status, _ = api.do(call{
				method: http.MethodPut, path: "/api/staff/reports/" + reportID + "/assignee", token: staff,
				body: map[string]string{"assignee_id": uuid.NewString()},
			})
			Expect(status).To(Equal(fiber.StatusConflict))
		})

		It("assigns a report", func() {
			assignee := uuid.NewString()
			status, body := api.do(call{
				method: http.MethodPut, path: "/api/staff/reports/" + reportID + "/assignee", token: staff,
				body: map[string]string{"assignee_id": assignee},
			})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["assignee_id"]).To(Equal(assignee))
			Expect(body["status"]).To(Equal("pending"))
		})

		It("posts an official response with an after photo", func() {
			c := upload("after_image", "after.png", pngHeader, map[string]string{"message": "Cleared"})
			c.method, c.path, c.token = http.MethodPost, "/api/staff/reports/"+reportID+"/responses", staff
			status, body := api.do(c)
			Expect(status).To(Equal(fiber.StatusCreated))
			Expect(body["message"]).To(Equal("Cleared"))
			Expect(body["after_image_url"]).To(HavePrefix("/media/springfield/"))

			status, body = api.do(call{method: http.MethodGet, path: "/api/p/reports/" + reportID + "/responses"})
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["responses"]).To(HaveLen(1))
		})

		It("removes the after photo when the report does not exist", func() {
			c := upload("after_image", "after.png", pngHeader, map[string]string{"message": "Cleared"})
			c.method, c.path, c.token = http.MethodPost, "/api/staff/reports/"+uuid.NewString()+"/responses", staff
			status, _ := api.do(c)
			Expect(status).To(Equal(fiber.StatusNotFound))
			Expect(uploads()).To(BeEmpty())
		})

		It("admits staff flagged in the users table", func() {
			tok, id := token(town, "inspector@example.com", models.RoleCitizen)
			Expect(db.Create(&models.User{
				ID: id, AppID: town, Email: "inspector@example.com", Password: "x", Role: models.RoleGovernment,
			}).Error).To(Succeed())

			status, _ := api.do(call{method: http.MethodPut, path: statusPath(), token: tok, body: map[string]string{"status": "resolved"}})
			Expect(status).To(Equal(fiber.StatusOK))
		})
	})
})
