// Package api exposes ingestion and analytics over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/amishk599/jobintel/internal/ingest"
	"github.com/amishk599/jobintel/internal/model"
	"github.com/amishk599/jobintel/internal/query"
)

// Ingester is the write side the API needs.
type Ingester interface {
	Ingest(ctx context.Context, jobs []model.JobRecord) (model.IngestResult, error)
	IngestBulk(ctx context.Context, jobs []model.JobRecord) (model.BulkResult, error)
}

// Querier is the read side the API needs.
type Querier interface {
	List(ctx context.Context, f query.Filter, page model.Page) ([]model.StoredJobPost, error)
	Summary(ctx context.Context) (query.Summary, error)
	Breakdown(ctx context.Context, f query.Filter) (query.Breakdown, error)
	Timeseries(ctx context.Context, days int) ([]model.DayCount, error)
}

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type jobsRequest struct {
	Jobs []model.JobRecord `json:"jobs" validate:"required,min=1"`
}

// Server holds the fiber app and its handlers.
type Server struct {
	app      *fiber.App
	ingester Ingester
	querier  Querier
	pinger   Pinger
	validate *validator.Validate
	logger   *slog.Logger
}

// New builds the app and registers every route under /ingest.
func New(ingester Ingester, querier Querier, pinger Pinger, logger *slog.Logger) *Server {
	s := &Server{
		ingester: ingester,
		querier:  querier,
		pinger:   pinger,
		validate: validator.New(),
		logger:   logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "jobintel",
		DisableStartupMessage: true,
		BodyLimit:             16 << 20,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.requestLogger())
	s.app.Use(recover.New())

	g := s.app.Group("/ingest")
	g.Get("/health", s.health)
	g.Post("/jobs", s.ingestJobs)
	g.Post("/jobs/bulk", s.ingestBulk)
	g.Get("/jobs", s.listJobs)
	g.Get("/analytics/summary", s.summary)
	g.Get("/analytics/timeseries", s.timeseries)
	g.Get("/analytics/breakdown", s.breakdown)
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("api listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits up to timeout for in-flight
// requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// handleError renders every error as {"error": message}. Anything that is
// not a *fiber.Error is a 500 and is logged.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code, message = fe.Code, fe.Message
	case errors.Is(err, query.ErrInvalidFilter):
		code, message = fiber.StatusBadRequest, err.Error()
	default:
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := uuid.NewString()
		c.Locals("request_id", requestID)

		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		s.logger.Log(c.UserContext(), level, "http request",
			"request_id", requestID,
			"method", c.Method(),
			"uri", c.OriginalURL(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.UserContext()); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) parseJobs(c *fiber.Ctx) ([]model.JobRecord, error) {
	var body jobsRequest
	if err := c.BodyParser(&body); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(body); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, strings.Join(ingest.ValidationMessages(err), "; "))
	}
	return body.Jobs, nil
}

func (s *Server) ingestJobs(c *fiber.Ctx) error {
	jobs, err := s.parseJobs(c)
	if err != nil {
		return err
	}
	res, err := s.ingester.Ingest(c.UserContext(), jobs)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) ingestBulk(c *fiber.Ctx) error {
	jobs, err := s.parseJobs(c)
	if err != nil {
		return err
	}
	res, err := s.ingester.IngestBulk(c.UserContext(), jobs)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) listJobs(c *fiber.Ctx) error {
	take, err := optionalInt(c, "take")
	if err != nil {
		return err
	}
	skip, err := optionalInt(c, "skip")
	if err != nil {
		return err
	}
	posts, err := s.querier.List(c.UserContext(), filterFrom(c), query.ClampPage(take, skip))
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []model.StoredJobPost{}
	}
	return c.JSON(posts)
}

func (s *Server) summary(c *fiber.Ctx) error {
	sum, err := s.querier.Summary(c.UserContext())
	if err != nil {
		return err
	}
	if sum.BySource == nil {
		sum.BySource = []query.SourceCount{}
	}
	return c.JSON(sum)
}

func (s *Server) timeseries(c *fiber.Ctx) error {
	days, err := optionalInt(c, "days")
	if err != nil {
		return err
	}
	series, err := s.querier.Timeseries(c.UserContext(), query.ClampDays(days))
	if err != nil {
		return err
	}
	if series == nil {
		series = []model.DayCount{}
	}
	return c.JSON(series)
}

func (s *Server) breakdown(c *fiber.Ctx) error {
	b, err := s.querier.Breakdown(c.UserContext(), filterFrom(c))
	if err != nil {
		return err
	}
	for _, fc := range []*[]model.FacetCount{&b.ByRoleCategory, &b.ByWorkMode, &b.ByExperienceLevel} {
		if *fc == nil {
			*fc = []model.FacetCount{}
		}
	}
	return c.JSON(b)
}

func filterFrom(c *fiber.Ctx) query.Filter {
	return query.Filter{
		Q:               c.Query("q"),
		Location:        c.Query("location"),
		Company:         c.Query("company"),
		WorkMode:        c.Query("workMode"),
		ExperienceLevel: c.Query("experienceLevel"),
		RoleCategory:    c.Query("roleCategory"),
		From:            c.Query("from"),
		To:              c.Query("to"),
	}
}

// optionalInt returns nil when the parameter is absent.
func optionalInt(c *fiber.Ctx, key string) (*int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, key+" must be an integer")
	}
	return &v, nil
}
