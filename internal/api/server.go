// Package api exposes the planner over HTTP.
package api

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"crm-planner/internal/model"
	"crm-planner/internal/repository"
	"crm-planner/internal/service"
)

// UserHeader identifies the calling user by Telegram ID.
const UserHeader = "X-Telegram-ID"

const userKey = "user"

// Server serves the task API.
type Server struct {
	app   *fiber.App
	tasks *service.TaskService
	users *repository.UserRepository
	loc   *time.Location
	now   func() time.Time
}

func New(tasks *service.TaskService, users *repository.UserRepository, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{tasks: tasks, users: users, loc: loc, now: time.Now}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(loggerMiddleware())
	s.setupRoutes()
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	log.Printf("[info] http server listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.health)

	v1 := s.app.Group("/api/v1", s.requireUser)
	v1.Get("/tasks/:id/occurrences", s.occurrences)
	v1.Post("/tasks/:id/complete", s.complete)
	v1.Get("/calendar", s.calendarJSON)
	v1.Get("/calendar.ics", s.calendarICS)
}

// requireUser resolves the X-Telegram-ID header to a known user.
func (s *Server) requireUser(c *fiber.Ctx) error {
	raw := c.Get(UserHeader)
	if raw == "" {
		return fail(c, fiber.StatusUnauthorized, "unauthorized", UserHeader+" header is required")
	}
	telegramID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid_request", "invalid "+UserHeader+" header")
	}
	user, err := s.users.FindByTelegramID(c.UserContext(), telegramID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fail(c, fiber.StatusUnauthorized, "unauthorized", "unknown user")
	case err != nil:
		return err
	}
	c.Locals(userKey, user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *model.User {
	user, _ := c.Locals(userKey).(*model.User)
	return user
}

func fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: code, Message: message})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	} else {
		log.Printf("[warn] %s %s: %v", c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

func loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Printf("[info] %s %s %d %s", c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start).Round(time.Microsecond))
		return err
	}
}
