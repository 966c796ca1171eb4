package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jamsession/api/internal/config"
	"github.com/jamsession/api/internal/middleware"
	"github.com/jamsession/api/internal/model"
	ws "github.com/jamsession/api/internal/websocket"
)

// Deps bundles what the HTTP surface needs.
type Deps struct {
	Jams        *JamHandler
	Users       *UserHandler
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	Hub         *ws.Hub
	Limits      config.RateLimitConfig
}

// NewApp builds the fiber app with every route mounted.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authRoutes := app.Group("/auth")
	authRoutes.Post("/register", d.Users.Register)
	authRoutes.Post("/login", d.Users.Login)

	api := app.Group("/api", d.Auth.Authenticate())
	api.Get("/roles", d.Jams.Roles)

	users := api.Group("/users")
	users.Get("/me", d.Users.Me)
	users.Get("/:userId", d.Users.Get)

	jams := api.Group("/jams")
	jams.Post("/", d.RateLimiter.CreateLimit(d.Limits.CreatePerHour), d.Jams.Create)
	jams.Get("/pending", d.Jams.List(model.JamStatusPending))
	jams.Get("/active", d.Jams.List(model.JamStatusActive))
	jams.Get("/past", d.Jams.List(model.JamStatusEnded))
	jams.Get("/:jamId", d.Jams.Get)
	jams.Get("/:jamId/roles", d.Jams.PossibleRoles)
	jams.Post("/:jamId/join", d.RateLimiter.JoinLimit(d.Limits.JoinPerMin), d.Jams.Join)
	jams.Post("/:jamId/leave", d.RateLimiter.JoinLimit(d.Limits.JoinPerMin), d.Jams.Leave)
	jams.Post("/:jamId/start", d.Jams.Start)
	jams.Post("/:jamId/end", d.Jams.End)
	jams.Post("/:jamId/history", d.Jams.RecordHistory)
	jams.Delete("/:jamId", d.Jams.Delete)

	if d.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/jams/:jamId", d.Auth.Authenticate(), d.Jams.RequireJam, websocket.New(func(c *websocket.Conn) {
			jamID, ok := c.Locals("jamId").(int64)
			if !ok {
				return
			}
			d.Hub.HandleConnection(c, jamID)
		}))
	}

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
