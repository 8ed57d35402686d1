package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pawboard/pawboard/internal/middleware"
	"github.com/pawboard/pawboard/internal/ws"
)

type Deps struct {
	AuthHandler *AuthHTTP
	ChatHandler *ChatHTTP
	WSHandler   *ws.Handler
	AuthMW      *middleware.Auth
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	auth := e.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.Logout)

	// The websocket route authenticates itself from the token query param;
	// a missing token still yields a connection.
	e.GET("/ws", d.WSHandler.Serve)

	chats := e.Group("/chats")
	chats.Use(d.AuthMW.RequireAuth)
	chats.GET("", d.ChatHandler.ListChats)
	chats.POST("", d.ChatHandler.CreateChat)
	chats.GET("/:id", d.ChatHandler.GetChat)
	chats.GET("/:id/messages", d.ChatHandler.ListMessages)
	chats.POST("/:id/messages", d.ChatHandler.SendMessage)
	chats.PATCH("/:id/messages/:messageId", d.ChatHandler.EditMessage)
}
