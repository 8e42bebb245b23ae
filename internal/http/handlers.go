package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/digitaltwin/internal/items"
	"github.com/fyrsmithlabs/digitaltwin/internal/store"
	"github.com/fyrsmithlabs/digitaltwin/internal/users"
	"github.com/fyrsmithlabs/digitaltwin/pkg/auth"
	v1 "github.com/fyrsmithlabs/digitaltwin/pkg/api/v1"
)

// maxHistoryLimit caps GET /api/chat/history.
const maxHistoryLimit = 100

func (s *Server) handleRegister(c echo.Context) error {
	var req users.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	u, err := s.users.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return s.respondWithToken(c, http.StatusCreated, u)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req users.LoginRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	u, err := s.users.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return s.respondWithToken(c, http.StatusOK, u)
}

func (s *Server) respondWithToken(c echo.Context, code int, u *store.User) error {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return err
	}
	return c.JSON(code, TokenResponse{
		AccessToken: token,
		TokenType:   auth.TokenType,
		User:        u,
	})
}

func (s *Server) handleChat(c echo.Context) error {
	userID := currentUser(c)
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	resp, err := s.chat.Send(c.Request().Context(), userID, req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChatHistory(c echo.Context) error {
	limit := store.DefaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return v1.Invalid("limit must be a positive integer")
		}
		limit = min(n, maxHistoryLimit)
	}
	convs, err := s.chat.History(c.Request().Context(), currentUser(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convs)
}

func (s *Server) handleListItems(c echo.Context) error {
	list, err := s.items.List(c.Request().Context(), currentUser(c), items.Filter{
		Category: c.QueryParam("category"),
		Status:   c.QueryParam("status"),
		LifeArea: c.QueryParam("life_area"),
	})
	if err != nil {
		return err
	}
	if list == nil {
		list = []*store.Item{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleCreateItem(c echo.Context) error {
	var req items.CreateRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	it, err := s.items.Create(c.Request().Context(), currentUser(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, it)
}

func (s *Server) handleGetItem(c echo.Context) error {
	id, err := itemID(c)
	if err != nil {
		return err
	}
	it, err := s.items.Get(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return itemError(err)
	}
	return c.JSON(http.StatusOK, it)
}

func (s *Server) handleUpdateItem(c echo.Context) error {
	id, err := itemID(c)
	if err != nil {
		return err
	}
	var req items.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	it, err := s.items.Update(c.Request().Context(), currentUser(c), id, req)
	if err != nil {
		return itemError(err)
	}
	return c.JSON(http.StatusOK, it)
}

func (s *Server) handleUpdateItemStatus(c echo.Context) error {
	id, err := itemID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	it, err := s.items.UpdateStatus(c.Request().Context(), currentUser(c), id, req.Status)
	if err != nil {
		return itemError(err)
	}
	return c.JSON(http.StatusOK, it)
}

func (s *Server) handleDeleteItem(c echo.Context) error {
	id, err := itemID(c)
	if err != nil {
		return err
	}
	if err := s.items.Delete(c.Request().Context(), currentUser(c), id); err != nil {
		return itemError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetMe(c echo.Context) error {
	u, err := s.users.Get(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) handleUpdateMe(c echo.Context) error {
	var req users.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	u, err := s.users.UpdateProfile(c.Request().Context(), currentUser(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) handleDeleteMe(c echo.Context) error {
	if err := s.users.Delete(c.Request().Context(), currentUser(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// currentUser returns the ID stored by the bearer middleware. Every route
// calling it sits behind that middleware.
func currentUser(c echo.Context) int64 {
	id, _ := auth.UserIDFromContext(c)
	return id
}

// itemID parses the :id path parameter. Anything that is not a positive
// integer cannot name an item and is reported as not found.
func itemID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errItemNotFound
	}
	return id, nil
}
