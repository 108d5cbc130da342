// handlers/game.go
package handlers

import (
	"errors"
	"strconv"

	"stars-host/repository"
	"stars-host/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GameHandler is the operator surface over games and their turns.
type GameHandler struct {
	repo  repository.Repository
	queue services.Enqueuer
	log   *zap.Logger
}

func NewGameHandler(repo repository.Repository, queue services.Enqueuer, log *zap.Logger) *GameHandler {
	return &GameHandler{repo: repo, queue: queue, log: log}
}

func SetupGameRoutes(app fiber.Router, h *GameHandler) {
	app.Get("/games/:id", h.GetGame)
	app.Get("/games/:id/turns", h.ListTurns)
	app.Get("/games/:id/turns/:year/scores", h.ListScores)
	app.Post("/games/:id/generate", h.Generate)
}

func gameID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid game id")
	}
	return uint(id), nil
}

func (h *GameHandler) dbError(c *fiber.Ctx, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	h.log.Error("database error", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
}

// GetGame returns the game with its state and options.
func (h *GameHandler) GetGame(c *fiber.Ctx) error {
	id, err := gameID(c)
	if err != nil {
		return err
	}
	game, err := h.repo.GetGame(c.UserContext(), id)
	if err != nil {
		return h.dbError(c, err)
	}
	return c.JSON(game)
}

// ListTurns returns the game's turns, newest first.
func (h *GameHandler) ListTurns(c *fiber.Ctx) error {
	id, err := gameID(c)
	if err != nil {
		return err
	}
	if _, err := h.repo.GetGame(c.UserContext(), id); err != nil {
		return h.dbError(c, err)
	}
	turns, err := h.repo.ListTurns(c.UserContext(), id)
	if err != nil {
		return h.dbError(c, err)
	}
	return c.JSON(turns)
}

// ListScores returns the score cells recorded for one turn.
func (h *GameHandler) ListScores(c *fiber.Ctx) error {
	id, err := gameID(c)
	if err != nil {
		return err
	}
	year, err := strconv.Atoi(c.Params("year"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid year")
	}
	turn, err := h.repo.GetTurnByYear(c.UserContext(), id, year)
	if err != nil {
		return h.dbError(c, err)
	}
	scores, err := h.repo.ListScores(c.UserContext(), turn.ID)
	if err != nil {
		return h.dbError(c, err)
	}
	return c.JSON(fiber.Map{"year": turn.Year, "turn_id": turn.ID, "scores": scores})
}

// Generate queues the game's next lifecycle step. Activation or generation
// happens asynchronously on the worker.
func (h *GameHandler) Generate(c *fiber.Ctx) error {
	id, err := gameID(c)
	if err != nil {
		return err
	}
	game, err := h.repo.GetGame(c.UserContext(), id)
	if err != nil {
		return h.dbError(c, err)
	}
	if !h.queue.Enqueue(game.ID) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "game is already queued"})
	}
	h.log.Info("📥 generation requested", zap.Uint("game_id", game.ID), zap.String("state", game.State))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"game_id": game.ID, "queued": true})
}
