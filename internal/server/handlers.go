package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Dr-Fate/RegularityTracker/internal/config"
	"github.com/Dr-Fate/RegularityTracker/internal/export"
	"github.com/Dr-Fate/RegularityTracker/internal/fix"
	"github.com/Dr-Fate/RegularityTracker/internal/service"
	"github.com/Dr-Fate/RegularityTracker/internal/session"
	"github.com/Dr-Fate/RegularityTracker/internal/store"
)

// TargetRequest is the body of PUT /api/session/target
type TargetRequest struct {
	TargetSpeedKmh int `json:"target_speed_kmh"`
}

func registerSessionRoutes(r fiber.Router, s *Server) {
	r.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(s.Session.Snapshot())
	})

	commands := map[string]func() error{
		"start":  s.Session.Start,
		"pause":  s.Session.Pause,
		"resume": s.Session.Resume,
		"reset":  s.Session.Reset,
		"split":  s.Session.AddManualSplit,
	}
	for name, cmd := range commands {
		cmd := cmd
		r.Post("/"+name, func(c *fiber.Ctx) error {
			if err := cmd(); err != nil {
				return sessionError(err)
			}
			return c.JSON(s.Session.Snapshot())
		})
	}

	r.Put("/target", func(c *fiber.Ctx) error {
		var req TargetRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := config.ValidateTargetSpeed(req.TargetSpeedKmh); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := s.Session.SetTargetSpeed(req.TargetSpeedKmh); err != nil {
			return sessionError(err)
		}
		return c.JSON(s.Session.Snapshot())
	})
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotStarted):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidTargetSpeed):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// decodeFixes accepts a single fix object or an array of them
func decodeFixes(body []byte) ([]fix.GeoFix, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var fixes []fix.GeoFix
		if err := json.Unmarshal(body, &fixes); err != nil {
			return nil, err
		}
		return fixes, nil
	}
	var f fix.GeoFix
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, err
	}
	return []fix.GeoFix{f}, nil
}

func (s *Server) handlePushFixes(c *fiber.Ctx) error {
	fixes, err := decodeFixes(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	queued := 0
	for _, f := range fixes {
		if !s.Limiter.Allow(time.Now()) {
			s.log.Warnw("fix rate limit exceeded", "queued", queued, "received", len(fixes))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":  "too many fixes",
				"queued": queued,
			})
		}
		if err := s.Session.Push(c.UserContext(), f); err != nil {
			return sessionError(err)
		}
		queued++
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": queued})
}

func sendTable(c *fiber.Ctx, splits, ideals []int64) error {
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Attachment(export.FileName(time.Now()))
	return c.SendString(export.Table(splits, ideals))
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	snap := s.Session.Snapshot()
	return sendTable(c, snap.Splits, snap.Ideals)
}

func (s *Server) handleSaveExport(c *fiber.Ctx) error {
	path, err := s.Recorder.ExportSnapshot(s.Session.Snapshot())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"path": path})
}

func registerRunRoutes(r fiber.Router, s *Server) {
	r.Get("/", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", service.HistoryLimit)
		runs, err := s.Recorder.History(c.UserContext(), limit)
		if err != nil {
			return historyError(err)
		}
		return c.JSON(runs)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		run, err := s.Recorder.Run(c.UserContext(), c.Params("id"))
		if err != nil {
			return historyError(err)
		}
		return c.JSON(run)
	})

	r.Delete("/:id", func(c *fiber.Ctx) error {
		if err := s.Recorder.Delete(c.UserContext(), c.Params("id")); err != nil {
			return historyError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/:id/export", func(c *fiber.Ctx) error {
		run, err := s.Recorder.Run(c.UserContext(), c.Params("id"))
		if err != nil {
			return historyError(err)
		}
		splits, ideals := run.Times()
		return sendTable(c, splits, ideals)
	})
}

func historyError(err error) error {
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNoHistory):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
