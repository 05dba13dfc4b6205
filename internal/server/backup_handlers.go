package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studystack/sentinel/pkg/models"
)

// handleListBackups returns metadata for every backup on disk, newest first.
// URL: GET /api/v1/backups
func (s *Server) handleListBackups(c *fiber.Ctx) error {
	backups, err := s.backups.ListBackups(c.Context())
	if err != nil {
		s.log.Error("failed to list backups", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list backups", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, backups)
}

// handleCreateBackup runs a full backup immediately, outside the schedule.
// URL: POST /api/v1/backups
func (s *Server) handleCreateBackup(c *fiber.Ctx) error {
	metadata, err := s.backups.CreateFullBackup(c.Context())
	if err != nil {
		s.log.Error("manual backup failed", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Backup failed", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusCreated, metadata)
}

type verifyBackupRequest struct {
	Name string `json:"name"`
}

// handleVerifyBackup recomputes a backup's checksum against its sidecar.
// URL: POST /api/v1/backups/verify
func (s *Server) handleVerifyBackup(c *fiber.Ctx) error {
	var req verifyBackupRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Backup name is required", models.ValidationErrorType)
	}
	ok, err := s.backups.VerifyBackupIntegrity(c.Context(), req.Name)
	if err != nil {
		s.log.Error("backup verification failed", "backup", req.Name, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Verification failed", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"name": req.Name, "valid": ok})
}
