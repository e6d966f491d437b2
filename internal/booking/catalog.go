package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// CatalogHandler registers events announced by the event catalogue so they
// become bookable. Redelivered messages are harmless.
type CatalogHandler struct {
	Store  Store
	Logger *logger.Logger
}

func NewCatalogHandler(store Store, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{Store: store, Logger: log}
}

func (h *CatalogHandler) HandleEventCreated(ctx context.Context, payload []byte) error {
	var msg models.EventCreatedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: decode event created message: %v", ErrInvalidRequest, err)
	}

	msg.EventID = strings.TrimSpace(msg.EventID)
	if msg.EventID == "" {
		return fmt.Errorf("%w: event created message without event id", ErrInvalidRequest)
	}
	if msg.Capacity < 0 {
		return fmt.Errorf("%w: event %s has negative capacity %d", ErrInvalidRequest, msg.EventID, msg.Capacity)
	}

	created, err := h.Store.Ledger().CreateEvent(ctx, &models.Event{
		ID:        msg.EventID,
		Name:      msg.Name,
		Total:     msg.Capacity,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("register event %s: %w", msg.EventID, err)
	}

	if created {
		h.Logger.Info("CATALOG", fmt.Sprintf("Registered event %s with capacity %d", msg.EventID, msg.Capacity))
	} else {
		h.Logger.Debug("CATALOG", fmt.Sprintf("Event %s already registered, capacity unchanged", msg.EventID))
	}
	return nil
}
