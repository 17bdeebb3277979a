package bot

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type deliveryFailure int

const (
	deliveryFailed deliveryFailure = iota
	deliveryTooLarge
	deliveryTimeout
)

func (d deliveryFailure) String() string {
	switch d {
	case deliveryTooLarge:
		return "too_large"
	case deliveryTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// classifyDelivery decides which message explains a failed upload.
func classifyDelivery(err error) deliveryFailure {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusRequestEntityTooLarge {
		return deliveryTooLarge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return deliveryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return deliveryTimeout
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "file too large"),
		strings.Contains(message, "file_size"),
		strings.Contains(message, "request entity too large"):
		return deliveryTooLarge
	case strings.Contains(message, "timeout"), strings.Contains(message, "timed out"):
		return deliveryTimeout
	default:
		return deliveryFailed
	}
}
