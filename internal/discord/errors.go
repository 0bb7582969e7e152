package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/draxon/draxon-bots/internal/faults"
)

// JSON error codes returned by the Discord API.
const (
	codeUnknownChannel     = 10003
	codeUnknownMember      = 10007
	codeUnknownRole        = 10011
	codeUnknownUser        = 10013
	codeCannotMessageUser  = 50007
	codeMissingAccess      = 50001
	codeMissingPermissions = 50013
)

// mapError classifies err into the fault taxonomy, keeping the original error in the chain text.
func mapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return fmt.Errorf("discord: %s: %w", operation, err)
	}
	code := 0
	if restErr.Message != nil {
		code = restErr.Message.Code
	}
	status := 0
	if restErr.Response != nil {
		status = restErr.Response.StatusCode
	}
	switch {
	case code == codeMissingPermissions || code == codeMissingAccess || code == codeCannotMessageUser || status == http.StatusForbidden:
		return fmt.Errorf("discord: %s: %w: %v", operation, faults.ErrPermissionDenied, err)
	case code == codeUnknownChannel || code == codeUnknownMember || code == codeUnknownRole || code == codeUnknownUser || status == http.StatusNotFound:
		return fmt.Errorf("discord: %s: %w: %v", operation, faults.ErrNotFound, err)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("discord: %s: %w: %v", operation, faults.ErrRemoteUnavailable, err)
	default:
		return fmt.Errorf("discord: %s: %w", operation, err)
	}
}
