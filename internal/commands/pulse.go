package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/draxon/draxon-bots/internal/platform"
	"github.com/draxon/draxon-bots/internal/pulse"
	"go.uber.org/zap"
)

const (
	SOSFormID       = "pulse-sos-modal"
	sosLocationID   = "location"
	sosSituationID  = "situation"
	channelOptionID = "channel"
)

// AlertService is the emergency alert surface used by the PULSE commands.
type AlertService interface {
	Check(ctx context.Context, guildID string, member platform.Member) error
	Submit(ctx context.Context, guildID string, member platform.Member, report pulse.Report) (pulse.Alert, error)
	Setup(ctx context.Context, guildID string, actor platform.Member, channelID string) error
	Status(ctx context.Context, guildID string, actor platform.Member) (pulse.Status, error)
}

// RegisterPulse adds the alert bot's commands to router.
func RegisterPulse(router *Router, alerts AlertService, logger *zap.Logger) error {
	if alerts == nil {
		return fmt.Errorf("commands: alert service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router.Command(Definition{
		Name:        "setup",
		Description: "Configure the PULSE alert channel",
		Options:     []Option{{Name: channelOptionID, Description: "Select the channel for emergency alerts", Type: OptionChannel, Required: true}},
	}, func(ctx context.Context, request Request) Response {
		channelID := request.Option(channelOptionID)
		err := alerts.Setup(ctx, request.GuildID, request.Member, channelID)
		if err != nil {
			logger.Warn("alert channel setup failed", zap.String("guild_id", request.GuildID), zap.Error(err))
		}
		return Ephemeral(pulse.SetupMessage(channelID, err))
	})

	router.Command(Definition{Name: "sos", Description: "Send an emergency alert to DraXon staff"}, func(ctx context.Context, request Request) Response {
		if err := alerts.Check(ctx, request.GuildID, request.Member); err != nil {
			return Ephemeral(pulse.CheckMessage(err))
		}
		return Response{Modal: &Modal{
			ID:    SOSFormID,
			Title: "PULSE Emergency Alert",
			Fields: []ModalField{
				{ID: sosLocationID, Label: "What is your current location?", Placeholder: "Enter your location here...", Required: true, MaxLength: pulse.MaxLocationLength},
				{ID: sosSituationID, Label: "Emergency Description", Placeholder: "Briefly describe your emergency situation...", Required: true, MaxLength: pulse.MaxSituationLength, Paragraph: true},
			},
		}}
	})

	router.Form(SOSFormID, func(ctx context.Context, request Request) Response {
		_, err := alerts.Submit(ctx, request.GuildID, request.Member, pulse.Report{
			Location:  request.Option(sosLocationID),
			Situation: request.Option(sosSituationID),
		})
		return Ephemeral(pulse.SubmitMessage(err))
	})

	router.Command(Definition{Name: "pulse-status", Description: "Check PULSE system status"}, func(ctx context.Context, request Request) Response {
		status, err := alerts.Status(ctx, request.GuildID, request.Member)
		if err != nil {
			if errors.Is(err, pulse.ErrNotAdmin) {
				return Ephemeral("❌ You don't have permission to use this command.")
			}
			logger.Error("pulse status failed", zap.String("guild_id", request.GuildID), zap.Error(err))
			return Ephemeral("❌ An error occurred while fetching the system status.")
		}
		return Ephemeral(pulse.RenderStatus(status))
	})
	return nil
}
