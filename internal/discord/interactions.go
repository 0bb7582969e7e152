package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/draxon/draxon-bots/internal/commands"
	"go.uber.org/zap"
)

const (
	handlerTimeout = 2 * time.Minute
	maxContent     = 2000
)

// Dispatcher serves converted interactions.
type Dispatcher interface {
	Dispatch(ctx context.Context, request commands.Request) commands.Response
	Definitions() []commands.Definition
	Deferred(name string) bool
}

// Interactions registers slash commands and routes interactions to a Dispatcher.
type Interactions struct {
	client     *Client
	dispatcher Dispatcher
	guildID    string
	logger     *zap.Logger
}

// NewInteractions routes client's interactions to dispatcher. A non-empty
// guildID scopes command registration to that guild.
func NewInteractions(client *Client, dispatcher Dispatcher, guildID string, logger *zap.Logger) *Interactions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactions{client: client, dispatcher: dispatcher, guildID: guildID, logger: logger}
}

// Attach installs the interaction handler. Call before Client.Open.
func (i *Interactions) Attach(ctx context.Context) {
	i.client.session.AddHandler(func(s *discordgo.Session, event *discordgo.InteractionCreate) {
		i.handle(ctx, event.Interaction)
	})
}

// Register overwrites the application's slash commands. Call after Client.Open.
func (i *Interactions) Register() error {
	user := i.client.session.State.User
	if user == nil {
		return fmt.Errorf("discord: register commands before ready")
	}
	definitions := toApplicationCommands(i.dispatcher.Definitions())
	created, err := i.client.session.ApplicationCommandBulkOverwrite(user.ID, i.guildID, definitions)
	if err != nil {
		return mapError("register commands", err)
	}
	i.logger.Info("commands registered", zap.Int("count", len(created)), zap.String("guild_id", i.guildID))
	return nil
}

func (i *Interactions) handle(parent context.Context, interaction *discordgo.Interaction) {
	ctx, cancel := context.WithTimeout(parent, handlerTimeout)
	defer cancel()

	request, ok := toRequest(interaction)
	if !ok {
		return
	}
	logger := i.logger.With(zap.String("command", request.Name), zap.String("guild_id", request.GuildID))
	if interaction.Member == nil {
		i.respond(interaction, commands.Ephemeral("❌ This command can only be used in a server."), false, logger)
		return
	}
	member, err := i.client.ResolveMember(ctx, interaction.GuildID, interaction.Member)
	if err != nil {
		logger.Error("interaction member resolution failed", zap.Error(err))
		i.respond(interaction, commands.Ephemeral("❌ An error occurred while processing the command."), false, logger)
		return
	}
	request.Member = member

	deferred := i.dispatcher.Deferred(request.Name)
	if deferred {
		err := i.client.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
		})
		if err != nil {
			logger.Error("interaction defer failed", zap.Error(mapError("defer", err)))
			return
		}
	}
	i.respond(interaction, i.dispatcher.Dispatch(ctx, request), deferred, logger)
}

func (i *Interactions) respond(interaction *discordgo.Interaction, response commands.Response, deferred bool, logger *zap.Logger) {
	var err error
	if deferred {
		content := clip(response.Content)
		edit := &discordgo.WebhookEdit{Content: &content}
		if file := toFile(response.File); file != nil {
			edit.Files = []*discordgo.File{file}
		}
		_, err = i.client.session.InteractionResponseEdit(interaction, edit)
	} else {
		err = i.client.session.InteractionRespond(interaction, toInteractionResponse(response))
	}
	if err != nil {
		logger.Error("interaction response failed", zap.Error(mapError("respond", err)))
	}
}

// toRequest converts a slash command or modal submission. Other interaction types are ignored.
func toRequest(interaction *discordgo.Interaction) (commands.Request, bool) {
	request := commands.Request{
		GuildID:   interaction.GuildID,
		ChannelID: interaction.ChannelID,
		Options:   make(map[string]string),
	}
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		data := interaction.ApplicationCommandData()
		request.Name = data.Name
		for _, option := range data.Options {
			request.Options[option.Name] = optionValue(option)
		}
	case discordgo.InteractionModalSubmit:
		data := interaction.ModalSubmitData()
		request.Name = data.CustomID
		collectInputs(data.Components, request.Options)
	default:
		return commands.Request{}, false
	}
	return request, true
}

func optionValue(option *discordgo.ApplicationCommandInteractionDataOption) string {
	switch value := option.Value.(type) {
	case string:
		return value
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}

func collectInputs(components []discordgo.MessageComponent, into map[string]string) {
	for _, component := range components {
		switch c := component.(type) {
		case *discordgo.ActionsRow:
			collectInputs(c.Components, into)
		case discordgo.ActionsRow:
			collectInputs(c.Components, into)
		case *discordgo.TextInput:
			into[c.CustomID] = c.Value
		case discordgo.TextInput:
			into[c.CustomID] = c.Value
		}
	}
}

func toInteractionResponse(response commands.Response) *discordgo.InteractionResponse {
	if response.Modal != nil {
		rows := make([]discordgo.MessageComponent, 0, len(response.Modal.Fields))
		for _, field := range response.Modal.Fields {
			style := discordgo.TextInputShort
			if field.Paragraph {
				style = discordgo.TextInputParagraph
			}
			rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    field.ID,
					Label:       field.Label,
					Style:       style,
					Placeholder: field.Placeholder,
					Required:    field.Required,
					MaxLength:   field.MaxLength,
				},
			}})
		}
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID:   response.Modal.ID,
				Title:      response.Modal.Title,
				Components: rows,
			},
		}
	}

	data := &discordgo.InteractionResponseData{Content: clip(response.Content)}
	if response.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if file := toFile(response.File); file != nil {
		data.Files = []*discordgo.File{file}
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

func toFile(file *commands.File) *discordgo.File {
	if file == nil {
		return nil
	}
	return &discordgo.File{Name: file.Name, ContentType: "text/plain", Reader: strings.NewReader(file.Content)}
}

func toApplicationCommands(definitions []commands.Definition) []*discordgo.ApplicationCommand {
	result := make([]*discordgo.ApplicationCommand, 0, len(definitions))
	for _, definition := range definitions {
		command := &discordgo.ApplicationCommand{Name: definition.Name, Description: definition.Description}
		for _, option := range definition.Options {
			converted := &discordgo.ApplicationCommandOption{
				Name:        option.Name,
				Description: option.Description,
				Required:    option.Required,
			}
			switch option.Type {
			case commands.OptionUser:
				converted.Type = discordgo.ApplicationCommandOptionUser
			case commands.OptionChannel:
				converted.Type = discordgo.ApplicationCommandOptionChannel
				converted.ChannelTypes = []discordgo.ChannelType{discordgo.ChannelTypeGuildText}
			default:
				converted.Type = discordgo.ApplicationCommandOptionString
			}
			for _, choice := range option.Choices {
				converted.Choices = append(converted.Choices, &discordgo.ApplicationCommandOptionChoice{Name: choice, Value: choice})
			}
			command.Options = append(command.Options, converted)
		}
		result = append(result, command)
	}
	return result
}

func clip(content string) string {
	runes := []rune(content)
	if len(runes) <= maxContent {
		return content
	}
	return string(runes[:maxContent-3]) + "..."
}
