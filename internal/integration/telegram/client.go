package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// GroupConfig maps subscriber languages to VIP group chats. Users are routed
// to the VIP group matching their preferred language, falling back to
// DefaultLanguage, and every subscriber also joins the community group.
type GroupConfig struct {
	CommunityChatID int64
	VIPChatIDs      map[string]int64
	DefaultLanguage string
}

// Messenger defines the Telegram side effects of subscription transitions.
// All methods are best effort at call sites: failures are logged, never
// rolled back into the database.
type Messenger interface {
	// KickUser bans the user from their language VIP group and the
	// community group.
	KickUser(ctx context.Context, telegramUserID int64, language string) error

	// UnbanUser lifts the ban so the user can rejoin via a fresh invite.
	UnbanUser(ctx context.Context, telegramUserID int64, language string) error

	// CreateInviteLink creates a single-use invite link into the language
	// VIP group.
	CreateInviteLink(ctx context.Context, language string) (string, error)

	// CreateCommunityInviteLink creates a single-use invite link into the
	// community group.
	CreateCommunityInviteLink(ctx context.Context) (string, error)

	// SendDirectMessage sends a direct message to the user's private chat.
	SendDirectMessage(ctx context.Context, telegramUserID int64, text string) error
}

type telegramMessenger struct {
	bot    *telego.Bot
	groups GroupConfig
	log    *logger.Logger
}

// NewMessenger creates a Messenger backed by the Telegram bot API.
func NewMessenger(botToken string, groups GroupConfig, log *logger.Logger) (Messenger, error) {
	bot, err := telego.NewBot(botToken, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &telegramMessenger{bot: bot, groups: groups, log: log}, nil
}

func (m *telegramMessenger) vipChatID(language string) int64 {
	if id, ok := m.groups.VIPChatIDs[language]; ok {
		return id
	}
	return m.groups.VIPChatIDs[m.groups.DefaultLanguage]
}

func (m *telegramMessenger) KickUser(ctx context.Context, telegramUserID int64, language string) error {
	chats := []int64{m.vipChatID(language), m.groups.CommunityChatID}
	for _, chatID := range chats {
		if chatID == 0 {
			continue
		}
		err := m.bot.BanChatMember(&telego.BanChatMemberParams{
			ChatID: tu.ID(chatID),
			UserID: telegramUserID,
		})
		if err != nil {
			m.log.Errorw("Failed to kick user from group", "telegramUserID", telegramUserID, "chatID", chatID, "error", err)
			return domain.NewExternalServiceError("telegram", "ban chat member", err)
		}
	}

	m.log.Infow("User kicked from groups", "telegramUserID", telegramUserID, "language", language)
	return nil
}

func (m *telegramMessenger) UnbanUser(ctx context.Context, telegramUserID int64, language string) error {
	chats := []int64{m.vipChatID(language), m.groups.CommunityChatID}
	for _, chatID := range chats {
		if chatID == 0 {
			continue
		}
		err := m.bot.UnbanChatMember(&telego.UnbanChatMemberParams{
			ChatID:       tu.ID(chatID),
			UserID:       telegramUserID,
			OnlyIfBanned: true,
		})
		if err != nil {
			m.log.Errorw("Failed to unban user", "telegramUserID", telegramUserID, "chatID", chatID, "error", err)
			return domain.NewExternalServiceError("telegram", "unban chat member", err)
		}
	}

	m.log.Infow("User unbanned", "telegramUserID", telegramUserID, "language", language)
	return nil
}

// CreateInviteLink issues a one-member invite link so the link cannot be
// shared onward.
func (m *telegramMessenger) CreateInviteLink(ctx context.Context, language string) (string, error) {
	chatID := m.vipChatID(language)
	if chatID == 0 {
		return "", domain.NewValidationError("language", "no VIP group configured for language "+language)
	}

	return m.createOneTimeLink(chatID)
}

func (m *telegramMessenger) CreateCommunityInviteLink(ctx context.Context) (string, error) {
	if m.groups.CommunityChatID == 0 {
		return "", domain.NewValidationError("community", "no community group configured")
	}
	return m.createOneTimeLink(m.groups.CommunityChatID)
}

// createOneTimeLink caps the link at one member so it cannot be shared.
func (m *telegramMessenger) createOneTimeLink(chatID int64) (string, error) {
	link, err := m.bot.CreateChatInviteLink(&telego.CreateChatInviteLinkParams{
		ChatID:      tu.ID(chatID),
		MemberLimit: 1,
	})
	if err != nil {
		m.log.Errorw("Failed to create invite link", "chatID", chatID, "error", err)
		return "", domain.NewExternalServiceError("telegram", "create invite link", err)
	}

	return link.InviteLink, nil
}

func (m *telegramMessenger) SendDirectMessage(ctx context.Context, telegramUserID int64, text string) error {
	_, err := m.bot.SendMessage(tu.Message(tu.ID(telegramUserID), text))
	if err != nil {
		m.log.Errorw("Failed to send direct message", "telegramUserID", telegramUserID, "error", err)
		return domain.NewExternalServiceError("telegram", "send message", err)
	}
	return nil
}

// NoopMessenger satisfies Messenger without a bot. Used in tests and when
// Telegram integration is disabled.
type NoopMessenger struct{}

func (NoopMessenger) KickUser(context.Context, int64, string) error  { return nil }
func (NoopMessenger) UnbanUser(context.Context, int64, string) error { return nil }
func (NoopMessenger) CreateInviteLink(context.Context, string) (string, error) {
	return "", nil
}
func (NoopMessenger) CreateCommunityInviteLink(context.Context) (string, error) {
	return "", nil
}
func (NoopMessenger) SendDirectMessage(context.Context, int64, string) error { return nil }
