package notify

import (
	"context"
	"fmt"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/integration/telegram"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// Notifier delivers user-facing and admin notifications. Every method is
// fire-and-forget relative to the triggering operation: failures are logged
// by the implementation and must never surface as errors to the flow that
// confirmed a payment or processed a refund.
type Notifier interface {
	// SendPaymentConfirmation confirms a pack purchase and includes fresh
	// one-time invite links into the VIP and community groups.
	SendPaymentConfirmation(ctx context.Context, user domain.User, pack domain.Pack)

	// SendRefundConfirmation confirms a processed refund.
	SendRefundConfirmation(ctx context.Context, user domain.User, amount float64, currency string)

	// SendSubscriptionEnded informs the user their access has ended.
	SendSubscriptionEnded(ctx context.Context, user domain.User, pack domain.Pack)

	// SendRenewalReminder prompts the user to renew before the period ends.
	SendRenewalReminder(ctx context.Context, user domain.User, pack domain.Pack, daysLeft int)

	// SendAdminPaymentAlert raises a payment anomaly to the admin channel.
	SendAdminPaymentAlert(ctx context.Context, subject, detail string)
}

type telegramNotifier struct {
	messenger   telegram.Messenger
	adminChatID int64
	log         *logger.Logger
}

// NewTelegramNotifier delivers notifications as Telegram direct messages.
func NewTelegramNotifier(messenger telegram.Messenger, adminChatID int64, log *logger.Logger) Notifier {
	return &telegramNotifier{
		messenger:   messenger,
		adminChatID: adminChatID,
		log:         log,
	}
}

func (n *telegramNotifier) SendPaymentConfirmation(ctx context.Context, user domain.User, pack domain.Pack) {
	if user.TelegramUserID == 0 {
		return
	}

	vipLink, err := n.messenger.CreateInviteLink(ctx, user.PreferredLanguage)
	if err != nil {
		n.log.Errorw("Failed to create VIP invite link", "userID", user.ID, "error", err)
	}
	communityLink, err := n.messenger.CreateCommunityInviteLink(ctx)
	if err != nil {
		n.log.Errorw("Failed to create community invite link", "userID", user.ID, "error", err)
	}

	text := fmt.Sprintf("Your %s subscription is active. Welcome aboard!", pack.Name)
	if vipLink != "" {
		text += "\nVIP group: " + vipLink
	}
	if communityLink != "" {
		text += "\nCommunity: " + communityLink
	}

	if err := n.messenger.SendDirectMessage(ctx, user.TelegramUserID, text); err != nil {
		n.log.Errorw("Failed to send payment confirmation", "userID", user.ID, "error", err)
	}
}

func (n *telegramNotifier) SendRefundConfirmation(ctx context.Context, user domain.User, amount float64, currency string) {
	if user.TelegramUserID == 0 {
		return
	}

	text := fmt.Sprintf("Your refund of %.2f %s has been processed.", amount, currency)
	if err := n.messenger.SendDirectMessage(ctx, user.TelegramUserID, text); err != nil {
		n.log.Errorw("Failed to send refund confirmation", "userID", user.ID, "error", err)
	}
}

func (n *telegramNotifier) SendSubscriptionEnded(ctx context.Context, user domain.User, pack domain.Pack) {
	if user.TelegramUserID == 0 {
		return
	}

	text := fmt.Sprintf("Your %s subscription has ended. Renew anytime to regain access.", pack.Name)
	if err := n.messenger.SendDirectMessage(ctx, user.TelegramUserID, text); err != nil {
		n.log.Errorw("Failed to send subscription ended notice", "userID", user.ID, "error", err)
	}
}

func (n *telegramNotifier) SendRenewalReminder(ctx context.Context, user domain.User, pack domain.Pack, daysLeft int) {
	if user.TelegramUserID == 0 {
		return
	}

	text := fmt.Sprintf("Your %s subscription ends in %d days. Renew now to keep your access.", pack.Name, daysLeft)
	if err := n.messenger.SendDirectMessage(ctx, user.TelegramUserID, text); err != nil {
		n.log.Errorw("Failed to send renewal reminder", "userID", user.ID, "error", err)
	}
}

func (n *telegramNotifier) SendAdminPaymentAlert(ctx context.Context, subject, detail string) {
	if n.adminChatID == 0 {
		n.log.Warnw("Admin alert with no admin chat configured", "subject", subject, "detail", detail)
		return
	}

	text := fmt.Sprintf("⚠️ %s\n%s", subject, detail)
	if err := n.messenger.SendDirectMessage(ctx, n.adminChatID, text); err != nil {
		n.log.Errorw("Failed to send admin alert", "subject", subject, "error", err)
	}
}

// NoopNotifier discards all notifications.
type NoopNotifier struct{}

func (NoopNotifier) SendPaymentConfirmation(context.Context, domain.User, domain.Pack)    {}
func (NoopNotifier) SendRefundConfirmation(context.Context, domain.User, float64, string) {}
func (NoopNotifier) SendSubscriptionEnded(context.Context, domain.User, domain.Pack)      {}
func (NoopNotifier) SendRenewalReminder(context.Context, domain.User, domain.Pack, int)   {}
func (NoopNotifier) SendAdminPaymentAlert(context.Context, string, string)                {}
