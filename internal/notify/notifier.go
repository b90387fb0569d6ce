package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nikoksr/notify"
	"github.com/nikoksr/notify/service/mail"
	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/config"
)

// MailNotifier 通过 SMTP 邮件通知宠物主人
// recipientID 即收件邮箱；SMTP 未配置时降级为只记日志
type MailNotifier struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewMailNotifier 创建邮件通知器
func NewMailNotifier(cfg *config.Config, logger *zap.Logger) *MailNotifier {
	n := &MailNotifier{cfg: cfg, logger: logger}
	if !n.enabled() {
		logger.Warn("SMTP not configured, notifications will be logged only")
	}
	return n
}

func (n *MailNotifier) enabled() bool {
	return n.cfg.SMTPHost != "" && n.cfg.SMTPFrom != ""
}

// NotifyCheckIn 发送自动签到通知
func (n *MailNotifier) NotifyCheckIn(ctx context.Context, recipientID, visitID string, at time.Time) error {
	subject := "Your sitter has arrived"
	body := fmt.Sprintf(
		"Visit: %s\nYour sitter checked in at %s.",
		visitID,
		at.Format("2006-01-02 15:04:05 MST"),
	)
	return n.send(ctx, recipientID, visitID, subject, body)
}

// NotifyETA 发送临近到达提醒
func (n *MailNotifier) NotifyETA(ctx context.Context, recipientID, visitID string, minutes float64) error {
	subject := "Your sitter is almost there"
	body := fmt.Sprintf(
		"Visit: %s\nYour sitter is about %.0f minutes away.",
		visitID,
		minutes,
	)
	return n.send(ctx, recipientID, visitID, subject, body)
}

func (n *MailNotifier) send(ctx context.Context, recipientID, visitID, subject, body string) error {
	if !n.enabled() || !strings.Contains(recipientID, "@") {
		n.logger.Info("Notification (mail disabled)",
			zap.String("visit_id", visitID),
			zap.String("recipient", recipientID),
			zap.String("subject", subject))
		return nil
	}

	// 每次发送新建 mail service：nikoksr/notify 的 AddReceivers 会累积
	// 收件人，复用会导致重复发送
	mailSvc := mail.New(n.cfg.SMTPFrom, fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort))
	if n.cfg.SMTPUser != "" {
		mailSvc.AuthenticateSMTP("", n.cfg.SMTPUser, n.cfg.SMTPPassword, n.cfg.SMTPHost)
	}
	mailSvc.AddReceivers(recipientID)

	notifier := notify.New()
	notifier.UseServices(mailSvc)

	if err := notifier.Send(ctx, subject, body); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	n.logger.Info("Notification sent",
		zap.String("visit_id", visitID),
		zap.String("recipient", recipientID),
		zap.String("subject", subject))
	return nil
}
