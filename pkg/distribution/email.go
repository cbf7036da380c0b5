package distribution

import (
	"context"
	"fmt"
	"net/mail"
	"os"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/export"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// EmailChannel delivers an export by email, either attached or, when the
// file exceeds the attachment ceiling, as a signed time-limited download
// link. Hourly global and per-user rate limits are enforced before any
// message is handed to the mailer.
type EmailChannel struct {
	mailer         domain.Mailer
	limiter        domain.SendRateLimiter
	signer         *export.LinkSigner
	root           string
	maxAttachment  int64
	globalPerHour  int
	perUserPerHour int
	log            logger.Logger
}

// NewEmailChannel creates an email delivery channel
func NewEmailChannel(mailer domain.Mailer, limiter domain.SendRateLimiter, signer *export.LinkSigner, root string, maxAttachment int64, globalPerHour, perUserPerHour int, log logger.Logger) *EmailChannel {
	return &EmailChannel{
		mailer:         mailer,
		limiter:        limiter,
		signer:         signer,
		root:           root,
		maxAttachment:  maxAttachment,
		globalPerHour:  globalPerHour,
		perUserPerHour: perUserPerHour,
		log:            log,
	}
}

// Deliver sends the export to the configured recipients
func (c *EmailChannel) Deliver(ctx context.Context, schedule *models.ExportSchedule, exp *models.Export) models.ChannelResult {
	cfg := schedule.DistributionConfig.Email
	now := time.Now().UTC()

	detail, err := c.deliver(ctx, schedule, exp, cfg)
	if err != nil {
		return models.ChannelResult{
			Status:    models.ChannelStatusFailed,
			Detail:    domain.ClientMessage(err),
			Timestamp: now,
		}
	}
	return models.ChannelResult{
		Status:    models.ChannelStatusSuccess,
		Detail:    detail,
		Timestamp: now,
	}
}

func (c *EmailChannel) deliver(ctx context.Context, schedule *models.ExportSchedule, exp *models.Export, cfg *models.EmailChannelConfig) (string, error) {
	to := c.validAddresses(cfg.Recipients)
	if len(to) == 0 {
		return "", domain.NewDistributionChannelError(models.ChannelEmail, fmt.Errorf("no valid recipients"))
	}
	cc := c.validAddresses(cfg.CC)
	bcc := c.validAddresses(cfg.BCC)

	if err := c.checkRateLimits(ctx, schedule.OwnerID); err != nil {
		return "", err
	}

	msg := domain.OutboundEmail{
		To:      to,
		CC:      cc,
		BCC:     bcc,
		Subject: cfg.Subject,
		Body:    cfg.Body,
	}
	if msg.Subject == "" {
		msg.Subject = fmt.Sprintf("Scheduled export: %s", schedule.Name)
	}
	if msg.Body == "" {
		msg.Body = fmt.Sprintf("Your scheduled export %q finished with %d rows.", schedule.Name, exp.RowCount)
	}

	detail := "sent with attachment"
	if c.shouldAttach(exp) {
		path, err := export.SafeJoin(c.root, exp.Filename)
		if err != nil {
			return "", err
		}
		msg.Attachment = exp.Filename
		msg.AttachedAt = path
	} else {
		msg.DownloadURL = c.signer.SignedURL(exp.ID, exp.ExpiresAt)
		detail = "sent with download link"
	}

	if err := c.mailer.Send(ctx, msg); err != nil {
		return "", domain.NewDistributionChannelError(models.ChannelEmail, err)
	}
	return detail, nil
}

// shouldAttach reports whether the file fits the attachment ceiling. A
// file that vanished or cannot be measured falls back to the link.
func (c *EmailChannel) shouldAttach(exp *models.Export) bool {
	size := exp.FileSize
	if size == 0 {
		path, err := export.SafeJoin(c.root, exp.Filename)
		if err != nil {
			return false
		}
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		size = info.Size()
	}
	return size <= c.maxAttachment
}

// checkRateLimits enforces the global then the per-user hourly budget
func (c *EmailChannel) checkRateLimits(ctx context.Context, ownerID int) error {
	ok, err := c.limiter.Allow(ctx, "email:global", c.globalPerHour)
	if err != nil {
		return domain.NewDistributionChannelError(models.ChannelEmail, err)
	}
	if !ok {
		return domain.NewRateLimitExceededError("global email")
	}

	ok, err = c.limiter.Allow(ctx, fmt.Sprintf("email:user:%d", ownerID), c.perUserPerHour)
	if err != nil {
		return domain.NewDistributionChannelError(models.ChannelEmail, err)
	}
	if !ok {
		return domain.NewRateLimitExceededError("per-user email")
	}
	return nil
}

// validAddresses drops malformed addresses with a warning; a bad cc entry
// must not sink the whole delivery.
func (c *EmailChannel) validAddresses(addresses []string) []string {
	var valid []string
	for _, address := range addresses {
		if _, err := mail.ParseAddress(address); err != nil {
			c.log.Warn("dropping invalid email address", "address", address)
			continue
		}
		valid = append(valid, address)
	}
	return valid
}
