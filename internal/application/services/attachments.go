package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

// maxAttachmentLookups bounds concurrent calls to the attachment service.
const maxAttachmentLookups = 8

// ResolveAttachments fills in attachments for messages that carry none yet.
// A failed lookup leaves that message without attachments.
func ResolveAttachments(ctx context.Context, svc ports.AttachmentService, messages []*models.Message) {
	if svc == nil || len(messages) == 0 {
		return
	}

	resolved := make([][]models.Attachment, len(messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxAttachmentLookups)

	for i, msg := range messages {
		if len(msg.Attachments) > 0 || msg.HiddenFromClients() {
			continue
		}
		g.Go(func() error {
			atts, err := svc.GetByMessageID(gctx, msg.ID)
			if err != nil {
				log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to resolve attachments")
				return nil
			}
			resolved[i] = atts
			return nil
		})
	}
	_ = g.Wait()

	for i, atts := range resolved {
		if len(atts) > 0 {
			messages[i].Attachments = atts
		}
	}
}
