package server

import (
	"errors"
	"strings"
	"time"

	apperrors "github.com/tvlink/relay/internal/errors"
	"github.com/tvlink/relay/internal/pairing"
	"github.com/tvlink/relay/internal/registry"
)

// handleRequestPairing mints a session for the named TV and forwards the
// request to it. The TV lookup and the session insert are separate steps;
// a TV that disconnects in between simply never sees the request.
func (c *Client) handleRequestPairing(req request) error {
	var p RequestPairingPayload
	if err := req.decode(&p); err != nil {
		return err
	}
	tvID := strings.TrimSpace(p.TVID)
	if tvID == "" {
		return apperrors.MissingField("TV ID is required for pairing")
	}

	tv, err := c.server.registry.Resolve(tvID)
	if err != nil {
		return apperrors.TVNotFound(err)
	}
	if tv.Kind != registry.KindTV {
		return apperrors.TVNotFound(registry.ErrNotFound)
	}

	sess := c.server.pairing.Create(tvID, c)
	now := sess.CreatedAt

	if !sendToHandle(tv.Handle, NewPairingRequestMessage(sess.ID, c.id, sess.ExpiresAt, now)) {
		c.server.log.Warn().Str("session", sess.ID).Str("tv", tvID).Msg("pairing request not delivered to TV")
	}

	c.server.log.Info().Str("session", sess.ID).Str("tv", tvID).Str("mobile", c.id).Msg("pairing requested")
	c.server.audit(sess, AuditRequested, now)

	c.reply(req, Message{
		Type: MessageTypePairingRequested,
		Payload: PairingRequestedPayload{
			SessionID: sess.ID,
			TVID:      tvID,
			ExpiresAt: sess.ExpiresAt.UnixMilli(),
			Message:   "Pairing request sent to TV",
			Timestamp: formatTimestamp(now),
		},
	})
	return nil
}

// handleConfirmPairing applies the TV's decision.
func (c *Client) handleConfirmPairing(req request) error {
	var p ConfirmPairingPayload
	if err := req.decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.SessionID) == "" {
		return apperrors.MissingField("Session ID is required")
	}
	if p.Accepted == nil {
		return apperrors.MissingField("accepted is required")
	}

	sess, err := c.server.pairing.Confirm(p.SessionID, *p.Accepted)
	switch {
	case errors.Is(err, pairing.ErrAlreadyUsed):
		return apperrors.AlreadyUsed(err)
	case errors.Is(err, pairing.ErrSessionExpired):
		c.server.audit(sess, AuditExpired, c.server.now())
		return apperrors.SessionNotFound(err)
	case err != nil:
		return apperrors.SessionNotFound(err)
	}

	now := c.server.now()
	if *p.Accepted {
		c.server.log.Info().Str("session", sess.ID).Str("tv", sess.TVID).Msg("pairing confirmed")
		c.server.audit(sess, AuditConfirmed, now)

		c.notifyRequester(sess, NewPairingResultMessage(MessageTypePairingConfirmed, sess.ID, sess.TVID, "Pairing successful", now))
		c.reply(req, NewPairingResultMessage(MessageTypePairingConfirmed, sess.ID, sess.TVID, "Pairing confirmed", now))
		return nil
	}

	c.server.log.Info().Str("session", sess.ID).Str("tv", sess.TVID).Msg("pairing rejected")
	c.server.audit(sess, AuditRejected, now)

	c.notifyRequester(sess, NewPairingResultMessage(MessageTypePairingRejected, sess.ID, sess.TVID, "Pairing rejected by TV", now))
	c.reply(req, NewPairingResultMessage(MessageTypePairingRejected, sess.ID, sess.TVID, "Pairing rejected", now))
	return nil
}

// handleCancelPairing deletes a session and tells the other party.
// The caller is always acknowledged, even for unknown sessions. A session
// found already past its deadline is recorded as expired and nobody else
// is told.
func (c *Client) handleCancelPairing(req request) error {
	var p CancelPairingPayload
	if err := req.decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.SessionID) == "" {
		return apperrors.MissingField("Session ID is required")
	}

	now := c.server.now()
	sess, err := c.server.pairing.Cancel(p.SessionID)
	tvID := ""
	switch {
	case errors.Is(err, pairing.ErrSessionExpired):
		c.server.log.Debug().Str("session", sess.ID).Str("tv", sess.TVID).Msg("cancelled pairing had already expired")
		c.server.audit(sess, AuditExpired, now)
	case err == nil:
		tvID = sess.TVID
		c.server.log.Info().Str("session", sess.ID).Str("tv", sess.TVID).Msg("pairing cancelled")
		c.server.audit(sess, AuditCancelled, now)

		msg := NewPairingResultMessage(MessageTypePairingCancelled, sess.ID, sess.TVID, "Pairing cancelled", now)
		if sess.Requester == registry.Handle(c) {
			if !c.server.SendToOne(sess.TVID, msg) {
				c.server.log.Debug().Str("session", sess.ID).Str("tv", sess.TVID).Msg("cancel not delivered to TV")
			}
		} else {
			c.notifyRequester(sess, msg)
		}
	}

	c.reply(req, NewPairingResultMessage(MessageTypePairingCancelled, p.SessionID, tvID, "Pairing cancelled", now))
	return nil
}

// notifyRequester sends msg to the mobile that opened the session. The
// mobile may be gone; that is logged, not reported.
func (c *Client) notifyRequester(sess pairing.Session, msg Message) {
	if sess.Requester == nil || !sendToHandle(sess.Requester, msg) {
		c.server.log.Debug().Str("session", sess.ID).Str("type", string(msg.Type)).Msg("requester not reachable")
	}
}

// audit records a pairing transition if an auditor is configured.
func (s *Server) audit(sess pairing.Session, action string, at time.Time) {
	s.mu.RLock()
	auditor := s.auditor
	s.mu.RUnlock()
	if auditor == nil {
		return
	}

	mobileID := ""
	if sess.Requester != nil {
		mobileID = sess.Requester.ID()
	}
	err := auditor.RecordPairingEvent(PairingEvent{
		SessionID: sess.ID,
		TVID:      sess.TVID,
		MobileID:  mobileID,
		Action:    action,
		At:        at,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("session", sess.ID).Str("action", action).Msg("pairing audit write failed")
	}
}

// HandleExpiredSessions is the sweeper callback: it audits every session
// the sweeper removed. Expired requests are not announced to clients.
func (s *Server) HandleExpiredSessions(sessions []pairing.Session) {
	now := s.now()
	for _, sess := range sessions {
		s.log.Debug().Str("session", sess.ID).Str("tv", sess.TVID).Bool("confirmed", sess.Used).Msg("pairing session expired")
		s.audit(sess, AuditExpired, now)
	}
}
