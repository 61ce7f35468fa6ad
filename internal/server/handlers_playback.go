package server

import (
	"strings"

	apperrors "github.com/tvlink/relay/internal/errors"
	"github.com/tvlink/relay/internal/registry"
)

// playbackSource is the source field on playback broadcasts.
const playbackSource = "mobile"

// handlePlayVideo broadcasts playOnTV to every registered TV.
func (c *Client) handlePlayVideo(req request) error {
	var p PlayVideoPayload
	if err := req.decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.URL) == "" {
		return apperrors.MissingField("Video URL is required")
	}
	if p.StartTime < 0 {
		p.StartTime = 0
	}

	now := c.server.now()
	n := c.server.BroadcastToKind(registry.KindTV, NewPlayOnTVMessage(p, playbackSource, now), nil)

	c.server.log.Info().Str("url", p.URL).Int("tvs", n).Msg("play command broadcast")

	c.reply(req, Message{
		Type: MessageTypePlayResponse,
		Payload: PlaybackResponsePayload{
			Success:     true,
			Message:     "Video play command sent to all TVs",
			TargetCount: n,
			Timestamp:   formatTimestamp(now),
		},
	})
	return nil
}

// handlePlaybackCommand covers pauseVideo and stopVideo, which carry no
// payload and differ only in the event names.
func (c *Client) handlePlaybackCommand(req request, broadcastType, responseType MessageType, message string) error {
	now := c.server.now()
	n := c.server.BroadcastToKind(registry.KindTV, Message{
		Type:    broadcastType,
		Payload: PlaybackCommandPayload{Timestamp: formatTimestamp(now), Source: playbackSource},
	}, nil)

	c.server.log.Info().Str("command", string(broadcastType)).Int("tvs", n).Msg("playback command broadcast")

	c.reply(req, Message{
		Type: responseType,
		Payload: PlaybackResponsePayload{
			Success:     true,
			Message:     message,
			TargetCount: n,
			Timestamp:   formatTimestamp(now),
		},
	})
	return nil
}
