package chat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/media"
	"github.com/adamavenir/huddle/internal/recorder"
	"github.com/adamavenir/huddle/internal/types"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

var errNoUploader = errors.New("attachments need upload_url in config")

func (m *Model) startRecording() {
	if m.device == nil {
		m.setError(errors.New("recording is not available"))
		return
	}
	if m.rec != nil {
		m.setStatus("already recording")
		return
	}
	rec := recorder.NewSession(m.device,
		recorder.WithListener(m.bridge.RecorderChanged),
		recorder.WithLogger(m.logger),
	)
	if err := rec.Start(m.ctx); err != nil {
		_ = rec.Close()
		m.setError(err)
		return
	}
	m.rec = rec
	m.recSnap = rec.Snapshot()
	m.confirmDiscard = false
	m.setStatus("recording · ctrl+p pause · ctrl+s send · ctrl+x discard")
	m.resize()
}

// stopRecording keeps the recording and sends it as a voice message.
func (m *Model) stopRecording() tea.Cmd {
	rec := m.rec
	m.rec = nil
	m.confirmDiscard = false
	m.resize()
	ctx, ctrl, up, opts := m.ctx, m.ctrl, m.uploader, m.upload
	reply := m.replyTarget()
	m.replyToID = ""
	return func() tea.Msg {
		defer rec.Close()
		recording, err := rec.Stop(ctx, false)
		if errors.Is(err, recorder.ErrTooShort) {
			return opResultMsg{status: "recording too short, discarded"}
		}
		if err != nil {
			return opResultMsg{err: err}
		}
		return sendVoice(ctx, ctrl, up, opts, recording, reply)
	}
}

// discardRecording asks for confirmation on the first press and deletes the
// recording on the second.
func (m *Model) discardRecording() tea.Cmd {
	err := m.rec.Discard(m.ctx, m.confirmDiscard)
	if errors.Is(err, recorder.ErrConfirmRequired) {
		m.confirmDiscard = true
		m.setStatus("ctrl+x again to discard the recording, esc to keep it")
		return nil
	}
	_ = m.rec.Close()
	m.rec = nil
	m.confirmDiscard = false
	m.resize()
	if err != nil {
		m.setError(err)
		return nil
	}
	m.setStatus("recording discarded")
	return nil
}

func sendVoice(ctx context.Context, ctrl *conversation.Controller, up *media.Uploader, opts types.UploadOptions, rec *recorder.Recording, reply *string) tea.Msg {
	if up == nil {
		return opResultMsg{err: fmt.Errorf("%w; recording kept at %s", errNoUploader, media.LocalPath(rec.URI))}
	}
	set, err := up.PrepareMedia(ctx, []string{rec.URI}, "", opts)
	if err != nil {
		return opResultMsg{err: err}
	}
	for i := range set.Items {
		set.Items[i].URI = withDurationHint(set.Items[i].URI, rec.Seconds)
		set.Items[i].AltURI = withDurationHint(set.Items[i].AltURI, rec.Seconds)
	}
	if _, err := ctrl.SendPayload(ctx, set, reply); err != nil {
		return opResultMsg{err: err}
	}
	return opResultMsg{status: "voice message sent · " + core.FormatDuration(rec.Duration)}
}

// withDurationHint records the clip length in the URL fragment so players
// without metadata access show the right duration.
func withDurationHint(raw string, seconds int) string {
	if raw == "" || seconds <= 0 {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Fragment != "" {
		return raw
	}
	u.Fragment = "t=" + strconv.Itoa(seconds)
	return u.String()
}

// sendAttachment uploads a picked file and sends it. Images, video and audio
// go out as a media set with the caption; anything else as a document, with
// the caption following as its own text message.
func (m *Model) sendAttachment(pick media.Pick, caption string) tea.Cmd {
	if m.uploader == nil {
		m.setError(errNoUploader)
		return nil
	}
	ctx, ctrl, up, opts := m.ctx, m.ctrl, m.uploader, m.upload
	reply := m.replyTarget()
	m.replyToID = ""
	m.setStatus("uploading %s (%s)…", pick.Name, humanize.Bytes(uint64(pick.Size)))
	return func() tea.Msg {
		var payload content.Payload
		switch pick.Class {
		case content.MediaClassImage, content.MediaClassVideo, content.MediaClassAudio:
			set, err := up.PrepareMedia(ctx, []string{pick.URI()}, caption, opts)
			if err != nil {
				return opResultMsg{err: err}
			}
			payload = set
			caption = ""
		default:
			doc, err := up.PrepareDocument(ctx, pick.URI(), opts)
			if err != nil {
				return opResultMsg{err: err}
			}
			payload = doc
		}
		if _, err := ctrl.SendPayload(ctx, payload, reply); err != nil {
			return opResultMsg{err: err}
		}
		if caption != "" {
			if _, err := ctrl.Send(ctx, caption, types.MessageTypeText, nil); err != nil {
				return opResultMsg{err: err}
			}
		}
		return opResultMsg{status: "sent " + pick.Name}
	}
}
