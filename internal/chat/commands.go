package chat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adamavenir/huddle/internal/audio"
	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/media"
	"github.com/adamavenir/huddle/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

const helpText = "/reply /edit /resend /copy /jump · /vote /unvote /poll · /location /contact /attach · /play /seek /rate · /record /stop /discard · /quit"

func (m *Model) handleSlashCommand(input string) (bool, tea.Cmd) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return false, nil
	}
	cmd, err := m.runSlashCommand(trimmed)
	if err != nil {
		m.setError(err)
		return true, nil
	}
	return true, cmd
}

func (m *Model) runSlashCommand(input string) (tea.Cmd, error) {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch name {
	case "/quit", "/exit":
		return tea.Quit, nil
	case "/help":
		m.resetInput()
		m.setStatus("%s", helpText)
		return nil, nil
	case "/reply":
		return m.runReply(args, rest)
	case "/edit":
		return m.runEdit(args, rest)
	case "/resend":
		msg, err := m.requireMessage(args)
		if err != nil {
			return nil, err
		}
		m.resetInput()
		return m.resendCmd(msg.CorrelationID), nil
	case "/copy":
		msg, err := m.requireMessage(args)
		if err != nil {
			return nil, err
		}
		if err := copyMessage(msg); err != nil {
			return nil, err
		}
		m.resetInput()
		m.setStatus("copied #%s", core.ShortID(msg.ID, shortIDLength))
		return nil, nil
	case "/jump":
		msg, err := m.requireMessage(args)
		if err != nil {
			return nil, err
		}
		m.resetInput()
		m.jumpToReply(msg.ID)
		return nil, nil
	case "/vote", "/unvote":
		return m.runVote(name == "/unvote", args)
	case "/poll":
		return m.runPoll(rest)
	case "/location":
		return m.runLocation(args)
	case "/contact":
		return m.runContact(rest)
	case "/attach":
		return m.runAttach(rest)
	case "/play", "/rate", "/seek":
		return m.runAudio(name, args)
	case "/record":
		m.resetInput()
		m.startRecording()
		return nil, nil
	case "/stop":
		if m.rec == nil {
			return nil, errors.New("not recording")
		}
		m.resetInput()
		return m.stopRecording(), nil
	case "/discard":
		if m.rec == nil {
			return nil, errors.New("not recording")
		}
		m.resetInput()
		return m.discardRecording(), nil
	case "/reload":
		m.resetInput()
		return m.loadCmd(), nil
	}
	return nil, fmt.Errorf("unknown command %s (try /help)", name)
}

// resolveMessage finds a message by id, correlation id or the short id shown
// in the footer. A leading # is accepted.
func (m *Model) resolveMessage(ref string) (types.Message, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if ref == "" {
		return types.Message{}, errors.New("message id required")
	}
	if msg, ok := m.ctrl.Message(ref); ok {
		return msg, nil
	}
	var matches []types.Message
	for _, msg := range m.ctrl.Messages() {
		if strings.HasPrefix(core.ShortID(msg.ID, len(msg.ID)), ref) {
			matches = append(matches, msg)
		}
	}
	switch len(matches) {
	case 0:
		return types.Message{}, fmt.Errorf("no message #%s", ref)
	case 1:
		return matches[0], nil
	}
	return types.Message{}, fmt.Errorf("#%s is ambiguous (%d matches)", ref, len(matches))
}

func (m *Model) requireMessage(args []string) (types.Message, error) {
	if len(args) == 0 {
		return types.Message{}, errors.New("message id required")
	}
	return m.resolveMessage(args[0])
}

func (m *Model) runReply(args []string, rest string) (tea.Cmd, error) {
	msg, err := m.requireMessage(args)
	if err != nil {
		return nil, err
	}
	if msg.IsSystem() {
		return nil, errors.New("system messages cannot be replied to")
	}
	text := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
	m.replyToID = msg.ID
	if text == "" {
		m.resetInput()
		m.setStatus("replying to #%s", core.ShortID(msg.ID, shortIDLength))
		return nil, nil
	}
	reply := m.replyTarget()
	staged, err := m.ctrl.Stage(text, types.MessageTypeText, reply)
	if err != nil {
		return nil, err
	}
	m.replyToID = ""
	m.resetInput()
	return m.deliverCmd(staged.CorrelationID), nil
}

func (m *Model) startReply(msg types.Message) {
	if msg.IsSystem() {
		m.setStatus("system messages cannot be replied to")
		return
	}
	m.replyToID = msg.ID
	m.editingID = ""
	m.setStatus("replying to #%s · esc to cancel", core.ShortID(msg.ID, shortIDLength))
}

func (m *Model) runEdit(args []string, rest string) (tea.Cmd, error) {
	msg, err := m.requireMessage(args)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
	if text != "" {
		m.resetInput()
		return m.editCmd(msg.ID, text), nil
	}
	if err := m.beginEdit(msg); err != nil {
		return nil, err
	}
	return nil, nil
}

// beginEdit loads an own text message into the input for editing.
func (m *Model) beginEdit(msg types.Message) error {
	if msg.SenderID != m.ctrl.UserID() || msg.IsSystem() {
		return errors.New("you can only edit your own messages")
	}
	if msg.State != types.SendStateConfirmed {
		return errors.New("message not confirmed yet")
	}
	text, ok := content.Decode(msg.Content).(content.PlainText)
	if !ok {
		return errors.New("only text messages can be edited")
	}
	m.editingID = msg.ID
	m.replyToID = ""
	m.input.SetValue(text.Text)
	m.input.CursorEnd()
	m.resize()
	m.setStatus("editing #%s · esc to cancel", core.ShortID(msg.ID, shortIDLength))
	return nil
}

// prefillLastEdit puts the viewer's latest text message up for editing.
func (m *Model) prefillLastEdit() bool {
	messages := m.ctrl.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.SenderID != m.ctrl.UserID() || msg.State != types.SendStateConfirmed {
			continue
		}
		return m.beginEdit(msg) == nil
	}
	return false
}

func (m *Model) runVote(retract bool, args []string) (tea.Cmd, error) {
	if len(args) < 2 {
		return nil, errors.New("usage: /vote <poll> <option>")
	}
	msg, err := m.resolveMessage(args[0])
	if err != nil {
		return nil, err
	}
	p, ok := content.Decode(msg.Content).(content.Poll)
	if !ok {
		return nil, fmt.Errorf("#%s is not a poll", args[0])
	}
	optionID, err := pollOptionRef(p, args[1])
	if err != nil {
		return nil, err
	}
	m.resetInput()
	if retract {
		if err := m.ctrl.Retract(msg.ID, optionID); err != nil {
			return nil, err
		}
		m.setStatus("vote removed locally")
		return nil, nil
	}
	return m.voteCmd(msg.ID, optionID, false), nil
}

// pollOptionRef accepts an option id or its 1-based position.
func pollOptionRef(p content.Poll, ref string) (string, error) {
	if opt, ok := p.Option(ref); ok {
		return opt.ID, nil
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(p.Options) {
		return p.Options[n-1].ID, nil
	}
	return "", fmt.Errorf("unknown option %q", ref)
}

// runPoll parses "/poll [-multi] [-anon] question | option | option".
func (m *Model) runPoll(rest string) (tea.Cmd, error) {
	p, err := parsePoll(rest)
	if err != nil {
		return nil, err
	}
	m.resetInput()
	return m.sendPayloadCmd(p, "poll sent"), nil
}

func parsePoll(rest string) (content.Poll, error) {
	var p content.Poll
	for {
		rest = strings.TrimSpace(rest)
		if r, ok := strings.CutPrefix(rest, "-multi"); ok {
			p.AllowMultiple = true
			rest = r
			continue
		}
		if r, ok := strings.CutPrefix(rest, "-anon"); ok {
			p.Anonymous = true
			rest = r
			continue
		}
		break
	}
	parts := strings.Split(rest, "|")
	p.Question = strings.TrimSpace(parts[0])
	for _, part := range parts[1:] {
		if text := strings.TrimSpace(part); text != "" {
			p.Options = append(p.Options, content.PollOption{ID: strconv.Itoa(len(p.Options) + 1), Text: text})
		}
	}
	if p.Question == "" || len(p.Options) < 2 {
		return content.Poll{}, errors.New("usage: /poll [-multi] [-anon] question | option | option")
	}
	return p, nil
}

func (m *Model) runLocation(args []string) (tea.Cmd, error) {
	if len(args) < 2 {
		return nil, errors.New("usage: /location <lat> <lon> [address]")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude %q", args[0])
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid longitude %q", args[1])
	}
	loc := content.Location{Lat: lat, Lon: lon, Address: strings.Join(args[2:], " ")}
	m.resetInput()
	return m.sendPayloadCmd(loc, "location sent"), nil
}

// runContact parses "/contact name | phone or email | ...".
func (m *Model) runContact(rest string) (tea.Cmd, error) {
	c, err := parseContact(rest)
	if err != nil {
		return nil, err
	}
	m.resetInput()
	return m.sendPayloadCmd(c, "contact sent"), nil
}

func parseContact(rest string) (content.Contact, error) {
	parts := strings.Split(rest, "|")
	c := content.Contact{Name: strings.TrimSpace(parts[0])}
	if c.Name == "" {
		return content.Contact{}, errors.New("usage: /contact name | phone | email")
	}
	for _, part := range parts[1:] {
		value := strings.TrimSpace(part)
		switch {
		case value == "":
		case strings.Contains(value, "@"):
			c.Emails = append(c.Emails, value)
		case strings.IndexFunc(value, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0:
			c.Phones = append(c.Phones, value)
		case c.Organization == "":
			c.Organization = value
		default:
			c.JobTitle = value
		}
	}
	return c, nil
}

func (m *Model) runAttach(rest string) (tea.Cmd, error) {
	if m.uploader == nil {
		return nil, errors.New("attachments need upload_url in config")
	}
	if rest == "" {
		if m.drops == nil {
			return nil, errors.New("usage: /attach <path>")
		}
		picks, err := media.Scan(m.drops.Dir())
		if err != nil {
			return nil, err
		}
		if len(picks) == 0 {
			return nil, fmt.Errorf("drop a file into %s or use /attach <path>", m.drops.Dir())
		}
		rest = picks[0].Path
	}
	pick, err := media.PickFile(rest)
	if err != nil {
		return nil, err
	}
	m.attachment = &pick
	m.resetInput()
	m.setStatus("attached %s · type a caption and press enter", pick.Name)
	return nil, nil
}

func (m *Model) runAudio(name string, args []string) (tea.Cmd, error) {
	msg, err := m.requireMessage(args)
	if err != nil {
		return nil, err
	}
	key, ok := m.firstAudio(msg)
	if !ok {
		return nil, fmt.Errorf("#%s has no playable audio", args[0])
	}
	session, ok := m.player.Session(key)
	if !ok {
		return nil, errors.New("audio not loaded yet")
	}
	m.resetInput()
	switch name {
	case "/rate":
		rate, err := session.CycleRate()
		if err != nil {
			return nil, err
		}
		m.setStatus("playback %gx", rate)
		return nil, nil
	case "/seek":
		if len(args) < 2 {
			return nil, errors.New("usage: /seek <id> <seconds>")
		}
		secs, err := strconv.ParseFloat(args[1], 64)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("invalid position %q", args[1])
		}
		ctx := m.ctx
		target := time.Duration(secs * float64(time.Second))
		return func() tea.Msg {
			err := session.Seek(ctx, target)
			if errors.Is(err, audio.ErrSeekInFlight) {
				return opResultMsg{status: "seek already in progress"}
			}
			return opResultMsg{err: err}
		}, nil
	}
	return m.toggleAudio(key), nil
}

func (m *Model) firstAudio(msg types.Message) (string, bool) {
	set, ok := content.Decode(msg.Content).(content.MediaSet)
	if !ok {
		return "", false
	}
	for i, item := range set.Items {
		if item.Class() != content.MediaClassAudio {
			continue
		}
		if _, ok := m.mounted[audioKey(msg.ID, i)]; ok {
			return audioKey(msg.ID, i), true
		}
	}
	return "", false
}

func (m *Model) sendPayloadCmd(p content.Payload, done string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	reply := m.replyTarget()
	m.replyToID = ""
	return func() tea.Msg {
		if _, err := ctrl.SendPayload(ctx, p, reply); err != nil {
			return opResultMsg{err: err}
		}
		return opResultMsg{status: done}
	}
}
