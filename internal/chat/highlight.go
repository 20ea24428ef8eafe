package chat

import (
	"bytes"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

const chromaStyleName = "dracula"

// segment is a run of message lines: prose, or a fenced code block with its
// fence lines kept verbatim.
type segment struct {
	lines []string
	code  bool
	lang  string
	open  string
	close string
}

// fenceScanner walks message lines and groups them into segments.
type fenceScanner struct {
	segments []segment
	cur      segment
	char     byte
	width    int
}

func (s *fenceScanner) feed(line string) {
	if s.cur.code {
		if s.closes(line) {
			s.cur.close = line
			s.flush()
			return
		}
		s.cur.lines = append(s.cur.lines, line)
		return
	}
	char, width, lang, ok := fenceInfo(line)
	if !ok {
		s.cur.lines = append(s.cur.lines, line)
		return
	}
	s.flush()
	s.cur = segment{code: true, lang: lang, open: line}
	s.char, s.width = char, width
}

// closes reports whether line ends the open block: the same fence character,
// at least as wide as the opener, with nothing else on the line.
func (s *fenceScanner) closes(line string) bool {
	char, width, _, ok := fenceInfo(line)
	return ok && char == s.char && width >= s.width && strings.TrimSpace(line) == strings.Repeat(string(char), width)
}

func (s *fenceScanner) flush() {
	if s.cur.code || len(s.cur.lines) > 0 {
		s.segments = append(s.segments, s.cur)
	}
	s.cur = segment{}
}

// finish returns the segments. An unclosed block is folded back into prose.
func (s *fenceScanner) finish() []segment {
	if s.cur.code {
		lines := append([]string{s.cur.open}, s.cur.lines...)
		s.cur = segment{}
		if n := len(s.segments); n > 0 && !s.segments[n-1].code {
			s.segments[n-1].lines = append(s.segments[n-1].lines, lines...)
		} else {
			s.segments = append(s.segments, segment{lines: lines})
		}
		return s.segments
	}
	s.flush()
	return s.segments
}

func splitFenced(text string) []segment {
	var s fenceScanner
	for _, line := range strings.Split(text, "\n") {
		s.feed(line)
	}
	return s.finish()
}

// fenceInfo parses a ``` or ~~~ line into its character, run width and
// language word.
func fenceInfo(line string) (char byte, width int, lang string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return 0, 0, "", false
	}
	char = trimmed[0]
	if char != '`' && char != '~' {
		return 0, 0, "", false
	}
	rest := strings.TrimLeft(trimmed, string(char))
	width = len(trimmed) - len(rest)
	if width < 3 {
		return 0, 0, "", false
	}
	if fields := strings.Fields(rest); len(fields) > 0 {
		lang = fields[0]
	}
	return char, width, lang, true
}

// highlightText colors fenced code blocks in a text message.
func highlightText(text string) string {
	if text == "" || os.Getenv("NO_COLOR") != "" {
		return text
	}
	if !strings.Contains(text, "```") && !strings.Contains(text, "~~~") {
		return text
	}

	var b strings.Builder
	for i, seg := range splitFenced(text) {
		if i > 0 {
			b.WriteByte('\n')
		}
		if !seg.code {
			b.WriteString(strings.Join(seg.lines, "\n"))
			continue
		}
		b.WriteString(seg.open)
		if len(seg.lines) > 0 {
			b.WriteByte('\n')
			b.WriteString(colorize(strings.Join(seg.lines, "\n"), seg.lang))
		}
		b.WriteByte('\n')
		b.WriteString(seg.close)
	}
	return b.String()
}

func colorize(code, lang string) string {
	if strings.TrimSpace(code) == "" {
		return code
	}
	iterator, err := lexerFor(code, lang).Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := formatters.TTY256.Format(&buf, chatStyle(), iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

var chatStyle = sync.OnceValue(func() *chroma.Style {
	if style := styles.Get(chromaStyleName); style != nil {
		return style
	}
	return styles.Fallback
})

var lexerCache sync.Map

// lexerFor resolves a lexer by fence language, caching named lookups.
// Blocks without a usable language are guessed from their content.
func lexerFor(code, lang string) chroma.Lexer {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang != "" {
		if cached, ok := lexerCache.Load(lang); ok {
			return cached.(chroma.Lexer)
		}
		if lexer := lexers.Get(lang); lexer != nil {
			coalesced := chroma.Coalesce(lexer)
			lexerCache.Store(lang, coalesced)
			return coalesced
		}
	}
	lexer := lexers.Analyse(code)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}
