package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"tacboard/internal/logger"
	"tacboard/pkg/client"
	"tacboard/pkg/phonetic"
	"tacboard/pkg/types"
)

var errQuit = errors.New("quit")

func newConnectCmd(logLevel *string) *cobra.Command {
	var (
		addr     string
		callsign string
		password string
		retry    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a board from the terminal",
		Long: `Join a board and print every change. Lines read from stdin:
  /chat <text>            send a chat line (plain text does the same)
  /add <slot> <text>      add a WORDS entry; slot is a letter, phonetic word or 0-25
  /edit <slot> <text>     edit a WORDS entry
  /remove <slot>          remove a WORDS entry
  /note <id> <text>       edit a user's note
  /quit                   disconnect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := cliLogger(*logLevel, "warn", "", "client")
			if err != nil {
				return err
			}
			defer log.Close()

			out := &printer{w: cmd.OutOrStdout()}
			c, err := client.DialWithRetry(cmd.Context(), addr, client.Options{
				Callsign: callsign,
				Password: password,
				Handler:  out,
				Logger:   slog.New(logger.NewSlogHandler(log)),
			}, retry)
			if err != nil {
				return fmt.Errorf("connection refused: %w", err)
			}
			defer c.Disconnect()

			return interact(cmd.InOrStdin(), c, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "127.0.0.1:13750", "Server address (host:port or ws:// URL)")
	flags.StringVar(&callsign, "callsign", "", "Callsign, at least 3 characters")
	flags.StringVar(&password, "password", "1234", "Board password")
	flags.DurationVar(&retry, "retry", 10*time.Second, "How long to keep retrying the connection")
	_ = cmd.MarkFlagRequired("callsign")
	return cmd
}

// interact forwards stdin commands until EOF, /quit or disconnect.
func interact(in io.Reader, c *client.Client, out *printer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-c.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			msg, err := parseCommand(line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				out.printf("! %v", err)
				continue
			}
			if msg == nil {
				continue
			}
			if err := c.SendUpdate(msg); err != nil {
				out.printf("! %v", err)
			}
		}
	}
}

// parseCommand turns one input line into a proposed update. Empty input
// yields a nil message.
func parseCommand(line string) (*types.Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		return chatMessage(line), nil
	}

	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "/quit":
		return nil, errQuit
	case "/chat":
		if rest == "" {
			return nil, errors.New("usage: /chat <text>")
		}
		return chatMessage(rest), nil
	case "/add", "/edit":
		slot, text, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("usage: %s <slot> <text>", verb)
		}
		idx, err := phonetic.Parse(slot)
		if err != nil {
			return nil, err
		}
		entries := types.TextEntries{{Index: idx, Text: strings.TrimSpace(text)}}
		if verb == "/add" {
			return &types.Message{Words: &types.WordsSection{Add: entries}}, nil
		}
		return &types.Message{Words: &types.WordsSection{Edit: entries}}, nil
	case "/remove":
		idx, err := phonetic.Parse(rest)
		if err != nil {
			return nil, err
		}
		return &types.Message{Words: &types.WordsSection{Remove: types.Indices([]int{idx})}}, nil
	case "/note":
		rawID, note, ok := strings.Cut(rest, " ")
		if !ok {
			return nil, errors.New("usage: /note <id> <text>")
		}
		id, err := strconv.Atoi(rawID)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", rawID)
		}
		return &types.Message{Users: &types.UsersSection{Edit: types.UserEntries{{ID: id, Note: strings.TrimSpace(note)}}}}, nil
	default:
		return nil, fmt.Errorf("unknown command %s", verb)
	}
}

func chatMessage(text string) *types.Message {
	return &types.Message{Chat: &types.ChatSection{Add: &types.ChatAdd{Texts: []string{text}}}}
}

var statusText = map[int]string{
	types.StatusUnauthenticated: "not authenticated",
	types.StatusWordExists:      "word already exists",
	types.StatusWordNotFound:    "word doesn't exist",
	types.StatusWordRemoveGone:  "word doesn't exist",
	types.StatusUserNotFound:    "user doesn't exist",
}

// printer renders board events as text lines.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func slotLabel(idx int) string {
	label, err := phonetic.Label(idx)
	if err != nil {
		return strconv.Itoa(idx)
	}
	return label
}

func (p *printer) OnWordsAdd(entries types.TextEntries) {
	for _, e := range entries {
		p.printf("+ %s: %s", slotLabel(e.Index), e.Text)
	}
}

func (p *printer) OnWordsEdit(entries types.TextEntries) {
	for _, e := range entries {
		p.printf("~ %s: %s", slotLabel(e.Index), e.Text)
	}
}

func (p *printer) OnWordsRemove(indices []int) {
	for _, idx := range indices {
		p.printf("- %s", slotLabel(idx))
	}
}

func (p *printer) OnUsersAdd(users types.UserEntries) {
	for _, u := range users {
		p.printf("* [%d] %s joined", u.ID, u.Callsign)
	}
}

func (p *printer) OnUsersEdit(users types.UserEntries) {
	for _, u := range users {
		p.printf("* [%d] %s: %s", u.ID, u.Callsign, u.Note)
	}
}

func (p *printer) OnUsersRemove(ids []int) {
	for _, id := range ids {
		p.printf("* [%d] left", id)
	}
}

func (p *printer) OnChatAdd(entries types.ChatEntries) {
	for _, e := range entries {
		p.printf("%s %s: %s", e.Time, e.Label, e.Text)
	}
}

func (p *printer) OnAuthResult(success bool, reason string) {
	if success {
		p.printf("Authenticated")
		return
	}
	p.printf("Authentication failed: bad %s", reason)
}

func (p *printer) OnStatus(code int) {
	if text, ok := statusText[code]; ok {
		p.printf("! %s (%d)", text, code)
		return
	}
	p.printf("! status %d", code)
}

func (p *printer) OnResync(snapshot *types.Message) {
	p.printf("--- board ---")
	if snapshot.Words != nil {
		p.OnWordsAdd(snapshot.Words.Add)
	}
	if snapshot.Users != nil {
		for _, u := range snapshot.Users.Add {
			p.printf("* [%d] %s: %s", u.ID, u.Callsign, u.Note)
		}
	}
	if snapshot.Chat != nil && snapshot.Chat.Add != nil {
		p.OnChatAdd(snapshot.Chat.Add.Entries)
	}
	p.printf("-------------")
}

func (p *printer) OnDisconnected(reason string) {
	p.printf("%s", reason)
}
