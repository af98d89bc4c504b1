package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	chatModel "github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/service/speech"
	"github.com/zhouzirui/ecokart/backend/internal/store"
)

var chatTitle string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Start an interactive text conversation.

Commands inside the chat:
  /new [title]   start a new conversation
  /load <id>     continue a stored conversation
  /list          list recent conversations
  /search <q>    search conversations
  /stats         show store statistics
  /help          show this help

Say goodbye, bye, exit, quit or stop to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatTitle, "title", "t", "", "title for the first conversation")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return newREPL(a, cmd.InOrStdin(), cmd.OutOrStdout()).run(ctx)
}

// repl drives one terminal session against the assistant pipeline.
type repl struct {
	app *app
	in  io.Reader
	out io.Writer
}

func newREPL(a *app, in io.Reader, out io.Writer) *repl {
	return &repl{app: a, in: in, out: out}
}

func (r *repl) run(ctx context.Context) error {
	session, err := r.app.sessions.CreateSession(ctx)
	if err != nil {
		return err
	}
	defer r.app.sessions.DeleteSession(context.Background(), session.ID)

	if chatTitle != "" {
		if err := r.withSession(ctx, session.ID, func(sess *chatModel.Session) error {
			_, err := r.app.assistant.StartConversation(ctx, sess, &store.CreateConversation{Title: chatTitle})
			return err
		}); err != nil {
			return err
		}
	}

	fmt.Fprintln(r.out, "Harvey from Ecokart here. What can I do for you? (/help for commands)")

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if err := r.command(ctx, session.ID, line); err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			continue
		case speech.IsExitPhrase(line):
			fmt.Fprintln(r.out, speech.GoodbyeReply)
			return nil
		}

		if err := r.turn(ctx, session.ID, line); err != nil {
			return err
		}
	}
}

func (r *repl) withSession(ctx context.Context, id string, fn func(*chatModel.Session) error) error {
	return r.app.sessions.WithSession(ctx, id, fn)
}

func (r *repl) turn(ctx context.Context, sessionID, utterance string) error {
	return r.withSession(ctx, sessionID, func(sess *chatModel.Session) error {
		result, err := r.app.assistant.Respond(ctx, sess, utterance, "")
		if err != nil {
			return fmt.Errorf("failed to save the conversation: %w", err)
		}
		fmt.Fprintf(r.out, "Harvey: %s\n", result.Reply)
		return nil
	})
}

func (r *repl) command(ctx context.Context, sessionID, line string) error {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/new":
		return r.withSession(ctx, sessionID, func(sess *chatModel.Session) error {
			conv, err := r.app.assistant.StartConversation(ctx, sess, &store.CreateConversation{Title: arg})
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Started %q (%s)\n", conv.Title, conv.ID)
			return nil
		})
	case "/load":
		if arg == "" {
			return errors.New("usage: /load <conversation id>")
		}
		return r.withSession(ctx, sessionID, func(sess *chatModel.Session) error {
			detail, err := r.app.assistant.LoadConversation(ctx, sess, arg)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Loaded %q with %d messages\n", detail.Title, len(detail.Messages))
			return nil
		})
	case "/list":
		items, err := r.app.store.ListConversations(ctx, 10)
		if err != nil {
			return err
		}
		r.printConversations(items)
	case "/search":
		if arg == "" {
			return errors.New("usage: /search <query>")
		}
		items, err := r.app.store.SearchConversations(ctx, arg)
		if err != nil {
			return err
		}
		r.printConversations(items)
	case "/stats":
		stats, err := r.app.store.Statistics(ctx)
		if err != nil {
			return err
		}
		printStats(r.out, stats)
	case "/help":
		fmt.Fprintln(r.out, "/new [title], /load <id>, /list, /search <q>, /stats, /help")
	default:
		return fmt.Errorf("unknown command %s", name)
	}
	return nil
}

func (r *repl) printConversations(items []chatModel.ConversationSummary) {
	if len(items) == 0 {
		fmt.Fprintln(r.out, "No conversations found.")
		return
	}
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", item.ID, item.Title, item.MessageCount, item.UpdatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
}
