package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"trendseer/internal/client"
	"trendseer/internal/prompt"
)

func newChatCmd() *cobra.Command {
	var (
		baseURL  string
		token    string
		simple   bool
		markdown bool
		dataDir  string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against a running TrendSeer server",
		Long: `Interactive chat against a running TrendSeer server. Replies stream as they
are generated; if the stream cannot be parsed the session switches to the
simple endpoint. Type /reset to start a new conversation, /exit to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				dataDir = filepath.Join(home, ".trendseer")
			}
			userID, err := client.LoadOrCreateUserID(dataDir)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			opts := []client.Option{client.WithToken(token)}
			if simple {
				opts = append(opts, client.WithMode(client.ModeSimple))
			}
			c := client.New(baseURL, opts...)

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "you> ",
				HistoryFile:     filepath.Join(dataDir, "chat_history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "/exit",
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			var renderer *glamour.TermRenderer
			if markdown {
				renderer, err = glamour.NewTermRenderer(
					glamour.WithAutoStyle(),
					glamour.WithWordWrap(80),
				)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chatting as %s (%s mode)\n", userID, c.Mode())
			var history []prompt.Message
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				line = strings.TrimSpace(line)
				switch line {
				case "":
					continue
				case "/exit", "/quit":
					return nil
				case "/reset":
					history = nil
					fmt.Fprintln(out, "conversation reset")
					continue
				}

				history = append(history, prompt.Message{Role: "user", Content: line})
				fmt.Fprint(out, "trendseer> ")
				var shown strings.Builder
				onDelta := func(chunk string) {
					shown.WriteString(chunk)
					fmt.Fprint(out, chunk)
				}
				if renderer != nil {
					onDelta = nil
				}
				reply, err := c.Send(cmd.Context(), userID, history, onDelta)
				if err != nil {
					history = history[:len(history)-1]
					fmt.Fprintf(out, "\nerror: %v\n", err)
					continue
				}
				history = append(history, reply)
				if renderer != nil {
					fmt.Fprintln(out, renderMarkdown(renderer, reply.Content))
					continue
				}
				// a failed stream replays on the simple endpoint
				if shown.String() != reply.Content {
					if shown.Len() > 0 {
						fmt.Fprint(out, "\n[retried] ")
					}
					fmt.Fprint(out, reply.Content)
				}
				fmt.Fprintln(out)
			}
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("TRENDSEER_TOKEN"), "session access token")
	cmd.Flags().BoolVar(&simple, "simple", false, "use the non-streaming endpoint")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render each complete reply as markdown instead of streaming it")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "where the user id and input history live (default ~/.trendseer)")
	return cmd
}

func renderMarkdown(r *glamour.TermRenderer, text string) string {
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}
