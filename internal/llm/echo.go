package llm

import (
	"context"
	"fmt"
	"strings"
)

// Echo is an offline backend that answers with the last prompt line. Used for
// local development and tests.
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Generate(_ context.Context, prompt string, _ GenerateOptions) (string, error) {
	return echoReply(prompt), nil
}

func (Echo) Stream(ctx context.Context, prompt string, _ GenerateOptions, onChunk func(string) error) (string, error) {
	reply := echoReply(prompt)
	for _, word := range strings.SplitAfter(reply, " ") {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := onChunk(word); err != nil {
			return "", err
		}
	}
	return reply, nil
}

func echoReply(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	return fmt.Sprintf("echo: %s", last)
}
