package main

import (
	"encoding/json"
	"fmt"
	"os"

	"charm.land/glamour/v2"

	"github.com/ravelhq/ravel/internal/server"
)

// printEnvelope renders a tool-call envelope for a human operator:
// a styled header and pretty-printed JSON data on success, a styled
// error line on failure. Markdown-bearing fields (descriptions,
// summaries) are printed as raw JSON strings; they are not passed
// through renderMarkdown.
func printEnvelope(env server.Envelope) error {
	if !env.Success {
		msg := errorStyle.Render(fmt.Sprintf("%s: %s", env.Error.Code, env.Message))
		fmt.Fprintln(os.Stderr, msg)
		return fmt.Errorf("%s", env.Error.Code)
	}

	fmt.Println(headerStyle.Render(env.Message))
	out, err := json.MarshalIndent(env.Data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// renderMarkdown renders body as markdown when the terminal supports
// color, falling back to the raw string in piped/plain contexts.
func renderMarkdown(body string) string {
	if !supportsColor() || body == "" {
		return body
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return body
	}
	rendered, err := r.Render(body)
	if err != nil {
		return body
	}
	return rendered
}
