// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventreport

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// Message is a notification body in both representations Matrix
// clients accept.
type Message struct {
	Plain string
	HTML  string
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

// markdown returns the shared converter: CommonMark only, newlines
// rendered as <br>, raw HTML omitted.
func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdownInstance
}

// Format renders report as a notification.
func Format(report Report) (Message, error) {
	var plain, source strings.Builder

	if report.Private() {
		fmt.Fprintf(&plain, "%s has reported a message from %s in a private room.\n", report.ReportingUserID, report.Sender)
		fmt.Fprintf(&plain, "Report: %s\n", report.Reason)

		fmt.Fprintf(&source, "%s has reported a message from %s in a private room.\n",
			escapeInline(report.ReportingUserID), escapeInline(report.Sender))
		fmt.Fprintf(&source, "Report: %s\n", escapeInline(report.Reason))
	} else {
		content, err := report.QuotedContent()
		if err != nil {
			return Message{}, err
		}

		fmt.Fprintf(&plain, "%s has reported a message from %s in room %s.\n", report.ReportingUserID, report.Sender, report.RoomAlias)
		fmt.Fprintf(&plain, "```\n%s\n```\n", content)
		fmt.Fprintf(&plain, "Report: %s\n", report.Reason)

		fence := codeFence(content)
		fmt.Fprintf(&source, "%s has reported a message from %s in room %s.\n\n",
			escapeInline(report.ReportingUserID), escapeInline(report.Sender), escapeInline(report.RoomAlias))
		fmt.Fprintf(&source, "%s\n%s\n%s\n\n", fence, content, fence)
		fmt.Fprintf(&source, "Report: %s\n", escapeInline(report.Reason))
	}

	var rendered bytes.Buffer
	if err := markdown().Convert([]byte(source.String()), &rendered); err != nil {
		return Message{}, fmt.Errorf("eventreport: rendering report %d: %w", report.ID, err)
	}

	return Message{
		Plain: plain.String(),
		HTML:  strings.TrimRight(rendered.String(), "\n"),
	}, nil
}

// escapeInline backslash-escapes every ASCII punctuation character so
// the value renders as literal text. CommonMark permits an escape
// before any ASCII punctuation.
func escapeInline(value string) string {
	var builder strings.Builder
	builder.Grow(len(value) + len(value)/4)
	for _, character := range value {
		if character < 0x80 && isASCIIPunctuation(byte(character)) {
			builder.WriteByte('\\')
		}
		builder.WriteRune(character)
	}
	return builder.String()
}

func isASCIIPunctuation(character byte) bool {
	return (character >= '!' && character <= '/') ||
		(character >= ':' && character <= '@') ||
		(character >= '[' && character <= '`') ||
		(character >= '{' && character <= '~')
}

// codeFence returns a backtick fence longer than the longest backtick
// run in content, and at least three long.
func codeFence(content string) string {
	longest, run := 0, 0
	for index := 0; index < len(content); index++ {
		if content[index] == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}
