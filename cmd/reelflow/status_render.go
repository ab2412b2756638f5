package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func (k statusKind) label() string {
	switch k {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (k statusKind) color() string {
	switch k {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

// renderStatusLine formats one "Label: [KIND] message" line. Only the kind
// tag is colored so long values stay readable on light terminals.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + kind.label() + "]"
	if colorize {
		tag = kind.color() + tag + ansiReset
	}
	if message != "" {
		tag += " " + message
	}
	return fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", tag)
}

// renderSectionHeader returns the "== Title ==" banner with its underline.
func renderSectionHeader(title string, colorize bool) string {
	banner := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(banner))
	if colorize {
		banner = ansiBlue + banner + ansiReset
	}
	return banner + "\n" + rule
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
