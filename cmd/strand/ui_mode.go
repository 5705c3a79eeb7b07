package main

import (
	"fmt"
	"os"
	"strings"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	mode := uiMode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case "":
		return uiModeAuto, nil
	case uiModeAuto, uiModeOn, uiModeOff:
		return mode, nil
	}
	return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
}

// shouldUseTUI resolves auto to on only when stdout is a terminal, output is
// not quiet and no trace stream shares the terminal.
func shouldUseTUI(mode uiMode, quiet, traceToStderr bool) bool {
	if mode != uiModeAuto {
		return mode == uiModeOn
	}
	return !quiet && !traceToStderr && isTerminal(os.Stdout)
}
