package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// confirmPrompt asks a y/n question on stderr and reads the answer from
// stdin. Anything other than y/yes counts as a refusal.
func confirmPrompt(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
