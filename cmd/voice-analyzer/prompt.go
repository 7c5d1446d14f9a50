package main

import (
	"fmt"

	"github.com/skypro1111/voice-analyzer/internal/prompt"
)

func runPrompt(args []string) error {
	flags, _ := newFlagSet("prompt")
	n := flags.Int("n", 1, "Number of prompts to print")
	if err := flags.Parse(args); err != nil {
		return err
	}

	for i := 0; i < *n; i++ {
		fmt.Println(prompt.Random(nil))
	}
	return nil
}
