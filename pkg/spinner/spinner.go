package spinner

import (
	"fmt"
	"io"
	"sync"
)

// Spinner struct holds the spinner state
type Spinner struct {
	mu     sync.Mutex
	w      io.Writer
	frames []string
	index  int
	active bool
}

// NewSpinner creates a new spinner writing to w
func NewSpinner(w io.Writer) *Spinner {
	// Define a new spinner sequence to create an effect of a braille arrow
	return &Spinner{
		w: w,
		frames: []string{
			"⣀⣀ ",
			"⣄⣀ ",
			"⣤⣀ ",
			"⣦⣄ ",
			"⣶⣤ ",
			"⣿⣦ ",
			"⣿⣷ ",
			"⣿⣿ ",
			"⣿⣿ ",
			"⣷⣿ ",
			"⣦⣿ ",
			"⣤⣷ ",
			"⣄⣦ ",
			"⣀⣤ ",
			"⣀⣄ ",
			"⣀⣀ ",
		},
	}
}

// Update advances the spinner to the next frame and prints it with msg.
func (s *Spinner) Update(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		// Hide cursor
		_, _ = fmt.Fprint(s.w, "\033[?25l")
		s.active = true
	}

	// Print the current frame, clearing the rest of the line
	_, _ = fmt.Fprintf(s.w, "\r%s%s\033[K", s.frames[s.index], msg)

	// Advance to the next frame
	s.index++
	if s.index >= len(s.frames) {
		s.index = 0
	}
}

// Cleanup hides the spinner and shows the cursor
func (s *Spinner) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	_, _ = fmt.Fprint(s.w, "\r\033[K")  // Clear the spinner
	_, _ = fmt.Fprint(s.w, "\033[?25h") // Show cursor
	s.active = false
}
