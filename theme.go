package chatstream

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	UserMsg   int // User message accent
	Assistant int // Streamed assistant text
	Status    int // Status lines (tool calls, cancellation)
	Error     int // Error messages
	Success   int // Completion indicators
	Muted     int // Status bar, placeholders
	Accent    int // Interrupt banners, headings
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		UserMsg:   4,
		Assistant: 7,
		Status:    3,
		Error:     1,
		Success:   2,
		Muted:     8,
		Accent:    5,
	}
}
