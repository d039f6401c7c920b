package domain

import "fmt"

// FormatDuration renders seconds as MM:SS, or HH:MM:SS past the hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		return "--:--"
	}
	hrs := seconds / 3600
	mins := (seconds % 3600) / 60
	secs := seconds % 60
	if hrs > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hrs, mins, secs)
	}
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
