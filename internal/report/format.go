package report

import "fmt"

// FormatMessage renders the nightly message body. The layout matches what the
// security desk already receives, so keep it stable.
func FormatMessage(r Report) string {
	return fmt.Sprintf(
		"--- Nightly Security Report ---\n"+
			"Date: %s\n\n"+
			"Total %s detections between %s and %s: *%d*\n\n"+
			"This is an automated message from the Lantern Security System.",
		r.WindowStart.Format("Monday, 02 January 2006"),
		r.ObjectClass,
		r.WindowStart.Format("3:04 PM"),
		r.WindowEnd.Format("3:04 PM"),
		r.Count,
	)
}
