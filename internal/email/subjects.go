package email

const (
	subjectReminderFmt   = "Upcoming deadline for %s: %s"
	subjectEscalationFmt = "Action needed (level %d): %s"
)
