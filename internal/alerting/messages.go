package alerting

// Message IDs of operation results. The HTTP layer localizes them; Reason
// carries the English text for every other caller.
const (
	MsgAlertCreated       = "alert.created"
	MsgAlertCancelled     = "alert.cancelled"
	MsgAlertAttended      = "alert.attended"
	MsgAlreadyAttended    = "alert.already_attended"
	MsgAlertClosed        = "alert.closed"
	MsgAlreadyClosed      = "alert.already_closed"
	MsgLogAppended        = "incident.log_appended"
	MsgCaseRefSet         = "incident.case_ref_set"
	MsgContactsNotified   = "incident.contacts_notified"
	MsgNotificationFailed = "notification.failed"
)

var reasons = map[string]string{
	MsgAlertCreated:       "Alert created. Help is on the way.",
	MsgAlertCancelled:     "Alert cancelled as a false alarm.",
	MsgAlertAttended:      "Alert taken into attention.",
	MsgAlreadyAttended:    "Alert is already being attended.",
	MsgAlertClosed:        "Alert closed.",
	MsgAlreadyClosed:      "Alert was already closed.",
	MsgLogAppended:        "Log entry added.",
	MsgCaseRefSet:         "External case reference saved.",
	MsgContactsNotified:   "Trusted contacts notified.",
	MsgNotificationFailed: "Trusted contacts could not be notified.",
}

// Reason returns the English text of a message ID.
func Reason(id string) string {
	if r, ok := reasons[id]; ok {
		return r
	}
	return id
}
