// Package notification delivers alert warnings to a courier's trusted
// contacts over SMS and push, and reports what happened per contact.
package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	ChannelSMS  = "sms"
	ChannelPush = "push"
)

var ErrNotConfigured = errors.New("notification: no delivery channel configured")

type Contact struct {
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	PushAlias string `json:"push_alias,omitempty"`
}

type Message struct {
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Extras map[string]string `json:"extras,omitempty"`
}

// Detail is the outcome of one delivery attempt.
type Detail struct {
	Contact   string `json:"contact"`
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

type Report struct {
	ContactsNotified    int      `json:"contacts_notified"`
	NotificationsFailed int      `json:"notifications_failed"`
	Details             []Detail `json:"details"`
}

// ContactNotifier fans a message out to contacts over every configured
// channel. A contact counts as notified when at least one channel
// delivered.
type ContactNotifier struct {
	sms  SMSClient
	push PushClient
	log  *zap.Logger
}

// NewContactNotifier accepts nil for channels that are not configured.
func NewContactNotifier(sms SMSClient, push PushClient, log *zap.Logger) *ContactNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactNotifier{sms: sms, push: push, log: log.Named("notification")}
}

// Notify never stops at the first failure. The error is reserved for a
// notifier with no channel at all.
func (n *ContactNotifier) Notify(ctx context.Context, msg Message, contacts []Contact) (*Report, error) {
	if n.sms == nil && n.push == nil {
		return nil, ErrNotConfigured
	}

	report := &Report{Details: []Detail{}}
	for _, c := range contacts {
		delivered := false
		attempted := false

		if n.sms != nil && c.Phone != "" {
			attempted = true
			err := n.sms.Send(ctx, c.Phone, smsText(msg))
			delivered = n.record(report, c, ChannelSMS, err) || delivered
		}
		if n.push != nil && c.PushAlias != "" {
			attempted = true
			err := n.push.PushToAlias(ctx, []string{c.PushAlias}, msg.Title, msg.Body, msg.Extras)
			delivered = n.record(report, c, ChannelPush, err) || delivered
		}

		if !attempted {
			report.NotificationsFailed++
			report.Details = append(report.Details, Detail{Contact: c.Name, Error: "no reachable channel"})
			continue
		}
		if delivered {
			report.ContactsNotified++
		}
	}
	return report, nil
}

func (n *ContactNotifier) record(report *Report, c Contact, channel string, err error) bool {
	d := Detail{Contact: c.Name, Channel: channel, Delivered: err == nil}
	if err != nil {
		d.Error = err.Error()
		report.NotificationsFailed++
		n.log.Warn("notification failed", zap.String("contact", c.Name), zap.String("channel", channel), zap.Error(err))
	}
	report.Details = append(report.Details, d)
	return err == nil
}

func smsText(msg Message) string {
	if msg.Title == "" {
		return msg.Body
	}
	return fmt.Sprintf("%s: %s", msg.Title, msg.Body)
}
