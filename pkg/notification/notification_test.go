package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMS struct {
	mu   sync.Mutex
	sent []string
	fail map[string]error
}

func (f *fakeSMS) Send(ctx context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[phone]; err != nil {
		return err
	}
	f.sent = append(f.sent, phone+"|"+text)
	return nil
}

type fakePush struct{ aliases []string }

func (f *fakePush) PushToAlias(ctx context.Context, alias []string, title, content string, extras map[string]string) error {
	f.aliases = append(f.aliases, alias...)
	return nil
}

func TestNotifyCollectsResults(t *testing.T) {
	sms := &fakeSMS{fail: map[string]error{"222": assert.AnError}}
	push := &fakePush{}
	n := NewContactNotifier(sms, push, nil)

	report, err := n.Notify(context.Background(), Message{Title: "Alerta", Body: "Ana needs help"}, []Contact{
		{Name: "mom", Phone: "111"},
		{Name: "brother", Phone: "222"},
		{Name: "friend", Phone: "222", PushAlias: "friend-device"},
		{Name: "nobody"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.ContactsNotified)
	assert.Equal(t, 3, report.NotificationsFailed)
	assert.Len(t, report.Details, 5)
	assert.Equal(t, []string{"111|Alerta: Ana needs help"}, sms.sent)
	assert.Equal(t, []string{"friend-device"}, push.aliases)
}

func TestNotifyWithoutChannels(t *testing.T) {
	_, err := NewContactNotifier(nil, nil, nil).Notify(context.Background(), Message{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGatewaySMS(t *testing.T) {
	var got smsRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got.To == "000" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sms := NewGatewaySMS(SMSConfig{GatewayURL: srv.URL, Token: "secret", Sender: "RiderGuard"})
	require.NoError(t, sms.Send(context.Background(), "5551234", "hola"))
	assert.Equal(t, smsRequest{To: "5551234", From: "RiderGuard", Text: "hola"}, got)
	assert.Equal(t, "Bearer secret", auth)

	assert.Error(t, sms.Send(context.Background(), "000", "hola"))
	assert.Error(t, sms.Send(context.Background(), "", "hola"))
}

func TestHTTPPush(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/push", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	p := NewHTTPPush(PushConfig{URL: srv.URL})
	require.NoError(t, p.PushToAlias(context.Background(), []string{"a1"}, "t", "c", map[string]string{"alert_id": "x"}))
	assert.Equal(t, map[string]interface{}{"alias": []interface{}{"a1"}}, body["audience"])
	assert.Equal(t, "t", body["title"])

	assert.Error(t, p.PushToAlias(context.Background(), nil, "t", "c", nil))
}
