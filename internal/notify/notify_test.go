package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSubmission() *domain.Submission {
	return &domain.Submission{
		ID: uuid.MustParse("6f1c1f7e-3c1a-4d7e-9a59-1d1c7a0b2f10"),
		Order: domain.Order{
			AgentName:         "Sarah Johnson",
			AgentID:           "A-100",
			CustomerName:      "Jane Doe",
			Email:             "jane@example.com",
			Phone:             "(859) 555-0101",
			DateOfBirth:       "1990-04-02",
			SSN:               "45678",
			StreetAddress:     "1 Main St",
			AptUnit:           "2B",
			City:              "Lexington",
			State:             "KY",
			ZipCode:           "40505",
			MovedLastYear:     true,
			PrevStreetAddress: "9 Elm",
			PrevCity:          "Austin",
			PrevState:         "TX",
			PrevZipCode:       "78701",
			SelectedProvider:  "Spectrum",
			SelectedPackage:   "spectrum-gig",
			SelectedAddOns:    []string{"wifi-router", "static-ip"},
		},
		SubmissionDate: time.Date(2025, time.January, 15, 19, 4, 5, 0, time.UTC),
		IPAddress:      "203.0.113.9",
	}
}

func TestSheetRow(t *testing.T) {
	want := []string{
		"01/15/2025, 02:04:05 PM", "Sarah Johnson", "A-100", "Jane Doe", "jane@example.com",
		"(859) 555-0101", "04/02/1990", "000-04-5678", "1 Main St", "2B", "Lexington", "KY", "40505",
		"Yes", "9 Elm", "", "Austin", "TX", "78701", "Spectrum", "spectrum-gig", "",
		"wifi-router, static-ip", "203.0.113.9",
	}
	got := SheetRow(sampleSubmission())
	require.Len(t, got, len(SheetHeaders))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
}

type fakeValues struct {
	existing [][]interface{}
	getErr   error
	updated  map[string][][]interface{}
	appended map[string][][]interface{}
}

func (f *fakeValues) Get(_ context.Context, rng string) ([][]interface{}, error) {
	return f.existing, f.getErr
}

func (f *fakeValues) Update(_ context.Context, rng string, rows [][]interface{}) error {
	if f.updated == nil {
		f.updated = map[string][][]interface{}{}
	}
	f.updated[rng] = rows
	return nil
}

func (f *fakeValues) Append(_ context.Context, rng string, rows [][]interface{}) error {
	if f.appended == nil {
		f.appended = map[string][][]interface{}{}
	}
	f.appended[rng] = append(f.appended[rng], rows...)
	return nil
}

func TestSheetsAppender_BootstrapsHeaders(t *testing.T) {
	api := &fakeValues{}
	a := NewSheetsAppender(api, "")
	require.NoError(t, a.Run(context.Background(), sampleSubmission()))

	require.Contains(t, api.updated, "Form Submissions!A1:X1")
	assert.Equal(t, "Submission Date", api.updated["Form Submissions!A1:X1"][0][0])
	require.Len(t, api.appended["Form Submissions!A:X"], 1)
	assert.Len(t, api.appended["Form Submissions!A:X"][0], 24)
}

func TestSheetsAppender_HeadersPresentOrUnreadable(t *testing.T) {
	api := &fakeValues{existing: [][]interface{}{{"Submission Date"}}}
	require.NoError(t, NewSheetsAppender(api, "Leads").Run(context.Background(), sampleSubmission()))
	assert.Empty(t, api.updated)
	assert.Len(t, api.appended["Leads!A:X"], 1)

	api = &fakeValues{getErr: errors.New("no such sheet")}
	require.NoError(t, NewSheetsAppender(api, "Leads").Run(context.Background(), sampleSubmission()))
	assert.Len(t, api.appended["Leads!A:X"], 1)
}

func TestSheetsAppender_NotConfigured(t *testing.T) {
	err := NewSheetsAppender(nil, "").Run(context.Background(), sampleSubmission())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type captureMailer struct {
	sent []Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestEmailNotifier(t *testing.T) {
	m := &captureMailer{}
	n := NewEmailNotifier(m, "orders@example.com", func(context.Context) string { return "boss@example.com" })

	s := sampleSubmission()
	s.ForceProvider = true
	s.Phone = "859.555.0101"
	require.NoError(t, n.Run(context.Background(), s))
	require.Len(t, m.sent, 1)

	msg := m.sent[0]
	assert.Equal(t, "New Internet Order - Agent: Sarah Johnson", msg.Subject)
	assert.Equal(t, "orders@example.com", msg.From)
	assert.Equal(t, "boss@example.com", msg.To)
	assert.Contains(t, msg.HTML, "000-04-5678")
	assert.Contains(t, msg.HTML, "1 Main St, 2B, Lexington, KY 40505")
	assert.Contains(t, msg.HTML, "Provider forced")
	assert.Contains(t, msg.Text, "forced")
	assert.Contains(t, msg.HTML, "(859) 555-0101")
	assert.Contains(t, msg.Text, "(859) 555-0101")
}

func TestEmailNotifier_NotConfigured(t *testing.T) {
	n := NewEmailNotifier(&captureMailer{}, "orders@example.com", func(context.Context) string { return "" })
	assert.ErrorIs(t, n.Run(context.Background(), sampleSubmission()), ErrNotConfigured)

	n = NewEmailNotifier(nil, "orders@example.com", func(context.Context) string { return "x@example.com" })
	assert.ErrorIs(t, n.Run(context.Background(), sampleSubmission()), ErrNotConfigured)
}

func TestEmailTemplate_EscapesInput(t *testing.T) {
	s := sampleSubmission()
	s.CustomerName = "<script>alert(1)</script>"
	msg, err := BuildOrderEmail(s)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestSlackNotifier_Payload(t *testing.T) {
	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies <- body
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, srv.Client())
	require.NoError(t, n.Run(context.Background(), sampleSubmission()))
	got := <-bodies

	assert.Equal(t, "🚨 New Form Submission!", got["text"])
	blocks := got["blocks"].([]any)
	require.Len(t, blocks, 2)
	header := blocks[0].(map[string]any)
	assert.Equal(t, "header", header["type"])
	fields := blocks[1].(map[string]any)["fields"].([]any)
	require.Len(t, fields, 6)
	assert.Equal(t, "*Customer:*\nJane Doe", fields[0].(map[string]any)["text"])
}

func TestSlackNotifier_StatusClassification(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		io.WriteString(w, "invalid_payload")
	}))
	defer srv.Close()
	n := NewSlackNotifier(srv.URL, srv.Client())

	err := n.Run(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "invalid_payload")

	status.Store(http.StatusServiceUnavailable)
	err = n.Run(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	status.Store(http.StatusTooManyRequests)
	assert.False(t, IsPermanent(n.Run(context.Background(), sampleSubmission())))

	assert.ErrorIs(t, NewSlackNotifier("", nil).Run(context.Background(), sampleSubmission()), ErrNotConfigured)
}

type memSubs struct {
	subs    []domain.PushSubscription
	deleted []string
}

func (m *memSubs) List(context.Context) ([]domain.PushSubscription, error) { return m.subs, nil }

func (m *memSubs) Delete(_ context.Context, endpoint string) error {
	m.deleted = append(m.deleted, endpoint)
	return nil
}

func sub(endpoint string) domain.PushSubscription {
	var s domain.PushSubscription
	s.Endpoint = endpoint
	s.Keys.P256dh = "p256"
	s.Keys.Auth = "auth"
	return s
}

func stubSender(codes map[string]int, payloads *[]string) SendFunc {
	return func(_ context.Context, payload []byte, s *webpush.Subscription, o *webpush.Options) (*http.Response, error) {
		*payloads = append(*payloads, string(payload))
		return &http.Response{StatusCode: codes[s.Endpoint], Body: io.NopCloser(strings.NewReader(""))}, nil
	}
}

func TestPushNotifier_RemovesExpired(t *testing.T) {
	store := &memSubs{subs: []domain.PushSubscription{sub("https://push/a"), sub("https://push/gone")}}
	var payloads []string
	n := NewPushNotifier(store, VAPID{PublicKey: "pub", PrivateKey: "priv", Subscriber: "ops@example.com"}).
		WithSender(stubSender(map[string]int{"https://push/a": 201, "https://push/gone": 410}, &payloads))

	require.NoError(t, n.Run(context.Background(), sampleSubmission()))
	assert.Equal(t, []string{"https://push/gone"}, store.deleted)
	require.Len(t, payloads, 2)
	assert.Contains(t, payloads[0], "NEW ORDER - Jane Doe")
}

func TestPushNotifier_AllFailingIsRetryable(t *testing.T) {
	store := &memSubs{subs: []domain.PushSubscription{sub("https://push/a")}}
	var payloads []string
	n := NewPushNotifier(store, VAPID{PublicKey: "pub", PrivateKey: "priv"}).
		WithSender(stubSender(map[string]int{"https://push/a": 503}, &payloads))

	err := n.Run(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestPushNotifier_NoSubscriptionsOrKeys(t *testing.T) {
	n := NewPushNotifier(&memSubs{}, VAPID{PublicKey: "pub", PrivateKey: "priv"})
	assert.ErrorIs(t, n.Run(context.Background(), sampleSubmission()), ErrNotConfigured)

	n = NewPushNotifier(&memSubs{subs: []domain.PushSubscription{sub("x")}}, VAPID{})
	assert.ErrorIs(t, n.Run(context.Background(), sampleSubmission()), ErrNotConfigured)
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad request")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(base))
}
