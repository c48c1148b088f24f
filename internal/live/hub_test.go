package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	redisbroker "github.com/jwalitptl/hospital-api/pkg/messaging/redis"
)

// fakeQuerier returns a per-topic counter so each push is distinguishable.
type fakeQuerier struct {
	mu      sync.Mutex
	calls   map[string]int
	changes []model.ChangeEvent
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{calls: map[string]int{}}
}

func (q *fakeQuerier) Query(_ context.Context, p model.Principal, t model.Topic) (interface{}, error) {
	if err := Authorize(p, t); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	key := t.ID.String() + string(t.Status)
	q.calls[key]++
	return map[string]int{"version": q.calls[key]}, nil
}

func (q *fakeQuerier) Changed(change model.ChangeEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.changes = append(q.changes, change)
}

var upgrader = websocket.Upgrader{}

func startServer(t *testing.T, hub *Hub, p model.Principal) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), ws, p)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func version(t *testing.T, msg ServerMessage) int {
	t.Helper()
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok, "unexpected data %v", msg.Data)
	return int(data["version"].(float64))
}

func TestAuthorize(t *testing.T) {
	patient := model.Principal{AccountID: uuid.New(), Role: model.RolePatient}
	doctor := model.Principal{AccountID: uuid.New(), Role: model.RoleDoctor}
	admin := model.Principal{AccountID: uuid.New(), Role: model.RoleAdmin}

	tests := []struct {
		name    string
		p       model.Principal
		topic   string
		wantErr error
	}{
		{"patient watches approved directory", patient, model.TopicDoctorsApproved, nil},
		{"patient watches own appointments", patient, model.TopicPatientAppointments(patient.AccountID), nil},
		{"patient cannot watch other patient", patient, model.TopicPatientAppointments(uuid.New()), ErrForbidden},
		{"patient cannot watch review queue", patient, model.TopicDoctorsByStatus(model.DoctorStatusPendingReview), ErrForbidden},
		{"doctor watches own queue", doctor, model.TopicDoctorAppointments(doctor.AccountID), nil},
		{"doctor cannot pose as patient", doctor, model.TopicPatientAppointments(doctor.AccountID), ErrForbidden},
		{"doctor cannot watch all", doctor, model.TopicAppointmentsAll, ErrForbidden},
		{"admin watches all", admin, model.TopicAppointmentsAll, nil},
		{"admin watches review queue", admin, model.TopicDoctorsByStatus(model.DoctorStatusPendingReview), nil},
		{"garbage", admin, "doctors.status.archived", ErrUnknownTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.p, model.ParseTopic(tt.topic))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestHub_SubscribeSnapshotAndChange(t *testing.T) {
	q := newFakeQuerier()
	hub := NewHub(q, nil, nil)
	patient := model.Principal{AccountID: uuid.New(), Role: model.RolePatient}
	ws := startServer(t, hub, patient)

	topic := model.TopicPatientAppointments(patient.AccountID)
	require.NoError(t, ws.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{topic}}))

	msg := readMessage(t, ws)
	assert.Equal(t, TypeSnapshot, msg.Type)
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, 1, version(t, msg))
	assert.Equal(t, 1, hub.TopicCount(topic))

	hub.HandleChange(context.Background(), model.ChangeEvent{
		Collection: model.CollectionAppointments,
		Op:         model.OpUpdate,
		ID:         uuid.New(),
		Topics:     []string{topic, model.TopicAppointmentsAll},
	})

	msg = readMessage(t, ws)
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, 2, version(t, msg))

	// changes to unrelated topics are not pushed
	hub.HandleChange(context.Background(), model.ChangeEvent{
		Collection: model.CollectionAppointments,
		Topics:     []string{model.TopicPatientAppointments(uuid.New())},
	})

	require.NoError(t, ws.WriteJSON(ClientMessage{Action: "unsubscribe", Topics: []string{topic}}))
	assert.Eventually(t, func() bool { return hub.TopicCount(topic) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_ForbiddenTopic(t *testing.T) {
	hub := NewHub(newFakeQuerier(), nil, nil)
	patient := model.Principal{AccountID: uuid.New(), Role: model.RolePatient}
	ws := startServer(t, hub, patient)

	require.NoError(t, ws.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{model.TopicAppointmentsAll}}))

	msg := readMessage(t, ws)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, ErrForbidden.Error(), msg.Error)
	assert.Equal(t, 0, hub.TopicCount(model.TopicAppointmentsAll))
}

func TestHub_DisconnectTearsDown(t *testing.T) {
	hub := NewHub(newFakeQuerier(), nil, nil)
	ws := startServer(t, hub, model.Principal{AccountID: uuid.New(), Role: model.RolePatient})

	require.NoError(t, ws.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{model.TopicDoctorsApproved}}))
	readMessage(t, ws)
	assert.Equal(t, 1, hub.ClientCount())

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0 && hub.TopicCount(model.TopicDoctorsApproved) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RunFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	broker := messaging.NewBrokerAdapter(redisbroker.NewRedisBroker(client, nil, nil), nil)
	t.Cleanup(func() { broker.Close() })

	q := newFakeQuerier()
	hub := NewHub(q, nil, nil)
	ws := startServer(t, hub, model.Principal{AccountID: uuid.New(), Role: model.RolePatient})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, hub.Run(ctx, broker, "changes"))

	require.NoError(t, ws.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{model.TopicDoctorsApproved}}))
	assert.Equal(t, 1, version(t, readMessage(t, ws)))

	change, err := json.Marshal(model.ChangeEvent{
		Collection: model.CollectionDoctors,
		Op:         model.OpUpdate,
		ID:         uuid.New(),
		Topics:     model.DoctorTopics(uuid.New(), model.DoctorStatusPendingReview, model.DoctorStatusApproved),
	})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, "changes", change))

	msg := readMessage(t, ws)
	assert.Equal(t, model.TopicDoctorsApproved, msg.Topic)
	assert.Equal(t, 2, version(t, msg))

	q.mu.Lock()
	defer q.mu.Unlock()
	require.Len(t, q.changes, 1)
	assert.Equal(t, model.CollectionDoctors, q.changes[0].Collection)
}
