package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/gateway/adminsim"
)

func TestReachable(t *testing.T) {
	tests := []struct {
		name string
		doc  interface{}
		want bool
	}{
		{"reachable", map[string]interface{}{"database": map[string]interface{}{"reachable": true}}, true},
		{"unreachable", map[string]interface{}{"database": map[string]interface{}{"reachable": false}}, false},
		{"string flag", map[string]interface{}{"database": map[string]interface{}{"reachable": "true"}}, false},
		{"missing", map[string]interface{}{"server": map[string]interface{}{}}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reachable(tt.doc))
		})
	}
}

func TestReadinessWaitsForDatastore(t *testing.T) {
	client, _ := newSimClient(t, adminsim.WithNotReadyPolls(2))

	r := &Readiness{Client: client, Attempts: 5, Interval: 5 * time.Millisecond}
	require.NoError(t, r.Wait(context.Background()))
}

func TestReadinessExhaustsAttempts(t *testing.T) {
	client, sim := newSimClient(t, adminsim.WithUnreachableDatastore())

	r := &Readiness{Client: client, Attempts: 3, Interval: time.Millisecond}
	err := r.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 3, sim.Requests())
}

func TestReadinessUnreachableControlPlane(t *testing.T) {
	client, err := NewAdminClient("http://127.0.0.1:1", WithTimeout(200*time.Millisecond))
	require.NoError(t, err)

	r := &Readiness{Client: client, Attempts: 2, Interval: time.Millisecond}
	err = r.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestReadinessHonorsContext(t *testing.T) {
	client, _ := newSimClient(t, adminsim.WithUnreachableDatastore())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	r := &Readiness{Client: client, Attempts: 1000, Interval: 10 * time.Millisecond}
	err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
