package session

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/auth"
	"github.com/vadiminshakov/cobrand/internal/storage/kv"
)

type countingDependent struct {
	calls int
	err   error
}

func (d *countingDependent) Invalidate(context.Context) error {
	d.calls++
	return d.err
}

type failingDeleteStore struct {
	kv.Store
}

func (failingDeleteStore) Delete(context.Context, ...string) error {
	return errors.New("disk full")
}

type failingWriteStore struct {
	kv.Store
}

func (failingWriteStore) SetMany(context.Context, map[string]string) error {
	return errors.New("disk full")
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testClaims(exp time.Time) auth.Claims {
	return auth.Claims{
		auth.ClaimNameIdentifier:   "42",
		auth.ClaimName:             "jdoe",
		auth.ClaimEmailAddress:     "jdoe@example.com",
		auth.ClaimUserType:         "Customer",
		auth.ClaimFullName:         "John Doe",
		auth.ClaimKYCCompleted:     "True",
		auth.ClaimKYBCompleted:     "False",
		auth.ClaimIsCurrencySuffix: "True",
		"exp":                      float64(exp.Unix()),
	}
}

func newTestStore(t *testing.T) (*Store, kv.Store) {
	t.Helper()
	backend := kv.NewMemory()
	return NewStore(backend, zap.NewNop(), WithClock(func() time.Time { return fixedNow })), backend
}

func TestStore_EstablishThenCurrent(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	established, err := store.Establish(ctx, testClaims(fixedNow.Add(time.Hour)), "tok-1", "T1")
	require.NoError(t, err)

	current, ok := store.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, established.Token, current.Token)
	assert.Equal(t, "42", current.SubjectID)
	assert.Equal(t, "jdoe", current.Username)
	assert.Equal(t, "jdoe@example.com", current.Email)
	assert.Equal(t, "Customer", current.Role)
	assert.Equal(t, "Customer", current.UserType)
	assert.Equal(t, "John Doe", current.Name)
	assert.True(t, current.KYCCompleted)
	assert.False(t, current.KYBCompleted)
	assert.True(t, current.IsCurrencySuffix)
	assert.Equal(t, "T1", current.Tenant)

	for _, key := range []string{KeyToken, KeyDecodedToken, KeyUserData, KeyTenant} {
		_, ok, err := backend.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}

	token, ok := store.Token(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)
}

func TestStore_EstablishRequiresToken(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Establish(context.Background(), testClaims(fixedNow.Add(time.Hour)), "", "T1")
	require.Error(t, err)
}

func TestStore_CurrentFailsSoft(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{name: "empty store", values: nil},
		{name: "token without claims", values: map[string]string{KeyToken: "tok"}},
		{name: "corrupt claims", values: map[string]string{KeyToken: "tok", KeyDecodedToken: "{not json"}},
		{name: "null claims", values: map[string]string{KeyToken: "tok", KeyDecodedToken: "null"}},
		{name: "expired token", values: map[string]string{
			KeyToken:        "tok",
			KeyDecodedToken: `{"exp": 1000}`,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, backend := newTestStore(t)
			if tt.values != nil {
				require.NoError(t, backend.SetMany(ctx, tt.values))
			}

			_, ok := store.Current(ctx)
			assert.False(t, ok)
			_, ok = store.Token(ctx)
			assert.False(t, ok)
		})
	}
}

func TestStore_ClearRemovesSessionAndInvalidatesDependents(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	dep := &countingDependent{}
	store.OnClear(dep)

	_, err := store.Establish(ctx, testClaims(fixedNow.Add(time.Hour)), "tok", "T1")
	require.NoError(t, err)
	assert.Equal(t, 1, dep.calls, "login invalidates state of the previous user")

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 2, dep.calls)

	_, ok := store.Current(ctx)
	assert.False(t, ok)

	tenant, ok := store.Tenant(ctx)
	require.True(t, ok, "tenant selection survives logout")
	assert.Equal(t, "T1", tenant)
}

func TestStore_ClearInvalidatesDependentsWhenDeleteFails(t *testing.T) {
	store := NewStore(failingDeleteStore{Store: kv.NewMemory()}, zap.NewNop())
	dep := &countingDependent{}
	store.OnClear(dep)

	err := store.Clear(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, dep.calls)
}

func TestStore_ClearReportsDependentFailure(t *testing.T) {
	store, _ := newTestStore(t)
	store.OnClear(&countingDependent{err: errors.New("boom")}, &countingDependent{})

	err := store.Clear(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestStore_SetTenant(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, ok := store.Tenant(ctx)
	assert.False(t, ok)

	require.NoError(t, store.SetTenant(ctx, "acme"))
	tenant, ok := store.Tenant(ctx)
	require.True(t, ok)
	assert.Equal(t, "acme", tenant)
}

func TestStore_EstablishReplacesPreviousUser(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Establish(ctx, testClaims(fixedNow.Add(time.Hour)), "tok-a", "T1")
	require.NoError(t, err)

	other := testClaims(fixedNow.Add(time.Hour))
	other[auth.ClaimNameIdentifier] = "7"
	other[auth.ClaimUserType] = "Merchant"
	_, err = store.Establish(ctx, other, "tok-b", "")
	require.NoError(t, err)

	current, ok := store.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, "7", current.SubjectID)
	assert.Equal(t, "Merchant", current.Role)
	assert.Equal(t, "tok-b", current.Token)
	assert.Empty(t, current.Tenant)
}

func TestStore_EstablishInvalidatesAfterWrite(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	require.NoError(t, backend.SetMany(ctx, map[string]string{KeyToken: "tok-a"}))

	dep := &countingDependent{}
	store := NewStore(failingWriteStore{Store: backend}, zap.NewNop())
	store.OnClear(dep)

	_, err := store.Establish(ctx, testClaims(fixedNow.Add(time.Hour)), "tok-b", "T1")
	require.Error(t, err)
	assert.Zero(t, dep.calls, "a failed login keeps the previous user's state")

	token, ok, err := backend.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-a", token)

	healthy := NewStore(backend, zap.NewNop())
	healthy.OnClear(dep)
	_, err = healthy.Establish(ctx, testClaims(fixedNow.Add(time.Hour)), "tok-b", "T1")
	require.NoError(t, err)
	assert.Equal(t, 1, dep.calls)
}
