package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/nexuscards/battle/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret")

	signed, err := tokens.Issue("player-7", time.Hour)
	require.NoError(t, err)

	playerID, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "player-7", playerID)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	tokens := NewTokens("test-secret")

	expired := NewTokens("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("player-7", time.Hour)
	require.NoError(t, err)

	other, err := NewTokens("other-secret").Issue("player-7", time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, PlayerClaims{PlayerID: "player-7"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":      old,
		"wrong secret": other,
		"unsigned":     none,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

type MockDeviceStore struct {
	mock.Mock
}

func (m *MockDeviceStore) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	args := m.Called(ctx, deviceID)
	dev, _ := args.Get(0).(*models.Device)
	return dev, args.Error(1)
}

func (m *MockDeviceStore) TouchDevice(ctx context.Context, deviceID string) error {
	return m.Called(ctx, deviceID).Error(0)
}

func TestDeviceVerify(t *testing.T) {
	hash, err := HashDeviceSecret("s3cret")
	require.NoError(t, err)

	store := &MockDeviceStore{}
	store.On("GetDevice", mock.Anything, "console-1").
		Return(&models.Device{DeviceID: "console-1", SecretHash: hash, IsActive: true}, nil)
	store.On("GetDevice", mock.Anything, "console-2").
		Return(&models.Device{DeviceID: "console-2", SecretHash: hash, IsActive: false}, nil)
	store.On("GetDevice", mock.Anything, "ghost").Return(nil, ErrUnknownDevice)
	store.On("TouchDevice", mock.Anything, "console-1").Return(nil)

	devices := NewDevices(store)
	ctx := context.Background()

	assert.NoError(t, devices.Verify(ctx, "console-1", "s3cret"))
	assert.ErrorIs(t, devices.Verify(ctx, "console-1", "wrong"), ErrUnknownDevice)
	assert.ErrorIs(t, devices.Verify(ctx, "console-2", "s3cret"), ErrUnknownDevice)
	assert.ErrorIs(t, devices.Verify(ctx, "ghost", "s3cret"), ErrUnknownDevice)

	store.AssertNumberOfCalls(t, "TouchDevice", 1)
}
