package sensor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDevice(t *testing.T, temp, hum string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tempFile), []byte(temp), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, humidityFile), []byte(hum), 0o644))
	return dir
}

func TestIIO_Read(t *testing.T) {
	dir := fakeDevice(t, "23456\n", "51200\n")

	r, err := New(Config{Backend: "iio", Device: dir})
	require.NoError(t, err)

	got, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 23.456, got.TempC, 1e-9)
	assert.InDelta(t, 51.2, got.Humidity, 1e-9)
	assert.False(t, got.At.IsZero())
}

func TestIIO_BadValue(t *testing.T) {
	dir := fakeDevice(t, "warm", "50000")
	r, err := NewIIO(dir)
	require.NoError(t, err)

	_, err = r.Read(context.Background())
	assert.Error(t, err)
}

func TestIIO_MissingAttributes(t *testing.T) {
	_, err := NewIIO(t.TempDir())
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestNew_Backends(t *testing.T) {
	r, err := New(Config{Backend: "mock"})
	require.NoError(t, err)
	got, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24.0, got.TempC)

	_, err = New(Config{Backend: "thermocouple"})
	assert.Error(t, err)
}

func TestStatic_Set(t *testing.T) {
	s := NewStatic(20, 30)
	s.Set(21.5, 44)
	got, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 21.5, got.TempC)
	assert.Equal(t, 44.0, got.Humidity)
}
