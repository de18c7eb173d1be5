package service

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/notify"
	"github.com/sakif/jacobs-ranch/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfileSync(t *testing.T) (*ProfileSync, *fakeTables) {
	t.Helper()
	tables := newFakeTables()
	return NewProfileSync(tables, notify.NewBus(nil), discardLogger()), tables
}

func profileRow(id, email string, wifi, trailer bool) remote.Row {
	return remote.Row{"id": id, "email": email, "uses_wifi": wifi, "uses_trailer": trailer}
}

func TestLoadProfile(t *testing.T) {
	p, tables := newTestProfileSync(t)
	tables.seed(remote.TableProfiles, profileRow("u1", "rider@example.com", true, false))

	require.NoError(t, p.LoadProfile(context.Background(), "u1"))

	got := p.Preferences()
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "rider@example.com", got.Email)
	assert.True(t, got.UsesWifi)
	assert.False(t, got.UsesTrailer)
}

func TestLoadProfile_RequiresExactlyOneRow(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		p, _ := newTestProfileSync(t)
		err := p.LoadProfile(context.Background(), "u1")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		assert.Empty(t, p.Preferences().UserID)
	})

	t.Run("two", func(t *testing.T) {
		p, tables := newTestProfileSync(t)
		tables.seed(remote.TableProfiles,
			profileRow("u1", "a@example.com", false, false),
			profileRow("u1", "b@example.com", false, false),
		)
		assert.Error(t, p.LoadProfile(context.Background(), "u1"))
		assert.Empty(t, p.Preferences().UserID)
	})
}

func TestSaveProfile_NoopWithoutUser(t *testing.T) {
	p, tables := newTestProfileSync(t)

	require.NoError(t, p.SetUsesWifi(context.Background(), true))

	assert.True(t, p.Preferences().UsesWifi)
	assert.Equal(t, 0, tables.callCount("update:"))
}

func TestToggles_PersistImmediately(t *testing.T) {
	p, tables := newTestProfileSync(t)
	tables.seed(remote.TableProfiles, profileRow("u1", "rider@example.com", false, false))
	require.NoError(t, p.LoadProfile(context.Background(), "u1"))

	require.NoError(t, p.SetUsesWifi(context.Background(), true))
	require.NoError(t, p.SetUsesTrailer(context.Background(), true))

	row := tables.rows[remote.TableProfiles][0]
	assert.Equal(t, true, row["uses_wifi"])
	assert.Equal(t, true, row["uses_trailer"])
	assert.Equal(t, 2, tables.callCount("update:"))
}

func TestSaveProfile_FailureKeepsLocalValue(t *testing.T) {
	p, tables := newTestProfileSync(t)
	tables.seed(remote.TableProfiles, profileRow("u1", "rider@example.com", false, false))
	require.NoError(t, p.LoadProfile(context.Background(), "u1"))
	tables.fail = failOn("update", remote.TableProfiles, errBackend)

	err := p.SetUsesTrailer(context.Background(), true)

	assert.ErrorIs(t, err, errBackend)
	assert.True(t, p.Preferences().UsesTrailer)
}

func TestLoadWifiSubscriberCount(t *testing.T) {
	p, tables := newTestProfileSync(t)

	require.NoError(t, p.LoadWifiSubscriberCount(context.Background()))
	assert.Equal(t, 1, p.Preferences().WifiSubscriberCount, "never below one")

	tables.seed(remote.TableProfiles,
		profileRow("u1", "a@example.com", true, false),
		profileRow("u2", "b@example.com", true, false),
		profileRow("u3", "c@example.com", false, false),
	)
	require.NoError(t, p.LoadWifiSubscriberCount(context.Background()))
	assert.Equal(t, 2, p.Preferences().WifiSubscriberCount)

	tables.fail = failOn("count", remote.TableWifiSubscribers, errBackend)
	assert.Error(t, p.LoadWifiSubscriberCount(context.Background()))
	assert.Equal(t, 2, p.Preferences().WifiSubscriberCount)
}

func TestLoadAvailableStalls(t *testing.T) {
	p, tables := newTestProfileSync(t)

	p.SetHorseCount(3)
	require.NoError(t, p.LoadAvailableStalls(context.Background()))
	assert.Equal(t, 11, p.Preferences().AvailableStalls, "fallback is total minus own horses")

	tables.seed(remote.TableSettings, remote.Row{"id": 1, "available_stalls": 6})
	require.NoError(t, p.LoadAvailableStalls(context.Background()))
	assert.Equal(t, 6, p.Preferences().AvailableStalls)

	tables.fail = failOn("select", remote.TableSettings, errBackend)
	assert.Error(t, p.LoadAvailableStalls(context.Background()))
	assert.Equal(t, 6, p.Preferences().AvailableStalls)
}

func TestLoadFailuresAddressedToOwnerBeforeProfileLoads(t *testing.T) {
	p, tables := newTestProfileSync(t)
	p.WithOwner("u1")
	events := collect(p.bus)
	tables.fail = func(op, table string, _ remote.Eq) error {
		if table == remote.TableWifiSubscribers || table == remote.TableSettings {
			return errBackend
		}
		return nil
	}

	assert.Error(t, p.LoadWifiSubscriberCount(context.Background()))
	assert.Error(t, p.LoadAvailableStalls(context.Background()))

	evs := events()
	require.Len(t, evs, 2)
	for _, ev := range evs {
		assert.Equal(t, notify.OperationFailed, ev.Type)
		assert.Equal(t, "u1", ev.UserID)
	}
	assert.Empty(t, p.Preferences().UserID, "owner alone does not mark the profile loaded")
}

func TestReset(t *testing.T) {
	p, tables := newTestProfileSync(t)
	tables.seed(remote.TableProfiles, profileRow("u1", "rider@example.com", true, true))
	require.NoError(t, p.LoadProfile(context.Background(), "u1"))
	p.SetHorseCount(2)

	p.Reset()

	got := p.Preferences()
	assert.Empty(t, got.UserID)
	assert.Empty(t, got.Email)
	assert.False(t, got.UsesWifi)
	assert.False(t, got.UsesTrailer)
	assert.Equal(t, 0, got.HorseCount)
	assert.Equal(t, 1, got.WifiSubscriberCount)
}

func TestProfileFees(t *testing.T) {
	p, tables := newTestProfileSync(t)
	tables.seed(remote.TableProfiles,
		profileRow("u1", "a@example.com", true, true),
		profileRow("u2", "b@example.com", true, false),
	)
	require.NoError(t, p.LoadProfile(context.Background(), "u1"))
	require.NoError(t, p.LoadWifiSubscriberCount(context.Background()))
	p.SetHorseCount(2)

	got := p.Fees(time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC))

	assert.Equal(t, 500, got.Rent)
	assert.Equal(t, 50, got.TrailerFee)
	assert.InDelta(t, 25.0, got.WifiShare, 0.001)
	assert.InDelta(t, 575.0, got.Subtotal, 0.001)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got.DueDate)
}
