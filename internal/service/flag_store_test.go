package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wms-audit-api/internal/models"
	"github.com/noah-isme/wms-audit-api/internal/repository"
)

func TestFlagStoreReplaceAndList(t *testing.T) {
	store := NewFlagStore()
	store.Replace(models.FlagPage{Flags: repository.DefaultFlagFixtures(), Degraded: true})

	all := store.List(models.FlagFilter{})
	require.Len(t, all, 7)
	assert.Equal(t, int64(6), all[0].ID)
	assert.True(t, store.Degraded())
	assert.False(t, store.FetchedAt().IsZero())

	pending := store.List(models.FlagFilter{Status: models.FlagStatusPending})
	require.Len(t, pending, 6)
	for _, f := range pending {
		assert.Equal(t, models.FlagStatusPending, f.Status)
	}

	excess := store.List(models.FlagFilter{Type: models.FlagTypeExcess, Date: "2025-09-06"})
	require.Len(t, excess, 1)
	assert.Equal(t, int64(2), excess[0].ID)
}

func TestFlagStoreMergeKeepsOtherFlags(t *testing.T) {
	store := NewFlagStore()
	store.Replace(models.FlagPage{Flags: repository.DefaultFlagFixtures()})

	updated := repository.DefaultFlagFixtures()[0]
	updated.Status = models.FlagStatusResolved
	store.Merge(models.FlagPage{Flags: []models.Flag{updated}})

	require.Len(t, store.List(models.FlagFilter{}), 7)
	got, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.FlagStatusResolved, got.Status)
}

func TestFlagStoreMarksOnlyPendingFlags(t *testing.T) {
	store := NewFlagStore()
	store.Replace(models.FlagPage{Flags: repository.DefaultFlagFixtures()})

	store.MarkRejected(3, "Recounted, count is correct")
	store.MarkResolved(3)
	got, _ := store.Get(3)
	assert.Equal(t, models.FlagStatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)

	store.MarkResolved(7)
	got, _ = store.Get(7)
	assert.Equal(t, models.FlagStatusRejected, got.Status)

	_, ok := store.Get(99)
	assert.False(t, ok)
}

func TestFlagStoreReturnsCopies(t *testing.T) {
	store := NewFlagStore()
	store.Replace(models.FlagPage{Flags: repository.DefaultFlagFixtures()})

	got, _ := store.Get(2)
	details := got.Details.(models.ExcessDetails)
	*details.RecoveryQty = 100

	again, _ := store.Get(2)
	assert.Equal(t, 7, *again.Details.(models.ExcessDetails).RecoveryQty)
}

func TestFlagStoreDegradedPagesKeepLiveFlags(t *testing.T) {
	store := NewFlagStore()
	live := models.Flag{ID: 1, Type: models.FlagTypeExcess, Details: models.ExcessDetails{Qty: 10}, Status: models.FlagStatusPending}
	store.Replace(models.FlagPage{Flags: []models.Flag{live}})

	store.Merge(models.FlagPage{Flags: repository.DefaultFlagFixtures(), Degraded: true})
	got, fixture, ok := store.Entry(1)
	require.True(t, ok)
	assert.False(t, fixture)
	assert.Equal(t, models.FlagTypeExcess, got.Type)

	_, fixture, ok = store.Entry(3)
	require.True(t, ok)
	assert.True(t, fixture)

	store.Replace(models.FlagPage{Flags: repository.DefaultFlagFixtures()[:2], Degraded: true})
	got, fixture, _ = store.Entry(1)
	assert.False(t, fixture)
	assert.Equal(t, models.FlagTypeExcess, got.Type)
	_, _, ok = store.Entry(3)
	assert.False(t, ok)

	store.Replace(models.FlagPage{Flags: repository.DefaultFlagFixtures()[:1]})
	got, fixture, _ = store.Entry(1)
	assert.False(t, fixture)
	assert.Equal(t, models.FlagTypeLost, got.Type)
}
