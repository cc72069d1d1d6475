package users_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store"
	"github.com/yz174/kliq/pkg/store/storetest"
	"github.com/yz174/kliq/pkg/users"
)

func TestUpsertValidation(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	svc := users.New(s)
	ctx := context.Background()

	cases := []struct {
		name string
		p    store.UserProfile
	}{
		{"missing external id", store.UserProfile{Name: "Ann"}},
		{"reserved characters", store.UserProfile{ExternalID: "a:b", Name: "Ann"}},
		{"blank name", store.UserProfile{ExternalID: "ext-1", Name: "   "}},
		{"long name", store.UserProfile{ExternalID: "ext-1", Name: strings.Repeat("x", 201)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Upsert(ctx, tc.p)
			require.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func TestUpsertTrimsAndRefreshes(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	svc := users.New(s)
	ctx := context.Background()

	u, created, err := svc.Upsert(ctx, store.UserProfile{ExternalID: " ext-1 ", Name: " Ann "})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ext-1", u.ExternalID)
	assert.Equal(t, "Ann", u.Name)

	again, created, err := svc.Upsert(ctx, store.UserProfile{ExternalID: "ext-1", Name: "Annie"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Annie", again.Name)
}

func TestGetManyKeepsRequestOrder(t *testing.T) {
	s, _ := storetest.Open(t, nil)
	svc := users.New(s)
	a := storetest.User(t, s, "ann")
	b := storetest.User(t, s, "bob")

	got, err := svc.GetMany(context.Background(), []string{b.ID, "missing", a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}
