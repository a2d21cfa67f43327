package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory returns a fresh, empty Store for one subtest.
type storeFactory func(t *testing.T) Store

type contractOptions struct {
	// strictEmail is true when the backend rejects duplicate emails on Insert.
	strictEmail bool
}

func newTestAccount(t *testing.T, email string, role Role) Account {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	id, err := NewID(now)
	require.NoError(t, err)

	name := "Test " + string(role)
	return Account{
		ID:           id,
		Name:         &name,
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		Role:         role,
		CreatedAt:    now,
	}
}

func runStoreContract(t *testing.T, newStore storeFactory, opts contractOptions) {
	t.Run("insert and load", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		in := newTestAccount(t, "  Alice@Example.COM ", RoleUser)
		created, err := s.Insert(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", created.Email)

		byID, err := s.GetByID(ctx, in.ID)
		require.NoError(t, err)
		assert.Equal(t, in.ID, byID.ID)
		assert.Equal(t, "alice@example.com", byID.Email)
		assert.Equal(t, RoleUser, byID.Role)
		assert.Equal(t, in.PasswordHash, byID.PasswordHash)
		require.NotNil(t, byID.Name)
		assert.Equal(t, *in.Name, *byID.Name)
		assert.True(t, in.CreatedAt.Equal(byID.CreatedAt), "created_at %v != %v", in.CreatedAt, byID.CreatedAt)
		assert.False(t, byID.HasActiveCredential())

		byEmail, err := s.GetByEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, in.ID, byEmail.ID)
	})

	t.Run("missing account", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetByID(ctx, "01J00000000000000000000000")
		assert.True(t, IsNotFound(err), "got %v", err)

		_, err = s.GetByEmail(ctx, "nobody@example.com")
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := newTestAccount(t, "first@example.com", RoleUser)
		_, err := s.Insert(ctx, a)
		require.NoError(t, err)

		b := a
		b.Email = "second@example.com"
		_, err = s.Insert(ctx, b)
		require.Error(t, err)
		assert.True(t, IsConflict(err))
		assert.Equal(t, "id", ConflictField(err))

		got, err := s.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "first@example.com", got.Email)
	})

	if opts.strictEmail {
		t.Run("duplicate email conflicts", func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			_, err := s.Insert(ctx, newTestAccount(t, "dup@example.com", RoleUser))
			require.NoError(t, err)

			_, err = s.Insert(ctx, newTestAccount(t, "DUP@example.com", RoleAdmin))
			require.Error(t, err)
			assert.Equal(t, "email", ConflictField(err))
		})
	}

	t.Run("insert rejects invalid input", func(t *testing.T) {
		s := newStore(t)

		a := newTestAccount(t, "bad@example.com", Role("owner"))
		_, err := s.Insert(context.Background(), a)
		assert.True(t, IsInvalidInput(err), "got %v", err)
	})

	t.Run("active credential overwrite is last writer wins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := newTestAccount(t, "slot@example.com", RoleUser)
		_, err := s.Insert(ctx, a)
		require.NoError(t, err)

		require.NoError(t, s.SetActiveCredential(ctx, a.ID, "cred-1"))
		require.NoError(t, s.SetActiveCredential(ctx, a.ID, "cred-2"))

		got, err := s.GetByID(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, got.HasActiveCredential())
		assert.Equal(t, "cred-2", *got.ActiveCredential)
	})

	t.Run("set credential on missing account", func(t *testing.T) {
		s := newStore(t)

		err := s.SetActiveCredential(context.Background(), "01J00000000000000000000000", "cred")
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("clear credential is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := newTestAccount(t, "clear@example.com", RoleUser)
		_, err := s.Insert(ctx, a)
		require.NoError(t, err)
		require.NoError(t, s.SetActiveCredential(ctx, a.ID, "cred-1"))

		require.NoError(t, s.ClearActiveCredential(ctx, a.ID))
		require.NoError(t, s.ClearActiveCredential(ctx, a.ID))

		got, err := s.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, got.HasActiveCredential())

		missing := "01J00000000000000000000001"
		require.NoError(t, s.ClearActiveCredential(ctx, missing))
		_, err = s.GetByID(ctx, missing)
		assert.True(t, IsNotFound(err), "clearing a missing account must not create it")
	})

	t.Run("conditional delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := newTestAccount(t, "delete@example.com", RoleUser)
		_, err := s.Insert(ctx, a)
		require.NoError(t, err)

		ok, err := s.DeleteByIDAndEmail(ctx, a.ID, "other@example.com")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.DeleteByIDAndEmail(ctx, a.ID, "Delete@Example.com")
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = s.GetByID(ctx, a.ID)
		assert.True(t, IsNotFound(err))

		ok, err = s.DeleteByIDAndEmail(ctx, a.ID, "delete@example.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list non admin", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u1 := newTestAccount(t, "u1@example.com", RoleUser)
		u2 := newTestAccount(t, "u2@example.com", RoleUser)
		adm := newTestAccount(t, "admin@example.com", RoleAdmin)
		for _, a := range []Account{u1, adm, u2} {
			_, err := s.Insert(ctx, a)
			require.NoError(t, err)
		}

		got, err := s.ListNonAdmin(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, a := range got {
			assert.Equal(t, RoleUser, a.Role)
		}
		assert.ElementsMatch(t, []string{u1.ID, u2.ID}, []string{got[0].ID, got[1].ID})
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() }, contractOptions{strictEmail: true})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a := newTestAccount(t, "copy@example.com", RoleUser)
	_, err := s.Insert(ctx, a)
	require.NoError(t, err)
	require.NoError(t, s.SetActiveCredential(ctx, a.ID, "cred-1"))

	got, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	*got.ActiveCredential = "tampered"

	again, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "cred-1", *again.ActiveCredential)
}

func TestAccountView_StripsSecrets(t *testing.T) {
	a := newTestAccount(t, "view@example.com", RoleAdmin)
	cred := "secret-credential"
	a.ActiveCredential = &cred

	v := a.View()
	assert.Equal(t, a.ID, v.ID)
	assert.Equal(t, a.Email, v.Email)
	assert.Equal(t, RoleAdmin, v.Role)
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{in: "user", want: RoleUser, ok: true},
		{in: "admin", want: RoleAdmin, ok: true},
		{in: " admin ", want: RoleAdmin, ok: true},
		{in: "Admin", ok: false},
		{in: "", ok: false},
	}

	for _, tc := range cases {
		got, ok := ParseRole(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseRole(%q)=(%q,%v) want (%q,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
