package legacy

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/birthday-reminder/internal/auth"
	"github.com/sakif/birthday-reminder/internal/repository/jsonfile"
	"github.com/sakif/birthday-reminder/internal/repository/repotest"
)

const legacyDB = `{
  "alice": {
    "password": "wonderland",
    "birthday": {"month": 6, "day": 1},
    "subscriptions": ["bob", "ghost", "bob", "alice"],
    "reminder_days": "3",
    "city": "Berlin",
    "favourite_colour": "blue"
  },
  "bob": {
    "password": "builder",
    "birthday": {"month": 2, "day": 29},
    "reminder_days": 0
  },
  "carol": {
    "password": "pw",
    "subscriptions": ["alice"]
  },
  "dave": {
    "password": "pw",
    "birthday": {"month": 4, "day": 31}
  },
  "erin": {
    "password": "pw",
    "birthday": {"month": 1, "day": 1},
    "reminder_days": "soon"
  },
  "frank": "not an object"
}`

func newTestImporter(t *testing.T) (*Importer, *jsonfile.Store) {
	t.Helper()
	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "birthday_db.json"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewImporter(store, auth.NewPasswordServiceForTest(bcrypt.MinCost), logger), store
}

func TestImport(t *testing.T) {
	im, store := newTestImporter(t)
	ctx := context.Background()

	report, err := im.Import(ctx, strings.NewReader(legacyDB))
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, report.Imported)
	assert.Empty(t, report.Existing)
	assert.Len(t, report.Invalid, 4)
	for _, name := range []string{"carol", "dave", "erin", "frank"} {
		assert.Contains(t, report.Invalid, name)
	}
	assert.Equal(t, 2, report.DroppedSubscriptions, "ghost and self")

	alice, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, alice.Subscriptions)
	assert.Equal(t, 3, alice.ReminderDays)
	assert.Equal(t, "Berlin", alice.City)
	assert.NoError(t, auth.NewPasswordServiceForTest(bcrypt.MinCost).Verify(alice.PasswordHash, "wonderland"),
		"password is hashed, not stored as-is")
	assert.NotEqual(t, "wonderland", alice.PasswordHash)

	bob, err := store.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, bob.ReminderDays)
	assert.Equal(t, 29, bob.Birthday.Day)
}

func TestImport_SkipsExistingAccounts(t *testing.T) {
	im, store := newTestImporter(t)
	ctx := context.Background()
	original := repotest.Create(t, store, "alice", 12, 24)

	report, err := im.Import(ctx, strings.NewReader(legacyDB))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, report.Existing)
	assert.Equal(t, []string{"bob"}, report.Imported)

	alice, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, original.PasswordHash, alice.PasswordHash)
	assert.Equal(t, original.Birthday, alice.Birthday)
	assert.Empty(t, alice.Subscriptions, "existing accounts are not modified")
}

func TestImport_TwiceIsIdempotent(t *testing.T) {
	im, _ := newTestImporter(t)
	ctx := context.Background()

	_, err := im.Import(ctx, strings.NewReader(legacyDB))
	require.NoError(t, err)

	report, err := im.Import(ctx, strings.NewReader(legacyDB))
	require.NoError(t, err)
	assert.Empty(t, report.Imported)
	assert.Equal(t, []string{"alice", "bob"}, report.Existing)
}

func TestImport_MalformedDocument(t *testing.T) {
	im, _ := newTestImporter(t)
	_, err := im.Import(context.Background(), strings.NewReader(`[1, 2, 3]`))
	assert.Error(t, err)
}

func TestParseReminderDays(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{``, 1, false},
		{`null`, 1, false},
		{`5`, 5, false},
		{`"7"`, 7, false},
		{`" 2 "`, 2, false},
		{`"x"`, 0, true},
		{`1.5`, 0, true},
		{`-1`, 0, true},
		{`400`, 0, true},
	}
	for _, tt := range tests {
		got, err := parseReminderDays([]byte(tt.in))
		if tt.wantErr {
			assert.Error(t, err, "input %s", tt.in)
			continue
		}
		require.NoError(t, err, "input %s", tt.in)
		assert.Equal(t, tt.want, got, "input %s", tt.in)
	}
}
