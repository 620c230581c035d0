package statusdoc_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcpbot/fcpbot/internal/models"
	"github.com/fcpbot/fcpbot/internal/statusdoc"
)

var roster = []models.TeamMember{
	{Login: "alice"}, {Login: "bob"}, {Login: "carol"}, {Login: "dave"},
}

func TestNewSeedsProposerAsSoleVoter(t *testing.T) {
	d := statusdoc.New("bob", models.DispositionMerge, roster)
	assert.Equal(t, 1, d.VoteCount())
	assert.True(t, d.HasVoted("bob"))
	assert.False(t, d.HasVoted("alice"))
	assert.Len(t, d.Votes, 4)
}

func TestRenderParseRoundTrip(t *testing.T) {
	d := statusdoc.New("alice", models.DispositionClose, roster)
	d.SetVoted("carol")
	require.NoError(t, d.AddConcern("what about federation"))
	require.NoError(t, d.AddConcern("naming is off"))
	require.NoError(t, d.ResolveConcern("what about federation"))

	body := d.Render()
	require.True(t, statusdoc.IsStatusBody(body))

	got, err := statusdoc.Parse(body)
	require.NoError(t, err)

	assert.Equal(t, "alice", got.Author)
	assert.Equal(t, models.DispositionClose, got.Disposition)
	assert.True(t, got.HasVoted("alice"))
	assert.True(t, got.HasVoted("carol"))
	assert.False(t, got.HasVoted("bob"))
	assert.Equal(t, 2, got.VoteCount())

	// Unresolved-first ordering survives the round trip.
	require.Len(t, got.Concerns, 2)
	assert.Equal(t, statusdoc.Concern{Text: "naming is off", Resolved: false}, got.Concerns[0])
	assert.Equal(t, statusdoc.Concern{Text: "what about federation", Resolved: true}, got.Concerns[1])
}

func TestParseIgnoresRosterRowsAsConcerns(t *testing.T) {
	// The vote list is itself a run of dash-bullet lines; nothing before the
	// Concerns: marker may be read as a concern.
	d := statusdoc.New("alice", models.DispositionMerge, roster)
	got, err := statusdoc.Parse(d.Render())
	require.NoError(t, err)
	assert.Empty(t, got.Concerns)
}

func TestParseConcernMarkerCaseInsensitive(t *testing.T) {
	body := "Team member @alice has proposed to merge this.\n\n" +
		"- [x] @alice\n\n" +
		"concerns:\n\n" +
		"* still thinking\n"
	got, err := statusdoc.Parse(body)
	require.NoError(t, err)
	require.Len(t, got.Concerns, 1)
	assert.Equal(t, "still thinking", got.Concerns[0].Text)
}

func TestParseSkipsMalformedStrikeThrough(t *testing.T) {
	body := "Team member @alice has proposed to merge this.\n\n" +
		"- [x] @alice\n\n" +
		"Concerns:\n\n" +
		"* ~~unterminated strike\n" +
		"* fine concern\n"
	got, err := statusdoc.Parse(body)
	require.NoError(t, err)
	require.Len(t, got.Concerns, 1)
	assert.Equal(t, "fine concern", got.Concerns[0].Text)
}

func TestParseUppercaseCheckmark(t *testing.T) {
	body := "Team member @alice has proposed to postpone this.\n\n" +
		"* [X] @bob\n"
	got, err := statusdoc.Parse(body)
	require.NoError(t, err)
	assert.True(t, got.HasVoted("bob"))
}

func TestParseRejectsNonStatusBody(t *testing.T) {
	_, err := statusdoc.Parse("just a regular comment")
	assert.ErrorIs(t, err, statusdoc.ErrNoPreamble)
}

func TestCancelledPrependsNotice(t *testing.T) {
	d := statusdoc.New("alice", models.DispositionMerge, roster)
	body := d.Render()
	cancelled := statusdoc.Cancelled(body)

	assert.True(t, strings.HasPrefix(cancelled, statusdoc.CancelNotice))
	// The original body stays intact below the notice and the comment is no
	// longer identified as live.
	assert.True(t, strings.HasSuffix(cancelled, body))
	assert.False(t, statusdoc.IsStatusBody(cancelled))
}

func TestSetVotedIdempotent(t *testing.T) {
	d := statusdoc.New("alice", models.DispositionMerge, roster)
	assert.True(t, d.SetVoted("bob"))
	assert.False(t, d.SetVoted("bob"))
	assert.Equal(t, 2, d.VoteCount())
}

func TestConcernLifecycle(t *testing.T) {
	d := statusdoc.New("alice", models.DispositionMerge, roster)
	require.NoError(t, d.AddConcern("spec is ambiguous"))
	assert.ErrorIs(t, d.AddConcern("spec is ambiguous"), statusdoc.ErrDuplicateConcern)
	assert.ErrorIs(t, d.ResolveConcern("never raised"), statusdoc.ErrUnknownConcern)

	assert.Equal(t, 1, d.UnresolvedConcerns())
	require.NoError(t, d.ResolveConcern("spec is ambiguous"))
	assert.Equal(t, 0, d.UnresolvedConcerns())
}

func TestApplyRosterReflectsMembershipChanges(t *testing.T) {
	d := statusdoc.New("alice", models.DispositionMerge, roster)
	d.SetVoted("bob")

	// dave left, erin joined
	next := []models.TeamMember{
		{Login: "alice"}, {Login: "bob"}, {Login: "carol"}, {Login: "erin"},
	}
	d.ApplyRoster(next)

	require.Len(t, d.Votes, 4)
	assert.Equal(t, statusdoc.Vote{Login: "erin", Voted: false}, d.Votes[3])
	assert.True(t, d.HasVoted("alice"))
	assert.True(t, d.HasVoted("bob"))
	assert.NotContains(t, d.Render(), "@dave")
}
