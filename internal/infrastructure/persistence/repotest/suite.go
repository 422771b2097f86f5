// Package repotest holds a behavioural test suite that every
// progression.Repository implementation runs against itself.
package repotest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/domain/shared"
)

// RepositorySuite exercises a Repository through its public contract.
// Factory must return an empty repository for each test.
type RepositorySuite struct {
	suite.Suite

	Factory func() progression.Repository

	ctx  context.Context
	repo progression.Repository
	now  time.Time
}

// SetupTest creates a fresh repository.
func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.Factory()
	s.now = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
}

func (s *RepositorySuite) createUser(id string) *progression.User {
	u, err := progression.NewUser(id, "Name "+id, "avatars/"+id, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.repo.CreateUser(s.ctx, u))
	return u
}

// commit loads the user, adds points and a statistic, and commits.
func (s *RepositorySuite) commit(id string, points int, key string) error {
	u, err := s.repo.GetUser(s.ctx, id)
	if err != nil {
		return err
	}
	expected := u.Version
	u.Experience += int64(points)
	u.Statistics[progression.StatPostsCreated]++
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	u.Streak = progression.Streak{Current: 1, Longest: 1, LastActivityDate: &day}
	if u.Experience >= 50 && !u.HasBadge("first_post") {
		u.Badges = append(u.Badges, progression.EarnedBadge{Name: "first_post", EarnedAt: s.now})
	}

	entry := progression.NewLedgerEntry(id, progression.ActionPostCreated, points, "Created a post",
		progression.References{PostID: "p-1"}, map[string]any{"source": "test"}, key, s.now)
	return s.repo.Commit(s.ctx, progression.Commit{User: u, ExpectedVersion: expected, Entry: entry})
}

func (s *RepositorySuite) TestCreateAndGet() {
	a := s.createUser("alice")
	b := s.createUser("bob")
	s.Less(a.Seq, b.Seq)

	got, err := s.repo.GetUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal("Name alice", got.DisplayName)
	s.Equal("avatars/alice", got.AvatarRef)
	s.Equal(int64(0), got.Experience)
	s.Equal(int64(0), got.Version)
	s.NotNil(got.Statistics)
	s.Nil(got.Streak.LastActivityDate)

	_, err = s.repo.GetUser(s.ctx, "ghost")
	s.ErrorIs(err, shared.ErrUserNotFound)

	dup, err := progression.NewUser("alice", "", "", s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.repo.CreateUser(s.ctx, dup), shared.ErrUserAlreadyExists)
}

func (s *RepositorySuite) TestCommitPersistsStateAndEntry() {
	s.createUser("alice")
	s.Require().NoError(s.commit("alice", 50, ""))

	u, err := s.repo.GetUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(50), u.Experience)
	s.Equal(int64(1), u.Version)
	s.Equal(int64(1), u.Statistics.Get(progression.StatPostsCreated))
	s.Equal(1, u.Streak.Current)
	s.Require().NotNil(u.Streak.LastActivityDate)
	s.Equal("2024-06-03", u.Streak.LastActivityDate.Format("2006-01-02"))
	s.True(u.HasBadge("first_post"))

	entries, err := s.repo.RecentEntries(s.ctx, "alice", 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(progression.ActionPostCreated, entries[0].ActionType)
	s.Equal(50, entries[0].PointsAwarded)
	s.Equal("p-1", entries[0].References.PostID)
	s.Equal("test", entries[0].Metadata["source"])
}

func (s *RepositorySuite) TestCommitRejectsStaleVersion() {
	s.createUser("alice")
	u, err := s.repo.GetUser(s.ctx, "alice")
	s.Require().NoError(err)

	s.Require().NoError(s.commit("alice", 10, ""))

	entry := progression.NewLedgerEntry("alice", progression.ActionCommentAdded, 10, "", progression.References{}, nil, "", s.now)
	err = s.repo.Commit(s.ctx, progression.Commit{User: u, ExpectedVersion: 0, Entry: entry})
	s.ErrorIs(err, shared.ErrVersionMismatch)

	entries, err := s.repo.RecentEntries(s.ctx, "alice", 10)
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *RepositorySuite) TestCommitUnknownUser() {
	u, err := progression.NewUser("ghost", "", "", s.now)
	s.Require().NoError(err)
	entry := progression.NewLedgerEntry("ghost", progression.ActionCommentAdded, 10, "", progression.References{}, nil, "", s.now)

	err = s.repo.Commit(s.ctx, progression.Commit{User: u, ExpectedVersion: 0, Entry: entry})
	s.ErrorIs(err, shared.ErrUserNotFound)
}

func (s *RepositorySuite) TestIdempotencyKeyIsUniquePerUser() {
	s.createUser("alice")
	s.createUser("bob")

	s.Require().NoError(s.commit("alice", 10, "k-1"))
	s.ErrorIs(s.commit("alice", 10, "k-1"), shared.ErrDuplicateAction)
	s.Require().NoError(s.commit("bob", 10, "k-1"))

	u, err := s.repo.GetUser(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(10), u.Experience, "rejected commit must not change state")

	found, err := s.repo.FindEntryByIdempotencyKey(s.ctx, "alice", "k-1")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal("k-1", found.IdempotencyKey)

	missing, err := s.repo.FindEntryByIdempotencyKey(s.ctx, "alice", "other")
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *RepositorySuite) TestRecentEntriesNewestFirst() {
	s.createUser("alice")
	for i := 0; i < 5; i++ {
		s.now = s.now.Add(time.Minute)
		s.Require().NoError(s.commit("alice", i+1, ""))
	}

	entries, err := s.repo.RecentEntries(s.ctx, "alice", 3)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal(5, entries[0].PointsAwarded)
	s.Equal(3, entries[2].PointsAwarded)

	none, err := s.repo.RecentEntries(s.ctx, "nobody", 3)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *RepositorySuite) TestLeaderboardOrdering() {
	s.createUser("c")
	s.createUser("a")
	s.createUser("b")
	s.Require().NoError(s.commit("a", 300, ""))
	s.Require().NoError(s.commit("b", 100, ""))
	s.Require().NoError(s.commit("c", 100, ""))

	users, err := s.repo.Leaderboard(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(users, 3)
	s.Equal("a", users[0].ID)
	s.Equal("c", users[1].ID, "ties go to the earlier registration")
	s.Equal("b", users[2].ID)

	top, err := s.repo.Leaderboard(s.ctx, 1)
	s.Require().NoError(err)
	s.Len(top, 1)
}

func (s *RepositorySuite) TestLedgerTotals() {
	s.createUser("alice")
	s.createUser("bob")
	s.Require().NoError(s.commit("alice", 50, ""))
	s.Require().NoError(s.commit("alice", 10, ""))

	totals, err := s.repo.LedgerTotals(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(totals, 2)

	s.Equal("alice", totals[0].UserID)
	s.Equal(int64(60), totals[0].LedgerPoints)
	s.Equal(int64(2), totals[0].Entries)
	s.True(totals[0].Consistent())

	s.Equal("bob", totals[1].UserID)
	s.Equal(int64(0), totals[1].Entries)
	s.True(totals[1].Consistent())
}
